package service

import (
	"context"
	"errors"
	"exam_portal_backend/internal/config"
	"exam_portal_backend/internal/model"
	"exam_portal_backend/internal/repository"
	"exam_portal_backend/internal/util"
	"exam_portal_backend/pkg/logger"
	"exam_portal_backend/pkg/monitoring"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ClientInfo 会话绑定的客户端指纹
type ClientInfo struct {
	IP        string
	UserAgent string
}

type AuthService struct {
	UserRepo      *repository.UserRepository
	Sessions      *repository.SessionRepository
	LoginAttempts *repository.LoginAttemptRepository
	Cfg           *config.Config
	Now           func() time.Time
}

func NewAuthService(userRepo *repository.UserRepository, sessions *repository.SessionRepository, attempts *repository.LoginAttemptRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo:      userRepo,
		Sessions:      sessions,
		LoginAttempts: attempts,
		Cfg:           cfg,
		Now:           time.Now,
	}
}

type RegisterRequest struct {
	Username        string `json:"username" binding:"required"`
	Email           string `json:"email" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password"`
	FullName        string `json:"full_name" binding:"required"`
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), util.BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// createUser 注册与管理员创建共用的校验和写入逻辑
func createUser(ctx context.Context, repo *repository.UserRepository, username, email, password, fullName string, role model.UserRole) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	fullName = strings.TrimSpace(fullName)

	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if err := validateFullName(fullName); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, util.Invalid("Invalid role")
	}

	users := repo.WithContext(ctx)
	if exists, err := users.UsernameExists(username); err != nil {
		return nil, err
	} else if exists {
		return nil, util.ErrUsernameTaken
	}
	if exists, err := users.EmailExists(email, 0); err != nil {
		return nil, err
	} else if exists {
		return nil, util.ErrEmailRegistered
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
		FullName:     fullName,
		Role:         role,
		IsActive:     true,
	}
	if err := users.Create(user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, util.ErrUsernameTaken
		}
		return nil, err
	}
	return user, nil
}

// Register 公开注册只创建学生账号
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		return nil, util.Invalid("Passwords do not match")
	}
	user, err := createUser(ctx, s.UserRepo, req.Username, req.Email, req.Password, req.FullName, model.Student)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("User registered", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

type LoginResult struct {
	User          *model.User
	Session       *model.Session
	RememberToken string
}

// Login 同一 IP 在窗口期内失败次数达到上限后直接拒绝，成功登录清零计数
func (s *AuthService) Login(ctx context.Context, login, password string, remember bool, client ClientInfo) (*LoginResult, error) {
	count, err := s.LoginAttempts.Count(ctx, client.IP)
	if err != nil {
		return nil, err
	}
	if count >= int64(s.Cfg.Login.MaxAttempts) {
		monitoring.LoginFailures.WithLabelValues("rate_limited").Inc()
		return nil, util.ErrTooManyAttempts
	}

	user, err := s.UserRepo.WithContext(ctx).FindByLogin(strings.TrimSpace(login))
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err != nil || !user.IsActive || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		if _, incErr := s.LoginAttempts.Increment(ctx, client.IP, s.Cfg.Login.Window); incErr != nil {
			logger.Log.Warn("Failed to record login attempt", zap.String("ip", client.IP), zap.Error(incErr))
		}
		monitoring.LoginFailures.WithLabelValues("invalid_credentials").Inc()
		return nil, util.ErrInvalidCredentials
	}

	if err := s.LoginAttempts.Reset(ctx, client.IP); err != nil {
		logger.Log.Warn("Failed to reset login attempts", zap.String("ip", client.IP), zap.Error(err))
	}

	sess, err := s.issueSession(ctx, user, client)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{User: user, Session: sess}
	if remember {
		ttl := time.Duration(s.Cfg.Session.RememberDays) * 24 * time.Hour
		result.RememberToken, err = util.GenerateRememberToken(user.ID, s.Cfg.Session.RememberSecret, ttl, s.Now())
		if err != nil {
			return nil, err
		}
	}

	logger.Log.Info("User logged in", zap.Uint("user_id", user.ID), zap.String("ip", client.IP))
	return result, nil
}

func (s *AuthService) issueSession(ctx context.Context, user *model.User, client ClientInfo) (*model.Session, error) {
	now := s.Now()
	sess := &model.Session{
		Token:     uuid.New().String(),
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		IssuedAt:  now,
		LastSeen:  now,
		IP:        client.IP,
		UserAgent: client.UserAgent,
	}
	if err := s.Sessions.Save(ctx, sess, s.Cfg.Session.Timeout); err != nil {
		return nil, err
	}
	if err := s.UserRepo.WithContext(ctx).UpdateLastLogin(user.ID, now); err != nil {
		logger.Log.Warn("Failed to update last login", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	return sess, nil
}

// ValidateSession 校验 IP、UA、不活跃超时与账号状态，失败时销毁会话；成功时刷新 last_seen 与过期时间
func (s *AuthService) ValidateSession(ctx context.Context, token string, client ClientInfo) (*model.Session, error) {
	if token == "" {
		return nil, util.ErrSessionInvalid
	}
	sess, err := s.Sessions.Get(ctx, token)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, util.ErrSessionInvalid
	}
	if err != nil {
		return nil, err
	}

	now := s.Now()
	if sess.IP != client.IP || sess.UserAgent != client.UserAgent || now.Sub(sess.LastSeen) > s.Cfg.Session.Timeout {
		_ = s.Sessions.Delete(ctx, token)
		logger.Log.Info("Session invalidated", zap.Uint("user_id", sess.UserID), zap.String("ip", client.IP))
		return nil, util.ErrSessionInvalid
	}

	// 账号被停用或删除后会话立即失效
	user, err := s.UserRepo.WithContext(ctx).FindByID(sess.UserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err != nil || !user.IsActive {
		_ = s.Sessions.Delete(ctx, token)
		logger.Log.Info("Session of inactive user closed", zap.Uint("user_id", sess.UserID))
		return nil, util.ErrSessionInvalid
	}

	sess.LastSeen = now
	if err := s.Sessions.Save(ctx, sess, s.Cfg.Session.Timeout); err != nil {
		return nil, err
	}
	return sess, nil
}

// RestoreFromRemember 用记住我令牌为仍然有效的账号重新签发会话
func (s *AuthService) RestoreFromRemember(ctx context.Context, token string, client ClientInfo) (*model.Session, error) {
	claims, err := util.ParseRememberToken(token, s.Cfg.Session.RememberSecret)
	if err != nil {
		return nil, util.ErrSessionInvalid
	}
	user, err := s.UserRepo.WithContext(ctx).FindByID(claims.UserID)
	if err != nil || !user.IsActive {
		return nil, util.ErrSessionInvalid
	}
	return s.issueSession(ctx, user, client)
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.Sessions.Delete(ctx, token)
}

// UsernameAvailable 格式不合法的用户名同样视为不可用
func (s *AuthService) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if validateUsername(username) != nil {
		return false, nil
	}
	exists, err := s.UserRepo.WithContext(ctx).UsernameExists(username)
	return !exists, err
}

func (s *AuthService) CurrentUser(ctx context.Context, sess *model.Session) (*model.User, error) {
	if sess == nil {
		return nil, util.ErrSessionInvalid
	}
	user, err := s.UserRepo.WithContext(ctx).FindByID(sess.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUserNotFound
	}
	return user, err
}
