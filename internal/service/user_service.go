package service

import (
	"context"
	"errors"
	"exam_portal_backend/internal/model"
	"exam_portal_backend/internal/repository"
	"exam_portal_backend/internal/util"
	"exam_portal_backend/pkg/logger"
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserService 处理用户相关的业务逻辑
type UserService struct {
	UserRepo *repository.UserRepository
	Storage  *StorageService
}

func NewUserService(userRepo *repository.UserRepository, storage *StorageService) *UserService {
	return &UserService{
		UserRepo: userRepo,
		Storage:  storage,
	}
}

// ListUsers 管理员用户列表，每页 10 条
func (s *UserService) ListUsers(ctx context.Context, search, role string, page int) ([]model.User, util.Pagination, error) {
	filter := repository.UserFilter{Search: strings.TrimSpace(search)}
	if r := model.UserRole(role); r.Valid() {
		filter.Role = r
	}
	users, total, err := s.UserRepo.WithContext(ctx).List(filter, page, util.ItemsPerPage)
	if err != nil {
		return nil, util.Pagination{}, err
	}
	return users, util.NewPagination(page, util.ItemsPerPage, total), nil
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
	Role     string `json:"role"`
}

func (s *UserService) CreateUser(ctx context.Context, req CreateUserRequest) (*model.User, error) {
	role := model.UserRole(req.Role)
	if req.Role == "" {
		role = model.Student
	}
	user, err := createUser(ctx, s.UserRepo, req.Username, req.Email, req.Password, req.FullName, role)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("User created by admin", zap.Uint("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Deactivate 账号不做物理删除
func (s *UserService) Deactivate(ctx context.Context, actorID, userID uint) error {
	if actorID == userID {
		return util.Invalid(util.MsgCannotDeleteSelf)
	}
	err := s.UserRepo.WithContext(ctx).Deactivate(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrUserNotFound
	}
	return err
}

func (s *UserService) GetUser(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.UserRepo.WithContext(ctx).FindByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUserNotFound
	}
	return user, err
}

type ProfileImage struct {
	Reader io.Reader
	Size   int64
}

type UpdateProfileRequest struct {
	FullName string `form:"full_name"`
	Email    string `form:"email"`
}

// UpdateProfile 更新姓名、邮箱，可选上传头像
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, req UpdateProfileRequest, image *ProfileImage) (*model.User, error) {
	users := s.UserRepo.WithContext(ctx)
	user, err := users.FindByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if name := strings.TrimSpace(req.FullName); name != "" {
		if err := validateFullName(name); err != nil {
			return nil, err
		}
		fields["full_name"] = name
		user.FullName = name
	}
	if email := strings.ToLower(strings.TrimSpace(req.Email)); email != "" && email != user.Email {
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		exists, err := users.EmailExists(email, userID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, util.ErrEmailRegistered
		}
		fields["email"] = email
		user.Email = email
	}

	if image != nil {
		url, err := s.Storage.UploadProfileImage(ctx, userID, image.Reader, image.Size)
		if err != nil {
			return nil, err
		}
		fields["profile_image"] = url
		user.ProfileImage = url
	}

	if len(fields) == 0 {
		return user, nil
	}
	if err := users.UpdateFields(userID, fields); err != nil {
		return nil, err
	}
	return user, nil
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	ConfirmPassword string `json:"confirm_password"`
}

var ErrCurrentPasswordMismatch = errors.New("current password is incorrect")

func (s *UserService) ChangePassword(ctx context.Context, userID uint, req ChangePasswordRequest) error {
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.NewPassword {
		return util.Invalid("Passwords do not match")
	}
	if err := validatePassword(req.NewPassword); err != nil {
		return err
	}

	users := s.UserRepo.WithContext(ctx)
	user, err := users.FindByID(userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
		return ErrCurrentPasswordMismatch
	}

	hashed, err := hashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return users.UpdateFields(userID, map[string]interface{}{"password_hash": hashed})
}
