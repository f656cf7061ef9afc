package controller

import (
	"errors"
	"exam_portal_backend/internal/config"
	"exam_portal_backend/internal/middleware"
	"exam_portal_backend/internal/model"
	"exam_portal_backend/internal/service"
	"exam_portal_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	AuthService *service.AuthService
	Cfg         *config.SessionConfig
}

func NewAuthController(authService *service.AuthService, cfg *config.SessionConfig) *AuthController {
	return &AuthController{
		AuthService: authService,
		Cfg:         cfg,
	}
}

// respondUserError 账号相关错误统一映射为前端提示
func respondUserError(ctx *gin.Context, err error, fallback string) {
	if msg, ok := util.ValidationMessage(err); ok {
		util.Fail(ctx, msg)
		return
	}
	switch {
	case errors.Is(err, util.ErrUsernameTaken):
		util.Fail(ctx, util.MsgUsernameTaken)
	case errors.Is(err, util.ErrEmailRegistered):
		util.Fail(ctx, util.MsgEmailRegistered)
	case errors.Is(err, util.ErrUserNotFound):
		util.Fail(ctx, util.MsgUserNotFound)
	case errors.Is(err, service.ErrCurrentPasswordMismatch):
		util.Fail(ctx, util.MsgCurrentPasswordBad)
	default:
		util.LogInternalError(ctx, err, fallback)
	}
}

// Register godoc
// @Summary 注册学生账号
// @Tags 认证
// @Accept json
// @Produce json
// @Param body body service.RegisterRequest true "注册信息"
// @Success 200 {object} util.Response
// @Router /api/register [post]
func (c *AuthController) Register(ctx *gin.Context) {
	var req service.RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, "All fields are required")
		return
	}

	user, err := c.AuthService.Register(ctx.Request.Context(), req)
	if err != nil {
		respondUserError(ctx, err, "Registration failed")
		return
	}
	util.Success(ctx, gin.H{"message": util.MsgRegisterSuccess, "user_id": user.ID})
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Remember bool   `json:"remember"`
}

// Login godoc
// @Summary 登录
// @Description 用户名或邮箱登录，同一 IP 15 分钟内失败 5 次后暂时锁定
// @Tags 认证
// @Accept json
// @Produce json
// @Param body body LoginRequest true "登录信息"
// @Success 200 {object} util.Response
// @Router /api/login [post]
func (c *AuthController) Login(ctx *gin.Context) {
	var req LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, "Username and password are required")
		return
	}

	result, err := c.AuthService.Login(ctx.Request.Context(), req.Username, req.Password, req.Remember, middleware.ClientInfo(ctx))
	switch {
	case errors.Is(err, util.ErrTooManyAttempts):
		util.Fail(ctx, util.MsgTooManyLogins)
		return
	case errors.Is(err, util.ErrInvalidCredentials):
		util.Fail(ctx, util.MsgInvalidCredentials)
		return
	case err != nil:
		util.LogInternalError(ctx, err, "Login failed")
		return
	}

	middleware.SetSessionCookie(ctx, c.Cfg, result.Session.Token)
	if result.RememberToken != "" {
		middleware.SetRememberCookie(ctx, c.Cfg, result.RememberToken)
	}

	redirect := "student-dashboard.html"
	if result.User.Role == model.Admin {
		redirect = "admin-dashboard.html"
	}
	util.Success(ctx, gin.H{
		"message":  util.MsgLoginSuccess,
		"user":     result.User,
		"redirect": redirect,
	})
}

// Logout godoc
// @Summary 退出登录
// @Tags 认证
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/logout [post]
func (c *AuthController) Logout(ctx *gin.Context) {
	if sess := util.GetSessionFromContext(ctx); sess != nil {
		if err := c.AuthService.Logout(ctx.Request.Context(), sess.Token); err != nil {
			util.LogInternalError(ctx, err, util.MsgInternalError)
			return
		}
	}
	middleware.ClearAuthCookies(ctx, c.Cfg)
	util.SuccessMessage(ctx, util.MsgLogoutSuccess)
}

// CheckSession godoc
// @Summary 检查会话状态
// @Tags 认证
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/check-session [get]
func (c *AuthController) CheckSession(ctx *gin.Context) {
	sess := util.GetSessionFromContext(ctx)
	if sess == nil {
		util.Success(ctx, gin.H{"logged_in": false})
		return
	}
	user, err := c.AuthService.CurrentUser(ctx.Request.Context(), sess)
	if err != nil {
		respondUserError(ctx, err, util.MsgInternalError)
		return
	}
	util.Success(ctx, gin.H{"logged_in": true, "user": user})
}

type CheckUsernameRequest struct {
	Username string `json:"username" form:"username"`
}

// CheckUsername godoc
// @Summary 检查用户名是否可用
// @Tags 认证
// @Accept json
// @Produce json
// @Param body body CheckUsernameRequest true "用户名"
// @Success 200 {object} util.Response
// @Router /api/check-username [post]
func (c *AuthController) CheckUsername(ctx *gin.Context) {
	var req CheckUsernameRequest
	if err := ctx.ShouldBind(&req); err != nil || req.Username == "" {
		util.Fail(ctx, "Username is required")
		return
	}
	available, err := c.AuthService.UsernameAvailable(ctx.Request.Context(), req.Username)
	if err != nil {
		util.LogInternalError(ctx, err, util.MsgInternalError)
		return
	}
	util.Success(ctx, gin.H{"available": available})
}
