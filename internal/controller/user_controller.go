package controller

import (
	"exam_portal_backend/internal/service"
	"exam_portal_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type UserController struct {
	UserService   *service.UserService
	ResultService *service.ResultService
}

func NewUserController(userService *service.UserService, resultService *service.ResultService) *UserController {
	return &UserController{UserService: userService, ResultService: resultService}
}

// GetUsers godoc
// @Summary 用户列表（管理员）
// @Tags 管理模块
// @Produce json
// @Param search query string false "用户名/邮箱/姓名"
// @Param role query string false "student | admin"
// @Param page query int false "页码" default(1)
// @Success 200 {object} util.Response
// @Router /api/users [get]
func (c *UserController) GetUsers(ctx *gin.Context) {
	page := util.ParsePage(ctx.Query("page"))
	users, pagination, err := c.UserService.ListUsers(ctx.Request.Context(), ctx.Query("search"), ctx.Query("role"), page)
	if err != nil {
		util.LogInternalError(ctx, err, util.MsgInternalError)
		return
	}
	util.Success(ctx, gin.H{"users": users, "pagination": pagination})
}

// CreateUser godoc
// @Summary 创建用户（管理员）
// @Tags 管理模块
// @Accept json
// @Produce json
// @Param body body service.CreateUserRequest true "用户信息"
// @Success 200 {object} util.Response
// @Router /api/create-user [post]
func (c *UserController) CreateUser(ctx *gin.Context) {
	var req service.CreateUserRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, "All fields are required")
		return
	}
	user, err := c.UserService.CreateUser(ctx.Request.Context(), req)
	if err != nil {
		respondUserError(ctx, err, "Failed to create user")
		return
	}
	util.Success(ctx, gin.H{"message": util.MsgUserCreated, "user": user})
}

type UserIDRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// DeleteUser godoc
// @Summary 停用用户（管理员）
// @Tags 管理模块
// @Accept json
// @Produce json
// @Param body body UserIDRequest true "用户ID"
// @Success 200 {object} util.Response
// @Router /api/delete-user [post]
func (c *UserController) DeleteUser(ctx *gin.Context) {
	var req UserIDRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, "User ID is required")
		return
	}
	sess := util.GetSessionFromContext(ctx)
	if err := c.UserService.Deactivate(ctx.Request.Context(), sess.UserID, req.UserID); err != nil {
		respondUserError(ctx, err, util.MsgInternalError)
		return
	}
	util.SuccessMessage(ctx, util.MsgUserDeactivated)
}

// ProfileStats godoc
// @Summary 个人资料与成绩统计
// @Tags 个人中心
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/profile-stats [get]
func (c *UserController) ProfileStats(ctx *gin.Context) {
	sess := util.GetSessionFromContext(ctx)
	user, err := c.UserService.GetUser(ctx.Request.Context(), sess.UserID)
	if err != nil {
		respondUserError(ctx, err, util.MsgInternalError)
		return
	}
	stats, err := c.ResultService.ProfileStats(ctx.Request.Context(), sess.UserID)
	if err != nil {
		util.LogInternalError(ctx, err, util.MsgInternalError)
		return
	}
	util.Success(ctx, gin.H{"user": user, "stats": stats.UserStats, "history": stats.History})
}

// UpdateProfile godoc
// @Summary 更新个人资料
// @Tags 个人中心
// @Accept multipart/form-data
// @Produce json
// @Param full_name formData string false "姓名"
// @Param email formData string false "邮箱"
// @Param profile_image formData file false "头像（jpeg/png/gif，不超过 2MB）"
// @Success 200 {object} util.Response
// @Router /api/update-profile [post]
func (c *UserController) UpdateProfile(ctx *gin.Context) {
	sess := util.GetSessionFromContext(ctx)

	var req service.UpdateProfileRequest
	if err := ctx.ShouldBind(&req); err != nil {
		util.Fail(ctx, util.MsgInvalidRequest)
		return
	}

	var image *service.ProfileImage
	if fh, err := ctx.FormFile("profile_image"); err == nil {
		f, err := fh.Open()
		if err != nil {
			util.LogInternalError(ctx, err, util.MsgUploadFailed)
			return
		}
		defer f.Close()
		image = &service.ProfileImage{Reader: f, Size: fh.Size}
	}

	user, err := c.UserService.UpdateProfile(ctx.Request.Context(), sess.UserID, req, image)
	if err != nil {
		respondUserError(ctx, err, "Failed to update profile")
		return
	}
	util.Success(ctx, gin.H{"message": util.MsgProfileUpdated, "user": user})
}

// ChangePassword godoc
// @Summary 修改密码
// @Tags 个人中心
// @Accept json
// @Produce json
// @Param body body service.ChangePasswordRequest true "密码"
// @Success 200 {object} util.Response
// @Router /api/change-password [post]
func (c *UserController) ChangePassword(ctx *gin.Context) {
	var req service.ChangePasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, "All fields are required")
		return
	}
	sess := util.GetSessionFromContext(ctx)
	if err := c.UserService.ChangePassword(ctx.Request.Context(), sess.UserID, req); err != nil {
		respondUserError(ctx, err, "Failed to change password")
		return
	}
	util.SuccessMessage(ctx, util.MsgPasswordChanged)
}
