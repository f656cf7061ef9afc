package controller

import (
	"errors"
	"exam_portal_backend/internal/service"
	"exam_portal_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	Service *service.ExamService
}

func NewExamController(svc *service.ExamService) *ExamController {
	return &ExamController{Service: svc}
}

func respondExamError(ctx *gin.Context, err error, fallback string) {
	if msg, ok := util.ValidationMessage(err); ok {
		util.Fail(ctx, msg)
		return
	}
	switch {
	case errors.Is(err, util.ErrExamNotFound):
		util.Fail(ctx, util.MsgNotFound)
	case errors.Is(err, util.ErrExamHasAttempts):
		util.Fail(ctx, util.MsgExamHasAttempts)
	default:
		util.LogInternalError(ctx, err, fallback)
	}
}

// @Summary 考试列表（管理员）
// @Tags 管理模块
// @Produce json
// @Param status query string false "scheduled | active | completed | archived"
// @Param search query string false "标题关键字"
// @Param page query int false "页码" default(1)
// @Success 200 {object} util.Response
// @Router /api/exams [get]
func (c *ExamController) ListExams(ctx *gin.Context) {
	page := util.ParsePage(ctx.Query("page"))
	exams, pagination, err := c.Service.ListExams(ctx.Request.Context(), ctx.Query("status"), ctx.Query("search"), page)
	if err != nil {
		util.LogInternalError(ctx, err, util.MsgInternalError)
		return
	}
	util.Success(ctx, gin.H{"exams": exams, "pagination": pagination})
}

// @Summary 考试详情（管理员，含正确答案）
// @Tags 管理模块
// @Produce json
// @Param id query int true "考试ID"
// @Success 200 {object} util.Response
// @Router /api/exam [get]
func (c *ExamController) GetExam(ctx *gin.Context) {
	examID := util.MustParseUint(ctx.Query("id"))
	if examID == 0 {
		util.Fail(ctx, util.MsgExamIDRequired)
		return
	}
	exam, err := c.Service.GetExam(ctx.Request.Context(), examID)
	if err != nil {
		respondExamError(ctx, err, util.MsgInternalError)
		return
	}
	util.Success(ctx, gin.H{"exam": exam})
}

// @Summary 创建考试
// @Tags 管理模块
// @Accept json
// @Produce json
// @Param body body service.ExamInput true "考试与题目"
// @Success 200 {object} util.Response
// @Router /api/create-exam [post]
func (c *ExamController) CreateExam(ctx *gin.Context) {
	var req service.ExamInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, util.MsgInvalidRequest)
		return
	}
	sess := util.GetSessionFromContext(ctx)
	exam, err := c.Service.CreateExam(ctx.Request.Context(), sess.UserID, req)
	if err != nil {
		respondExamError(ctx, err, "Failed to create exam")
		return
	}
	util.Success(ctx, gin.H{"message": util.MsgExamCreated, "exam_id": exam.ID})
}

type UpdateExamRequest struct {
	ID uint `json:"id" binding:"required"`
	service.ExamInput
}

// @Summary 更新考试
// @Description 不传 questions 时保留原有题目；已有考生作答的考试不能修改题目
// @Tags 管理模块
// @Accept json
// @Produce json
// @Param body body UpdateExamRequest true "考试与题目"
// @Success 200 {object} util.Response
// @Router /api/update-exam [post]
func (c *ExamController) UpdateExam(ctx *gin.Context) {
	var req UpdateExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, util.MsgExamIDRequired)
		return
	}
	exam, err := c.Service.UpdateExam(ctx.Request.Context(), req.ID, req.ExamInput)
	if err != nil {
		respondExamError(ctx, err, "Failed to update exam")
		return
	}
	util.Success(ctx, gin.H{"message": util.MsgExamUpdated, "exam": exam})
}

type ExamIDRequest struct {
	ExamID uint `json:"exam_id" binding:"required"`
}

// @Summary 归档考试
// @Tags 管理模块
// @Accept json
// @Produce json
// @Param body body ExamIDRequest true "考试ID"
// @Success 200 {object} util.Response
// @Router /api/delete-exam [post]
func (c *ExamController) DeleteExam(ctx *gin.Context) {
	var req ExamIDRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, util.MsgExamIDRequired)
		return
	}
	if err := c.Service.ArchiveExam(ctx.Request.Context(), req.ExamID); err != nil {
		respondExamError(ctx, err, util.MsgInternalError)
		return
	}
	util.SuccessMessage(ctx, util.MsgExamArchived)
}
