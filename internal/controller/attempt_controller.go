package controller

import (
	"encoding/json"
	"errors"
	"exam_portal_backend/internal/service"
	"exam_portal_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	Service *service.AttemptService
}

func NewAttemptController(svc *service.AttemptService) *AttemptController {
	return &AttemptController{Service: svc}
}

// respondEngineError 业务错误返回对应提示，存储错误记录日志并返回通用提示
func respondEngineError(ctx *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, util.ErrNotAvailable):
		util.Fail(ctx, util.MsgNotAvailable)
	case errors.Is(err, util.ErrAlreadyCompleted):
		util.Fail(ctx, util.MsgAlreadyCompleted)
	case errors.Is(err, util.ErrInvalidAttempt):
		util.Fail(ctx, util.MsgInvalidAttempt)
	case errors.Is(err, util.ErrDeadlineExceeded):
		util.Fail(ctx, util.MsgDeadlineExceeded)
	case errors.Is(err, util.ErrAccessDenied):
		util.Fail(ctx, util.MsgAccessDenied)
	default:
		util.LogInternalError(ctx, err, fallback)
	}
}

func parseID(n json.Number) uint {
	id, err := strconv.ParseUint(n.String(), 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}

// @Summary 开始或继续考试
// @Description 返回试卷信息与题目（不含正确答案），已有进行中的记录时继续作答且不重置开始时间
// @Tags 考试模块
// @Produce json
// @Param exam_id query int true "考试ID"
// @Success 200 {object} util.Response
// @Router /api/exam-start [get]
func (c *AttemptController) StartExam(ctx *gin.Context) {
	sess := util.GetSessionFromContext(ctx)
	examID := util.MustParseUint(ctx.Query("exam_id"))
	if examID == 0 {
		util.Fail(ctx, util.MsgExamIDRequired)
		return
	}

	result, err := c.Service.Start(ctx.Request.Context(), sess.UserID, examID)
	if err != nil {
		respondEngineError(ctx, err, util.MsgStartFailed)
		return
	}

	util.Success(ctx, gin.H{
		"exam":              result.Exam,
		"attempt_id":        result.AttemptID,
		"start_time":        result.StartTime,
		"remaining_seconds": result.RemainingSeconds,
		"resumed":           result.Resumed,
		"questions":         result.Questions,
		"saved_answers":     result.SavedAnswers,
	})
}

type SaveAnswerRequest struct {
	AttemptID json.Number            `json:"attempt_id"`
	Answers   map[string]interface{} `json:"answers"`
}

// @Summary 保存答案
// @Description 整体替换该次考试的全部答案，重复提交相同内容结果不变
// @Tags 考试模块
// @Accept json
// @Produce json
// @Param body body SaveAnswerRequest true "答案"
// @Success 200 {object} util.Response
// @Router /api/save-answer [post]
func (c *AttemptController) SaveAnswer(ctx *gin.Context) {
	sess := util.GetSessionFromContext(ctx)

	var req SaveAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, util.MsgInvalidRequest)
		return
	}
	attemptID := parseID(req.AttemptID)
	if attemptID == 0 {
		util.Fail(ctx, util.MsgInvalidAttempt)
		return
	}

	saved, err := c.Service.SaveAnswers(ctx.Request.Context(), sess.UserID, attemptID, req.Answers)
	if err != nil {
		respondEngineError(ctx, err, util.MsgSaveFailed)
		return
	}

	util.Success(ctx, gin.H{"message": util.MsgAnswersSaved, "saved": saved})
}

type SubmitExamRequest struct {
	AttemptID json.Number `json:"attempt_id"`
}

// @Summary 提交试卷
// @Description 评分并结束考试，已提交的考试再次提交会失败
// @Tags 考试模块
// @Accept json
// @Produce json
// @Param body body SubmitExamRequest true "考试记录ID"
// @Success 200 {object} util.Response
// @Router /api/submit-exam [post]
func (c *AttemptController) SubmitExam(ctx *gin.Context) {
	sess := util.GetSessionFromContext(ctx)

	var req SubmitExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, util.MsgInvalidRequest)
		return
	}
	attemptID := parseID(req.AttemptID)
	if attemptID == 0 {
		util.Fail(ctx, util.MsgInvalidAttempt)
		return
	}

	result, err := c.Service.Submit(ctx.Request.Context(), sess.UserID, attemptID)
	if err != nil {
		respondEngineError(ctx, err, util.MsgSubmitFailed)
		return
	}

	util.Success(ctx, gin.H{
		"message":       util.MsgExamSubmitted,
		"attempt_id":    result.AttemptID,
		"score":         result.Score,
		"percentage":    result.Percentage,
		"total_marks":   result.TotalMarks,
		"passing_marks": result.PassingMarks,
		"passed":        result.Passed,
		"answered":      result.Answered,
		"unanswered":    result.Unanswered,
	})
}

// @Summary 放弃考试记录（管理员）
// @Description 将进行中的记录标记为 abandoned，考生可重新开始该考试
// @Tags 管理模块
// @Accept json
// @Produce json
// @Param body body SubmitExamRequest true "考试记录ID"
// @Success 200 {object} util.Response
// @Router /api/abandon-attempt [post]
func (c *AttemptController) AbandonAttempt(ctx *gin.Context) {
	var req SubmitExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.Fail(ctx, util.MsgInvalidRequest)
		return
	}
	attemptID := parseID(req.AttemptID)
	if attemptID == 0 {
		util.Fail(ctx, util.MsgAttemptIDRequired)
		return
	}

	if err := c.Service.Abandon(ctx.Request.Context(), attemptID); err != nil {
		respondEngineError(ctx, err, util.MsgInternalError)
		return
	}
	util.SuccessMessage(ctx, util.MsgAttemptAbandoned)
}
