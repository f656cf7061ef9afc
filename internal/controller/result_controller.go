package controller

import (
	"errors"
	"exam_portal_backend/internal/service"
	"exam_portal_backend/internal/util"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type ResultController struct {
	Results      *service.ResultService
	Reports      *service.ReportService
	Certificates *service.CertificateService
}

func NewResultController(results *service.ResultService, reports *service.ReportService, certificates *service.CertificateService) *ResultController {
	return &ResultController{Results: results, Reports: reports, Certificates: certificates}
}

func respondResultError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrInvalidAttempt):
		util.Fail(ctx, util.MsgInvalidAttempt)
	case errors.Is(err, util.ErrAccessDenied):
		util.Fail(ctx, util.MsgAccessDenied)
	case errors.Is(err, util.ErrNotPassed):
		util.Fail(ctx, util.MsgNotPassed)
	default:
		util.LogInternalError(ctx, err, util.MsgInternalError)
	}
}

// @Summary 成绩列表
// @Description 学生仅能查看自己的成绩，管理员可查看全部
// @Tags 成绩模块
// @Produce json
// @Param page query int false "页码" default(1)
// @Param exam query int false "考试ID"
// @Param days query int false "最近天数"
// @Param result query string false "passed | failed"
// @Success 200 {object} util.Response
// @Router /api/results [get]
func (c *ResultController) ListResults(ctx *gin.Context) {
	sess := util.GetSessionFromContext(ctx)

	// 带 id 参数时返回单条成绩
	if id := util.MustParseUint(ctx.Query("id")); id != 0 {
		result, err := c.Results.GetResult(ctx.Request.Context(), sess, id)
		if err != nil {
			respondResultError(ctx, err)
			return
		}
		util.Success(ctx, gin.H{"result": result})
		return
	}

	days, _ := strconv.Atoi(ctx.Query("days"))
	results, pagination, err := c.Results.ListResults(ctx.Request.Context(), sess, service.ResultQuery{
		ExamID: util.MustParseUint(ctx.Query("exam")),
		Days:   days,
		Result: ctx.Query("result"),
		Page:   util.ParsePage(ctx.Query("page")),
	})
	if err != nil {
		util.LogInternalError(ctx, err, util.MsgInternalError)
		return
	}
	util.Success(ctx, gin.H{"results": results, "pagination": pagination})
}

// @Summary 逐题得分明细
// @Tags 成绩模块
// @Produce json
// @Param attempt_id query int true "考试记录ID"
// @Success 200 {object} util.Response
// @Router /api/question-breakdown [get]
func (c *ResultController) QuestionBreakdown(ctx *gin.Context) {
	attemptID := util.MustParseUint(ctx.Query("attempt_id"))
	if attemptID == 0 {
		util.Fail(ctx, util.MsgAttemptIDRequired)
		return
	}
	items, err := c.Results.QuestionBreakdown(ctx.Request.Context(), util.GetSessionFromContext(ctx), attemptID)
	if err != nil {
		respondResultError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"questions": items})
}

// @Summary 下载证书
// @Description 仅通过的考试可生成 PDF 证书
// @Tags 成绩模块
// @Produce application/pdf
// @Param result_id query int true "成绩ID"
// @Success 200 {file} file
// @Router /api/generate-certificate [get]
func (c *ResultController) GenerateCertificate(ctx *gin.Context) {
	attemptID := util.MustParseUint(ctx.Query("result_id"))
	if attemptID == 0 {
		util.Fail(ctx, util.MsgResultIDRequired)
		return
	}
	data, filename, err := c.Certificates.Generate(ctx.Request.Context(), util.GetSessionFromContext(ctx), attemptID)
	if err != nil {
		respondResultError(ctx, err)
		return
	}
	ctx.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	ctx.Data(http.StatusOK, "application/pdf", data)
}

// @Summary 校验证书
// @Tags 成绩模块
// @Produce json
// @Param result_id query int true "成绩ID"
// @Param code query string true "校验码"
// @Success 200 {object} util.Response
// @Router /api/verify-certificate [get]
func (c *ResultController) VerifyCertificate(ctx *gin.Context) {
	attemptID := util.MustParseUint(ctx.Query("result_id"))
	if attemptID == 0 {
		util.Fail(ctx, util.MsgResultIDRequired)
		return
	}
	v, err := c.Certificates.Verify(ctx.Request.Context(), attemptID, ctx.Query("code"))
	if err != nil {
		util.LogInternalError(ctx, err, util.MsgInternalError)
		return
	}
	util.Success(ctx, gin.H{"certificate": v})
}

// @Summary 学生首页数据
// @Tags 学生模块
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/dashboard-data [get]
func (c *ResultController) StudentDashboard(ctx *gin.Context) {
	sess := util.GetSessionFromContext(ctx)
	d, err := c.Results.StudentDashboard(ctx.Request.Context(), sess.UserID)
	if err != nil {
		util.LogInternalError(ctx, err, util.MsgInternalError)
		return
	}
	util.Success(ctx, gin.H{
		"upcoming_exams":  d.UpcomingExams,
		"active_exams":    d.ActiveExams,
		"completed_exams": d.CompletedExams,
		"recent_results":  d.RecentResults,
	})
}

// @Summary 管理员首页数据
// @Tags 管理模块
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/admin-dashboard-data [get]
func (c *ResultController) AdminDashboard(ctx *gin.Context) {
	d, err := c.Results.AdminDashboard(ctx.Request.Context())
	if err != nil {
		util.LogInternalError(ctx, err, util.MsgInternalError)
		return
	}
	util.Success(ctx, gin.H{
		"stats": gin.H{
			"total_users":     d.TotalUsers,
			"active_exams":    d.ActiveExams,
			"total_attempts":  d.TotalAttempts,
			"completion_rate": d.CompletionRate,
		},
		"recent_activity": d.RecentActivity,
	})
}

// @Summary 导出报表
// @Description CSV 内容放在 data 字段
// @Tags 管理模块
// @Produce json
// @Param type query string true "results | users | exams"
// @Success 200 {object} util.Response
// @Router /api/generate-report [get]
func (c *ResultController) GenerateReport(ctx *gin.Context) {
	reportType := ctx.DefaultQuery("type", "results")
	data, err := c.Reports.Generate(ctx.Request.Context(), reportType)
	if err != nil {
		if msg, ok := util.ValidationMessage(err); ok {
			util.Fail(ctx, msg)
			return
		}
		util.LogInternalError(ctx, err, util.MsgInternalError)
		return
	}
	filename := fmt.Sprintf("%s_report_%s.csv", reportType, time.Now().Format("20060102"))
	util.Success(ctx, gin.H{"data": data, "filename": filename})
}
