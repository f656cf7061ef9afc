package util

import (
	"exam_portal_backend/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构，业务错误同样返回 200，由 success 字段区分
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Pagination 分页信息
type Pagination struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	TotalItems  int64 `json:"total_items"`
	PerPage     int   `json:"per_page"`
}

func NewPagination(page, perPage int, total int64) Pagination {
	pages := int((total + int64(perPage) - 1) / int64(perPage))
	return Pagination{CurrentPage: page, TotalPages: pages, TotalItems: total, PerPage: perPage}
}

// Success 返回 {success:true} 并合并附加字段
func Success(c *gin.Context, fields gin.H) {
	body := gin.H{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

func SuccessMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Response{Success: true, Message: message})
}

func Fail(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Response{Success: false, Message: message})
}

// AbortFail 用于中间件
func AbortFail(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusOK, Response{Success: false, Message: message})
}

func Unauthorized(c *gin.Context) {
	AbortFail(c, MsgAuthRequired)
}

func Forbidden(c *gin.Context, message string) {
	AbortFail(c, message)
}

// LogInternalError 记录存储层错误细节，调用方只看到通用提示
func LogInternalError(c *gin.Context, err error, message string) {
	logger.Log.Error("Internal server error",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	Fail(c, message)
}
