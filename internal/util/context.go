package util

import (
	"exam_portal_backend/internal/model"

	"github.com/gin-gonic/gin"
)

const sessionKey = "session"

func SetSession(c *gin.Context, s *model.Session) {
	c.Set(sessionKey, s)
}

// GetSessionFromContext 未登录时返回 nil
func GetSessionFromContext(c *gin.Context) *model.Session {
	v, exists := c.Get(sessionKey)
	if !exists {
		return nil
	}
	s, ok := v.(*model.Session)
	if !ok {
		return nil
	}
	return s
}
