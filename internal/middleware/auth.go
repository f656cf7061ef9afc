package middleware

import (
	"errors"
	"exam_portal_backend/internal/config"
	"exam_portal_backend/internal/model"
	"exam_portal_backend/internal/service"
	"exam_portal_backend/internal/util"
	"exam_portal_backend/pkg/logger"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func ClientInfo(c *gin.Context) service.ClientInfo {
	return service.ClientInfo{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

func SetSessionCookie(c *gin.Context, cfg *config.SessionConfig, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cfg.CookieName, token, 0, "/", "", cfg.Secure, true)
}

func SetRememberCookie(c *gin.Context, cfg *config.SessionConfig, token string) {
	maxAge := int((time.Duration(cfg.RememberDays) * 24 * time.Hour).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cfg.RememberCookie, token, maxAge, "/", "", cfg.Secure, true)
}

func ClearAuthCookies(c *gin.Context, cfg *config.SessionConfig) {
	c.SetCookie(cfg.CookieName, "", -1, "/", "", cfg.Secure, true)
	c.SetCookie(cfg.RememberCookie, "", -1, "/", "", cfg.Secure, true)
}

// SessionAuth 解析会话 Cookie，失效时尝试用记住我令牌重建；不拦截请求
func SessionAuth(auth *service.AuthService, cfg *config.SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		client := ClientInfo(c)

		if token, err := c.Cookie(cfg.CookieName); err == nil && token != "" {
			sess, err := auth.ValidateSession(ctx, token, client)
			if err == nil {
				util.SetSession(c, sess)
				c.Next()
				return
			}
			if !errors.Is(err, util.ErrSessionInvalid) {
				logger.Log.Error("Session lookup failed", zap.Error(err))
			}
		}

		if remember, err := c.Cookie(cfg.RememberCookie); err == nil && remember != "" {
			sess, err := auth.RestoreFromRemember(ctx, remember, client)
			if err == nil {
				SetSessionCookie(c, cfg, sess.Token)
				util.SetSession(c, sess)
			} else {
				ClearAuthCookies(c, cfg)
			}
		}

		c.Next()
	}
}

func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if util.GetSessionFromContext(c) == nil {
			util.Unauthorized(c)
			return
		}
		c.Next()
	}
}

// RequireRole 角色不符时返回 message，学生接口为 "Access denied"，管理接口为 "Insufficient permissions"
func RequireRole(role model.UserRole, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := util.GetSessionFromContext(c)
		if sess == nil {
			util.Unauthorized(c)
			return
		}
		if sess.Role != role {
			util.Forbidden(c, message)
			return
		}
		c.Next()
	}
}
