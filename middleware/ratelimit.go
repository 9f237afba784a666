package middleware

import (
	"discord-rag-backend/config"
	"discord-rag-backend/dao"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware 按登录用户做固定窗口限流
// 限流状态不可用时拒绝请求，宁可误杀不放行
func RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := Principal(c)
		if principal == "" {
			slog.Warn("Rate limit check without authenticated principal")
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		window := time.Duration(config.Cfg.RateLimit.WindowSeconds) * time.Second
		result, err := dao.CheckAndIncrementRateLimit(principal, config.Cfg.RateLimit.MaxRequests, window)
		if err != nil {
			slog.Error("Rate limit check failed, denying request",
				"principal", principal,
				"err", err,
			)
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Cfg.RateLimit.MaxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			slog.Info("Rate limit exceeded",
				"principal", principal,
				"limit", config.Cfg.RateLimit.MaxRequests,
			)
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}

		c.Next()
	}
}
