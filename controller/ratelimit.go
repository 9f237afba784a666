package controller

import (
	"discord-rag-backend/config"
	"discord-rag-backend/dao"
	"discord-rag-backend/middleware"
	"discord-rag-backend/response"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RateLimitStatus 查询当前用户的限流状态，不消耗配额
func RateLimitStatus(c *gin.Context) {
	principal := middleware.Principal(c)

	// 窗口已过期时先归零，避免把上一窗口的计数当成当前状态返回
	if _, err := dao.ResetRateLimitIfExpired(principal); err != nil {
		slog.Error(ErrRateLimit.Error(), "principal", principal, "err", err)
		c.AbortWithStatusJSON(statusForError(err), response.Response{
			Msg: ErrRateLimit.Error(),
		})
		return
	}

	limit := config.Cfg.RateLimit.MaxRequests
	resp := response.RateLimitStatusResponse{
		Limit:         limit,
		Remaining:     limit,
		WindowSeconds: config.Cfg.RateLimit.WindowSeconds,
	}

	state, err := dao.GetRateLimitState(principal)
	switch {
	case err == nil:
		remaining := limit - state.RequestCount
		if remaining < 0 {
			remaining = 0
		}
		resp.Remaining = remaining
		resp.WindowStart = state.WindowStart
		resp.TotalRequests = state.TotalRequests
	case errors.Is(err, dao.ErrNotFound):
		// 从未请求过，返回满额状态
	default:
		slog.Error(ErrRateLimit.Error(), "principal", principal, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrRateLimit.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response.Response{
		Data: resp,
	})
}
