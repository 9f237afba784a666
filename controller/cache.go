package controller

import (
	"discord-rag-backend/config"
	"discord-rag-backend/dao"
	"discord-rag-backend/response"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SweepCache 立即清理过期缓存，后台清理之外的手动入口
func SweepCache(c *gin.Context) {
	evicted, err := dao.SweepResponseCache(config.Cfg.Cache.MaxEntries)
	if err != nil {
		slog.Error(ErrSweepCache.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrSweepCache.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response.Response{
		Data: response.SweepCacheResponse{
			Evicted: evicted,
		},
	})
}
