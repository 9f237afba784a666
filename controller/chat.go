package controller

import (
	"discord-rag-backend/request"
	"discord-rag-backend/response"
	"discord-rag-backend/service/chat"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

func Chat(c *gin.Context) {
	var req request.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	result, err := chat.Ask(c.Request.Context(), req.Question)
	if err != nil {
		slog.Error(ErrChat.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrChat.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response.Response{
		Data: response.ChatResponse{
			Answer:  result.Answer,
			Sources: result.Sources,
			Cached:  result.Cached,
		},
	})
}
