package controller

import (
	"discord-rag-backend/dao"
	"discord-rag-backend/response"
	knowledgebase "discord-rag-backend/service/knowledge-base"
	"discord-rag-backend/service/knowledge-base/etl"
	"discord-rag-backend/service/mq"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// UploadDocument 上传知识文档，内容去重后登记并投递处理任务
// 内容已存在时直接返回已有登记，不重复处理
func UploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		slog.Error(ErrUploadDocument.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrUploadDocument.Error(),
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		slog.Error(ErrUploadDocument.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrUploadDocument.Error(),
		})
		return
	}

	result, err := knowledgebase.RegisterUpload(fileHeader.Filename, data)
	if err != nil {
		slog.Error(ErrUploadDocument.Error(),
			"file_name", fileHeader.Filename,
			"err", err,
		)
		c.AbortWithStatusJSON(statusForError(err), response.Response{
			Msg: ErrUploadDocument.Error(),
		})
		return
	}

	status := http.StatusOK
	if result.Started {
		err := mq.SendMessage(c.Request.Context(), &mq.Message{
			Topic: mq.TopicKnowledgeBase,
			Tag:   mq.TagETL,
			Payload: etl.ETLMessage{
				SourceID: result.Source.ID,
				FilePath: result.Source.FilePath,
				FileType: result.Source.FileType,
			},
		})
		if err != nil {
			// 消息没有投递出去，这一轮处理不会发生
			knowledgebase.FailProcessing(result.Source.ID, "failed to dispatch processing task", nil)
			slog.Error(ErrUploadDocument.Error(),
				"source_id", result.Source.ID,
				"err", err,
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
				Msg: ErrUploadDocument.Error(),
			})
			return
		}
		status = http.StatusAccepted
	}

	c.JSON(status, response.Response{
		Data: response.UploadDocumentResponse{
			Document:   response.NewDocumentResponse(result.Source),
			Started:    result.Started,
			NewVersion: result.NewVersion,
		},
	})
}

func GetDocuments(c *gin.Context) {
	documents, err := knowledgebase.GetActiveDocuments()
	if err != nil {
		slog.Error(ErrGetDocuments.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrGetDocuments.Error(),
		})
		return
	}

	var resp response.GetDocumentsResponse
	for i := range documents {
		resp.Documents = append(resp.Documents, response.NewDocumentResponse(&documents[i]))
	}

	c.JSON(http.StatusOK, response.Response{
		Data: resp,
	})
}

// GetDocumentStatus 按内容指纹查询文档处理状态
func GetDocumentStatus(c *gin.Context) {
	hash := c.Query("content-hash")

	processed, err := knowledgebase.IsDocumentProcessed(hash)
	if err != nil {
		slog.Error(ErrGetDocumentStatus.Error(), "err", err)
		c.AbortWithStatusJSON(statusForError(err), response.Response{
			Msg: ErrGetDocumentStatus.Error(),
		})
		return
	}

	resp := response.DocumentStatusResponse{Processed: processed}
	if src, err := knowledgebase.GetDocumentByHash(hash); err == nil {
		doc := response.NewDocumentResponse(src)
		resp.Document = &doc
	}

	c.JSON(http.StatusOK, response.Response{
		Data: resp,
	})
}

// DeactivateDocument 下线文档并投递向量清理任务
func DeactivateDocument(c *gin.Context) {
	sourceID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	deleted, err := knowledgebase.Deactivate(uint(sourceID))
	if err != nil {
		slog.Error(ErrDeactivateDocument.Error(),
			"source_id", sourceID,
			"err", err,
		)
		c.AbortWithStatusJSON(statusForError(err), response.Response{
			Msg: ErrDeactivateDocument.Error(),
		})
		return
	}

	// 向量库的清理异步执行，投递失败只记日志
	if err := mq.SendMessage(c.Request.Context(), &mq.Message{
		Topic: mq.TopicKnowledgeBase,
		Tag:   mq.TagDelete,
		Payload: etl.DeleteMessage{
			SourceID: uint(sourceID),
		},
	}); err != nil {
		slog.Error("Failed to dispatch vector cleanup task",
			"source_id", sourceID,
			"err", err,
		)
	}

	c.JSON(http.StatusOK, response.Response{
		Data: response.DeactivateDocumentResponse{
			ChunksDeleted: deleted,
		},
	})
}

func GetProcessingLog(c *gin.Context) {
	sourceID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	entries, err := dao.GetProcessingLog(uint(sourceID))
	if err != nil {
		slog.Error(ErrGetProcessingLog.Error(),
			"source_id", sourceID,
			"err", err,
		)
		c.AbortWithStatusJSON(statusForError(err), response.Response{
			Msg: ErrGetProcessingLog.Error(),
		})
		return
	}

	resp := response.GetProcessingLogResponse{SourceID: uint(sourceID)}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, response.ProcessingLogEntryResponse{
			CreatedAt:     entry.CreatedAt,
			Operation:     string(entry.Operation),
			Status:        string(entry.Status),
			ChunksCreated: entry.ChunksCreated,
			ChunksDeleted: entry.ChunksDeleted,
			TokensUsed:    entry.TokensUsed,
			DurationMs:    entry.DurationMs,
			ErrorMessage:  entry.ErrorMessage,
		})
	}

	c.JSON(http.StatusOK, response.Response{
		Data: resp,
	})
}

func GetKnowledgeBaseStats(c *gin.Context) {
	stats, err := knowledgebase.Stats()
	if err != nil {
		slog.Error(ErrGetStats.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrGetStats.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response.Response{
		Data: stats,
	})
}
