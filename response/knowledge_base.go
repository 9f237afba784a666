package response

import (
	"discord-rag-backend/model"
	"time"
)

type DocumentResponse struct {
	ID          uint       `json:"id"`
	FileName    string     `json:"file_name"`
	FileType    string     `json:"file_type"`
	FileSize    int64      `json:"file_size"`
	ContentHash string     `json:"content_hash"`
	Status      string     `json:"status"`
	Version     int        `json:"version"`
	IsActive    bool       `json:"is_active"`
	TotalChunks int        `json:"total_chunks"`
	TotalTokens int        `json:"total_tokens"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

func NewDocumentResponse(src *model.DocumentSource) DocumentResponse {
	return DocumentResponse{
		ID:          src.ID,
		FileName:    src.FileName,
		FileType:    string(src.FileType),
		FileSize:    src.FileSize,
		ContentHash: src.ContentHash,
		Status:      string(src.Status),
		Version:     src.Version,
		IsActive:    src.IsActive,
		TotalChunks: src.TotalChunks,
		TotalTokens: src.TotalTokens,
		ProcessedAt: src.ProcessedAt,
	}
}

// UploadDocumentResponse 上传登记结果
// started为false表示内容已存在，没有触发处理流水线
type UploadDocumentResponse struct {
	Document   DocumentResponse `json:"document"`
	Started    bool             `json:"started"`
	NewVersion bool             `json:"new_version"`
}

type GetDocumentsResponse struct {
	Documents []DocumentResponse `json:"documents"`
}

type DocumentStatusResponse struct {
	Processed bool              `json:"processed"`
	Document  *DocumentResponse `json:"document,omitempty"`
}

type DeactivateDocumentResponse struct {
	ChunksDeleted int64 `json:"chunks_deleted"`
}

type ProcessingLogEntryResponse struct {
	CreatedAt     time.Time `json:"created_at"`
	Operation     string    `json:"operation"`
	Status        string    `json:"status"`
	ChunksCreated int       `json:"chunks_created"`
	ChunksDeleted int       `json:"chunks_deleted"`
	TokensUsed    int       `json:"tokens_used"`
	DurationMs    int64     `json:"duration_ms"`
	ErrorMessage  string    `json:"error_message,omitempty"`
}

type GetProcessingLogResponse struct {
	SourceID uint                         `json:"source_id"`
	Entries  []ProcessingLogEntryResponse `json:"entries"`
}

type SweepCacheResponse struct {
	Evicted int64 `json:"evicted"`
}

type RateLimitStatusResponse struct {
	Limit         int       `json:"limit"`
	Remaining     int       `json:"remaining"`
	WindowSeconds int64     `json:"window_seconds"`
	WindowStart   time.Time `json:"window_start"`
	TotalRequests int64     `json:"total_requests"`
}
