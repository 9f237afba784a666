package model

import (
	"encoding/json"
	"time"
)

type FileType string

const (
	FileTypePDF      FileType = "pdf"
	FileTypeMarkdown FileType = "md"
	FileTypeText     FileType = "txt"
)

func ValidFileType(ft FileType) bool {
	switch ft {
	case FileTypePDF, FileTypeMarkdown, FileTypeText:
		return true
	}
	return false
}

type Status string

const (
	// 等待处理
	StatusPending Status = "pending"

	// 向量化处理中
	StatusProcessing Status = "processing"

	// 处理完成
	StatusCompleted Status = "completed"

	// 处理失败
	StatusFailed Status = "failed"

	// 已被新版本取代
	StatusOutdated Status = "outdated"
)

// transitions 文档状态机，未列出的转移一律非法
//
// pending→failed 是有意放宽的：任务在进入processing之前就派发失败时，
// 允许直接标记失败而不经过processing。
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusProcessing},
	StatusCompleted:  {StatusOutdated},
	StatusOutdated:   {},
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// DocumentSource 知识文档登记表，每个内容版本一行
// content_hash 全局唯一，保证同一内容不会被重复处理
type DocumentSource struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
	FileName  string    `gorm:"not null;index" json:"file_name"`
	FilePath  string    `gorm:"not null" json:"file_path"`

	// 文件内容的SHA-256摘要，hex编码
	ContentHash string   `gorm:"not null;size:64;uniqueIndex" json:"content_hash"`
	FileSize    int64    `gorm:"not null" json:"file_size"`
	FileType    FileType `gorm:"not null" json:"file_type"`
	Status      Status   `gorm:"not null;default:pending;index" json:"status"`

	TotalChunks          int   `gorm:"not null;default:0" json:"total_chunks"`
	TotalTokens          int   `gorm:"not null;default:0" json:"total_tokens"`
	TotalCharacters      int   `gorm:"not null;default:0" json:"total_characters"`
	ProcessingDurationMs int64 `gorm:"not null;default:0" json:"processing_duration_ms"`

	// 版本链：version从1开始递增，previous_version_id指向被取代的行
	Version           int   `gorm:"not null;default:1" json:"version"`
	PreviousVersionID *uint `json:"previous_version_id,omitempty"`

	ErrorMessage string          `json:"error_message,omitempty"`
	ErrorDetails json.RawMessage `gorm:"type:json" json:"error_details,omitempty"`

	// 软删除标记
	IsActive bool `gorm:"not null;default:true;index" json:"is_active"`

	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	ProcessedAt         *time.Time `json:"processed_at,omitempty"`
}

func (DocumentSource) TableName() string {
	return "document_sources"
}

type Operation string

const (
	OperationInitialLoad Operation = "initial_load"
	OperationUpdate      Operation = "update"
	OperationReload      Operation = "reload"
	OperationDelete      Operation = "delete"
)

type LogStatus string

const (
	LogStatusStarted   LogStatus = "started"
	LogStatusCompleted LogStatus = "completed"
	LogStatusFailed    LogStatus = "failed"
)

// ProcessingLog 文档处理流水，只增不改
type ProcessingLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"not null;index:idx_source_created" json:"created_at"`
	SourceID  uint      `gorm:"not null;index:idx_source_created" json:"source_id"`
	Operation Operation `gorm:"not null" json:"operation"`
	Status    LogStatus `gorm:"not null" json:"status"`

	ChunksCreated int `gorm:"not null;default:0" json:"chunks_created"`
	ChunksUpdated int `gorm:"not null;default:0" json:"chunks_updated"`
	ChunksDeleted int `gorm:"not null;default:0" json:"chunks_deleted"`
	TokensUsed    int `gorm:"not null;default:0" json:"tokens_used"`

	DurationMs   int64  `gorm:"not null;default:0" json:"duration_ms"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (ProcessingLog) TableName() string {
	return "document_processing_log"
}

// DocumentChunk 文档切片，归属于对应的DocumentSource
// deactivate时与is_active翻转在同一事务内删除
type DocumentChunk struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	SourceID   uint      `gorm:"not null;index" json:"source_id"`
	ChunkIndex int       `gorm:"not null" json:"chunk_index"`
	Content    string    `gorm:"type:text" json:"content"`
	TokenCount int       `gorm:"not null;default:0" json:"token_count"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// KnowledgeBaseStats 活跃且处理完成文档的聚合统计
type KnowledgeBaseStats struct {
	TotalSources   int64      `json:"total_sources"`
	ActiveSources  int64      `json:"active_sources"`
	TotalChunks    int64      `json:"total_chunks"`
	TotalTokens    int64      `json:"total_tokens"`
	TotalSizeBytes int64      `json:"total_size_bytes"`
	LastUpdate     *time.Time `json:"last_update,omitempty"`
}
