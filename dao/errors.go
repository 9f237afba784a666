package dao

import (
	"discord-rag-backend/model"
	"errors"
	"fmt"
)

var (
	// ErrNotFound 目标记录或缓存键不存在
	ErrNotFound = errors.New("record not found")

	// ErrCacheMiss 缓存未命中或已过期
	ErrCacheMiss = errors.New("cache miss")

	// ErrConflict 并发创建同一内容，调用方应重新查询
	ErrConflict = errors.New("concurrent create conflict")
)

// ValidationError 入参非法，属于调用方bug，不在本层吞掉
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidStateError 当前状态下不允许的状态机转移
type InvalidStateError struct {
	SourceID uint
	From     model.Status
	To       model.Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("illegal transition for source %d: %s -> %s", e.SourceID, e.From, e.To)
}
