package processor

import (
	"context"
	"discord-rag-backend/model"

	"github.com/tmc/langchaingo/schema"
)

const (
	chunkSize    = 1000
	chunkOverlap = 200
)

// ETLProcessor 知识文件切分器，按文件类型分发
type ETLProcessor interface {
	// 判断是否支持传入的文件类型
	CanProcess(fileType model.FileType) bool

	// 加载并切分文件内容
	Split(ctx context.Context, data []byte) ([]schema.Document, error)
}
