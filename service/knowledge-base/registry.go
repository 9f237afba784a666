package knowledgebase

import (
	"discord-rag-backend/config"
	"discord-rag-backend/dao"
	"discord-rag-backend/model"
	"discord-rag-backend/utils"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// RegisterResult 一次上传的登记结论
type RegisterResult struct {
	Source *model.DocumentSource

	// 是否需要真正执行处理流水线；内容未变化时为false
	Started bool

	// 内容变化时登记的新版本
	NewVersion bool
}

func FileTypeFromName(fileName string) model.FileType {
	ext := strings.TrimPrefix(filepath.Ext(fileName), ".")
	return model.FileType(strings.ToLower(ext))
}

// RegisterUpload 以内容指纹为准登记上传的文档
//
// 相同内容（无论文件名、路径）只会被处理一次；同名文档内容变化时
// 登记为新版本并将旧版本标记为outdated。
func RegisterUpload(fileName string, data []byte) (*RegisterResult, error) {
	fileType := FileTypeFromName(fileName)
	if !model.ValidFileType(fileType) {
		return nil, &dao.ValidationError{Field: "file_type", Reason: "unsupported type " + string(fileType)}
	}

	hash := utils.FingerprintBytes(data)

	// 已有同内容的活跃行时直接复用，不落盘新文件
	existing, err := dao.GetDocumentByHash(hash)
	if err != nil && !errors.Is(err, dao.ErrNotFound) {
		return nil, err
	}
	if existing != nil &&
		(existing.Status == model.StatusCompleted || existing.Status == model.StatusOutdated) {
		slog.Info("Document content already known, skipping",
			"file_name", fileName,
			"content_hash", hash[:8],
			"source_id", existing.ID,
		)
		return &RegisterResult{Source: existing, Started: false}, nil
	}

	filePath, err := saveUpload(fileName, data)
	if err != nil {
		return nil, err
	}

	// 同名文档换了内容：走版本链而不是新建独立文档
	if existing == nil {
		prev, err := dao.GetActiveDocumentByFileName(fileName)
		if err != nil && !errors.Is(err, dao.ErrNotFound) {
			return nil, err
		}
		if prev != nil && prev.ContentHash != hash {
			src, err := dao.RegisterNewDocumentVersion(prev.ID, fileName, filePath, hash, int64(len(data)), fileType)
			if err != nil {
				return nil, err
			}
			slog.Info("Registered new document version",
				"file_name", fileName,
				"version", src.Version,
				"previous_id", prev.ID,
			)
			return &RegisterResult{Source: src, Started: true, NewVersion: true}, nil
		}
	}

	src, started, err := dao.StartDocumentProcessing(fileName, filePath, hash, int64(len(data)), fileType)
	if err != nil {
		return nil, err
	}
	slog.Info("Document processing registered",
		"file_name", fileName,
		"content_hash", hash[:8],
		"source_id", src.ID,
		"started", started,
	)
	return &RegisterResult{Source: src, Started: started}, nil
}

func saveUpload(fileName string, data []byte) (string, error) {
	dir := config.Cfg.KnowledgeBase.UploadDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %v", err)
	}

	// uuid前缀避免同名覆盖
	path := filepath.Join(dir, uuid.NewString()+"_"+filepath.Base(fileName))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save upload: %v", err)
	}
	return path, nil
}

func IsDocumentProcessed(hash string) (bool, error) {
	return dao.IsDocumentProcessed(hash)
}

func GetDocumentByHash(hash string) (*model.DocumentSource, error) {
	return dao.GetDocumentByHash(hash)
}

func GetActiveDocuments() ([]model.DocumentSource, error) {
	return dao.GetActiveDocuments()
}

func Stats() (*model.KnowledgeBaseStats, error) {
	return dao.KnowledgeBaseStats()
}

// CompleteProcessing 流水线成功后记录统计并结束本轮处理
func CompleteProcessing(sourceID uint, chunksCreated, totalTokens, totalCharacters int, durationMs int64) error {
	err := dao.CompleteDocumentProcessing(sourceID, chunksCreated, totalTokens, totalCharacters, durationMs)
	if err != nil {
		return err
	}
	slog.Info("Document processing completed",
		"source_id", sourceID,
		"chunks", chunksCreated,
		"tokens", totalTokens,
		"duration_ms", durationMs,
	)
	return nil
}

// FailProcessing 记录失败；失败本身的原因不影响流水写入
func FailProcessing(sourceID uint, message string, details map[string]any) {
	var raw json.RawMessage
	if details != nil {
		raw, _ = json.Marshal(details)
	}
	if err := dao.FailDocumentProcessing(sourceID, message, raw); err != nil {
		slog.Error("Failed to mark document processing as failed",
			"source_id", sourceID,
			"err", err,
		)
	}
}

// Deactivate 下线文档并在同一事务内删除其全部切片
func Deactivate(sourceID uint) (int64, error) {
	deleted, err := dao.DeactivateDocument(sourceID)
	if err != nil {
		return 0, err
	}
	slog.Info("Document deactivated",
		"source_id", sourceID,
		"chunks_deleted", deleted,
	)
	return deleted, nil
}
