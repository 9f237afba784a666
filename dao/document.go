package dao

import (
	"discord-rag-backend/model"
	"encoding/hex"
	"encoding/json"
	"errors"

	"gorm.io/gorm"
)

func validateContentHash(hash string) error {
	if len(hash) != 64 {
		return &ValidationError{Field: "content_hash", Reason: "must be 64 hex characters"}
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return &ValidationError{Field: "content_hash", Reason: "must be hex encoded"}
	}
	return nil
}

// StartDocumentProcessing 幂等登记文档处理
//
// 同一content_hash只会有一行进入processing：已完成（或已过期）的行原样返回，
// 不做任何修改；未完成的行转入processing重试；不存在则新建。
// 返回的bool表示调用方是否需要真正执行处理流水线。
func StartDocumentProcessing(fileName, filePath, hash string, size int64, fileType model.FileType) (*model.DocumentSource, bool, error) {
	if err := validateContentHash(hash); err != nil {
		return nil, false, err
	}
	if size < 0 {
		return nil, false, &ValidationError{Field: "file_size", Reason: "must not be negative"}
	}
	if !model.ValidFileType(fileType) {
		return nil, false, &ValidationError{Field: "file_type", Reason: "unsupported type " + string(fileType)}
	}

	var src model.DocumentSource
	var started bool

	attempt := func() error {
		started = false
		return DB.Transaction(func(tx *gorm.DB) error {
			err := tx.Where("content_hash = ?", hash).First(&src).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return createDocumentSource(tx, &src, fileName, filePath, hash, size, fileType, &started)
			}
			if err != nil {
				return err
			}

			switch {
			case !src.IsActive:
				// 重新激活被下线的同内容文档
				return reactivateDocumentSource(tx, &src, &started)
			case src.Status == model.StatusCompleted || src.Status == model.StatusOutdated:
				// 已处理过，幂等返回现有行
				return nil
			default:
				// pending/processing/failed 收敛到唯一的processing行
				return restartDocumentSource(tx, &src, &started)
			}
		})
	}

	err := attempt()
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, ErrConflict) {
		// 并发写入同一hash，重查一次即收敛到同一行
		err = attempt()
	}
	if err != nil {
		return nil, false, err
	}
	return &src, started, nil
}

func createDocumentSource(tx *gorm.DB, src *model.DocumentSource, fileName, filePath, hash string, size int64, fileType model.FileType, started *bool) error {
	now := timeNow()
	*src = model.DocumentSource{
		FileName:    fileName,
		FilePath:    filePath,
		ContentHash: hash,
		FileSize:    size,
		FileType:    fileType,
		Status:      model.StatusPending,
		Version:     1,
		IsActive:    true,
	}
	if err := tx.Create(src).Error; err != nil {
		return err
	}

	res := tx.Model(&model.DocumentSource{}).
		Where("id = ? AND status = ?", src.ID, model.StatusPending).
		Updates(map[string]any{
			"status":                model.StatusProcessing,
			"processing_started_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}

	src.Status = model.StatusProcessing
	src.ProcessingStartedAt = &now
	*started = true

	return tx.Create(&model.ProcessingLog{
		SourceID:  src.ID,
		Operation: model.OperationInitialLoad,
		Status:    model.LogStatusStarted,
	}).Error
}

func restartDocumentSource(tx *gorm.DB, src *model.DocumentSource, started *bool) error {
	res := tx.Model(&model.DocumentSource{}).
		Where("id = ? AND status IN ?", src.ID,
			[]model.Status{model.StatusPending, model.StatusProcessing, model.StatusFailed}).
		Updates(reprocessColumns())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// 行在查询与更新之间被并发改掉，交给外层重试
		return ErrConflict
	}
	return logRestart(tx, src, started)
}

// reactivateDocumentSource 重新激活被下线的行并转入processing
//
// 下线的行可能停留在completed、outdated或failed等任意状态，
// 守护条件只看is_active，不限定状态集合。
func reactivateDocumentSource(tx *gorm.DB, src *model.DocumentSource, started *bool) error {
	res := tx.Model(&model.DocumentSource{}).
		Where("id = ? AND is_active = ?", src.ID, false).
		Updates(reprocessColumns())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// 行在查询与更新之间被并发激活，交给外层重试
		return ErrConflict
	}
	return logRestart(tx, src, started)
}

func reprocessColumns() map[string]any {
	return map[string]any{
		"is_active":             true,
		"status":                model.StatusProcessing,
		"processing_started_at": timeNow(),
		"error_message":         "",
		"error_details":         nil,
	}
}

func logRestart(tx *gorm.DB, src *model.DocumentSource, started *bool) error {
	if err := tx.Create(&model.ProcessingLog{
		SourceID:  src.ID,
		Operation: model.OperationReload,
		Status:    model.LogStatusStarted,
	}).Error; err != nil {
		return err
	}

	*started = true
	return tx.First(src, src.ID).Error
}

// CompleteDocumentProcessing 仅允许processing状态的行转入completed，
// 防止并发的重复完成
func CompleteDocumentProcessing(sourceID uint, chunksCreated, totalTokens, totalCharacters int, durationMs int64) error {
	return DB.Transaction(func(tx *gorm.DB) error {
		now := timeNow()
		res := tx.Model(&model.DocumentSource{}).
			Where("id = ? AND status = ?", sourceID, model.StatusProcessing).
			Updates(map[string]any{
				"status":                 model.StatusCompleted,
				"total_chunks":           chunksCreated,
				"total_tokens":           totalTokens,
				"total_characters":       totalCharacters,
				"processing_duration_ms": durationMs,
				"processed_at":           now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return transitionError(tx, sourceID, model.StatusCompleted)
		}

		return tx.Create(&model.ProcessingLog{
			SourceID:      sourceID,
			Operation:     model.OperationInitialLoad,
			Status:        model.LogStatusCompleted,
			ChunksCreated: chunksCreated,
			TokensUsed:    totalTokens,
			DurationMs:    durationMs,
		}).Error
	})
}

// FailDocumentProcessing 记录处理失败，失败原因与流水写入不耦合
func FailDocumentProcessing(sourceID uint, message string, details json.RawMessage) error {
	return DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.DocumentSource{}).
			Where("id = ? AND status IN ?", sourceID,
				[]model.Status{model.StatusPending, model.StatusProcessing}).
			Updates(map[string]any{
				"status":        model.StatusFailed,
				"error_message": message,
				"error_details": details,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return transitionError(tx, sourceID, model.StatusFailed)
		}

		return tx.Create(&model.ProcessingLog{
			SourceID:     sourceID,
			Operation:    model.OperationInitialLoad,
			Status:       model.LogStatusFailed,
			ErrorMessage: message,
		}).Error
	})
}

// RegisterNewDocumentVersion 内容变更时登记新版本
//
// 前一版本被标记为outdated（不删除），新行version+1并通过
// previous_version_id指回前一行，版本链严格递增不成环。
func RegisterNewDocumentVersion(previousID uint, fileName, filePath, hash string, size int64, fileType model.FileType) (*model.DocumentSource, error) {
	if err := validateContentHash(hash); err != nil {
		return nil, err
	}
	if !model.ValidFileType(fileType) {
		return nil, &ValidationError{Field: "file_type", Reason: "unsupported type " + string(fileType)}
	}

	var src model.DocumentSource
	err := DB.Transaction(func(tx *gorm.DB) error {
		var prev model.DocumentSource
		if err := tx.First(&prev, previousID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		res := tx.Model(&model.DocumentSource{}).
			Where("id = ? AND status = ? AND is_active = ?", prev.ID, model.StatusCompleted, true).
			Update("status", model.StatusOutdated)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &InvalidStateError{SourceID: prev.ID, From: prev.Status, To: model.StatusOutdated}
		}

		now := timeNow()
		src = model.DocumentSource{
			FileName:          fileName,
			FilePath:          filePath,
			ContentHash:       hash,
			FileSize:          size,
			FileType:          fileType,
			Status:            model.StatusPending,
			Version:           prev.Version + 1,
			PreviousVersionID: &prev.ID,
			IsActive:          true,
		}
		if err := tx.Create(&src).Error; err != nil {
			return err
		}

		res = tx.Model(&model.DocumentSource{}).
			Where("id = ? AND status = ?", src.ID, model.StatusPending).
			Updates(map[string]any{
				"status":                model.StatusProcessing,
				"processing_started_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		src.Status = model.StatusProcessing
		src.ProcessingStartedAt = &now

		return tx.Create(&model.ProcessingLog{
			SourceID:  src.ID,
			Operation: model.OperationUpdate,
			Status:    model.LogStatusStarted,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// DeactivateDocument 下线文档并删除其全部切片
//
// 标记翻转与切片删除在同一事务内完成，不存在只剩其一的中间状态。
// 已下线的文档重复删除是无害的no-op。
func DeactivateDocument(sourceID uint) (int64, error) {
	var chunksDeleted int64
	err := DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.DocumentSource{}).
			Where("id = ? AND is_active = ?", sourceID, true).
			Update("is_active", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&model.DocumentSource{}).
				Where("id = ?", sourceID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return nil
		}

		del := tx.Where("source_id = ?", sourceID).Delete(&model.DocumentChunk{})
		if del.Error != nil {
			return del.Error
		}
		chunksDeleted = del.RowsAffected

		return tx.Create(&model.ProcessingLog{
			SourceID:      sourceID,
			Operation:     model.OperationDelete,
			Status:        model.LogStatusCompleted,
			ChunksDeleted: int(chunksDeleted),
		}).Error
	})
	if err != nil {
		return 0, err
	}
	return chunksDeleted, nil
}

func IsDocumentProcessed(hash string) (bool, error) {
	if err := validateContentHash(hash); err != nil {
		return false, err
	}
	var count int64
	err := DB.Model(&model.DocumentSource{}).
		Where("content_hash = ? AND is_active = ? AND status = ?",
			hash, true, model.StatusCompleted).
		Count(&count).Error
	return count > 0, err
}

func GetDocumentByHash(hash string) (*model.DocumentSource, error) {
	if err := validateContentHash(hash); err != nil {
		return nil, err
	}
	var src model.DocumentSource
	err := DB.Where("content_hash = ? AND is_active = ?", hash, true).
		First(&src).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func GetDocumentByID(sourceID uint) (*model.DocumentSource, error) {
	var src model.DocumentSource
	err := DB.First(&src, sourceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// GetActiveDocumentByFileName 查找同名文档的当前完成版本，用于版本链登记
func GetActiveDocumentByFileName(fileName string) (*model.DocumentSource, error) {
	var src model.DocumentSource
	err := DB.Where("file_name = ? AND is_active = ? AND status = ?",
		fileName, true, model.StatusCompleted).
		Order("version DESC").
		First(&src).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func GetActiveDocuments() ([]model.DocumentSource, error) {
	var sources []model.DocumentSource
	if err := DB.Where("is_active = ? AND status = ?", true, model.StatusCompleted).
		Order("processed_at DESC").
		Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

func GetProcessingLog(sourceID uint) ([]model.ProcessingLog, error) {
	var entries []model.ProcessingLog
	if err := DB.Where("source_id = ?", sourceID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func SaveDocumentChunks(chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return DB.Create(&chunks).Error
}

func CountDocumentChunks(sourceID uint) (int64, error) {
	var count int64
	err := DB.Model(&model.DocumentChunk{}).
		Where("source_id = ?", sourceID).
		Count(&count).Error
	return count, err
}

// KnowledgeBaseStats 活跃且完成文档的聚合统计
func KnowledgeBaseStats() (*model.KnowledgeBaseStats, error) {
	var stats model.KnowledgeBaseStats

	if err := DB.Model(&model.DocumentSource{}).
		Count(&stats.TotalSources).Error; err != nil {
		return nil, err
	}

	var agg struct {
		ActiveSources  int64
		TotalChunks    int64
		TotalTokens    int64
		TotalSizeBytes int64
	}
	err := DB.Model(&model.DocumentSource{}).
		Select("COUNT(*) AS active_sources, " +
			"COALESCE(SUM(total_chunks), 0) AS total_chunks, " +
			"COALESCE(SUM(total_tokens), 0) AS total_tokens, " +
			"COALESCE(SUM(file_size), 0) AS total_size_bytes").
		Where("is_active = ? AND status = ?", true, model.StatusCompleted).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}

	stats.ActiveSources = agg.ActiveSources
	stats.TotalChunks = agg.TotalChunks
	stats.TotalTokens = agg.TotalTokens
	stats.TotalSizeBytes = agg.TotalSizeBytes

	// MAX(processed_at)在表达式列上丢失类型信息，改为按列取最新一行
	var last model.DocumentSource
	err = DB.Where("is_active = ? AND status = ? AND processed_at IS NOT NULL",
		true, model.StatusCompleted).
		Order("processed_at DESC").
		First(&last).Error
	if err == nil {
		stats.LastUpdate = last.ProcessedAt
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return &stats, nil
}

func transitionError(tx *gorm.DB, sourceID uint, to model.Status) error {
	var src model.DocumentSource
	if err := tx.First(&src, sourceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return &InvalidStateError{SourceID: sourceID, From: src.Status, To: to}
}
