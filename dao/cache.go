package dao

import (
	"discord-rag-backend/model"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetCachedResponse 命中时累加hit_count并返回缓存结果
//
// 过期的行即使仍然存在也按未命中处理（惰性过期），且不计入hit_count，
// 物理删除交给SweepResponseCache。
func GetCachedResponse(key string) (*model.QueryCacheEntry, error) {
	if key == "" {
		return nil, &ValidationError{Field: "cache_key", Reason: "must not be empty"}
	}

	var entry model.QueryCacheEntry
	err := DB.Transaction(func(tx *gorm.DB) error {
		now := timeNow()
		res := tx.Model(&model.QueryCacheEntry{}).
			Where("cache_key = ? AND expires_at > ?", key, now).
			Update("hit_count", gorm.Expr("hit_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCacheMiss
		}
		return tx.Where("cache_key = ?", key).First(&entry).Error
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// SetCachedResponse 写入或刷新缓存，刷新时hit_count归零
func SetCachedResponse(key string, payload json.RawMessage, ttl time.Duration) error {
	if key == "" {
		return &ValidationError{Field: "cache_key", Reason: "must not be empty"}
	}
	if ttl <= 0 {
		return &ValidationError{Field: "ttl", Reason: "must be positive"}
	}

	now := timeNow()
	entry := model.QueryCacheEntry{
		CacheKey:  key,
		Payload:   payload,
		HitCount:  0,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"payload":    payload,
			"hit_count":  0,
			"created_at": now,
			"expires_at": entry.ExpiresAt,
		}),
	}).Create(&entry).Error
}

// SweepResponseCache 批量删除过期缓存，返回删除行数
//
// maxEntries > 0 时额外按创建时间淘汰超出上限的最老行，
// 防止两次清理之间缓存无界增长
func SweepResponseCache(maxEntries int64) (int64, error) {
	var evicted int64
	err := DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("expires_at <= ?", timeNow()).
			Delete(&model.QueryCacheEntry{})
		if res.Error != nil {
			return res.Error
		}
		evicted = res.RowsAffected

		if maxEntries <= 0 {
			return nil
		}

		var total int64
		if err := tx.Model(&model.QueryCacheEntry{}).Count(&total).Error; err != nil {
			return err
		}
		if total <= maxEntries {
			return nil
		}

		var ids []uint
		if err := tx.Model(&model.QueryCacheEntry{}).
			Order("created_at ASC").
			Limit(int(total - maxEntries)).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		res = tx.Delete(&model.QueryCacheEntry{}, ids)
		if res.Error != nil {
			return res.Error
		}
		evicted += res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return evicted, nil
}

// CacheEntryByKey 测试与调试用，不影响hit_count
func CacheEntryByKey(key string) (*model.QueryCacheEntry, error) {
	var entry model.QueryCacheEntry
	err := DB.Where("cache_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
