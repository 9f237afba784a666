package model

import (
	"encoding/json"
	"time"
)

// QueryCacheEntry 问答结果缓存，cache_key由调用方生成
type QueryCacheEntry struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
	CacheKey  string    `gorm:"not null;size:64;uniqueIndex" json:"cache_key"`

	// 缓存的问答结果，对本组件不透明
	Payload json.RawMessage `gorm:"type:json" json:"payload"`

	HitCount  int64     `gorm:"not null;default:0" json:"hit_count"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}

func (QueryCacheEntry) TableName() string {
	return "query_cache"
}

func (e *QueryCacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
