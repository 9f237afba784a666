package model

import "time"

// RateLimitState 每个principal一行的固定窗口限流状态
// 限流阈值不落库，由配置在每次检查时传入
type RateLimitState struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
	PrincipalID string    `gorm:"not null;size:64;uniqueIndex" json:"principal_id"`

	// 当前窗口内的请求计数，窗口滚动时归零
	RequestCount  int       `gorm:"not null;default:0" json:"request_count"`
	WindowStart   time.Time `gorm:"not null" json:"window_start"`
	WindowSeconds int64     `gorm:"not null" json:"window_seconds"`
	LastRequestAt time.Time `gorm:"not null" json:"last_request_at"`

	// 历史放行总数，只增不减
	TotalRequests int64 `gorm:"not null;default:0" json:"total_requests"`
}

func (RateLimitState) TableName() string {
	return "rate_limits"
}

func (s *RateLimitState) WindowExpired(now time.Time) bool {
	return now.Sub(s.WindowStart) > time.Duration(s.WindowSeconds)*time.Second
}
