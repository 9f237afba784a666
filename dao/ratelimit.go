package dao

import (
	"discord-rag-backend/model"
	"errors"
	"time"

	"gorm.io/gorm"
)

const rateLimitRetries = 3

// RateLimitResult checkAndIncrement的判定结果
type RateLimitResult struct {
	Allowed   bool
	Remaining int
}

// CheckAndIncrementRateLimit 固定窗口限流检查
//
// 读-改-写以单个事务内的条件更新表达，任意多并发调用方下计数不会超过limit。
// 固定窗口在窗口边界上最多放行2×limit个请求，这是沿用的已知取舍，
// 换成滑动窗口不需要改变本函数的对外契约。
// 阈值limit与窗口时长由配置逐次传入，不随状态落库。
func CheckAndIncrementRateLimit(principalID string, limit int, window time.Duration) (*RateLimitResult, error) {
	if principalID == "" {
		return nil, &ValidationError{Field: "principal_id", Reason: "must not be empty"}
	}
	if limit <= 0 {
		return nil, &ValidationError{Field: "limit", Reason: "must be positive"}
	}
	if window <= 0 {
		return nil, &ValidationError{Field: "window", Reason: "must be positive"}
	}

	var result *RateLimitResult
	var err error
	for i := 0; i < rateLimitRetries; i++ {
		result, err = checkAndIncrementOnce(principalID, limit, window)
		if !errors.Is(err, ErrConflict) {
			break
		}
	}
	return result, err
}

func checkAndIncrementOnce(principalID string, limit int, window time.Duration) (*RateLimitResult, error) {
	var result RateLimitResult
	err := DB.Transaction(func(tx *gorm.DB) error {
		now := timeNow()

		var st model.RateLimitState
		err := tx.Where("principal_id = ?", principalID).First(&st).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			st = model.RateLimitState{
				PrincipalID:   principalID,
				RequestCount:  1,
				WindowStart:   now,
				WindowSeconds: int64(window / time.Second),
				LastRequestAt: now,
				TotalRequests: 1,
			}
			if err := tx.Create(&st).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ErrConflict
				}
				return err
			}
			result = RateLimitResult{Allowed: true, Remaining: limit - 1}
			return nil
		}
		if err != nil {
			return err
		}

		if now.Sub(st.WindowStart) > window {
			// 窗口滚动，计数从1重新开始
			res := tx.Model(&model.RateLimitState{}).
				Where("principal_id = ? AND window_start = ?", principalID, st.WindowStart).
				Updates(map[string]any{
					"request_count":   1,
					"window_start":    now,
					"window_seconds":  int64(window / time.Second),
					"last_request_at": now,
					"total_requests":  gorm.Expr("total_requests + 1"),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrConflict
			}
			result = RateLimitResult{Allowed: true, Remaining: limit - 1}
			return nil
		}

		// 条件自增，计数已达limit时不生效，被拒绝的请求不会推高计数
		res := tx.Model(&model.RateLimitState{}).
			Where("principal_id = ? AND window_start = ? AND request_count < ?",
				principalID, st.WindowStart, limit).
			Updates(map[string]any{
				"request_count":   gorm.Expr("request_count + 1"),
				"last_request_at": now,
				"total_requests":  gorm.Expr("total_requests + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var cur model.RateLimitState
			if err := tx.Where("principal_id = ?", principalID).First(&cur).Error; err != nil {
				return err
			}
			if !cur.WindowStart.Equal(st.WindowStart) {
				return ErrConflict
			}

			// 已达上限，只更新最近请求时间
			if err := tx.Model(&model.RateLimitState{}).
				Where("principal_id = ?", principalID).
				Update("last_request_at", now).Error; err != nil {
				return err
			}
			result = RateLimitResult{Allowed: false, Remaining: 0}
			return nil
		}

		var cur model.RateLimitState
		if err := tx.Where("principal_id = ?", principalID).First(&cur).Error; err != nil {
			return err
		}
		remaining := limit - cur.RequestCount
		if remaining < 0 {
			remaining = 0
		}
		result = RateLimitResult{Allowed: true, Remaining: remaining}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ResetRateLimitIfExpired 不产生新请求的独立窗口检查，用于状态展示
func ResetRateLimitIfExpired(principalID string) (bool, error) {
	if principalID == "" {
		return false, &ValidationError{Field: "principal_id", Reason: "must not be empty"}
	}

	var reset bool
	err := DB.Transaction(func(tx *gorm.DB) error {
		var st model.RateLimitState
		err := tx.Where("principal_id = ?", principalID).First(&st).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		now := timeNow()
		if !st.WindowExpired(now) {
			return nil
		}

		res := tx.Model(&model.RateLimitState{}).
			Where("principal_id = ? AND window_start = ?", principalID, st.WindowStart).
			Updates(map[string]any{
				"request_count": 0,
				"window_start":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		reset = res.RowsAffected > 0
		return nil
	})
	return reset, err
}

func GetRateLimitState(principalID string) (*model.RateLimitState, error) {
	var st model.RateLimitState
	err := DB.Where("principal_id = ?", principalID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}
