package dao

import (
	"discord-rag-backend/model"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const connectAttempts = 5

// DB 全局数据库连接
var DB *gorm.DB

// timeNow 可在测试中替换的时钟
var timeNow = time.Now

func Init(dsn string) error {
	var err error
	err = retry.Do(
		func() error {
			DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
				TranslateError: true,
			})
			return err
		},
		retry.Attempts(connectAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Retrying to connect to mysql", "attempt", n+1, "err", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to mysql: %v", err)
	}

	return Migrate(DB)
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.DocumentSource{},
		&model.ProcessingLog{},
		&model.DocumentChunk{},
		&model.QueryCacheEntry{},
		&model.RateLimitState{},
	)
}
