package dao

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB 以内存sqlite替换全局DB，用例间相互隔离
func setupTestDB(t *testing.T) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 单连接，保证所有会话看到同一个内存库
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, Migrate(db))
	DB = db

	timeNow = time.Now
	t.Cleanup(func() {
		timeNow = time.Now
	})
}

// setClock 固定dao层时钟
func setClock(at time.Time) {
	timeNow = func() time.Time { return at }
}
