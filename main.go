package main

import (
	"discord-rag-backend/config"
	"discord-rag-backend/dao"
	"discord-rag-backend/router"
	"discord-rag-backend/service/mq"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	if err := dao.Init(config.Cfg.MySQL.DSN); err != nil {
		panic(fmt.Sprintf("failed to init database: %v", err))
	}

	if err := mq.Run(); err != nil {
		panic(fmt.Sprintf("failed to start mq: %v", err))
	}

	stopSweeper := startCacheSweeper()

	r := router.Register()
	go func() {
		if err := r.Run(":" + config.Cfg.Server.Port); err != nil {
			slog.Error("Server exited", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down")
	stopSweeper()
	mq.Shutdown()
}

// startCacheSweeper 周期清理过期缓存，返回停止函数
func startCacheSweeper() func() {
	interval := time.Duration(config.Cfg.Cache.SweepIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				evicted, err := dao.SweepResponseCache(config.Cfg.Cache.MaxEntries)
				if err != nil {
					slog.Error("Cache sweep failed", "err", err)
					continue
				}
				if evicted > 0 {
					slog.Info("Cache sweep finished", "evicted", evicted)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}
