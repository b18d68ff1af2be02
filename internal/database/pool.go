// Package database 提供嵌入式 SQLite 连接管理。
//
// DB 是单个文件 (APP_DB_PATH)，所有写入经由 store 层的单一进程级互斥锁
// 串行化 — database/sql 连接池本身退化为单连接，避免 SQLite 在并发写入
// 下返回 "database is locked"。对应 Python shared/persistence.py 的
// 模块级 _LOCK。
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/filewarden/mesh/internal/config"
	"github.com/filewarden/mesh/pkg/logger"
)

// Open 打开 (或创建) 嵌入式 SQLite 文件数据库。
// 对应 Python shared/persistence.py 的 _init_db。
func Open(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if cfg.AppDBPath == "" {
		return nil, fmt.Errorf("APP_DB_PATH is required")
	}

	if dir := filepath.Dir(cfg.AppDBPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	dsn := cfg.AppDBPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite 是单文件、单写者模型: 一个连接足以串行化所有写入，
	// 并避免并发连接互相触发 SQLITE_BUSY。
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		logger.Warn("set WAL journal mode failed", logger.FieldError, err)
	}

	logger.Infow("sqlite database opened", "path", cfg.AppDBPath)
	return db, nil
}
