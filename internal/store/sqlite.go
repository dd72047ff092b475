package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"orderbot/internal/config"
)

// 事件日志是追加型写入，策略执行不等它：写入端用 WAL 降低与
// 查询端的锁冲突，busy_timeout 兜住并发提交时的短暂抢锁。
const busyTimeoutMS = 5000

// 内存库必须走共享缓存，否则连接池里的每个连接各自打开一个
// 空库，事件写进一个连接、查询落在另一个连接上。
const memoryDSN = "file::memory:?mode=memory&cache=shared&_busy_timeout=5000"

var journalPragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
}

// Store 持有事件日志数据库的连接池。
type Store struct {
	db *sql.DB
}

// Open 打开（必要时创建）事件日志数据库并套用日志型写入参数。
func Open(cfg config.DatabaseConfig) (*Store, error) {
	dsn := memoryDSN
	if !cfg.InMemory {
		if err := ensureDir(filepath.Dir(cfg.Path)); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", cfg.Path, busyTimeoutMS)
	}

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开事件日志数据库失败: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	for _, pragma := range journalPragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("设置 %s 失败: %w", strings.TrimSuffix(pragma, ";"), err)
		}
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("事件日志数据库不可用: %w", err)
	}

	return &Store{db: conn}, nil
}

// DB 返回底层 *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("创建目录 %q 失败: %w", path, err)
	}
	return nil
}
