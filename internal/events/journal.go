package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"orderbot/internal/store"
)

// Journal 将引擎事件持久化到 SQLite，供事后审计。
type Journal struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ Sink = (*Journal)(nil)

// NewJournal 初始化事件日志，创建所需表结构。
func NewJournal(store *store.Store, logger *zap.Logger) (*Journal, error) {
	if store == nil {
		return nil, fmt.Errorf("events: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	j := &Journal{
		db:     store.DB(),
		logger: logger,
	}

	if err := j.initSchema(); err != nil {
		return nil, err
	}

	return j, nil
}

func (j *Journal) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS strategy_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_id TEXT NOT NULL,
	child_index INTEGER NOT NULL,
	kind TEXT NOT NULL,
	detail TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_strategy_events_strategy ON strategy_events(strategy_id);
CREATE INDEX IF NOT EXISTS idx_strategy_events_kind ON strategy_events(kind);
`
	if _, err := j.db.Exec(stmt); err != nil {
		return fmt.Errorf("events: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单条事件，失败只记日志，不能阻断策略执行。
func (j *Journal) Record(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO strategy_events (strategy_id, child_index, kind, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		event.StrategyID, event.ChildIndex, string(event.Kind), event.Detail,
		event.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		j.logger.Warn("事件写入失败",
			zap.String("strategy_id", event.StrategyID),
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
	}
}

// Recent 返回最近的 limit 条事件，按时间倒序。
func (j *Journal) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT strategy_id, child_index, kind, detail, created_at FROM strategy_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("events: 查询事件失败: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			event     Event
			kind      string
			createdAt string
		)
		if err := rows.Scan(&event.StrategyID, &event.ChildIndex, &kind, &event.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("events: 读取事件失败: %w", err)
		}
		event.Kind = Kind(kind)
		if ts, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
			event.Timestamp = ts
		}
		out = append(out, event)
	}

	return out, rows.Err()
}
