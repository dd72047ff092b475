package rules

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TradingRule 描述单个交易对的交易所约束。
// 一次加载后在会话内不可变，只能通过显式 Reload 整体刷新。
type TradingRule struct {
	Symbol      string
	TickSize    float64
	StepSize    float64
	MinQty      float64
	MaxQty      float64
	MinPrice    float64
	MaxPrice    float64
	MinNotional float64
}

// ErrUnknownSymbol 表示规则表中不存在该交易对（或该交易对不可交易）。
var ErrUnknownSymbol = errors.New("rules: unknown symbol")

// Source 提供交易规则的来源，由交易所客户端实现。
type Source interface {
	FetchTradingRules(ctx context.Context) (map[string]TradingRule, error)
}

// Store 持有按交易对索引的交易规则快照。
// Get 返回值拷贝，因此验证过程中并发 Reload 不会被观察到。
type Store struct {
	source Source
	logger *zap.Logger

	mu       sync.RWMutex
	rules    map[string]TradingRule
	loadedAt time.Time
}

// NewStore 创建规则存储。
func NewStore(source Source, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		source: source,
		logger: logger,
		rules:  make(map[string]TradingRule),
	}
}

// Reload 从来源整体替换规则表。
func (s *Store) Reload(ctx context.Context) error {
	if s.source == nil {
		return errors.New("rules: 未配置规则来源")
	}

	fetched, err := s.source.FetchTradingRules(ctx)
	if err != nil {
		return fmt.Errorf("rules: 拉取交易规则失败: %w", err)
	}

	valid := make(map[string]TradingRule, len(fetched))
	for symbol, rule := range fetched {
		if err := rule.check(); err != nil {
			s.logger.Warn("跳过规则不完整的交易对",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			continue
		}
		valid[symbol] = rule
	}

	s.mu.Lock()
	s.rules = valid
	s.loadedAt = time.Now().UTC()
	s.mu.Unlock()

	s.logger.Info("交易规则已刷新", zap.Int("symbols", len(valid)))
	return nil
}

// Get 返回指定交易对的规则快照。
func (s *Store) Get(symbol string) (TradingRule, error) {
	s.mu.RLock()
	rule, ok := s.rules[symbol]
	s.mu.RUnlock()

	if !ok {
		return TradingRule{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return rule, nil
}

// Symbols 返回当前已加载的交易对列表。
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.rules))
	for symbol := range s.rules {
		out = append(out, symbol)
	}
	return out
}

// LoadedAt 返回最近一次刷新时间。
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Put 在测试或静态配置场景下直接写入规则。
func (s *Store) Put(rule TradingRule) error {
	if err := rule.check(); err != nil {
		return err
	}

	s.mu.Lock()
	s.rules[rule.Symbol] = rule
	s.mu.Unlock()
	return nil
}

func (r TradingRule) check() error {
	if r.Symbol == "" {
		return errors.New("rules: symbol 为空")
	}
	for _, v := range []float64{r.TickSize, r.StepSize, r.MinQty, r.MaxQty,
		r.MinPrice, r.MaxPrice, r.MinNotional} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("rules: %s 存在非有限字段", r.Symbol)
		}
	}
	if r.TickSize <= 0 {
		return fmt.Errorf("rules: %s tickSize 无效", r.Symbol)
	}
	if r.StepSize <= 0 {
		return fmt.Errorf("rules: %s stepSize 无效", r.Symbol)
	}
	if r.MinQty < 0 || r.MaxQty < 0 || (r.MaxQty > 0 && r.MinQty > r.MaxQty) {
		return fmt.Errorf("rules: %s 数量上下限无效", r.Symbol)
	}
	if r.MinPrice < 0 || r.MaxPrice < 0 || (r.MaxPrice > 0 && r.MinPrice > r.MaxPrice) {
		return fmt.Errorf("rules: %s 价格上下限无效", r.Symbol)
	}
	if r.MinNotional < 0 {
		return fmt.Errorf("rules: %s minNotional 无效", r.Symbol)
	}
	return nil
}
