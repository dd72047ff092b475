package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"orderbot/internal/events"
	"orderbot/internal/exchange"
	"orderbot/internal/order"
	"orderbot/internal/rules"
)

const defaultMaxInFlight = 5

// Options 控制引擎执行行为。
type Options struct {
	// MaxInFlight 限制网格并发提交的在途委托数，属于限流策略而非正确性要求。
	MaxInFlight int
}

// Engine 将高层策略意图编排为一串经过校验的子订单，
// 通过交易所端口逐一提交，并把每次校验与提交写入事件接收器。
// 规则快照、端口与事件接收器都经构造注入，不依赖任何全局状态。
type Engine struct {
	rules  *rules.Store
	client exchange.Client
	sink   events.Sink
	logger *zap.Logger
	opts   Options
	now    func() time.Time
}

// New 创建策略引擎。
func New(ruleStore *rules.Store, client exchange.Client, sink events.Sink, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = events.Fanout(nil)
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = defaultMaxInFlight
	}
	return &Engine{
		rules:  ruleStore,
		client: client,
		sink:   sink,
		logger: logger,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// plan 在一次策略执行期间累积子订单记录。
type plan struct {
	id      string
	kind    Kind
	started time.Time
	records []order.ExecutionRecord
	childEr error
	note    string
}

func (e *Engine) newPlan(kind Kind) *plan {
	return &plan{
		id:      newStrategyID(kind),
		kind:    kind,
		started: e.now(),
	}
}

func (p *plan) requestID(childIndex int) string {
	return fmt.Sprintf("%s/%d", p.id, childIndex)
}

func (e *Engine) emit(ctx context.Context, p *plan, childIndex int, kind events.Kind, detail string) {
	e.sink.Record(ctx, events.Event{
		Timestamp:  e.now(),
		StrategyID: p.id,
		ChildIndex: childIndex,
		Kind:       kind,
		Detail:     detail,
	})
}

// ruleFor 获取交易对的规则快照，缺失按 UnknownSymbol 处理。
func (e *Engine) ruleFor(ctx context.Context, p *plan, symbol string) (rules.TradingRule, error) {
	rule, err := e.rules.Get(symbol)
	if err != nil {
		e.emit(ctx, p, events.ChildNone, events.KindValidationFailed,
			fmt.Sprintf("[%s] %v", order.CodeUnknownSymbol, err))
		return rules.TradingRule{}, &order.ValidationError{
			Code:   order.CodeUnknownSymbol,
			Symbol: symbol,
			Detail: err.Error(),
		}
	}
	return rule, nil
}

// validateChild 校验单个子订单。失败时写入 REJECTED 记录并返回 false。
func (e *Engine) validateChild(ctx context.Context, p *plan, childIndex int, req order.Request, rule rules.TradingRule, refPrice float64) (order.Validated, bool) {
	validated, err := order.Validate(req, rule, refPrice)
	if err != nil {
		e.emit(ctx, p, childIndex, events.KindValidationFailed, err.Error())
		p.records = append(p.records, order.ExecutionRecord{
			RequestID:   p.requestID(childIndex),
			Status:      order.StatusRejected,
			ErrorDetail: err.Error(),
			Timestamp:   e.now(),
		})
		p.childEr = multierr.Append(p.childEr, err)
		return order.Validated{}, false
	}

	e.emit(ctx, p, childIndex, events.KindValidationPassed,
		fmt.Sprintf("%s %s %s qty=%v price=%v stop=%v",
			validated.Symbol, validated.Side, validated.Type,
			validated.Quantity, validated.Price, validated.StopPrice))
	return validated, true
}

// dispatchChild 提交单个已校验子订单并返回执行记录。
// 提交失败不重试：重复提交市价单有重复成交风险。
func (e *Engine) dispatchChild(ctx context.Context, p *plan, childIndex int, v order.Validated) order.ExecutionRecord {
	e.emit(ctx, p, childIndex, events.KindDispatchSent,
		fmt.Sprintf("%s %s %s qty=%v", v.Symbol, v.Side, v.Type, v.Quantity))

	placed, err := e.client.PlaceOrder(ctx, v)
	if err != nil {
		e.emit(ctx, p, childIndex, events.KindDispatchFailed, err.Error())
		return order.ExecutionRecord{
			RequestID:   p.requestID(childIndex),
			Status:      order.StatusFailed,
			ErrorDetail: err.Error(),
			Timestamp:   e.now(),
		}
	}

	e.emit(ctx, p, childIndex, events.KindDispatchSucceeded,
		fmt.Sprintf("exchange_order_id=%s status=%s", placed.ExchangeOrderID, placed.Status))
	return order.ExecutionRecord{
		RequestID:       p.requestID(childIndex),
		ExchangeOrderID: placed.ExchangeOrderID,
		Status:          order.StatusPlaced,
		Timestamp:       e.now(),
	}
}

// finish 推导终态并产出结果。
func (e *Engine) finish(ctx context.Context, p *plan) Result {
	status := deriveStatus(p.records)
	detail := fmt.Sprintf("status=%s children=%d", status, len(p.records))
	if p.note != "" {
		detail += "; " + p.note
	}
	e.emit(ctx, p, events.ChildNone, events.KindStrategyCompleted, detail)

	e.logger.Info("策略执行结束",
		zap.String("strategy_id", p.id),
		zap.String("kind", string(p.kind)),
		zap.String("status", string(status)),
		zap.Int("children", len(p.records)),
	)

	return Result{
		StrategyID: p.id,
		Kind:       p.kind,
		Status:     status,
		Records:    p.records,
		ChildErr:   p.childEr,
		StartedAt:  p.started,
		FinishedAt: e.now(),
	}
}

// fail 在任何子订单提交之前终止计划。
func (e *Engine) fail(ctx context.Context, p *plan, err error) (Result, error) {
	e.emit(ctx, p, events.ChildNone, events.KindStrategyCompleted,
		fmt.Sprintf("status=%s detail=%v", StatusFailed, err))

	e.logger.Warn("策略在提交前终止",
		zap.String("strategy_id", p.id),
		zap.String("kind", string(p.kind)),
		zap.Error(err),
	)

	return Result{
		StrategyID: p.id,
		Kind:       p.kind,
		Status:     StatusFailed,
		Records:    p.records,
		ChildErr:   p.childEr,
		StartedAt:  p.started,
		FinishedAt: e.now(),
	}, err
}

// referencePrice 获取当前市价，用于触发价方向与市价单名义价值校验。
func (e *Engine) referencePrice(ctx context.Context, symbol string) (float64, error) {
	price, err := e.client.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("engine: 获取 %s 市价失败: %w", symbol, err)
	}
	return price, nil
}

func newStrategyID(kind Kind) string {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("%s-%d", strings.ToLower(string(kind)), time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%s", strings.ToLower(string(kind)), hex.EncodeToString(buf[:]))
}
