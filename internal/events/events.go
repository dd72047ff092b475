package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Kind 表示引擎产出的结构化事件类型。
type Kind string

const (
	KindValidationFailed  Kind = "VALIDATION_FAILED"
	KindValidationPassed  Kind = "VALIDATION_PASSED"
	KindDispatchSent      Kind = "DISPATCH_SENT"
	KindDispatchSucceeded Kind = "DISPATCH_SUCCEEDED"
	KindDispatchFailed    Kind = "DISPATCH_FAILED"
	KindStrategyCompleted Kind = "STRATEGY_COMPLETED"
)

// ChildNone 表示事件不关联具体子订单。
const ChildNone = -1

// Event 为一条引擎事件，引擎只产出结构化数据，展示格式由消费方决定。
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	StrategyID string    `json:"strategy_id"`
	ChildIndex int       `json:"child_index"`
	Kind       Kind      `json:"kind"`
	Detail     string    `json:"detail"`
}

// Sink 接收引擎事件，由外部日志协作方实现。
type Sink interface {
	Record(ctx context.Context, event Event)
}

// ZapSink 将事件写入结构化日志。
type ZapSink struct {
	logger *zap.Logger
}

var _ Sink = (*ZapSink)(nil)

// NewZapSink 创建日志事件接收器。
func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger}
}

// Record 输出单条事件。
func (s *ZapSink) Record(_ context.Context, event Event) {
	fields := []zap.Field{
		zap.Time("timestamp", event.Timestamp),
		zap.String("strategy_id", event.StrategyID),
		zap.String("kind", string(event.Kind)),
		zap.String("detail", event.Detail),
	}
	if event.ChildIndex != ChildNone {
		fields = append(fields, zap.Int("child_index", event.ChildIndex))
	}

	switch event.Kind {
	case KindValidationFailed, KindDispatchFailed:
		s.logger.Warn("策略事件", fields...)
	default:
		s.logger.Info("策略事件", fields...)
	}
}

// Fanout 将事件广播给多个接收器。
type Fanout []Sink

var _ Sink = (Fanout)(nil)

// Record 依次投递事件。
func (f Fanout) Record(ctx context.Context, event Event) {
	for _, sink := range f {
		if sink != nil {
			sink.Record(ctx, event)
		}
	}
}
