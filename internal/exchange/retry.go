package exchange

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"orderbot/internal/config"
	"orderbot/internal/order"
)

// RetryBackoff 为端口的可选重试包装：只对幂等的只读调用
// （查价、查余额）做指数退避重试，下单与撤单原样透传，
// 避免重复成交风险。
type RetryBackoff struct {
	inner  Client
	cfg    config.RetryConfig
	logger *zap.Logger
}

var _ Client = (*RetryBackoff)(nil)

// WithRetry 包装底层端口。
func WithRetry(inner Client, cfg config.RetryConfig, logger *zap.Logger) *RetryBackoff {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryBackoff{
		inner:  inner,
		cfg:    cfg,
		logger: logger,
	}
}

// PlaceOrder 直接透传，不重试。
func (r *RetryBackoff) PlaceOrder(ctx context.Context, v order.Validated) (PlacedOrder, error) {
	return r.inner.PlaceOrder(ctx, v)
}

// CancelOrder 直接透传，不重试。
func (r *RetryBackoff) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	return r.inner.CancelOrder(ctx, symbol, exchangeOrderID)
}

// GetCurrentPrice 带退避重试地查询市价。
func (r *RetryBackoff) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	var price float64
	err := r.callWithRetry(ctx, "get_current_price", func() error {
		var innerErr error
		price, innerErr = r.inner.GetCurrentPrice(ctx, symbol)
		return innerErr
	})
	return price, err
}

// GetBalance 带退避重试地查询余额。
func (r *RetryBackoff) GetBalance(ctx context.Context, asset string) (float64, error) {
	var amount float64
	err := r.callWithRetry(ctx, "get_balance", func() error {
		var innerErr error
		amount, innerErr = r.inner.GetBalance(ctx, asset)
		return innerErr
	})
	return amount, err
}

func (r *RetryBackoff) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := r.cfg.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := r.cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	maxAttempts := r.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		if errors.Is(err, ErrMaintenance) {
			r.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(err),
			)
			return err
		}

		if !IsRetryable(err) || attempt >= maxAttempts {
			r.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(err),
			)
			return err
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		r.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
