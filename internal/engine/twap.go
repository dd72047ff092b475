package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"orderbot/internal/events"
	"orderbot/internal/order"
)

// TWAP 把总量按区间数切成等量市价子单，按固定间隔依次提交。
// 每片数量按 stepSize 向下取整，余量全部并入最后一片，因此累计
// 提交量不会超过总量。调度以计划起点的绝对偏移 k*Interval 计时，
// 单片耗时不会让后续片顺延漂移。单片失败只记录不中断；ctx 取消
// 时未提交的片记为 CANCELLED，在途片正常走完。
func (e *Engine) TWAP(ctx context.Context, params TWAPParams) (Result, error) {
	p := e.newPlan(KindTWAP)

	if params.NumIntervals < 1 {
		return e.fail(ctx, p, fmt.Errorf("engine: TWAP 区间数必须至少为 1，当前 %d", params.NumIntervals))
	}
	if params.NumIntervals > 1 && params.Interval <= 0 {
		return e.fail(ctx, p, fmt.Errorf("engine: TWAP 间隔必须为正，当前 %s", params.Interval))
	}
	if !order.IsFinite(params.TotalQuantity) || params.TotalQuantity <= 0 {
		return e.fail(ctx, p, &order.ValidationError{
			Code:   order.CodeInvalidQuantity,
			Symbol: params.Symbol,
			Detail: fmt.Sprintf("总量必须为有限正数，收到 %v", params.TotalQuantity),
		})
	}

	rule, err := e.ruleFor(ctx, p, params.Symbol)
	if err != nil {
		return e.fail(ctx, p, err)
	}

	sliceQty, lastQty := order.SplitEven(params.TotalQuantity, params.NumIntervals, rule.StepSize)
	if sliceQty <= 0 {
		return e.fail(ctx, p, &order.ValidationError{
			Code:   order.CodeQuantityTooSmallAfterRounding,
			Symbol: params.Symbol,
			Detail: fmt.Sprintf("总量 %v 拆成 %d 片后单片数量按步长 %v 取整为零",
				params.TotalQuantity, params.NumIntervals, rule.StepSize),
		})
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for idx := 0; idx < params.NumIntervals; idx++ {
		if idx > 0 {
			// 绝对偏移计时，deadline 不随单片耗时漂移。
			wait := time.Until(p.started.Add(time.Duration(idx) * params.Interval))
			if wait > 0 {
				timer.Reset(wait)
				select {
				case <-ctx.Done():
					e.cancelRemaining(ctx, p, idx, params.NumIntervals, ctx.Err())
					return e.finish(ctx, p), nil
				case <-timer.C:
				}
			} else if err := ctx.Err(); err != nil {
				e.cancelRemaining(ctx, p, idx, params.NumIntervals, err)
				return e.finish(ctx, p), nil
			}
		}

		qty := sliceQty
		if idx == params.NumIntervals-1 {
			qty = lastQty
		}

		// 市价校验依赖当前市价，每片提交前重新取价。
		refPrice, err := e.referencePrice(ctx, params.Symbol)
		if err != nil {
			e.emit(ctx, p, idx, events.KindDispatchFailed, err.Error())
			p.records = append(p.records, order.ExecutionRecord{
				RequestID:   p.requestID(idx),
				Status:      order.StatusFailed,
				ErrorDetail: err.Error(),
				Timestamp:   e.now(),
			})
			continue
		}

		req := order.Request{
			Symbol:   params.Symbol,
			Side:     params.Side,
			Type:     order.TypeMarket,
			Quantity: qty,
		}

		validated, ok := e.validateChild(ctx, p, idx, req, rule, refPrice)
		if !ok {
			continue
		}

		p.records = append(p.records, e.dispatchChild(ctx, p, idx, validated))
	}

	return e.finish(ctx, p), nil
}

// cancelRemaining 为尚未提交的片写入 CANCELLED 记录。
func (e *Engine) cancelRemaining(ctx context.Context, p *plan, from, total int, cause error) {
	detail := fmt.Sprintf("计划取消，剩余片未提交: %v", cause)
	for idx := from; idx < total; idx++ {
		p.records = append(p.records, order.ExecutionRecord{
			RequestID:   p.requestID(idx),
			Status:      order.StatusCancelled,
			ErrorDetail: detail,
			Timestamp:   e.now(),
		})
	}
	e.logger.Warn("TWAP 计划提前终止",
		zap.String("strategy_id", p.id),
		zap.Int("dispatched", from),
		zap.Int("total", total),
		zap.Error(cause),
	)
}
