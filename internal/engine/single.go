package engine

import (
	"context"

	"orderbot/internal/order"
	"orderbot/internal/rules"
)

// Market 执行单笔市价策略：校验 → 提交 → 记录，失败即终态，不重试。
func (e *Engine) Market(ctx context.Context, params MarketParams) (Result, error) {
	p := e.newPlan(KindMarket)

	rule, err := e.ruleFor(ctx, p, params.Symbol)
	if err != nil {
		return e.fail(ctx, p, err)
	}

	refPrice, err := e.referencePrice(ctx, params.Symbol)
	if err != nil {
		return e.fail(ctx, p, err)
	}

	return e.runSingle(ctx, p, order.Request{
		Symbol:   params.Symbol,
		Side:     params.Side,
		Type:     order.TypeMarket,
		Quantity: params.Quantity,
	}, rule, refPrice)
}

// Limit 执行单笔限价策略。
func (e *Engine) Limit(ctx context.Context, params LimitParams) (Result, error) {
	p := e.newPlan(KindLimit)

	rule, err := e.ruleFor(ctx, p, params.Symbol)
	if err != nil {
		return e.fail(ctx, p, err)
	}

	return e.runSingle(ctx, p, order.Request{
		Symbol:   params.Symbol,
		Side:     params.Side,
		Type:     order.TypeLimit,
		Quantity: params.Quantity,
		Price:    params.Price,
	}, rule, 0)
}

// StopLimit 执行单笔止损限价策略，触发价与限价独立取整后一并校验。
func (e *Engine) StopLimit(ctx context.Context, params StopLimitParams) (Result, error) {
	p := e.newPlan(KindStopLimit)

	rule, err := e.ruleFor(ctx, p, params.Symbol)
	if err != nil {
		return e.fail(ctx, p, err)
	}

	refPrice, err := e.referencePrice(ctx, params.Symbol)
	if err != nil {
		return e.fail(ctx, p, err)
	}

	return e.runSingle(ctx, p, order.Request{
		Symbol:    params.Symbol,
		Side:      params.Side,
		Type:      order.TypeStopLimit,
		Quantity:  params.Quantity,
		Price:     params.Price,
		StopPrice: params.StopPrice,
	}, rule, refPrice)
}

func (e *Engine) runSingle(ctx context.Context, p *plan, req order.Request, rule rules.TradingRule, refPrice float64) (Result, error) {
	validated, ok := e.validateChild(ctx, p, 0, req, rule, refPrice)
	if !ok {
		return e.finish(ctx, p), nil
	}

	p.records = append(p.records, e.dispatchChild(ctx, p, 0, validated))
	return e.finish(ctx, p), nil
}
