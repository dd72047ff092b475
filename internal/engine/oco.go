package engine

import (
	"context"
	"fmt"

	"orderbot/internal/order"
)

// OCO 以止损触发单与止盈触发单组成双腿策略。两腿先各自独立校验，
// 任一腿被拒则整个计划在提交前终止；校验全部通过后两腿依次提交，
// 互相之间没有顺序要求。交易所端不存在原生联动：一腿成交后撤销
// 另一腿是调用方的责任，引擎没有常驻进程盯成交，这一点会通过
// 事件明确告知。
func (e *Engine) OCO(ctx context.Context, params OCOParams) (Result, error) {
	p := e.newPlan(KindOCO)

	rule, err := e.ruleFor(ctx, p, params.Symbol)
	if err != nil {
		return e.fail(ctx, p, err)
	}

	refPrice, err := e.referencePrice(ctx, params.Symbol)
	if err != nil {
		return e.fail(ctx, p, err)
	}

	children := []order.Request{
		{
			Symbol:    params.Symbol,
			Side:      params.Side,
			Type:      order.TypeStopMarket,
			Quantity:  params.Quantity,
			StopPrice: params.StopPrice,
		},
		{
			Symbol:    params.Symbol,
			Side:      params.Side,
			Type:      order.TypeTakeProfitMarket,
			Quantity:  params.Quantity,
			StopPrice: params.TakeProfitPrice,
		},
	}

	validated := make([]order.Validated, len(children))
	okAll := true
	for idx, req := range children {
		v, ok := e.validateChild(ctx, p, idx, req, rule, refPrice)
		if !ok {
			okAll = false
			continue
		}
		validated[idx] = v
	}

	if !okAll {
		// 校验未全部通过则两腿都不提交，已通过的腿记为 CANCELLED。
		records := p.records
		p.records = nil
		rejected := make(map[string]order.ExecutionRecord, len(records))
		for _, rec := range records {
			rejected[rec.RequestID] = rec
		}
		for idx := range children {
			id := p.requestID(idx)
			if rec, ok := rejected[id]; ok {
				p.records = append(p.records, rec)
				continue
			}
			p.records = append(p.records, order.ExecutionRecord{
				RequestID:   id,
				Status:      order.StatusCancelled,
				ErrorDetail: "另一腿校验失败，本腿未提交",
				Timestamp:   e.now(),
			})
		}
		return e.finish(ctx, p), nil
	}

	for idx, v := range validated {
		p.records = append(p.records, e.dispatchChild(ctx, p, idx, v))
	}

	// 没有常驻进程盯成交，两腿联动只能由调用方兑现。
	p.note = fmt.Sprintf("OCO 两腿相互独立，任一腿成交后撤销另一腿由调用方负责 symbol=%s", params.Symbol)

	return e.finish(ctx, p), nil
}
