package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"orderbot/internal/order"
)

// gridLevel 是网格展开后的一档挂单。
type gridLevel struct {
	side  order.Side
	price float64
}

// Grid 在 [minPrice, maxPrice] 区间内按全区间等距展开买卖限价单。
// 档距 step = (max-min)/(nBuy+nSell-1)：买单从 min 向上铺，卖单从
// max 向下铺，价格逐档按 tickSize 向下取整。越过对侧边界的档位
// 丢弃，取整后同侧同价的档位去重，因此实际档数可能少于请求档数。
// 所有档位先全部校验，再并发提交，期间在途委托数不超过 MaxInFlight。
func (e *Engine) Grid(ctx context.Context, params GridParams) (Result, error) {
	p := e.newPlan(KindGrid)

	// 边界在校验前就参与档位展开的十进制运算，必须是有限正数。
	if !order.IsFinite(params.MinPrice) || !order.IsFinite(params.MaxPrice) ||
		params.MinPrice <= 0 || params.MaxPrice <= params.MinPrice {
		return e.fail(ctx, p, fmt.Errorf("engine: 网格价格区间非法 min=%v max=%v",
			params.MinPrice, params.MaxPrice))
	}
	if params.NumBuyOrders < 0 || params.NumSellOrders < 0 ||
		params.NumBuyOrders+params.NumSellOrders < 2 {
		return e.fail(ctx, p, fmt.Errorf("engine: 网格档数非法 buy=%d sell=%d，总档数至少为 2",
			params.NumBuyOrders, params.NumSellOrders))
	}

	rule, err := e.ruleFor(ctx, p, params.Symbol)
	if err != nil {
		return e.fail(ctx, p, err)
	}

	levels := gridLevels(params, rule.TickSize)
	if len(levels) == 0 {
		return e.fail(ctx, p, fmt.Errorf("engine: 网格展开后没有可挂档位 symbol=%s", params.Symbol))
	}
	if dropped := params.NumBuyOrders + params.NumSellOrders - len(levels); dropped > 0 {
		e.logger.Info("网格部分档位被丢弃",
			zap.String("strategy_id", p.id),
			zap.String("symbol", params.Symbol),
			zap.Int("requested", params.NumBuyOrders+params.NumSellOrders),
			zap.Int("kept", len(levels)),
		)
	}

	// 第一阶段：全部档位先校验，被拒的档位得到 REJECTED 记录。
	validated := make([]order.Validated, len(levels))
	passed := make([]bool, len(levels))
	for idx, lv := range levels {
		req := order.Request{
			Symbol:   params.Symbol,
			Side:     lv.side,
			Type:     order.TypeLimit,
			Quantity: params.QuantityPerOrder,
			Price:    lv.price,
		}
		v, ok := e.validateChild(ctx, p, idx, req, rule, 0)
		if !ok {
			continue
		}
		validated[idx] = v
		passed[idx] = true
	}

	rejected := make(map[string]order.ExecutionRecord, len(p.records))
	for _, rec := range p.records {
		rejected[rec.RequestID] = rec
	}

	// 第二阶段：并发提交。每个档位只写自己下标的槽位，无需加锁。
	slots := make([]order.ExecutionRecord, len(levels))
	var g errgroup.Group
	g.SetLimit(e.opts.MaxInFlight)
	for idx := range levels {
		if !passed[idx] {
			continue
		}
		idx := idx
		g.Go(func() error {
			slots[idx] = e.dispatchChild(ctx, p, idx, validated[idx])
			return nil
		})
	}
	_ = g.Wait()

	p.records = p.records[:0]
	for idx := range levels {
		if rec, ok := rejected[p.requestID(idx)]; ok {
			p.records = append(p.records, rec)
			continue
		}
		p.records = append(p.records, slots[idx])
	}

	return e.finish(ctx, p), nil
}

// gridLevels 展开网格档位：买单自下而上，卖单自上而下，
// 价格按 tickSize 向下取整后去重。
func gridLevels(params GridParams, tickSize float64) []gridLevel {
	total := params.NumBuyOrders + params.NumSellOrders

	dMin := decimal.NewFromFloat(params.MinPrice)
	dMax := decimal.NewFromFloat(params.MaxPrice)
	dTick := decimal.NewFromFloat(tickSize)
	dStep := dMax.Sub(dMin).Div(decimal.NewFromInt(int64(total - 1)))

	floorTick := func(d decimal.Decimal) decimal.Decimal {
		if dTick.IsPositive() {
			return d.Div(dTick).Floor().Mul(dTick)
		}
		return d
	}

	seen := make(map[string]struct{}, total)
	levels := make([]gridLevel, 0, total)
	add := func(side order.Side, d decimal.Decimal) {
		key := string(side) + "@" + d.String()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		price, _ := d.Float64()
		levels = append(levels, gridLevel{side: side, price: price})
	}

	for i := 0; i < params.NumBuyOrders; i++ {
		d := floorTick(dMin.Add(dStep.Mul(decimal.NewFromInt(int64(i)))))
		// 买单越过上边界说明双方档位重叠，丢弃。
		if d.GreaterThanOrEqual(dMax) {
			continue
		}
		add(order.SideBuy, d)
	}
	for i := 0; i < params.NumSellOrders; i++ {
		d := floorTick(dMax.Sub(dStep.Mul(decimal.NewFromInt(int64(i)))))
		if d.LessThanOrEqual(dMin) {
			continue
		}
		add(order.SideSell, d)
	}

	return levels
}
