package order

import (
	"orderbot/internal/rules"
)

// Validate 依次校验委托请求并返回可提交的 Validated。
// refPrice 为当前市价估计，用于触发价方向及市价单名义价值检查；
// 调用方保证规则快照在整个校验过程中不变，校验本身无副作用。
//
// 检查顺序与短路行为：
//  1. side 合法
//  2. 数量为正
//  3. 数量位于 [minQty, maxQty]
//  4. 数量向下取整到 stepSize，取整后为 0 则拒绝
//  5. 限价类委托校验价格区间并向下取整到 tickSize
//  6. 触发类委托校验触发价为正、取整并位于参考价正确一侧
//  7. 名义价值不低于 minNotional
func Validate(req Request, rule rules.TradingRule, refPrice float64) (Validated, error) {
	if req.Side != SideBuy && req.Side != SideSell {
		return Validated{}, validationErr(CodeInvalidSide, req.Symbol,
			"side 必须为 BUY 或 SELL，收到 %q", string(req.Side))
	}

	// NaN 会让所有区间比较同时为假，必须在进入任何数值运算前挡掉。
	if !IsFinite(req.Quantity) {
		return Validated{}, validationErr(CodeInvalidQuantity, req.Symbol,
			"数量必须为有限数值，收到 %v", req.Quantity)
	}
	if req.Quantity <= 0 {
		return Validated{}, validationErr(CodeInvalidQuantity, req.Symbol,
			"数量必须为正，收到 %v", req.Quantity)
	}

	if req.Quantity < rule.MinQty {
		return Validated{}, validationErr(CodeQuantityOutOfRange, req.Symbol,
			"数量 %v 低于下限 %v", req.Quantity, rule.MinQty)
	}
	if rule.MaxQty > 0 && req.Quantity > rule.MaxQty {
		return Validated{}, validationErr(CodeQuantityOutOfRange, req.Symbol,
			"数量 %v 超过上限 %v", req.Quantity, rule.MaxQty)
	}

	// 数量只向下取整，绝不向上，避免超量下单。
	qty := FloorToStep(req.Quantity, rule.StepSize)
	if qty <= 0 {
		return Validated{}, validationErr(CodeQuantityTooSmallAfterRounding, req.Symbol,
			"数量 %v 按 stepSize %v 取整后为 0", req.Quantity, rule.StepSize)
	}

	out := Validated{
		Symbol:   req.Symbol,
		Side:     req.Side,
		Type:     req.Type,
		Quantity: qty,
	}

	if req.Type.RequiresPrice() {
		if !IsFinite(req.Price) {
			return Validated{}, validationErr(CodeInvalidPrice, req.Symbol,
				"价格必须为有限数值，收到 %v", req.Price)
		}
		if req.Price <= 0 {
			return Validated{}, validationErr(CodeInvalidPrice, req.Symbol,
				"%s 委托必须提供限价", string(req.Type))
		}
		if req.Price < rule.MinPrice {
			return Validated{}, validationErr(CodeInvalidPrice, req.Symbol,
				"价格 %v 低于下限 %v", req.Price, rule.MinPrice)
		}
		if rule.MaxPrice > 0 && req.Price > rule.MaxPrice {
			return Validated{}, validationErr(CodeInvalidPrice, req.Symbol,
				"价格 %v 超过上限 %v", req.Price, rule.MaxPrice)
		}

		price := FloorToStep(req.Price, rule.TickSize)
		if price <= 0 {
			return Validated{}, validationErr(CodeInvalidPrice, req.Symbol,
				"价格 %v 按 tickSize %v 取整后无效", req.Price, rule.TickSize)
		}
		out.Price = price
	}

	if req.Type.RequiresStopPrice() {
		if !IsFinite(req.StopPrice) {
			return Validated{}, validationErr(CodeInvalidStopPriceDirection, req.Symbol,
				"触发价必须为有限数值，收到 %v", req.StopPrice)
		}
		if req.StopPrice <= 0 {
			return Validated{}, validationErr(CodeInvalidStopPriceDirection, req.Symbol,
				"%s 委托必须提供正的触发价", string(req.Type))
		}

		// 触发价与限价各自独立取整。
		stop := FloorToStep(req.StopPrice, rule.TickSize)
		if stop <= 0 {
			return Validated{}, validationErr(CodeInvalidStopPriceDirection, req.Symbol,
				"触发价 %v 按 tickSize %v 取整后无效", req.StopPrice, rule.TickSize)
		}

		if refPrice > 0 {
			if err := checkStopDirection(req.Type, req.Side, stop, refPrice, req.Symbol); err != nil {
				return Validated{}, err
			}
		}
		out.StopPrice = stop
	}

	if rule.MinNotional > 0 {
		notionalPrice := out.Price
		if notionalPrice <= 0 {
			// 市价及触发市价类委托以当前市价估算名义价值。
			notionalPrice = refPrice
		}
		if notionalPrice > 0 {
			if n := Notional(notionalPrice, out.Quantity); n < rule.MinNotional {
				return Validated{}, validationErr(CodeBelowMinNotional, req.Symbol,
					"名义价值 %v 低于下限 %v", n, rule.MinNotional)
			}
		}
	}

	return out, nil
}

// checkStopDirection 校验触发价位于当前市价的正确一侧。
// SELL 平多：止损触发价低于市价，止盈触发价高于市价；BUY 平空反之。
func checkStopDirection(t Type, side Side, stop, refPrice float64, symbol string) error {
	var wantBelow bool
	switch t {
	case TypeStopMarket, TypeStopLimit:
		wantBelow = side == SideSell
	case TypeTakeProfitMarket:
		wantBelow = side == SideBuy
	default:
		return nil
	}

	if wantBelow && stop >= refPrice {
		return validationErr(CodeInvalidStopPriceDirection, symbol,
			"%s %s 触发价 %v 应低于当前市价 %v", string(side), string(t), stop, refPrice)
	}
	if !wantBelow && stop <= refPrice {
		return validationErr(CodeInvalidStopPriceDirection, symbol,
			"%s %s 触发价 %v 应高于当前市价 %v", string(side), string(t), stop, refPrice)
	}
	return nil
}
