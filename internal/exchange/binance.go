package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"orderbot/internal/config"
	"orderbot/internal/order"
	"orderbot/internal/rules"
)

// Binance 基于 ccxt 实现 USDⓈ-M 合约端口，同时充当交易规则来源。
type Binance struct {
	cfg      config.ExchangeConfig
	logger   *zap.Logger
	exchange *ccxt.Binanceusdm
	tif      string

	marketsMu     sync.Mutex
	marketsLoaded bool
}

var _ Client = (*Binance)(nil)
var _ rules.Source = (*Binance)(nil)

// NewBinance 构造 Binance USDⓈ-M 客户端。
func NewBinance(cfg config.ExchangeConfig, timeInForce string, logger *zap.Logger) (*Binance, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeInForce == "" {
		timeInForce = "GTC"
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		},
	}

	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	ex := ccxt.NewBinanceusdm(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &Binance{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
		tif:      timeInForce,
	}, nil
}

// PlaceOrder 将已验证的委托提交到交易所。不做自动重试，
// 市价单重复提交存在重复成交风险。
func (c *Binance) PlaceOrder(ctx context.Context, v order.Validated) (PlacedOrder, error) {
	if err := ctx.Err(); err != nil {
		return PlacedOrder{}, err
	}
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return PlacedOrder{}, err
	}

	side := strings.ToLower(string(v.Side))

	var (
		placed ccxt.Order
		err    error
	)

	switch v.Type {
	case order.TypeMarket:
		placed, err = c.exchange.CreateMarketOrder(v.Symbol, side, v.Quantity)
	case order.TypeLimit:
		placed, err = c.exchange.CreateLimitOrder(v.Symbol, side, v.Quantity, v.Price,
			ccxt.WithCreateLimitOrderParams(map[string]interface{}{
				"timeInForce": c.tif,
			}),
		)
	case order.TypeStopMarket, order.TypeTakeProfitMarket:
		placed, err = c.exchange.CreateOrder(v.Symbol, string(v.Type), side, v.Quantity,
			ccxt.WithCreateOrderParams(map[string]interface{}{
				"stopPrice": v.StopPrice,
			}),
		)
	case order.TypeStopLimit:
		// Binance 合约的止损限价单类型为 STOP。
		placed, err = c.exchange.CreateOrder(v.Symbol, "STOP", side, v.Quantity,
			ccxt.WithCreateOrderPrice(v.Price),
			ccxt.WithCreateOrderParams(map[string]interface{}{
				"stopPrice":   v.StopPrice,
				"timeInForce": c.tif,
			}),
		)
	default:
		return PlacedOrder{}, &ApiError{
			Code:    "UnsupportedType",
			Message: fmt.Sprintf("不支持的委托类型 %s", v.Type),
		}
	}
	if err != nil {
		return PlacedOrder{}, normalizeError(err)
	}

	out := PlacedOrder{
		ExchangeOrderID: derefString(placed.Id),
		Status:          derefString(placed.Status),
	}

	c.logger.Info("交易所已受理委托",
		zap.String("symbol", v.Symbol),
		zap.String("type", string(v.Type)),
		zap.String("side", string(v.Side)),
		zap.Float64("quantity", v.Quantity),
		zap.String("exchange_order_id", out.ExchangeOrderID),
		zap.String("status", out.Status),
	)

	return out, nil
}

// CancelOrder 撤销指定委托。
func (c *Binance) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := c.exchange.CancelOrder(exchangeOrderID, ccxt.WithCancelOrderSymbol(symbol)); err != nil {
		return normalizeError(err)
	}
	return nil
}

// GetCurrentPrice 返回交易对的最新成交价，缺失时回退到买卖盘中间价。
func (c *Binance) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return 0, err
	}

	ticker, err := c.exchange.FetchTicker(symbol)
	if err != nil {
		return 0, normalizeError(err)
	}

	if last := derefFloat(ticker.Last); last > 0 {
		return last, nil
	}
	if cl := derefFloat(ticker.Close); cl > 0 {
		return cl, nil
	}

	bid := derefFloat(ticker.Bid)
	ask := derefFloat(ticker.Ask)
	if bid > 0 && ask > 0 {
		return (bid + ask) / 2, nil
	}

	return 0, &ApiError{
		Code:    "NoPrice",
		Message: fmt.Sprintf("无法获取 %s 的有效价格", symbol),
	}
}

// GetBalance 返回指定资产的可用余额。
func (c *Binance) GetBalance(ctx context.Context, asset string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	balances, err := c.exchange.FetchBalance()
	if err != nil {
		return 0, normalizeError(err)
	}

	code := strings.ToUpper(strings.TrimSpace(asset))
	if balances.Free != nil {
		if free, ok := balances.Free[code]; ok && free != nil {
			return *free, nil
		}
	}
	if balances.Total != nil {
		if total, ok := balances.Total[code]; ok && total != nil {
			return *total, nil
		}
	}

	return 0, nil
}

// FetchTradingRules 从市场元数据提取逐交易对的交易约束。
// 非交易状态的市场直接跳过，对应交易对在规则表中缺失。
func (c *Binance) FetchTradingRules(ctx context.Context) (map[string]rules.TradingRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	markets, err := c.exchange.LoadMarkets()
	if err != nil {
		return nil, normalizeError(err)
	}

	c.marketsMu.Lock()
	c.marketsLoaded = true
	c.marketsMu.Unlock()

	out := make(map[string]rules.TradingRule, len(markets))
	for symbol, raw := range markets {
		marketMap, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if active, ok := marketMap["active"].(bool); ok && !active {
			continue
		}

		rule := rules.TradingRule{Symbol: symbol}

		if precision, ok := marketMap["precision"].(map[string]interface{}); ok {
			rule.StepSize = parseNumeric(precision["amount"])
			rule.TickSize = parseNumeric(precision["price"])
		}
		if limits, ok := marketMap["limits"].(map[string]interface{}); ok {
			if amount, ok := limits["amount"].(map[string]interface{}); ok {
				rule.MinQty = parseNumeric(amount["min"])
				rule.MaxQty = parseNumeric(amount["max"])
			}
			if price, ok := limits["price"].(map[string]interface{}); ok {
				rule.MinPrice = parseNumeric(price["min"])
				rule.MaxPrice = parseNumeric(price["max"])
			}
			if cost, ok := limits["cost"].(map[string]interface{}); ok {
				rule.MinNotional = parseNumeric(cost["min"])
			}
		}

		out[symbol] = rule
	}

	c.logger.Info("已加载交易规则元数据", zap.Int("markets", len(out)))
	return out, nil
}

func (c *Binance) ensureMarketsLoaded(ctx context.Context) error {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := c.exchange.LoadMarkets(); err != nil {
		return normalizeError(err)
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载")
	return nil
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func parseNumeric(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		var out float64
		if _, err := fmt.Sscanf(strings.TrimSpace(val), "%g", &out); err != nil {
			return 0
		}
		return out
	default:
		return 0
	}
}
