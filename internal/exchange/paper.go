package exchange

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"orderbot/internal/order"
)

// Paper 为内存中的模拟交易所端口，用于模拟运行与测试。
// 所有委托立即受理，价格与余额由调用方预置。
type Paper struct {
	logger *zap.Logger

	mu       sync.Mutex
	nextID   int64
	prices   map[string]float64
	balances map[string]float64
	placed   []order.Validated
	open     map[string]order.Validated
}

var _ Client = (*Paper)(nil)

// NewPaper 创建模拟端口。
func NewPaper(logger *zap.Logger) *Paper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paper{
		logger:   logger,
		prices:   make(map[string]float64),
		balances: make(map[string]float64),
		open:     make(map[string]order.Validated),
	}
}

// SetPrice 预置交易对市价。
func (p *Paper) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	p.prices[symbol] = price
	p.mu.Unlock()
}

// SetBalance 预置资产余额。
func (p *Paper) SetBalance(asset string, amount float64) {
	p.mu.Lock()
	p.balances[asset] = amount
	p.mu.Unlock()
}

// Placed 返回按提交顺序记录的全部委托。
func (p *Paper) Placed() []order.Validated {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]order.Validated, len(p.placed))
	copy(out, p.placed)
	return out
}

// PlaceOrder 受理委托并返回递增的模拟订单号。
func (p *Paper) PlaceOrder(ctx context.Context, v order.Validated) (PlacedOrder, error) {
	if err := ctx.Err(); err != nil {
		return PlacedOrder{}, err
	}

	p.mu.Lock()
	p.nextID++
	id := fmt.Sprintf("paper-%d", p.nextID)
	p.placed = append(p.placed, v)
	p.open[id] = v
	p.mu.Unlock()

	p.logger.Debug("模拟端口受理委托",
		zap.String("symbol", v.Symbol),
		zap.String("type", string(v.Type)),
		zap.String("id", id),
	)

	return PlacedOrder{ExchangeOrderID: id, Status: "NEW"}, nil
}

// CancelOrder 撤销模拟委托。
func (p *Paper) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.open[exchangeOrderID]; !ok {
		return &ApiError{
			Code:    "OrderNotFound",
			Message: fmt.Sprintf("未找到委托 %s", exchangeOrderID),
		}
	}
	delete(p.open, exchangeOrderID)
	return nil
}

// GetCurrentPrice 返回预置市价。
func (p *Paper) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	price, ok := p.prices[symbol]
	p.mu.Unlock()

	if !ok || price <= 0 {
		return 0, &ApiError{
			Code:    "NoPrice",
			Message: fmt.Sprintf("未预置 %s 的市价", symbol),
		}
	}
	return price, nil
}

// GetBalance 返回预置余额。
func (p *Paper) GetBalance(ctx context.Context, asset string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[asset], nil
}
