package exchange

import (
	"context"

	"orderbot/internal/order"
)

// PlacedOrder 为交易所受理委托后的回执。
type PlacedOrder struct {
	ExchangeOrderID string
	Status          string
}

// Client 为策略引擎依赖的交易所能力端口，具体传输（REST、签名、鉴权）
// 由实现方负责；引擎只感知 ApiError，从不检查传输层细节。
type Client interface {
	PlaceOrder(ctx context.Context, v order.Validated) (PlacedOrder, error)
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	GetBalance(ctx context.Context, asset string) (float64, error)
}
