package order

import "time"

// Side 表示下单方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Type 表示委托类型。
type Type string

const (
	TypeMarket           Type = "MARKET"
	TypeLimit            Type = "LIMIT"
	TypeStopMarket       Type = "STOP_MARKET"
	TypeTakeProfitMarket Type = "TAKE_PROFIT_MARKET"
	TypeStopLimit        Type = "STOP_LIMIT"
)

// Request 为一次委托请求的值对象，验证通过后不再修改。
// Price 与 StopPrice 为 0 表示未提供。
type Request struct {
	Symbol    string
	Side      Side
	Type      Type
	Quantity  float64
	Price     float64
	StopPrice float64
}

// RequiresPrice 判断该类型是否需要限价。
func (t Type) RequiresPrice() bool {
	return t == TypeLimit || t == TypeStopLimit
}

// RequiresStopPrice 判断该类型是否需要触发价。
func (t Type) RequiresStopPrice() bool {
	return t == TypeStopMarket || t == TypeTakeProfitMarket || t == TypeStopLimit
}

// Validated 为通过规则校验的委托，数量与价格均已向下取整到合法步进。
// 只有 Validated 允许提交到交易所端口。
type Validated struct {
	Symbol    string
	Side      Side
	Type      Type
	Quantity  float64
	Price     float64
	StopPrice float64
}

// Status 表示单笔子订单的终态。
type Status string

const (
	StatusPlaced    Status = "PLACED"
	StatusRejected  Status = "REJECTED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// ExecutionRecord 为单笔子订单的执行结果，写入后不可变。
type ExecutionRecord struct {
	RequestID       string
	ExchangeOrderID string
	Status          Status
	ErrorDetail     string
	Timestamp       time.Time
}
