package engine

import (
	"time"

	"orderbot/internal/order"
)

// Kind 枚举支持的策略类型。
type Kind string

const (
	KindMarket    Kind = "MARKET"
	KindLimit     Kind = "LIMIT"
	KindStopLimit Kind = "STOP_LIMIT"
	KindOCO       Kind = "OCO"
	KindTWAP      Kind = "TWAP"
	KindGrid      Kind = "GRID"
)

// Status 表示策略计划的状态机取值。
// PENDING → VALIDATING → EXECUTING → {COMPLETED, PARTIALLY_FAILED, FAILED}。
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusValidating      Status = "VALIDATING"
	StatusExecuting       Status = "EXECUTING"
	StatusCompleted       Status = "COMPLETED"
	StatusPartiallyFailed Status = "PARTIALLY_FAILED"
	StatusFailed          Status = "FAILED"
)

// Result 为一次策略执行的终态汇总，每个子订单对应一条执行记录。
type Result struct {
	StrategyID string
	Kind       Kind
	Status     Status
	Records    []order.ExecutionRecord
	ChildErr   error
	StartedAt  time.Time
	FinishedAt time.Time
}

// MarketParams 描述市价策略。
type MarketParams struct {
	Symbol   string
	Side     order.Side
	Quantity float64
}

// LimitParams 描述限价策略。
type LimitParams struct {
	Symbol   string
	Side     order.Side
	Quantity float64
	Price    float64
}

// StopLimitParams 描述止损限价策略，触发价与限价可任意组合，
// 各自独立按 tickSize 取整。
type StopLimitParams struct {
	Symbol    string
	Side      order.Side
	Quantity  float64
	StopPrice float64
	Price     float64
}

// OCOParams 描述止损/止盈双腿策略，Side 为平仓方向。
type OCOParams struct {
	Symbol          string
	Side            order.Side
	Quantity        float64
	StopPrice       float64
	TakeProfitPrice float64
}

// TWAPParams 描述时间加权拆单策略。
type TWAPParams struct {
	Symbol        string
	Side          order.Side
	TotalQuantity float64
	NumIntervals  int
	Interval      time.Duration
}

// GridParams 描述网格挂单策略。
type GridParams struct {
	Symbol           string
	MinPrice         float64
	MaxPrice         float64
	NumBuyOrders     int
	NumSellOrders    int
	QuantityPerOrder float64
}

// deriveStatus 由子订单记录推导计划终态：
// 全部 PLACED 为 COMPLETED，全军覆没为 FAILED，其余为 PARTIALLY_FAILED。
func deriveStatus(records []order.ExecutionRecord) Status {
	if len(records) == 0 {
		return StatusFailed
	}

	placed := 0
	for _, rec := range records {
		if rec.Status == order.StatusPlaced {
			placed++
		}
	}

	switch placed {
	case len(records):
		return StatusCompleted
	case 0:
		return StatusFailed
	default:
		return StatusPartiallyFailed
	}
}
