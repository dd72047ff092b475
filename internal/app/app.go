package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"orderbot/internal/config"
	"orderbot/internal/engine"
	"orderbot/internal/events"
	"orderbot/internal/exchange"
	"orderbot/internal/rules"
	"orderbot/internal/store"
)

// App 负责组装全部组件：配置、日志、事件日志库、交易所端口、
// 规则存储与策略引擎。simulation 模式下端口换成内存模拟盘，
// 规则来自内置静态表，不触网。
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *store.Store
	journal *events.Journal
	client  exchange.Client
	rules   *rules.Store
	engine  *engine.Engine
}

// New 按配置构建应用。返回前会完成一次交易规则加载。
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: 配置不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	journal, err := events.NewJournal(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	var (
		client exchange.Client
		source rules.Source
	)
	if cfg.Execution.Simulation {
		paper := exchange.NewPaper(logger)
		seedPaper(paper)
		client = paper
		source = staticSource{}
		logger.Info("以模拟盘模式运行，不连接真实交易所")
	} else {
		binance, err := exchange.NewBinance(cfg.Exchange, cfg.Execution.TimeInForce, logger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		client = exchange.WithRetry(binance, cfg.Exchange.Retry, logger)
		source = binance
	}

	ruleStore := rules.NewStore(source, logger)
	if err := ruleStore.Reload(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	sink := events.Fanout{
		events.NewZapSink(logger),
		journal,
	}

	eng := engine.New(ruleStore, client, sink,
		engine.Options{MaxInFlight: cfg.Execution.MaxInFlight}, logger)

	return &App{
		cfg:     cfg,
		logger:  logger,
		store:   db,
		journal: journal,
		client:  client,
		rules:   ruleStore,
		engine:  eng,
	}, nil
}

// Close 释放持有的资源。
func (a *App) Close() error {
	return a.store.Close()
}

// Market 执行市价策略。
func (a *App) Market(ctx context.Context, params engine.MarketParams) (engine.Result, error) {
	return a.engine.Market(ctx, params)
}

// Limit 执行限价策略。
func (a *App) Limit(ctx context.Context, params engine.LimitParams) (engine.Result, error) {
	return a.engine.Limit(ctx, params)
}

// StopLimit 执行止损限价策略。
func (a *App) StopLimit(ctx context.Context, params engine.StopLimitParams) (engine.Result, error) {
	return a.engine.StopLimit(ctx, params)
}

// OCO 执行止损/止盈双腿策略。
func (a *App) OCO(ctx context.Context, params engine.OCOParams) (engine.Result, error) {
	return a.engine.OCO(ctx, params)
}

// TWAP 执行时间加权拆单策略。
func (a *App) TWAP(ctx context.Context, params engine.TWAPParams) (engine.Result, error) {
	return a.engine.TWAP(ctx, params)
}

// Grid 执行网格挂单策略。
func (a *App) Grid(ctx context.Context, params engine.GridParams) (engine.Result, error) {
	return a.engine.Grid(ctx, params)
}

// CancelOrder 撤销指定交易所委托。
func (a *App) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	return a.client.CancelOrder(ctx, symbol, exchangeOrderID)
}

// ReloadRules 整体刷新交易规则快照。
func (a *App) ReloadRules(ctx context.Context) error {
	return a.rules.Reload(ctx)
}

// Symbols 返回当前可交易的交易对。
func (a *App) Symbols() []string {
	return a.rules.Symbols()
}

// RecentEvents 返回最近的引擎事件。
func (a *App) RecentEvents(ctx context.Context, limit int) ([]events.Event, error) {
	return a.journal.Recent(ctx, limit)
}

// Balance 查询资产余额。
func (a *App) Balance(ctx context.Context, asset string) (float64, error) {
	return a.client.GetBalance(ctx, asset)
}

// staticSource 为模拟盘提供内置交易规则，字段取值贴近币安合约主流交易对。
type staticSource struct{}

func (staticSource) FetchTradingRules(context.Context) (map[string]rules.TradingRule, error) {
	return map[string]rules.TradingRule{
		"BTC/USDT:USDT": {
			Symbol:      "BTC/USDT:USDT",
			TickSize:    0.1,
			StepSize:    0.001,
			MinQty:      0.001,
			MaxQty:      500,
			MinPrice:    556.8,
			MaxPrice:    4529764,
			MinNotional: 100,
		},
		"ETH/USDT:USDT": {
			Symbol:      "ETH/USDT:USDT",
			TickSize:    0.01,
			StepSize:    0.001,
			MinQty:      0.001,
			MaxQty:      10000,
			MinPrice:    39.86,
			MaxPrice:    306177,
			MinNotional: 20,
		},
		"SOL/USDT:USDT": {
			Symbol:      "SOL/USDT:USDT",
			TickSize:    0.001,
			StepSize:    1,
			MinQty:      1,
			MaxQty:      1000000,
			MinPrice:    0.42,
			MaxPrice:    6903,
			MinNotional: 5,
		},
	}, nil
}

func seedPaper(paper *exchange.Paper) {
	paper.SetPrice("BTC/USDT:USDT", 65000)
	paper.SetPrice("ETH/USDT:USDT", 3500)
	paper.SetPrice("SOL/USDT:USDT", 150)
	paper.SetBalance("USDT", 100000)
}
