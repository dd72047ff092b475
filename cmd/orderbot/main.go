package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"orderbot/internal/app"
	"orderbot/internal/config"
	"orderbot/internal/engine"
	"orderbot/internal/log"
	"orderbot/internal/order"
)

func main() {
	var (
		configPath string
		strategy   string
		symbol     string
		side       string
		qty        float64
		price      float64
		stopPrice  float64
		takeProfit float64
		intervals  int
		interval   time.Duration
		minPrice   float64
		maxPrice   float64
		buys       int
		sells      int
		showEvents int
	)

	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.StringVar(&strategy, "strategy", "", "策略类型: market|limit|stop-limit|oco|twap|grid|events")
	flag.StringVar(&symbol, "symbol", "", "交易对，例如 BTC/USDT:USDT")
	flag.StringVar(&side, "side", "", "方向: BUY|SELL")
	flag.Float64Var(&qty, "qty", 0, "数量（TWAP 为总量，网格为单档数量）")
	flag.Float64Var(&price, "price", 0, "限价")
	flag.Float64Var(&stopPrice, "stop-price", 0, "触发价（OCO 为止损触发价）")
	flag.Float64Var(&takeProfit, "take-profit", 0, "OCO 止盈触发价")
	flag.IntVar(&intervals, "intervals", 0, "TWAP 区间数")
	flag.DurationVar(&interval, "interval", 0, "TWAP 区间间隔，例如 30s")
	flag.Float64Var(&minPrice, "min-price", 0, "网格下边界")
	flag.Float64Var(&maxPrice, "max-price", 0, "网格上边界")
	flag.IntVar(&buys, "buys", 0, "网格买单档数")
	flag.IntVar(&sells, "sells", 0, "网格卖单档数")
	flag.IntVar(&showEvents, "limit", 20, "events 模式下展示的事件条数")
	flag.Parse()

	// .env 缺失不是错误，密钥同样可以直接放进环境变量。
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orderApp, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("初始化失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := orderApp.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	if err := run(ctx, orderApp, strategy, params{
		symbol:     symbol,
		side:       order.Side(side),
		qty:        qty,
		price:      price,
		stopPrice:  stopPrice,
		takeProfit: takeProfit,
		intervals:  intervals,
		interval:   interval,
		minPrice:   minPrice,
		maxPrice:   maxPrice,
		buys:       buys,
		sells:      sells,
		showEvents: showEvents,
	}); err != nil {
		logger.Error("执行失败", zap.Error(err))
		os.Exit(1)
	}
}

type params struct {
	symbol     string
	side       order.Side
	qty        float64
	price      float64
	stopPrice  float64
	takeProfit float64
	intervals  int
	interval   time.Duration
	minPrice   float64
	maxPrice   float64
	buys       int
	sells      int
	showEvents int
}

func run(ctx context.Context, orderApp *app.App, strategy string, p params) error {
	var (
		result engine.Result
		err    error
	)

	switch strategy {
	case "market":
		result, err = orderApp.Market(ctx, engine.MarketParams{
			Symbol: p.symbol, Side: p.side, Quantity: p.qty,
		})
	case "limit":
		result, err = orderApp.Limit(ctx, engine.LimitParams{
			Symbol: p.symbol, Side: p.side, Quantity: p.qty, Price: p.price,
		})
	case "stop-limit":
		result, err = orderApp.StopLimit(ctx, engine.StopLimitParams{
			Symbol: p.symbol, Side: p.side, Quantity: p.qty,
			StopPrice: p.stopPrice, Price: p.price,
		})
	case "oco":
		result, err = orderApp.OCO(ctx, engine.OCOParams{
			Symbol: p.symbol, Side: p.side, Quantity: p.qty,
			StopPrice: p.stopPrice, TakeProfitPrice: p.takeProfit,
		})
	case "twap":
		result, err = orderApp.TWAP(ctx, engine.TWAPParams{
			Symbol: p.symbol, Side: p.side, TotalQuantity: p.qty,
			NumIntervals: p.intervals, Interval: p.interval,
		})
	case "grid":
		result, err = orderApp.Grid(ctx, engine.GridParams{
			Symbol: p.symbol, MinPrice: p.minPrice, MaxPrice: p.maxPrice,
			NumBuyOrders: p.buys, NumSellOrders: p.sells, QuantityPerOrder: p.qty,
		})
	case "events":
		return printEvents(ctx, orderApp, p.showEvents)
	case "":
		return fmt.Errorf("必须通过 -strategy 指定策略类型")
	default:
		return fmt.Errorf("不支持的策略类型 %q", strategy)
	}
	if err != nil {
		return err
	}

	printResult(result)

	if result.Status == engine.StatusFailed {
		return fmt.Errorf("策略 %s 全部子订单失败", result.StrategyID)
	}
	return nil
}

func printResult(result engine.Result) {
	fmt.Printf("策略 %s 结束: status=%s 子订单=%d 耗时=%s\n",
		result.StrategyID, result.Status, len(result.Records),
		result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	for _, rec := range result.Records {
		line := fmt.Sprintf("  %s  %s", rec.RequestID, rec.Status)
		if rec.ExchangeOrderID != "" {
			line += "  id=" + rec.ExchangeOrderID
		}
		if rec.ErrorDetail != "" {
			line += "  " + rec.ErrorDetail
		}
		fmt.Println(line)
	}
}

func printEvents(ctx context.Context, orderApp *app.App, limit int) error {
	evts, err := orderApp.RecentEvents(ctx, limit)
	if err != nil {
		return err
	}
	for _, e := range evts {
		fmt.Printf("%s  %-14s  %s  child=%d  %s\n",
			e.Timestamp.Format(time.RFC3339), e.Kind, e.StrategyID, e.ChildIndex, e.Detail)
	}
	return nil
}
