package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"orderbot/internal/events"
	"orderbot/internal/exchange"
	"orderbot/internal/order"
	"orderbot/internal/rules"
)

// fakeClient implements exchange.Client with scripted prices and an
// optional per-place hook for injecting failures.
type fakeClient struct {
	mu        sync.Mutex
	prices    map[string]float64
	priceErr  error
	placeHook func(v order.Validated) error
	placed    []order.Validated
	cancelled []string
	nextID    int
}

var _ exchange.Client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{prices: make(map[string]float64)}
}

func (f *fakeClient) PlaceOrder(_ context.Context, v order.Validated) (exchange.PlacedOrder, error) {
	f.mu.Lock()
	hook := f.placeHook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(v); err != nil {
			return exchange.PlacedOrder{}, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.placed = append(f.placed, v)
	return exchange.PlacedOrder{
		ExchangeOrderID: fmt.Sprintf("fake-%d", f.nextID),
		Status:          "NEW",
	}, nil
}

func (f *fakeClient) CancelOrder(_ context.Context, _, exchangeOrderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, exchangeOrderID)
	return nil
}

func (f *fakeClient) GetCurrentPrice(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.priceErr != nil {
		return 0, f.priceErr
	}
	return f.prices[symbol], nil
}

func (f *fakeClient) GetBalance(_ context.Context, _ string) (float64, error) {
	return 0, nil
}

func (f *fakeClient) placedOrders() []order.Validated {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]order.Validated, len(f.placed))
	copy(out, f.placed)
	return out
}

// memorySink records engine events for assertions.
type memorySink struct {
	mu     sync.Mutex
	events []events.Event
}

var _ events.Sink = (*memorySink)(nil)

func (s *memorySink) Record(_ context.Context, event events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *memorySink) kinds() []events.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Kind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}

func (s *memorySink) count(kind events.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

const testSymbol = "BTC/USDT:USDT"

func testRule() rules.TradingRule {
	return rules.TradingRule{
		Symbol:      testSymbol,
		TickSize:    0.1,
		StepSize:    0.001,
		MinQty:      0.001,
		MaxQty:      500,
		MinPrice:    556.8,
		MaxPrice:    4529764,
		MinNotional: 5,
	}
}

func newTestEngine(t *testing.T, opts Options) (*Engine, *fakeClient, *memorySink) {
	t.Helper()

	store := rules.NewStore(nil, nil)
	if err := store.Put(testRule()); err != nil {
		t.Fatalf("seeding rule failed: %v", err)
	}

	client := newFakeClient()
	client.prices[testSymbol] = 65000

	sink := &memorySink{}
	return New(store, client, sink, opts, nil), client, sink
}

func TestMarketStrategyCompletes(t *testing.T) {
	eng, client, sink := newTestEngine(t, Options{})

	result, err := eng.Market(context.Background(), MarketParams{
		Symbol:   testSymbol,
		Side:     order.SideBuy,
		Quantity: 0.0025,
	})
	if err != nil {
		t.Fatalf("Market returned error: %v", err)
	}

	if result.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", result.Status)
	}
	if len(result.Records) != 1 || result.Records[0].Status != order.StatusPlaced {
		t.Fatalf("expected one PLACED record, got %+v", result.Records)
	}
	if result.Records[0].ExchangeOrderID == "" {
		t.Error("expected exchange order id on placed record")
	}

	placed := client.placedOrders()
	if len(placed) != 1 || placed[0].Quantity != 0.002 {
		t.Fatalf("expected floored quantity 0.002 dispatched, got %+v", placed)
	}

	want := []events.Kind{
		events.KindValidationPassed,
		events.KindDispatchSent,
		events.KindDispatchSucceeded,
		events.KindStrategyCompleted,
	}
	got := sink.kinds()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestMarketUnknownSymbolFailsBeforeDispatch(t *testing.T) {
	eng, client, sink := newTestEngine(t, Options{})

	result, err := eng.Market(context.Background(), MarketParams{
		Symbol:   "DOGE/USDT:USDT",
		Side:     order.SideBuy,
		Quantity: 1,
	})
	if err == nil {
		t.Fatal("expected error for unknown symbol")
	}
	ve, ok := order.AsValidation(err)
	if !ok || ve.Code != order.CodeUnknownSymbol {
		t.Fatalf("expected UnknownSymbol validation error, got %v", err)
	}
	if result.Status != StatusFailed {
		t.Errorf("expected FAILED, got %s", result.Status)
	}
	if len(client.placedOrders()) != 0 {
		t.Error("nothing must be dispatched for unknown symbol")
	}
	if sink.count(events.KindValidationFailed) != 1 {
		t.Error("expected one VALIDATION_FAILED event")
	}
}

func TestLimitRejectionProducesNoDispatch(t *testing.T) {
	eng, client, _ := newTestEngine(t, Options{})

	result, err := eng.Limit(context.Background(), LimitParams{
		Symbol:   testSymbol,
		Side:     order.SideBuy,
		Quantity: 0.01,
		Price:    100, // below minPrice
	})
	if err != nil {
		t.Fatalf("Limit returned error: %v", err)
	}

	if result.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", result.Status)
	}
	if len(result.Records) != 1 || result.Records[0].Status != order.StatusRejected {
		t.Fatalf("expected one REJECTED record, got %+v", result.Records)
	}
	if result.ChildErr == nil {
		t.Error("expected rejection captured in ChildErr")
	}
	if len(client.placedOrders()) != 0 {
		t.Error("rejected order must not reach the exchange")
	}
}

func TestStopLimitDispatchesRoundedPrices(t *testing.T) {
	eng, client, _ := newTestEngine(t, Options{})

	result, err := eng.StopLimit(context.Background(), StopLimitParams{
		Symbol:    testSymbol,
		Side:      order.SideSell,
		Quantity:  0.01,
		StopPrice: 63999.95,
		Price:     63999.97,
	})
	if err != nil {
		t.Fatalf("StopLimit returned error: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", result.Status)
	}

	placed := client.placedOrders()
	if len(placed) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(placed))
	}
	if placed[0].Price != 63999.9 || placed[0].StopPrice != 63999.9 {
		t.Errorf("expected tick-floored prices, got price=%v stop=%v",
			placed[0].Price, placed[0].StopPrice)
	}
}

func TestDispatchFailureRecordedWithoutRetry(t *testing.T) {
	eng, client, sink := newTestEngine(t, Options{})

	calls := 0
	client.placeHook = func(order.Validated) error {
		calls++
		return &exchange.ApiError{Code: "NetworkError", Message: "timeout", Retryable: true}
	}

	result, err := eng.Market(context.Background(), MarketParams{
		Symbol:   testSymbol,
		Side:     order.SideSell,
		Quantity: 0.01,
	})
	if err != nil {
		t.Fatalf("Market returned error: %v", err)
	}

	if result.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", result.Status)
	}
	if calls != 1 {
		t.Fatalf("placement must not be retried, got %d attempts", calls)
	}
	if sink.count(events.KindDispatchFailed) != 1 {
		t.Error("expected one DISPATCH_FAILED event")
	}
}

func TestOCOBothLegsPlaced(t *testing.T) {
	eng, client, _ := newTestEngine(t, Options{})

	result, err := eng.OCO(context.Background(), OCOParams{
		Symbol:          testSymbol,
		Side:            order.SideSell,
		Quantity:        0.01,
		StopPrice:       60000,
		TakeProfitPrice: 70000,
	})
	if err != nil {
		t.Fatalf("OCO returned error: %v", err)
	}

	if result.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", result.Status)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected two records, got %d", len(result.Records))
	}

	placed := client.placedOrders()
	if len(placed) != 2 {
		t.Fatalf("expected two dispatches, got %d", len(placed))
	}
	if placed[0].Type != order.TypeStopMarket || placed[1].Type != order.TypeTakeProfitMarket {
		t.Errorf("unexpected leg types: %s, %s", placed[0].Type, placed[1].Type)
	}
}

func TestOCORejectedLegBlocksBoth(t *testing.T) {
	eng, client, _ := newTestEngine(t, Options{})

	// Stop leg on the wrong side of the market price.
	result, err := eng.OCO(context.Background(), OCOParams{
		Symbol:          testSymbol,
		Side:            order.SideSell,
		Quantity:        0.01,
		StopPrice:       70000,
		TakeProfitPrice: 72000,
	})
	if err != nil {
		t.Fatalf("OCO returned error: %v", err)
	}

	if result.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", result.Status)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected two records, got %d", len(result.Records))
	}
	if result.Records[0].Status != order.StatusRejected {
		t.Errorf("expected stop leg REJECTED, got %s", result.Records[0].Status)
	}
	if result.Records[1].Status != order.StatusCancelled {
		t.Errorf("expected valid leg CANCELLED, got %s", result.Records[1].Status)
	}
	if len(client.placedOrders()) != 0 {
		t.Error("no leg may be dispatched when validation fails")
	}
}

func TestOCODispatchFailureIsPartial(t *testing.T) {
	eng, client, _ := newTestEngine(t, Options{})

	client.placeHook = func(v order.Validated) error {
		if v.Type == order.TypeStopMarket {
			return &exchange.ApiError{Code: "ExchangeError", Message: "rejected upstream"}
		}
		return nil
	}

	result, err := eng.OCO(context.Background(), OCOParams{
		Symbol:          testSymbol,
		Side:            order.SideSell,
		Quantity:        0.01,
		StopPrice:       60000,
		TakeProfitPrice: 70000,
	})
	if err != nil {
		t.Fatalf("OCO returned error: %v", err)
	}

	if result.Status != StatusPartiallyFailed {
		t.Fatalf("expected PARTIALLY_FAILED, got %s", result.Status)
	}
	if result.Records[0].Status != order.StatusFailed {
		t.Errorf("expected stop leg FAILED, got %s", result.Records[0].Status)
	}
	if result.Records[1].Status != order.StatusPlaced {
		t.Errorf("expected take profit leg PLACED, got %s", result.Records[1].Status)
	}
}

func TestMarketPriceFetchFailureAborts(t *testing.T) {
	eng, client, _ := newTestEngine(t, Options{})
	client.priceErr = errors.New("feed down")

	result, err := eng.Market(context.Background(), MarketParams{
		Symbol:   testSymbol,
		Side:     order.SideBuy,
		Quantity: 0.01,
	})
	if err == nil {
		t.Fatal("expected error when reference price is unavailable")
	}
	if result.Status != StatusFailed {
		t.Errorf("expected FAILED, got %s", result.Status)
	}
	if len(client.placedOrders()) != 0 {
		t.Error("nothing must be dispatched without a reference price")
	}
}

func TestDeriveStatus(t *testing.T) {
	rec := func(status order.Status) order.ExecutionRecord {
		return order.ExecutionRecord{Status: status}
	}

	cases := []struct {
		name    string
		records []order.ExecutionRecord
		want    Status
	}{
		{"empty", nil, StatusFailed},
		{"all placed", []order.ExecutionRecord{rec(order.StatusPlaced), rec(order.StatusPlaced)}, StatusCompleted},
		{"none placed", []order.ExecutionRecord{rec(order.StatusRejected), rec(order.StatusFailed)}, StatusFailed},
		{"mixed", []order.ExecutionRecord{rec(order.StatusPlaced), rec(order.StatusCancelled)}, StatusPartiallyFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := deriveStatus(tc.records); got != tc.want {
				t.Errorf("deriveStatus = %s, want %s", got, tc.want)
			}
		})
	}
}
