package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantlab/optionsim/types"
)

// fakeOMS is a minimal OMS stand-in for engine-only tests: it tracks a
// single order's lifecycle without the full oms.OMS machinery.
type fakeOMS struct {
	mu      sync.Mutex
	order   types.OptionOrder
	filled  chan decimal.Decimal
	rejects chan string
}

func newFakeOMS(order types.OptionOrder) *fakeOMS {
	return &fakeOMS{
		order:   order,
		filled:  make(chan decimal.Decimal, 1),
		rejects: make(chan string, 1),
	}
}

func (f *fakeOMS) OnFilled(orderID string, fillPrice decimal.Decimal) {
	f.mu.Lock()
	f.order.Status = types.Filled
	f.order.IsActive = false
	f.mu.Unlock()
	f.filled <- fillPrice
}

func (f *fakeOMS) OnRejected(orderID string, reason string) {
	f.mu.Lock()
	f.order.Status = types.Rejected
	f.order.IsActive = false
	f.mu.Unlock()
	f.rejects <- reason
}

func (f *fakeOMS) GetActiveOrders() []types.OptionOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.order.Status == types.Pending {
		return []types.OptionOrder{f.order}
	}
	return nil
}

func (f *fakeOMS) GetOrderStatus(orderID string) types.OptionOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.order
}

func marketOrder() types.OptionOrder {
	return types.OptionOrder{
		OrderID:    "ORD-00000001",
		Underlying: "AAPL",
		OptionType: "CALL",
		Strike:     decimal.NewFromInt(150),
		Expiry:     "2030-01-18",
		Side:       types.BuyToOpen,
		OrderType:  types.Market,
		LimitPrice: decimal.NewFromInt(5),
		Quantity:   10,
		Status:     types.Pending,
		IsActive:   true,
	}
}

// S3: with fillRate=1 and slippage=0, a MARKET order fills at exactly its
// limit price (the simulation's stand-in mark).
func TestMarketOrderFillsAtLimitPriceWithNoSlippage(t *testing.T) {
	e := New()
	if err := e.SetSimulatedSlippage(0); err != nil {
		t.Fatalf("set slippage: %v", err)
	}
	if err := e.SetSimulatedFillRate(1.0); err != nil {
		t.Fatalf("set fill rate: %v", err)
	}

	order := marketOrder()
	oms := newFakeOMS(order)
	e.SetOMS(oms)
	e.Start()
	defer e.Stop()

	if err := e.Enqueue(order); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case price := <-oms.filled:
		if !price.Equal(order.LimitPrice) {
			t.Errorf("fill price = %s, want %s", price, order.LimitPrice)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fill")
	}

	if e.Processed() != 1 || e.Filled() != 1 || e.Rejected() != 0 {
		t.Errorf("counters = processed:%d filled:%d rejected:%d, want 1/1/0", e.Processed(), e.Filled(), e.Rejected())
	}
}

// S5: a zero fill rate always rejects.
func TestZeroFillRateAlwaysRejects(t *testing.T) {
	e := New()
	if err := e.SetSimulatedFillRate(0); err != nil {
		t.Fatalf("set fill rate: %v", err)
	}

	order := marketOrder()
	oms := newFakeOMS(order)
	e.SetOMS(oms)
	e.Start()
	defer e.Stop()

	if err := e.Enqueue(order); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case reason := <-oms.rejects:
		if reason == "" {
			t.Error("expected a non-empty reject reason")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reject")
	}

	if e.Processed() != 1 || e.Filled() != 0 || e.Rejected() != 1 {
		t.Errorf("counters = processed:%d filled:%d rejected:%d, want 1/0/1", e.Processed(), e.Filled(), e.Rejected())
	}
}

// A LIMIT buy with zero slippage: the candidate price is pinned to the
// limit price itself, so the buy sits exactly on its limit and fills.
func TestLimitBuyFillsAtLimitWithNoSlippage(t *testing.T) {
	e := New()
	if err := e.SetSimulatedSlippage(0); err != nil {
		t.Fatalf("set slippage: %v", err)
	}
	if err := e.SetSimulatedFillRate(1.0); err != nil {
		t.Fatalf("set fill rate: %v", err)
	}

	order := marketOrder()
	order.OrderType = types.Limit
	order.LimitPrice = decimal.NewFromInt(5)
	oms := newFakeOMS(order)
	e.SetOMS(oms)
	e.Start()
	defer e.Stop()

	if err := e.Enqueue(order); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Zero slippage means the candidate price equals the limit price
	// exactly, and a buy-limit accepts price <= limit, so this fills.
	select {
	case <-oms.filled:
	case reason := <-oms.rejects:
		t.Fatalf("expected fill at the boundary, got reject: %s", reason)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

// Invariant 5: after Stop, processed == filled + rejected.
func TestProcessedEqualsFilledPlusRejected(t *testing.T) {
	e := New()
	if err := e.SetSimulatedFillRate(0.5); err != nil {
		t.Fatalf("set fill rate: %v", err)
	}

	orders := make([]types.OptionOrder, 0, 20)
	for i := 0; i < 20; i++ {
		o := marketOrder()
		o.OrderID = marketOrder().OrderID
		orders = append(orders, o)
	}

	e.Start()
	for _, o := range orders {
		_ = e.Enqueue(o)
	}
	time.Sleep(400 * time.Millisecond)
	e.Stop()

	if e.Processed() != e.Filled()+e.Rejected() {
		t.Errorf("processed=%d != filled=%d + rejected=%d", e.Processed(), e.Filled(), e.Rejected())
	}
}

func TestEnqueueRequiresRunning(t *testing.T) {
	e := New()
	if err := e.Enqueue(marketOrder()); err != ErrNotRunning {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestInvalidConfig(t *testing.T) {
	e := New()
	if err := e.SetSimulatedSlippage(-0.1); err != ErrInvalidConfig {
		t.Errorf("expected ErrInvalidConfig for negative slippage, got %v", err)
	}
	if err := e.SetSimulatedFillRate(1.5); err != ErrInvalidConfig {
		t.Errorf("expected ErrInvalidConfig for out-of-range fill rate, got %v", err)
	}
}
