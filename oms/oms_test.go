package oms

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantlab/optionsim/types"
)

// stubEngine is a fake SubmissionChannel that just records enqueued orders,
// standing in for the real execution engine in OMS-only tests.
type stubEngine struct {
	mu     sync.Mutex
	orders []types.OptionOrder
	err    error
}

func (s *stubEngine) Enqueue(order types.OptionOrder) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.orders = append(s.orders, order)
	s.mu.Unlock()
	return nil
}

func baseOrder() types.OptionOrder {
	return types.OptionOrder{
		Underlying: "AAPL",
		OptionType: "CALL",
		Strike:     decimal.NewFromInt(150),
		Expiry:     "2030-01-18",
		Side:       types.BuyToOpen,
		OrderType:  types.Market,
		Quantity:   10,
	}
}

func TestSubmitRequiresRunning(t *testing.T) {
	o := New()
	if _, err := o.Submit(baseOrder()); err != ErrNotRunning {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestSubmitAssignsIDAndForwards(t *testing.T) {
	o := New()
	engine := &stubEngine{}
	o.SetEngine(engine)
	o.Start()

	id, err := o.Submit(baseOrder())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty order id")
	}

	status := o.GetOrderStatus(id)
	if status.Status != types.Pending || !status.IsActive {
		t.Errorf("expected PENDING/active order, got %+v", status)
	}

	engine.mu.Lock()
	n := len(engine.orders)
	engine.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected 1 enqueued order, got %d", n)
	}
}

func TestSubmitValidation(t *testing.T) {
	o := New()
	o.Start()

	cases := []types.OptionOrder{
		{Underlying: "", Quantity: 10, OrderType: types.Market},
		{Underlying: "AAPL", Quantity: 0, OrderType: types.Market},
		{Underlying: "AAPL", Quantity: 10, OrderType: types.Limit, LimitPrice: decimal.Zero},
		{Underlying: "AAPL", Quantity: 10, OrderType: types.Stop, StopPrice: decimal.Zero},
	}
	for i, order := range cases {
		if _, err := o.Submit(order); err != ErrInvalidOrder {
			t.Errorf("case %d: expected ErrInvalidOrder, got %v", i, err)
		}
	}
}

// Invariant 7: order ids are unique across many submissions.
func TestOrderIDsAreUnique(t *testing.T) {
	o := New()
	o.Start()

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id, err := o.Submit(baseOrder())
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if seen[id] {
			t.Fatalf("duplicate order id %q", id)
		}
		seen[id] = true
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	o := New()
	o.Start()
	id, _ := o.Submit(baseOrder())

	o.Cancel(id)
	status := o.GetOrderStatus(id)
	if status.Status != types.Cancelled || status.IsActive {
		t.Fatalf("expected CANCELLED/inactive, got %+v", status)
	}

	// Second cancel is a silent no-op, not a resurrection.
	o.Cancel(id)
	status = o.GetOrderStatus(id)
	if status.Status != types.Cancelled {
		t.Errorf("expected order to remain CANCELLED, got %s", status.Status)
	}

	// Cancelling an unknown id must not panic.
	o.Cancel("ORD-NOPE")
}

func TestModifyActiveOrder(t *testing.T) {
	o := New()
	o.Start()
	id, _ := o.Submit(baseOrder())

	replacement := baseOrder()
	replacement.Quantity = 25
	if err := o.Modify(id, replacement); err != nil {
		t.Fatalf("modify: %v", err)
	}

	status := o.GetOrderStatus(id)
	if status.Quantity != 25 || status.OrderID != id {
		t.Errorf("expected modified order with id preserved, got %+v", status)
	}
}

func TestModifyTerminalOrderIsNoOp(t *testing.T) {
	o := New()
	o.Start()
	id, _ := o.Submit(baseOrder())
	o.Cancel(id)

	replacement := baseOrder()
	replacement.Quantity = 99
	if err := o.Modify(id, replacement); err != nil {
		t.Fatalf("modify on terminal order should be a no-op, got error: %v", err)
	}

	status := o.GetOrderStatus(id)
	if status.Quantity == 99 {
		t.Error("modify must not resurrect a terminal order")
	}
}

// Invariant 6: GetActiveOrders returns only PENDING orders.
func TestGetActiveOrdersOnlyPending(t *testing.T) {
	o := New()
	o.Start()
	pendingID, _ := o.Submit(baseOrder())
	cancelledID, _ := o.Submit(baseOrder())
	o.Cancel(cancelledID)

	active := o.GetActiveOrders()
	if len(active) != 1 || active[0].OrderID != pendingID {
		t.Fatalf("expected exactly the pending order, got %+v", active)
	}
}

// S3 / invariant 4: a fill updates the position by the signed quantity, and
// a second callback for the same order id is dropped.
func TestOnFilledUpdatesPositionOnce(t *testing.T) {
	o := New()
	o.Start()
	order := baseOrder()
	id, _ := o.Submit(order)

	o.OnFilled(id, decimal.NewFromFloat(5.25))

	status := o.GetOrderStatus(id)
	if status.Status != types.Filled || status.IsActive {
		t.Fatalf("expected FILLED/inactive, got %+v", status)
	}
	if !status.FillPrice.Equal(decimal.NewFromFloat(5.25)) {
		t.Errorf("fill price = %s, want 5.25", status.FillPrice)
	}

	key := types.PositionKey{Underlying: order.Underlying, OptionType: order.OptionType, Strike: order.Strike, Expiry: order.Expiry}
	pos := o.GetPosition(key)
	if pos.Quantity != 10 {
		t.Errorf("position quantity = %f, want 10", pos.Quantity)
	}

	// A duplicate callback for an already-terminal order must be dropped.
	o.OnFilled(id, decimal.NewFromFloat(999))
	status = o.GetOrderStatus(id)
	if status.FillPrice.Equal(decimal.NewFromFloat(999)) {
		t.Error("duplicate OnFilled must not overwrite a terminal order")
	}
}

// S4: a symmetric SELL_TO_CLOSE closes out the position entirely.
func TestPositionClosesAtZero(t *testing.T) {
	o := New()
	o.Start()

	open := baseOrder()
	openID, _ := o.Submit(open)
	o.OnFilled(openID, decimal.NewFromFloat(5))

	closeOrder := baseOrder()
	closeOrder.Side = types.SellToClose
	closeID, _ := o.Submit(closeOrder)
	o.OnFilled(closeID, decimal.NewFromFloat(5.5))

	key := types.PositionKey{Underlying: open.Underlying, OptionType: open.OptionType, Strike: open.Strike, Expiry: open.Expiry}
	pos := o.GetPosition(key)
	if pos.Quantity != 0 {
		t.Errorf("expected flat position, got quantity %f", pos.Quantity)
	}
	if len(o.GetPositions()) != 0 {
		t.Error("expected the zeroed position to be removed from the registry")
	}
}

func TestOnRejectedIsTerminalOnce(t *testing.T) {
	o := New()
	o.Start()
	id, _ := o.Submit(baseOrder())

	o.OnRejected(id, "simulated reject")
	status := o.GetOrderStatus(id)
	if status.Status != types.Rejected || status.IsActive {
		t.Fatalf("expected REJECTED/inactive, got %+v", status)
	}

	// A late OnFilled for an already-rejected order must be dropped.
	o.OnFilled(id, decimal.NewFromFloat(1))
	status = o.GetOrderStatus(id)
	if status.Status != types.Rejected {
		t.Error("OnFilled must not override a terminal REJECTED order")
	}
}

func TestGetOrderStatusUnknownIsZeroValue(t *testing.T) {
	o := New()
	status := o.GetOrderStatus("ORD-NOPE")
	if status.OrderID != "" {
		t.Errorf("expected zero-value order, got %+v", status)
	}
}
