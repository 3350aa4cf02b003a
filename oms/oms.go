// Package oms implements the order management subsystem of spec.md §4.2: a
// thread-safe registry of orders and aggregated positions, fed by external
// submissions and by fill/reject callbacks from an execution engine.
//
// OMS depends only on the narrow SubmissionChannel interface below, not on
// a concrete engine type (spec.md §9's dependency-inversion note): any type
// with an Enqueue method can drive order flow, which is what lets tests
// wire up a stub engine.
package oms

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantlab/optionsim/types"
)

// SubmissionChannel is what OMS uses to hand a newly accepted order to an
// execution engine. engine.Engine satisfies this.
type SubmissionChannel interface {
	Enqueue(order types.OptionOrder) error
}

// OMS is the order/position registry described in spec.md §4.2.
type OMS struct {
	logger zerolog.Logger

	running atomic.Bool
	counter atomic.Uint64

	ordersMu sync.RWMutex
	orders   map[string]*types.OptionOrder

	positionsMu sync.RWMutex
	positions   map[types.PositionKey]*types.OptionPosition

	engineMu sync.RWMutex
	engine   SubmissionChannel
}

// New creates an OMS. It is not running until Start is called.
func New() *OMS {
	return &OMS{
		logger:    log.Logger,
		orders:    make(map[string]*types.OptionOrder),
		positions: make(map[types.PositionKey]*types.OptionPosition),
	}
}

// SetLogger overrides the zero-value (global) logger.
func (o *OMS) SetLogger(l zerolog.Logger) { o.logger = l }

// SetEngine installs the execution engine orders are forwarded to. Callable
// before or after Start.
func (o *OMS) SetEngine(engine SubmissionChannel) {
	o.engineMu.Lock()
	o.engine = engine
	o.engineMu.Unlock()
}

// Start marks the OMS ready to accept submissions.
func (o *OMS) Start() { o.running.Store(true) }

// Stop marks the OMS as no longer accepting submissions. Existing orders
// and positions are untouched.
func (o *OMS) Stop() { o.running.Store(false) }

// Submit validates and persists a new order, assigns it an order id, and
// forwards it to the execution engine if one is registered.
func (o *OMS) Submit(order types.OptionOrder) (string, error) {
	if !o.running.Load() {
		return "", ErrNotRunning
	}
	if err := validate(order); err != nil {
		return "", err
	}

	order.OrderID = o.generateOrderID()
	order.Status = types.Pending
	order.IsActive = true
	order.SubmitTime = time.Now()
	order.FillTime = time.Time{}

	o.ordersMu.Lock()
	o.orders[order.OrderID] = &order
	o.ordersMu.Unlock()

	o.engineMu.RLock()
	engine := o.engine
	o.engineMu.RUnlock()

	if engine == nil {
		o.logger.Warn().Str("order_id", order.OrderID).Msg("⚠️ no execution engine registered; order remains PENDING")
		return order.OrderID, nil
	}
	if err := engine.Enqueue(order); err != nil {
		// Downstream unavailability is non-fatal per spec.md §4.2: the
		// order stays PENDING and we only log an advisory.
		o.logger.Warn().Err(err).Str("order_id", order.OrderID).Msg("⚠️ engine did not accept order; it remains PENDING")
	}

	return order.OrderID, nil
}

func validate(order types.OptionOrder) error {
	if order.Underlying == "" {
		return ErrInvalidOrder
	}
	if order.Quantity == 0 {
		return ErrInvalidOrder
	}
	if order.OrderType == types.Limit && !order.LimitPrice.IsPositive() {
		return ErrInvalidOrder
	}
	if order.OrderType == types.Stop && !order.StopPrice.IsPositive() {
		return ErrInvalidOrder
	}
	return nil
}

// Cancel transitions orderID to CANCELLED if it exists and is active.
// Unknown or already-terminal orders are a silent no-op.
func (o *OMS) Cancel(orderID string) {
	o.ordersMu.Lock()
	defer o.ordersMu.Unlock()

	order, ok := o.orders[orderID]
	if !ok || !order.IsActive {
		return
	}
	order.Status = types.Cancelled
	order.IsActive = false
}

// Modify replaces the stored order for orderID with newOrder, retaining
// orderID, if the existing order exists and is active. Validation failures
// are reported; a missing or terminal order is a silent no-op (spec.md
// §4.2's open question resolves to no-op, for parity with the source).
func (o *OMS) Modify(orderID string, newOrder types.OptionOrder) error {
	o.ordersMu.Lock()
	defer o.ordersMu.Unlock()

	order, ok := o.orders[orderID]
	if !ok || !order.IsActive {
		return nil
	}
	if err := validate(newOrder); err != nil {
		return err
	}

	newOrder.OrderID = orderID
	newOrder.Status = order.Status
	newOrder.IsActive = order.IsActive
	newOrder.SubmitTime = order.SubmitTime
	o.orders[orderID] = &newOrder
	return nil
}

// GetActiveOrders returns a snapshot of every order with IsActive == true.
func (o *OMS) GetActiveOrders() []types.OptionOrder {
	o.ordersMu.RLock()
	defer o.ordersMu.RUnlock()

	active := make([]types.OptionOrder, 0, len(o.orders))
	for _, order := range o.orders {
		if order.IsActive {
			active = append(active, *order)
		}
	}
	return active
}

// GetOrderStatus returns a snapshot of orderID, or a zero-value order with
// an empty OrderID if it is unknown.
func (o *OMS) GetOrderStatus(orderID string) types.OptionOrder {
	o.ordersMu.RLock()
	defer o.ordersMu.RUnlock()

	order, ok := o.orders[orderID]
	if !ok {
		return types.OptionOrder{}
	}
	return *order
}

// GetPositions returns a snapshot of every open position.
func (o *OMS) GetPositions() []types.OptionPosition {
	o.positionsMu.RLock()
	defer o.positionsMu.RUnlock()

	positions := make([]types.OptionPosition, 0, len(o.positions))
	for _, pos := range o.positions {
		positions = append(positions, *pos)
	}
	return positions
}

// GetPosition returns a snapshot of the position at key, or a zero-value
// position (empty underlying) if none is open.
func (o *OMS) GetPosition(key types.PositionKey) types.OptionPosition {
	o.positionsMu.RLock()
	defer o.positionsMu.RUnlock()

	pos, ok := o.positions[key]
	if !ok {
		return types.OptionPosition{}
	}
	return *pos
}

// GetTotalPositionValue sums quantity*strike over every open position. This
// is a placeholder valuation documented as such by spec.md §4.2; real mark-
// to-market valuation is risk.Evaluator's responsibility.
func (o *OMS) GetTotalPositionValue() decimal.Decimal {
	o.positionsMu.RLock()
	defer o.positionsMu.RUnlock()

	total := decimal.Zero
	for _, pos := range o.positions {
		qty := decimal.NewFromFloat(pos.Quantity)
		total = total.Add(qty.Mul(pos.Key.Strike))
	}
	return total
}

// OnFilled transitions orderID to FILLED and updates the corresponding
// position. Unknown or already-terminal orders are dropped silently
// (spec.md §4.2/§5: exactly one terminal transition wins per order id).
// It satisfies engine.ResultSink structurally.
func (o *OMS) OnFilled(orderID string, fillPrice decimal.Decimal) {
	o.ordersMu.Lock()
	order, ok := o.orders[orderID]
	if !ok || order.Status != types.Pending {
		o.ordersMu.Unlock()
		return
	}
	order.Status = types.Filled
	order.FillPrice = fillPrice
	order.FillTime = time.Now()
	order.IsActive = false
	snapshot := *order
	o.ordersMu.Unlock()

	o.logger.Info().Str("order_id", orderID).Str("fill_price", fillPrice.String()).Msg("✅ order filled")

	// Fixed lock order orders -> positions everywhere, so this path never
	// holds both locks at once.
	o.updatePosition(snapshot)
}

// OnRejected transitions orderID to REJECTED. Unknown or already-terminal
// orders are dropped silently. The reason is logged but not persisted on
// the order (spec.md §4.2). It satisfies engine.ResultSink structurally.
func (o *OMS) OnRejected(orderID string, reason string) {
	o.ordersMu.Lock()
	defer o.ordersMu.Unlock()

	order, ok := o.orders[orderID]
	if !ok || order.Status != types.Pending {
		return
	}
	order.Status = types.Rejected
	order.IsActive = false
	o.logger.Info().Str("order_id", orderID).Str("reason", reason).Msg("🚫 order rejected")
}

func (o *OMS) updatePosition(order types.OptionOrder) {
	key := types.PositionKey{
		Underlying: order.Underlying,
		OptionType: order.OptionType,
		Strike:     order.Strike,
		Expiry:     order.Expiry,
	}

	o.positionsMu.Lock()
	defer o.positionsMu.Unlock()

	pos, ok := o.positions[key]
	if !ok {
		pos = &types.OptionPosition{Key: key}
	}

	delta := float64(order.Quantity)
	switch order.Side {
	case types.BuyToOpen, types.BuyToClose:
		pos.Quantity += delta
	default: // SellToOpen, SellToClose
		pos.Quantity -= delta
	}
	pos.TimeToExpiry = timeToExpiryYears(order.Expiry)

	if pos.Quantity == 0 {
		delete(o.positions, key)
		return
	}
	o.positions[key] = pos
}

// timeToExpiryYears computes the remaining year fraction to an ISO expiry
// date, floored at a single day so a position never carries a zero or
// negative time to expiry into the pricing kernel (spec.md §9's open
// question: timeToExpiry is always derived here, never hard-coded).
func timeToExpiryYears(expiry string) float64 {
	const dayFraction = 1.0 / 365.25
	expiryTime, err := time.Parse("2006-01-02", expiry)
	if err != nil {
		return dayFraction
	}
	years := time.Until(expiryTime).Hours() / 24 / 365.25
	if years < dayFraction {
		return dayFraction
	}
	return years
}

func (o *OMS) generateOrderID() string {
	n := o.counter.Add(1)
	return fmt.Sprintf("ORD-%08d", n)
}
