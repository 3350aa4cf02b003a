// Package engine implements the simulated execution engine of spec.md §4.3:
// a FIFO order queue drained by a single worker goroutine, which decides
// fill/reject for each order under a configurable fill-rate and slippage
// model and reports the outcome back to an order management subsystem.
//
// engine depends only on the narrow OMS interface below (spec.md §9's
// dependency-inversion note), not on a concrete *oms.OMS, so oms and engine
// never import one another.
package engine

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantlab/optionsim/types"
)

// pollInterval is the worker's drain cadence (spec.md §4.3).
const pollInterval = 100 * time.Millisecond

// ResultSink receives the outcome of a fill/reject decision. oms.OMS
// satisfies this structurally.
type ResultSink interface {
	OnFilled(orderID string, fillPrice decimal.Decimal)
	OnRejected(orderID string, reason string)
}

// OMS is everything the engine needs from the order registry: the result
// callbacks plus enough read access to run its retry pass and to drop
// orders that were cancelled out from under it. oms.OMS satisfies this
// structurally.
type OMS interface {
	ResultSink
	GetActiveOrders() []types.OptionOrder
	GetOrderStatus(orderID string) types.OptionOrder
}

// Engine is the simulated execution engine described in spec.md §4.3.
type Engine struct {
	logger zerolog.Logger

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	queueMu sync.Mutex
	queue   []types.OptionOrder

	omsMu sync.RWMutex
	oms   OMS

	slippage float64
	fillRate float64

	processed atomic.Uint64
	filled    atomic.Uint64
	rejected  atomic.Uint64
}

// New creates an Engine with zero slippage and a 100% fill rate; tune both
// with SetSimulatedSlippage / SetSimulatedFillRate before Start.
func New() *Engine {
	return &Engine{
		logger:   log.Logger,
		fillRate: 1.0,
	}
}

// SetLogger overrides the zero-value (global) logger.
func (e *Engine) SetLogger(l zerolog.Logger) { e.logger = l }

// SetOMS installs the order registry orders are decided against and
// reported back to. Callable before or after Start.
func (e *Engine) SetOMS(oms OMS) {
	e.omsMu.Lock()
	e.oms = oms
	e.omsMu.Unlock()
}

// SetSimulatedSlippage sets the half-width σ of the Uniform[-σ, σ]
// multiplicative slippage applied to the fill-price model. σ must be in
// [0, 1].
func (e *Engine) SetSimulatedSlippage(sigma float64) error {
	if sigma < 0 || sigma > 1 {
		return ErrInvalidConfig
	}
	e.slippage = sigma
	return nil
}

// SetSimulatedFillRate sets the probability that an order clears the
// stochastic fill gate before order-type-specific acceptance logic runs.
// rate must be in [0, 1].
func (e *Engine) SetSimulatedFillRate(rate float64) error {
	if rate < 0 || rate > 1 {
		return ErrInvalidConfig
	}
	e.fillRate = rate
	return nil
}

// Start launches the worker goroutine. Calling Start twice is a no-op.
func (e *Engine) Start() {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	e.stopCh = make(chan struct{})
	e.wg.Add(1)
	go e.run()
}

// Stop signals the worker to finish its current tick and exit, then blocks
// until it has, logging the final counters.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	close(e.stopCh)
	e.wg.Wait()
	e.logger.Info().
		Uint64("processed", e.processed.Load()).
		Uint64("filled", e.filled.Load()).
		Uint64("rejected", e.rejected.Load()).
		Msg("🛑 execution engine stopped")
}

// Enqueue appends order to the FIFO queue. Returns ErrNotRunning if the
// engine has not been started.
func (e *Engine) Enqueue(order types.OptionOrder) error {
	if !e.running.Load() {
		return ErrNotRunning
	}
	e.queueMu.Lock()
	e.queue = append(e.queue, order)
	e.queueMu.Unlock()
	return nil
}

// Processed, Filled, and Rejected report the running decision counters.
func (e *Engine) Processed() uint64 { return e.processed.Load() }
func (e *Engine) Filled() uint64    { return e.filled.Load() }
func (e *Engine) Rejected() uint64  { return e.rejected.Load() }

func (e *Engine) run() {
	defer e.wg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			e.drainAndDecide()
			return
		case <-ticker.C:
			e.drainAndDecide()
		}
	}
}

// drainAndDecide dequeues the full current queue and decides each order,
// then re-polls the OMS for orders still PENDING (spec.md §4.3's dual-
// source drain, guarding against an enqueue/submit race dropping a
// submission silently).
func (e *Engine) drainAndDecide() {
	e.queueMu.Lock()
	batch := e.queue
	e.queue = nil
	e.queueMu.Unlock()

	for _, order := range batch {
		e.decideOne(order)
	}

	e.omsMu.RLock()
	oms := e.oms
	e.omsMu.RUnlock()
	if oms == nil {
		return
	}
	for _, order := range oms.GetActiveOrders() {
		if order.Status == types.Pending {
			e.decideOne(order)
		}
	}
}

// decideOne runs the fill/reject decision for a single order and reports
// the outcome to the OMS. Orders the OMS no longer considers PENDING
// (cancelled out from under the engine) are dropped silently.
func (e *Engine) decideOne(order types.OptionOrder) {
	e.omsMu.RLock()
	oms := e.oms
	e.omsMu.RUnlock()

	if oms != nil && oms.GetOrderStatus(order.OrderID).Status != types.Pending {
		return
	}

	e.processed.Add(1)

	if order.Quantity == 0 {
		e.reject(oms, order.OrderID, "zero quantity")
		return
	}
	if rand.Float64() >= e.fillRate {
		e.reject(oms, order.OrderID, "simulated fill-rate miss")
		return
	}
	if !e.accepts(order, e.simulatedPrice(order)) {
		e.reject(oms, order.OrderID, "order-type condition not met")
		return
	}

	fillPrice := e.simulatedPrice(order)
	e.filled.Add(1)
	if oms != nil {
		oms.OnFilled(order.OrderID, decimal.NewFromFloat(fillPrice))
	} else {
		e.logger.Info().Str("order_id", order.OrderID).Float64("fill_price", fillPrice).Msg("✅ order filled")
	}
}

// reject counts and reports a rejection. With no OMS registered (spec.md
// §4.3: "optional but without it fills/rejects are logged only"), the
// outcome is only observable through this log line.
func (e *Engine) reject(oms OMS, orderID, reason string) {
	e.rejected.Add(1)
	if oms != nil {
		oms.OnRejected(orderID, reason)
		return
	}
	e.logger.Info().Str("order_id", orderID).Str("reason", reason).Msg("🚫 order rejected")
}

// simulatedPrice draws a candidate fill price around the order's limit
// price (the simulation's only notion of a mark, per spec.md §4.3): a
// Uniform[-σ, σ] multiplicative slippage, forced adverse to the taker for
// MARKET orders since there is no opposing limit to protect them.
func (e *Engine) simulatedPrice(order types.OptionOrder) float64 {
	base, _ := order.LimitPrice.Float64()
	s := (rand.Float64()*2 - 1) * e.slippage
	if order.OrderType == types.Market {
		if order.Quantity > 0 {
			s = math.Abs(s)
		} else {
			s = -math.Abs(s)
		}
	}
	return base * (1 + s)
}

// accepts applies the order-type-specific acceptance rule from spec.md
// §4.3 against a candidate price.
func (e *Engine) accepts(order types.OptionOrder, price float64) bool {
	limit, _ := order.LimitPrice.Float64()
	stop, _ := order.StopPrice.Float64()
	buying := order.Quantity > 0

	switch order.OrderType {
	case types.Market:
		return true
	case types.Limit:
		if buying {
			return price <= limit
		}
		return price >= limit
	case types.Stop:
		if buying {
			return price >= stop
		}
		return price <= stop
	case types.StopLimit:
		var stopOK, limitOK bool
		if buying {
			stopOK = price >= stop
			limitOK = price <= limit
		} else {
			stopOK = price <= stop
			limitOK = price >= limit
		}
		return stopOK && limitOK
	default:
		return false
	}
}
