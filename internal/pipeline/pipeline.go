// Package pipeline wires the order management subsystem, the execution
// engine, and the risk evaluator into the single running process spec.md
// §2 describes, and drives the periodic market-data-driven risk refresh
// (spec.md §9's data flow for market data) against a synthetic feed since
// a real one is out of scope.
package pipeline

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantlab/optionsim/engine"
	"github.com/quantlab/optionsim/marketdata"
	"github.com/quantlab/optionsim/oms"
	"github.com/quantlab/optionsim/risk"
	"github.com/quantlab/optionsim/types"
)

// Feed is what the risk-refresh loop needs from a market-data source.
// marketdata.SyntheticFeed satisfies this structurally.
type Feed interface {
	Tick() []types.OptionData
	Spot() float64
	Underlying() string
}

// Pipeline owns the OMS, the execution engine, and the risk manager, and
// runs the periodic risk refresh against one or more feeds.
type Pipeline struct {
	logger zerolog.Logger

	OMS    *oms.OMS
	Engine *engine.Engine
	Risk   *risk.Manager

	feeds         []Feed
	refreshPeriod time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup

	lastMu  sync.RWMutex
	lastRun types.RiskMetrics
}

// New wires an OMS, an execution engine, and a risk manager together via
// their narrow interfaces (spec.md §9's dependency-inversion note: neither
// oms nor engine imports the other's concrete type) and attaches feeds to
// drive the risk-refresh loop.
func New(refreshPeriod time.Duration, feeds ...Feed) *Pipeline {
	o := oms.New()
	e := engine.New()
	o.SetEngine(e)
	e.SetOMS(o)

	return &Pipeline{
		logger:        log.Logger,
		OMS:           o,
		Engine:        e,
		Risk:          risk.NewManager(),
		feeds:         feeds,
		refreshPeriod: refreshPeriod,
	}
}

// SetLogger overrides the zero-value (global) logger on the pipeline and
// its components.
func (p *Pipeline) SetLogger(l zerolog.Logger) {
	p.logger = l
	p.OMS.SetLogger(l)
	p.Engine.SetLogger(l)
}

// SetSimulatedSlippage and SetSimulatedFillRate tune the execution engine.
func (p *Pipeline) SetSimulatedSlippage(sigma float64) error { return p.Engine.SetSimulatedSlippage(sigma) }
func (p *Pipeline) SetSimulatedFillRate(rate float64) error  { return p.Engine.SetSimulatedFillRate(rate) }

// Start launches the OMS, the engine, and the risk-refresh loop.
func (p *Pipeline) Start() {
	p.OMS.Start()
	p.Engine.Start()

	if p.refreshPeriod <= 0 || len(p.feeds) == 0 {
		return
	}
	p.stopCh = make(chan struct{})
	p.wg.Add(1)
	go p.refreshLoop()
}

// Stop halts the risk-refresh loop, then the engine, then the OMS.
func (p *Pipeline) Stop() {
	if p.stopCh != nil {
		close(p.stopCh)
		p.wg.Wait()
	}
	p.Engine.Stop()
	p.OMS.Stop()
}

// Submit forwards order to the OMS.
func (p *Pipeline) Submit(order types.OptionOrder) (string, error) {
	return p.OMS.Submit(order)
}

// LastRiskMetrics returns the most recently computed portfolio risk
// snapshot.
func (p *Pipeline) LastRiskMetrics() types.RiskMetrics {
	p.lastMu.RLock()
	defer p.lastMu.RUnlock()
	return p.lastRun
}

func (p *Pipeline) refreshLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.refreshPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.refreshOnce()
		}
	}
}

// refreshOnce is spec.md §9's market-data-driven risk refresh: (a) tick
// every feed for fresh quotes, (b) snapshot positions from the OMS and
// refresh their time to expiry, (c) recompute portfolio risk, (d) log the
// result and the derived predicates.
func (p *Pipeline) refreshOnce() {
	underlyingPrices := make(map[string]float64, len(p.feeds))
	for _, feed := range p.feeds {
		quotes := feed.Tick()
		for _, q := range quotes {
			if err := marketdata.Validate(q); err != nil {
				p.logger.Warn().Err(err).Str("underlying", q.Underlying).Msg("⚠️ discarding invalid market-data record")
			}
		}
		underlyingPrices[feed.Underlying()] = feed.Spot()
	}

	positions := p.OMS.GetPositions()
	// Recompute each position's remaining time to expiry for this pass,
	// floored at one day like the OMS does at fill time.
	now := time.Now()
	for i := range positions {
		expiry, err := time.Parse("2006-01-02", positions[i].Key.Expiry)
		if err != nil {
			continue
		}
		years := expiry.Sub(now).Hours() / 24 / 365.25
		if years < 1.0/365.25 {
			years = 1.0 / 365.25
		}
		positions[i].TimeToExpiry = years
	}
	metrics := p.Risk.Evaluate(positions, underlyingPrices)

	p.lastMu.Lock()
	p.lastRun = metrics
	p.lastMu.Unlock()

	p.logger.Info().
		Float64("total_delta", metrics.TotalDelta).
		Float64("total_gamma", metrics.TotalGamma).
		Float64("total_vega", metrics.TotalVega).
		Float64("total_theta", metrics.TotalTheta).
		Float64("portfolio_value", metrics.PortfolioValue).
		Float64("var", metrics.ValueAtRisk).
		Float64("margin_requirement", metrics.MarginRequirement).
		Bool("excessive_risk", metrics.IsExcessiveRisk()).
		Bool("needs_rebalance", metrics.NeedsRebalance()).
		Bool("margin_call_imminent", metrics.MarginCallImminent()).
		Msg("📊 risk refresh")
}

// CheckOrderRisk runs a prospective order through the risk gate, building
// the prospective metrics by folding a hypothetical position at quantity
// into the current snapshot's aggregate Greeks scaled by perContract.
func (p *Pipeline) CheckOrderRisk(order types.OptionOrder, perContract types.Greeks) risk.OrderRiskDecision {
	current := p.LastRiskMetrics()
	qty := float64(order.Quantity)
	prospective := current
	prospective.TotalDelta += perContract.Delta * qty
	prospective.TotalGamma += perContract.Gamma * qty
	prospective.TotalTheta += perContract.Theta * qty
	prospective.TotalVega += perContract.Vega * qty
	prospective.TotalRho += perContract.Rho * qty

	return p.Risk.CheckOrder(risk.OrderRiskRequest{
		Order:              order,
		ProspectiveMetrics: prospective,
	})
}
