package risk

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantlab/optionsim/types"
)

// Manager is the facade a pipeline talks to: it composes the Evaluator,
// Sizer, CircuitBreaker, RiskGate, and RebalanceMonitor into the single
// risk-management surface the rest of the system needs, mirroring the
// teacher's gatekeeper-of-everything Manager but budgeted against option
// Greeks instead of equity percentages.
type Manager struct {
	mu sync.RWMutex

	evaluator *Evaluator
	sizer     *Sizer
	breaker   *CircuitBreaker
	gate      *RiskGate
	rebalance *RebalanceMonitor
}

// NewManager wires up a Manager from environment configuration, falling
// back to spec.md §4.4's defaults.
func NewManager() *Manager {
	limits := types.DefaultRiskLimits()
	maxBreaches := envInt("RISK_MAX_CONSECUTIVE_BREACHES", 3)
	cooldown := envDuration("RISK_CIRCUIT_COOLDOWN_SEC", 30*time.Minute)
	maxPendingRebalance := envDuration("RISK_MAX_REBALANCE_PENDING_SEC", 15*time.Minute)

	evaluator := NewEvaluator()
	breaker := NewCircuitBreaker(maxBreaches, cooldown)

	mgr := &Manager{
		evaluator: evaluator,
		sizer:     NewSizer(limits),
		breaker:   breaker,
		gate:      NewRiskGate(evaluator, breaker),
		rebalance: NewRebalanceMonitor(maxPendingRebalance),
	}

	log.Info().
		Float64("max_delta", limits.MaxDelta).
		Float64("max_gamma", limits.MaxGamma).
		Int("max_consecutive_breaches", maxBreaches).
		Dur("circuit_cooldown", cooldown).
		Msg("🛡️ risk manager initialized")

	return mgr
}

// Evaluate recomputes portfolio risk, feeds the circuit breaker and
// rebalance monitor, and returns the resulting snapshot. This is the
// single call a risk-refresh loop needs per pass.
func (m *Manager) Evaluate(positions []types.OptionPosition, underlyingPrices map[string]float64) types.RiskMetrics {
	metrics := m.evaluator.CalculatePortfolioRisk(positions, underlyingPrices)
	m.breaker.RecordEvaluation(metrics)
	if escalate, reason := m.rebalance.Observe(metrics); escalate {
		log.Warn().Str("reason", reason).Msg("📉 portfolio requires rebalancing")
	}
	return metrics
}

// CheckOrder runs req through the risk gate.
func (m *Manager) CheckOrder(req OrderRiskRequest) OrderRiskDecision {
	return m.gate.CanSubmit(req)
}

// MaxQuantity delegates to the Sizer.
func (m *Manager) MaxQuantity(perContract types.Greeks, current types.RiskMetrics) int64 {
	m.mu.RLock()
	sizer := m.sizer
	m.mu.RUnlock()
	return sizer.MaxQuantity(perContract, current)
}

// SetRiskLimits updates the evaluator's limits and rebuilds the sizer
// against the new limits.
func (m *Manager) SetRiskLimits(limits types.RiskLimits) error {
	if err := m.evaluator.SetRiskLimits(limits); err != nil {
		return err
	}
	m.mu.Lock()
	m.sizer = NewSizer(limits)
	m.mu.Unlock()
	return nil
}

// Evaluator exposes the underlying Evaluator for callers that need direct
// access (e.g. SetConfidence).
func (m *Manager) Evaluator() *Evaluator { return m.evaluator }

// Breaker exposes the underlying CircuitBreaker, e.g. for an operator
// ForceReset command.
func (m *Manager) Breaker() *CircuitBreaker { return m.breaker }

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
