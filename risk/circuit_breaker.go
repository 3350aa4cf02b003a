package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantlab/optionsim/types"
)

// CircuitBreaker halts new order submissions after too many consecutive
// excessive-risk evaluations, the same trip/cooldown shape the execution
// side uses for consecutive trading losses, repurposed here to watch
// RiskMetrics.IsExcessiveRisk() instead of realized P&L.
type CircuitBreaker struct {
	mu sync.RWMutex

	maxConsecutiveBreaches int
	cooldownDuration       time.Duration

	consecutiveBreaches int
	tripped             bool
	trippedAt           time.Time
	reason              string
}

// NewCircuitBreaker creates a circuit breaker that trips after maxBreaches
// consecutive excessive-risk evaluations and stays tripped for cooldown.
func NewCircuitBreaker(maxBreaches int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxConsecutiveBreaches: maxBreaches,
		cooldownDuration:       cooldown,
	}
}

// RecordEvaluation feeds the breaker a fresh risk snapshot. Call this once
// per CalculatePortfolioRisk pass.
func (cb *CircuitBreaker) RecordEvaluation(metrics types.RiskMetrics) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !metrics.IsExcessiveRisk() {
		cb.consecutiveBreaches = 0
		return
	}

	cb.consecutiveBreaches++
	if cb.consecutiveBreaches >= cb.maxConsecutiveBreaches && !cb.tripped {
		cb.trip("consecutive excessive-risk evaluations")
	}
}

// Check reports whether new order submissions should be halted, resetting
// the breaker itself once the cooldown has elapsed.
func (cb *CircuitBreaker) Check() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.tripped {
		return false
	}
	if time.Since(cb.trippedAt) > cb.cooldownDuration {
		cb.reset()
		log.Info().Msg("✅ risk circuit breaker reset after cooldown")
		return false
	}
	return true
}

func (cb *CircuitBreaker) trip(reason string) {
	cb.tripped = true
	cb.trippedAt = time.Now()
	cb.reason = reason
	log.Warn().
		Str("reason", reason).
		Int("consecutive_breaches", cb.consecutiveBreaches).
		Dur("cooldown", cb.cooldownDuration).
		Msg("🚨 risk circuit breaker tripped")
}

func (cb *CircuitBreaker) reset() {
	cb.consecutiveBreaches = 0
	cb.tripped = false
}

// IsTripped reports the current trip state without side effects.
func (cb *CircuitBreaker) IsTripped() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.tripped
}

// GetStats returns the breaker's current counters.
func (cb *CircuitBreaker) GetStats() (consecutiveBreaches int, tripped bool, reason string) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.consecutiveBreaches, cb.tripped, cb.reason
}

// ForceReset manually clears the breaker, e.g. from an operator command.
func (cb *CircuitBreaker) ForceReset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.reset()
	log.Info().Msg("✅ risk circuit breaker manually reset")
}
