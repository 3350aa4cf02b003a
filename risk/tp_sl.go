package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantlab/optionsim/types"
)

// RebalanceMonitor escalates a sustained rebalance-needed condition into an
// urgent alert, the same trailing-threshold/max-hold-time shape the
// teacher's position exit monitor uses, repurposed here to watch
// RiskMetrics.NeedsRebalance() over time instead of a single position's
// price.
type RebalanceMonitor struct {
	mu sync.RWMutex

	maxPendingDuration time.Duration

	pending             bool
	needsRebalanceSince time.Time
}

// NewRebalanceMonitor creates a monitor that escalates once a rebalance
// has been continuously needed for longer than maxPending.
func NewRebalanceMonitor(maxPending time.Duration) *RebalanceMonitor {
	return &RebalanceMonitor{maxPendingDuration: maxPending}
}

// Observe feeds the monitor a fresh risk snapshot and reports whether the
// sustained rebalance-needed condition has crossed the escalation
// threshold.
func (rm *RebalanceMonitor) Observe(metrics types.RiskMetrics) (escalate bool, reason string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if !metrics.NeedsRebalance() {
		rm.pending = false
		return false, ""
	}

	if !rm.pending {
		rm.pending = true
		rm.needsRebalanceSince = time.Now()
		return false, ""
	}

	if time.Since(rm.needsRebalanceSince) > rm.maxPendingDuration {
		log.Warn().
			Dur("pending_for", time.Since(rm.needsRebalanceSince)).
			Msg("🚨 rebalance overdue")
		return true, "rebalance overdue"
	}
	return false, ""
}

// Reset clears the pending state, e.g. after an operator rebalances the
// book manually.
func (rm *RebalanceMonitor) Reset() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.pending = false
}
