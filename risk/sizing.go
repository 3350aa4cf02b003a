package risk

import "github.com/quantlab/optionsim/types"

// Sizer computes how many additional contracts of a given option a
// portfolio can absorb before breaching a configured risk limit, mirroring
// the teacher's percent-of-equity position sizer but budgeted against
// Greek exposure rather than dollars at risk.
type Sizer struct {
	limits types.RiskLimits
}

// NewSizer creates a Sizer against limits.
func NewSizer(limits types.RiskLimits) *Sizer {
	return &Sizer{limits: limits}
}

// MaxQuantity returns the largest number of contracts (always >= 0) that
// can be added without pushing any of delta, gamma, vega, or theta past
// its limit, given perContract (the Greeks of one contract) and current
// (the portfolio's current aggregate risk). A perContract value of 0 on a
// dimension imposes no constraint from that dimension.
func (s *Sizer) MaxQuantity(perContract types.Greeks, current types.RiskMetrics) int64 {
	budget := budgetFor(perContract.Delta, current.TotalDelta, s.limits.MaxDelta)
	budget = minBudget(budget, budgetFor(perContract.Gamma, current.TotalGamma, s.limits.MaxGamma))
	budget = minBudget(budget, budgetFor(perContract.Vega, current.TotalVega, s.limits.MaxVega))
	budget = minBudget(budget, budgetFor(perContract.Theta, current.TotalTheta, s.limits.MaxTheta))

	if budget < 0 {
		return 0
	}
	return int64(budget)
}

// budgetFor returns how many more units of perUnit a dimension already at
// currentTotal can absorb before hitting limit, or +Inf if perUnit is
// negligible (no constraint from this dimension).
func budgetFor(perUnit, currentTotal, limit float64) float64 {
	const epsilon = 1e-12
	if perUnit > -epsilon && perUnit < epsilon {
		return posInf
	}
	remaining := limit - absFloat(currentTotal)
	if remaining < 0 {
		return 0
	}
	return remaining / absFloat(perUnit)
}

const posInf = 1e18

func minBudget(a, b float64) float64 {
	if b < a {
		return b
	}
	return a
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
