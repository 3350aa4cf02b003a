package risk

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/quantlab/optionsim/types"
)

// OrderRiskRequest bundles what RiskGate needs to approve a prospective
// order: the order itself and the portfolio risk snapshot computed with
// the order's position already folded in.
type OrderRiskRequest struct {
	Order              types.OptionOrder
	ProspectiveMetrics types.RiskMetrics
}

// OrderRiskDecision is RiskGate's verdict on an OrderRiskRequest.
type OrderRiskDecision struct {
	Approved     bool
	RejectionMsg string
	RiskScore    float64 // 0-100, higher is riskier
}

// OrderRiskChecker is the narrow order-check interface, the same
// dependency-inversion shape oms.SubmissionChannel and engine.ResultSink
// use: Manager satisfies this structurally, no adapter type needed.
// internal/pipeline holds the concrete *Manager rather than this interface.
type OrderRiskChecker interface {
	CheckOrder(req OrderRiskRequest) OrderRiskDecision
}

// RiskGate is the pre-trade checkpoint behind Manager.CheckOrder (and so
// Pipeline.CheckOrderRisk): it combines Evaluator's limit check with the
// CircuitBreaker's halt state. Pipeline.Submit does not consult it.
type RiskGate struct {
	evaluator *Evaluator
	breaker   *CircuitBreaker
}

// NewRiskGate wires an Evaluator and CircuitBreaker into a single
// approval entry point.
func NewRiskGate(evaluator *Evaluator, breaker *CircuitBreaker) *RiskGate {
	return &RiskGate{evaluator: evaluator, breaker: breaker}
}

// CanSubmit checks a prospective order against the circuit breaker and the
// evaluator's risk limits, in that order, and computes an advisory risk
// score for whatever the caller chooses to surface (logging, a dashboard).
func (rg *RiskGate) CanSubmit(req OrderRiskRequest) OrderRiskDecision {
	reject := func(msg string) OrderRiskDecision {
		log.Debug().
			Str("order_id", req.Order.OrderID).
			Str("underlying", req.Order.Underlying).
			Str("reason", msg).
			Msg("🚫 order rejected by risk gate")
		return OrderRiskDecision{Approved: false, RejectionMsg: msg}
	}

	if rg.breaker.Check() {
		return reject("risk circuit breaker active")
	}

	metrics := req.ProspectiveMetrics
	if metrics.MarginCallImminent() {
		return reject("margin call imminent")
	}

	newPosition := types.OptionPosition{
		Key: types.PositionKey{
			Underlying: req.Order.Underlying,
			OptionType: req.Order.OptionType,
			Strike:     req.Order.Strike,
			Expiry:     req.Order.Expiry,
		},
	}
	if !rg.evaluator.CheckOrderRisk(newPosition, metrics) {
		return reject("order would breach a configured risk limit")
	}

	score := riskScore(metrics, rg.evaluator.Limits())
	log.Info().
		Str("order_id", req.Order.OrderID).
		Float64("risk_score", score).
		Msg("✅ order approved by risk gate")

	return OrderRiskDecision{Approved: true, RiskScore: score}
}

// riskScore maps how close each Greek and margin utilization sits to its
// configured limit into a single 0-100 advisory figure: the maximum of the
// per-dimension utilization ratios, clamped.
func riskScore(metrics types.RiskMetrics, limits types.RiskLimits) float64 {
	ratios := []float64{
		math.Abs(metrics.TotalDelta) / limits.MaxDelta,
		math.Abs(metrics.TotalGamma) / limits.MaxGamma,
		math.Abs(metrics.TotalVega) / limits.MaxVega,
		math.Abs(metrics.TotalTheta) / limits.MaxTheta,
		metrics.MarginUtilization(),
	}
	worst := 0.0
	for _, r := range ratios {
		if r > worst {
			worst = r
		}
	}
	score := worst * 100
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// String implements fmt.Stringer for OrderRiskDecision, handy for log
// lines that want a single field.
func (d OrderRiskDecision) String() string {
	if d.Approved {
		return fmt.Sprintf("approved(score=%.1f)", d.RiskScore)
	}
	return fmt.Sprintf("rejected(%s)", d.RejectionMsg)
}
