// Package types holds the data model shared across the pricing, oms, engine,
// and risk packages. Keeping them here (rather than in any one package)
// avoids import cycles between oms and engine, which both need OptionOrder.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ORDER / POSITION DATA MODEL
// ═══════════════════════════════════════════════════════════════════════════════

// OrderSide is the trading intent of an order.
type OrderSide string

const (
	BuyToOpen   OrderSide = "BUY_TO_OPEN"
	SellToOpen  OrderSide = "SELL_TO_OPEN"
	BuyToClose  OrderSide = "BUY_TO_CLOSE"
	SellToClose OrderSide = "SELL_TO_CLOSE"
)

// OrderType selects how the execution engine decides a fill.
type OrderType string

const (
	Market    OrderType = "MARKET"
	Limit     OrderType = "LIMIT"
	Stop      OrderType = "STOP"
	StopLimit OrderType = "STOP_LIMIT"
)

// OrderStatus is the lifecycle state of an OptionOrder.
type OrderStatus string

const (
	Pending   OrderStatus = "PENDING"
	Filled    OrderStatus = "FILLED"
	Cancelled OrderStatus = "CANCELLED"
	Rejected  OrderStatus = "REJECTED"
)

// OptionParameters is the pricing kernel's input record. Spot, strike, and
// volatility bounds are enforced by pricing.IsValid, not here.
type OptionParameters struct {
	Spot         float64
	Strike       float64
	RiskFreeRate float64
	Volatility   float64
	TimeToExpiry float64
	IsCall       bool
}

// Greeks reports per-contract price sensitivities. Vega and Rho are
// pre-scaled by 0.01 (price change per one-percentage-point move). Theta is
// per year.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	Rho   float64
}

// OptionOrder is a single client order. OrderID is empty until OMS.Submit
// assigns one. Quantity is signed: positive buys, negative sells, and its
// sign drives the execution engine's fill-price/limit-comparison logic
// (spec.md §4.3), independent of Side, which drives OMS position accounting
// (spec.md §4.2). Callers must keep the two in agreement; OMS does not
// derive one from the other.
type OptionOrder struct {
	OrderID    string
	Underlying string
	OptionType string // "CALL" or "PUT"
	Strike     decimal.Decimal
	Expiry     string // ISO date, YYYY-MM-DD
	Side       OrderSide
	OrderType  OrderType
	LimitPrice decimal.Decimal
	StopPrice  decimal.Decimal
	Quantity   int64
	Status     OrderStatus
	IsActive   bool
	SubmitTime time.Time
	FillTime   time.Time
	FillPrice  decimal.Decimal
}

// PositionKey identifies an OptionPosition. Equality and hashing are
// structural over all four fields, which a comparable Go struct gets for
// free as a map key.
type PositionKey struct {
	Underlying string
	OptionType string
	Strike     decimal.Decimal
	Expiry     string
}

// OptionPosition is the OMS's aggregated view of fills for one PositionKey.
// A position with Quantity == 0 must never be stored; it is deleted on the
// fill that zeroes it.
type OptionPosition struct {
	Key          PositionKey
	Quantity     float64
	TimeToExpiry float64
}

// IsLong reports whether the position is net long.
func (p OptionPosition) IsLong() bool { return p.Quantity > 0 }

// IsShort reports whether the position is net short.
func (p OptionPosition) IsShort() bool { return p.Quantity < 0 }

// AbsQuantity returns the unsigned contract count.
func (p OptionPosition) AbsQuantity() float64 {
	if p.Quantity < 0 {
		return -p.Quantity
	}
	return p.Quantity
}

// IsValid reports whether the position has a usable key and a non-negative
// remaining time to expiry.
func (p OptionPosition) IsValid() bool {
	return p.Key.Underlying != "" && p.Key.Strike.IsPositive() && p.TimeToExpiry >= 0
}

// ═══════════════════════════════════════════════════════════════════════════════
// MARKET DATA
// ═══════════════════════════════════════════════════════════════════════════════

// OptionData is a single market quote for one option contract.
type OptionData struct {
	Underlying string
	OptionType string
	Strike     float64
	Expiry     string
	Bid        float64
	Ask        float64
	LastPrice  float64
	Volume     int64
	ImpliedVol float64
	Greeks
}

// Mid returns the midpoint of bid and ask.
func (d OptionData) Mid() float64 { return (d.Bid + d.Ask) / 2 }

// Spread returns the bid-ask spread.
func (d OptionData) Spread() float64 { return d.Ask - d.Bid }

// IsValid checks the field-level invariants spec.md §3 requires of a quote.
func (d OptionData) IsValid() bool {
	return d.Underlying != "" &&
		(d.OptionType == "CALL" || d.OptionType == "PUT") &&
		d.Strike > 0 &&
		d.Expiry != "" &&
		d.Bid >= 0 &&
		d.Ask >= d.Bid &&
		d.LastPrice >= 0 &&
		d.Volume >= 0 &&
		d.ImpliedVol >= 0
}

// ═══════════════════════════════════════════════════════════════════════════════
// RISK
// ═══════════════════════════════════════════════════════════════════════════════

// RiskMetrics is the aggregate risk snapshot a risk.Evaluator computes.
type RiskMetrics struct {
	TotalDelta        float64
	TotalGamma        float64
	TotalTheta        float64
	TotalVega         float64
	TotalRho          float64
	PortfolioValue    float64
	ValueAtRisk       float64
	MarginRequirement float64
}

// MarginUtilization is MarginRequirement as a fraction of PortfolioValue.
// A zero portfolio value with a non-zero margin requirement is treated as
// fully utilized so the margin-call predicate still trips.
func (m RiskMetrics) MarginUtilization() float64 {
	if m.PortfolioValue == 0 {
		if m.MarginRequirement == 0 {
			return 0
		}
		return 1
	}
	return m.MarginRequirement / m.PortfolioValue
}

// IsExcessiveRisk implements the excessive-risk predicate of spec.md §3.
func (m RiskMetrics) IsExcessiveRisk() bool {
	return abs(m.TotalDelta) > 100 || abs(m.TotalGamma) > 10 || m.MarginUtilization() > 0.8
}

// NeedsRebalance implements the rebalance-needed predicate of spec.md §3.
func (m RiskMetrics) NeedsRebalance() bool {
	return abs(m.TotalDelta) > 50 || abs(m.TotalGamma) > 5
}

// MarginCallImminent implements the margin-call-imminent predicate of
// spec.md §3.
func (m RiskMetrics) MarginCallImminent() bool {
	return m.MarginUtilization() > 0.9
}

// RiskLimits bounds the portfolio-level Greeks and notional a risk.Evaluator
// will approve. Defaults match spec.md §3.
type RiskLimits struct {
	MaxDelta        float64
	MaxGamma        float64
	MaxVega         float64
	MaxTheta        float64
	MaxPositionSize float64
	MaxLoss         float64
}

// DefaultRiskLimits returns the spec.md §3 default limits.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxDelta:        1000,
		MaxGamma:        100,
		MaxVega:         1000,
		MaxTheta:        500,
		MaxPositionSize: 1e6,
		MaxLoss:         1e5,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
