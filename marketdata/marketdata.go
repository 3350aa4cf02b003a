// Package marketdata validates option market-data snapshots and, absent a
// real feed, synthesizes plausible ones for exercising the pricing, risk,
// and pipeline layers end to end. spec.md §1 treats the real market-data
// fetcher as an external collaborator; this package is the transport-free
// stand-in spec.md §9's data flow names as the risk evaluator's input.
package marketdata

import (
	"errors"
	"math/rand"
	"time"

	"github.com/quantlab/optionsim/pricing"
	"github.com/quantlab/optionsim/types"
)

var (
	// ErrInvalidData is returned by Validate when a record fails its
	// structural checks.
	ErrInvalidData = errors.New("marketdata: invalid option data")
)

// Validate checks the structural invariants spec.md §3 implies for a
// quoted OptionData record: a non-negative bid/ask spread, a positive
// strike, and a non-empty identity.
func Validate(d types.OptionData) error {
	if d.Underlying == "" || d.OptionType == "" || d.Expiry == "" {
		return ErrInvalidData
	}
	if d.Strike <= 0 {
		return ErrInvalidData
	}
	if d.Bid < 0 || d.Ask < 0 || d.Bid > d.Ask {
		return ErrInvalidData
	}
	if d.ImpliedVol < pricing.MinVol || d.ImpliedVol > pricing.MaxVol {
		return ErrInvalidData
	}
	return nil
}

// SyntheticFeed generates OptionData records by pricing a fixed option
// chain off a random-walking underlying spot, so the rest of the system
// can be exercised without a network dependency.
type SyntheticFeed struct {
	underlying string
	spot       float64
	rate       float64
	baseVol    float64
	chain      []chainEntry
}

type chainEntry struct {
	optionType string
	strike     float64
	expiry     string
	yearsOut   float64
}

// NewSyntheticFeed builds a feed quoting a call and a put at each strike in
// strikes, all expiring in yearsOut years from now, around an initial spot.
func NewSyntheticFeed(underlying string, initialSpot, riskFreeRate, baseVol float64, strikes []float64, yearsOut float64) *SyntheticFeed {
	expiry := time.Now().AddDate(0, 0, int(yearsOut*365.25)).Format("2006-01-02")
	chain := make([]chainEntry, 0, len(strikes)*2)
	for _, k := range strikes {
		chain = append(chain,
			chainEntry{optionType: "CALL", strike: k, expiry: expiry, yearsOut: yearsOut},
			chainEntry{optionType: "PUT", strike: k, expiry: expiry, yearsOut: yearsOut},
		)
	}
	return &SyntheticFeed{
		underlying: underlying,
		spot:       initialSpot,
		rate:       riskFreeRate,
		baseVol:    baseVol,
		chain:      chain,
	}
}

// Tick advances the underlying spot by a small random walk step and
// returns a freshly priced OptionData snapshot for every entry in the
// chain. Records that fail to price (e.g. a numeric edge case near
// expiry) are skipped.
func (f *SyntheticFeed) Tick() []types.OptionData {
	f.spot *= 1 + (rand.Float64()*2-1)*0.01

	out := make([]types.OptionData, 0, len(f.chain))
	for _, entry := range f.chain {
		vol := f.baseVol * (1 + (rand.Float64()*2-1)*0.05)
		params := types.OptionParameters{
			Spot:         f.spot,
			Strike:       entry.strike,
			RiskFreeRate: f.rate,
			Volatility:   vol,
			TimeToExpiry: entry.yearsOut,
			IsCall:       entry.optionType == "CALL",
		}
		mid, err := pricing.Price(params)
		if err != nil {
			continue
		}
		greeks, err := pricing.CalculateGreeks(params)
		if err != nil {
			continue
		}

		spread := mid * 0.02
		out = append(out, types.OptionData{
			Underlying: f.underlying,
			OptionType: entry.optionType,
			Strike:     entry.strike,
			Expiry:     entry.expiry,
			Bid:        mid - spread/2,
			Ask:        mid + spread/2,
			LastPrice:  mid,
			Volume:     int64(rand.Intn(500)),
			ImpliedVol: vol,
			Greeks:     greeks,
		})
	}
	return out
}

// Spot returns the feed's current underlying price.
func (f *SyntheticFeed) Spot() float64 { return f.spot }

// Underlying returns the ticker symbol this feed quotes.
func (f *SyntheticFeed) Underlying() string { return f.underlying }
