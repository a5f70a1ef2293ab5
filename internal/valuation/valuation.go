// Package valuation holds the simulated pricing rules. Prices are not market
// data: every call draws a fresh multiplier, so two valuations of the same
// position differ.
package valuation

import (
	"math/rand/v2"
	"sync"

	"github.com/shopspring/decimal"
)

// Multiplier bounds. An execution price lands within ±5% of the company's
// base price; a display price lands between 2.28x and 2.63x the cost basis.
var (
	ExecutionLow  = decimal.RequireFromString("0.95")
	ExecutionHigh = decimal.RequireFromString("1.05")
	DisplayLow    = decimal.RequireFromString("2.28")
	DisplayHigh   = decimal.RequireFromString("2.63")
)

// pricePlaces is the precision every derived price is rounded to.
const pricePlaces = 2

// Source yields uniform values in [0, 1).
type Source interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// Pricer computes simulated prices from a random source.
type Pricer struct {
	mu  sync.Mutex
	src Source
}

// NewPricer returns a Pricer drawing from src, or from the process-wide
// generator when src is nil.
func NewPricer(src Source) *Pricer {
	if src == nil {
		src = globalSource{}
	}
	return &Pricer{src: src}
}

func (p *Pricer) uniform(low, high decimal.Decimal) decimal.Decimal {
	p.mu.Lock()
	u := p.src.Float64()
	p.mu.Unlock()
	return low.Add(high.Sub(low).Mul(decimal.NewFromFloat(u)))
}

// ExecutionPrice is the per-share price a buy executes at.
func (p *Pricer) ExecutionPrice(basePrice decimal.Decimal) decimal.Decimal {
	return basePrice.Mul(p.uniform(ExecutionLow, ExecutionHigh)).Round(pricePlaces)
}

// DisplayPrice is the per-share price shown for, and paid on sale of, a
// position with the given cost basis.
func (p *Pricer) DisplayPrice(costBasis decimal.Decimal) decimal.Decimal {
	return costBasis.Mul(p.uniform(DisplayLow, DisplayHigh)).Round(pricePlaces)
}

// Valuation is a point-in-time view of a holding at a display price.
type Valuation struct {
	DisplayPrice  decimal.Decimal `json:"current_price"`
	MarketValue   decimal.Decimal `json:"current_value"`
	Profit        decimal.Decimal `json:"profit"`
	ProfitPercent decimal.Decimal `json:"profit_percent"`
}

// Value prices shares of a holding with the given cost basis.
func (p *Pricer) Value(costBasis decimal.Decimal, shares int64) Valuation {
	return At(costBasis, p.DisplayPrice(costBasis), shares)
}

// At computes a Valuation for a known display price.
func At(costBasis, displayPrice decimal.Decimal, shares int64) Valuation {
	n := decimal.NewFromInt(shares)
	v := Valuation{
		DisplayPrice:  displayPrice,
		MarketValue:   displayPrice.Mul(n),
		Profit:        displayPrice.Sub(costBasis).Mul(n),
		ProfitPercent: decimal.Zero,
	}
	if !costBasis.IsZero() {
		v.ProfitPercent = displayPrice.Sub(costBasis).Div(costBasis).Mul(decimal.NewFromInt(100)).Round(pricePlaces)
	}
	return v
}

// WeightedAverage merges addShares bought for addCost into a holding of
// oldShares at oldPrice and returns the new per-share cost basis.
func WeightedAverage(oldPrice decimal.Decimal, oldShares int64, addCost decimal.Decimal, addShares int64) decimal.Decimal {
	total := oldPrice.Mul(decimal.NewFromInt(oldShares)).Add(addCost)
	return total.DivRound(decimal.NewFromInt(oldShares+addShares), 8)
}
