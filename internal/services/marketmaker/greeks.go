package marketmaker

import (
	"math"
	"time"

	"OptionsFlow/internal/domain/models"
)

const (
	daysPerYear = 365.0
	minExpiry   = 24 * time.Hour
)

// Greeks are per-contract sensitivities from the moneyness heuristic. They
// keep the qualitative shape of a real pricer: ATM gamma peaks, ITM call
// delta exceeds OTM call delta, put delta is never positive.
type Greeks struct {
	Delta float64
	Gamma float64
	Vega  float64
	Theta float64
}

// Moneyness is (spot - strike) / spot; positive means a call is in the money.
func Moneyness(spot, strike float64) float64 {
	if spot <= 0 {
		return 0
	}
	return (spot - strike) / spot
}

// Estimator evaluates the heuristic with fixed shape parameters.
type Estimator struct {
	DeltaSlope float64
	GammaPeak  float64
	GammaWidth float64
	DefaultIV  float64
}

func (e Estimator) bell(m float64) float64 {
	z := m / e.GammaWidth
	return math.Exp(-0.5 * z * z)
}

func (e Estimator) CallDelta(m float64) float64 {
	return math.Max(0, math.Min(1, 0.5+e.DeltaSlope*m))
}

func (e Estimator) PutDelta(m float64) float64 {
	return e.CallDelta(m) - 1
}

func (e Estimator) Gamma(m float64) float64 {
	return e.GammaPeak * e.bell(m)
}

// Estimate returns the greeks of one contract of t given a spot price.
func (e Estimator) Estimate(t *models.OptionsTrade, spot float64) Greeks {
	m := Moneyness(spot, t.Strike)

	iv := e.DefaultIV
	if t.ImpliedVolatility != nil && *t.ImpliedVolatility > 0 {
		iv = *t.ImpliedVolatility
	}
	tte := t.Expiration.Sub(t.Timestamp)
	if tte < minExpiry {
		tte = minExpiry
	}
	years := tte.Hours() / 24 / daysPerYear
	bell := e.bell(m)

	g := Greeks{
		Gamma: e.GammaPeak * bell,
		// per vol point, scaled by the ATM-ness of the strike
		Vega: 0.004 * spot * math.Sqrt(years) * bell,
		// per calendar day
		Theta: -(spot * iv * 0.4 * bell) / (2 * math.Sqrt(years)) / daysPerYear,
	}
	if t.ContractType == models.Put {
		g.Delta = e.PutDelta(m)
	} else {
		g.Delta = e.CallDelta(m)
	}
	return g
}
