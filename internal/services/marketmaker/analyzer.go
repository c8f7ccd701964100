package marketmaker

import (
	"math"
	"time"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/pkg/config"
)

// Analyzer estimates aggregate dealer exposure assuming dealers take the
// other side of customer-initiated flow.
type Analyzer struct {
	cfg config.MarketMakerConfig
	est Estimator
	now func() time.Time
}

type Option func(*Analyzer)

func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

func NewAnalyzer(cfg config.MarketMakerConfig, opts ...Option) *Analyzer {
	a := &Analyzer{
		cfg: cfg,
		est: Estimator{
			DeltaSlope: cfg.DeltaSlope,
			GammaPeak:  cfg.GammaPeak,
			GammaWidth: cfg.GammaWidth,
			DefaultIV:  cfg.DefaultIV,
		},
		now: time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Direction is +1 for customer buying, -1 for customer selling and 0 for a
// passive mid print.
func Direction(t *models.OptionsTrade) float64 {
	switch {
	case t.IsCustomerBuy():
		return 1
	case t.Side == models.SideBid:
		return -1
	default:
		return 0
	}
}

// CalculatePosition sums dealer-side greeks over trades of symbol. A missing
// spot falls back to the strike; missing spot or open interest lowers
// confidence.
func (a *Analyzer) CalculatePosition(symbol string, trades []*models.OptionsTrade) models.MarketMakerPosition {
	pos := models.MarketMakerPosition{
		Symbol:        symbol,
		CalculatedAt:  a.now(),
		PositionBias:  models.BiasNeutral,
		HedgePressure: models.PressureNeutral,
	}

	callOI := make(map[string]int64)
	putOI := make(map[string]int64)
	missingSpot, missingOI := 0, 0

	for _, t := range trades {
		if t.Underlying != symbol {
			continue
		}
		pos.TradeCount++

		spot := t.Strike
		if t.UnderlyingPrice != nil && *t.UnderlyingPrice > 0 {
			spot = *t.UnderlyingPrice
		} else {
			missingSpot++
		}
		if t.OpenInterest == nil {
			missingOI++
		}

		g := a.est.Estimate(t, spot)
		w := -Direction(t) * float64(t.Size) * models.ContractMultiplier

		pos.NetDelta += w * g.Delta
		pos.NetVega += w * g.Vega
		pos.NetTheta += w * g.Theta
		if t.ContractType == models.Call {
			pos.CallGammaContribution += w * g.Gamma
			pos.CallVolume += t.Size
			trackOI(callOI, t)
		} else {
			pos.PutGammaContribution += w * g.Gamma
			pos.PutVolume += t.Size
			trackOI(putOI, t)
		}
	}
	pos.NetGamma = pos.CallGammaContribution + pos.PutGammaContribution
	pos.CallOpenInterest = sumOI(callOI)
	pos.PutOpenInterest = sumOI(putOI)

	if pos.CallVolume > 0 {
		pos.PutCallVolumeRatio = float64(pos.PutVolume) / float64(pos.CallVolume)
	}

	switch {
	case pos.NetGamma < 0:
		pos.PositionBias = models.BiasShortGamma
	case pos.NetGamma > 0:
		pos.PositionBias = models.BiasLongGamma
	}
	// Hedging only chases price when gamma and delta point the same way:
	// short gamma while short delta buys into rallies, long gamma while long
	// delta sells into them. Mixed books stay neutral.
	switch {
	case pos.PositionBias == models.BiasShortGamma && pos.NetDelta < -a.cfg.NeutralDelta:
		pos.HedgePressure = models.PressureBuy
	case pos.PositionBias == models.BiasLongGamma && pos.NetDelta > a.cfg.NeutralDelta:
		pos.HedgePressure = models.PressureSell
	}

	pos.Confidence = confidence(pos.TradeCount, missingSpot, missingOI)
	return pos
}

// IsGammaSqueezeSetup reports dealer positioning that forces buying into a
// rally.
func (a *Analyzer) IsGammaSqueezeSetup(pos models.MarketMakerPosition) bool {
	return pos.PositionBias == models.BiasShortGamma &&
		pos.HedgePressure == models.PressureBuy &&
		math.Abs(pos.NetGamma) >= a.cfg.GammaSqueezeMinGamma
}

// trackOI keeps the latest snapshot per contract so repeated prints of one
// contract are not double counted.
func trackOI(m map[string]int64, t *models.OptionsTrade) {
	if t.OpenInterest != nil {
		m[t.Symbol] = *t.OpenInterest
	}
}

func sumOI(m map[string]int64) int64 {
	var total int64
	for _, v := range m {
		total += v
	}
	return total
}

func confidence(n, missingSpot, missingOI int) float64 {
	if n == 0 {
		return 0
	}
	sample := math.Min(1, 0.5+float64(n)/20)
	quality := 1 - 0.5*float64(missingSpot)/float64(n) - 0.3*float64(missingOI)/float64(n)
	return math.Max(0, math.Min(1, sample*quality))
}
