package flow

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/pkg/config"
)

var base = time.Date(2025, 3, 14, 15, 30, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("p%d", n)
	}
}

func optTrade(id, underlying string, ct models.ContractType, strike, premium float64, size int64, at time.Time) *models.OptionsTrade {
	return &models.OptionsTrade{
		ID:           id,
		Symbol:       fmt.Sprintf("%s-%s-%.0f", underlying, ct, strike),
		Underlying:   underlying,
		ContractType: ct,
		Strike:       strike,
		Expiration:   base.AddDate(0, 1, 0),
		Premium:      premium,
		Size:         size,
		Price:        premium,
		Timestamp:    at,
		Venue:        "CBOE",
		Side:         models.SideAsk,
	}
}

func TestSentimentFor(t *testing.T) {
	d := decimal.NewFromInt
	cases := []struct {
		call, put int64
		want      models.Sentiment
	}{
		{0, 0, models.SentimentNeutral},
		{100, 0, models.SentimentVeryBullish},
		{200, 100, models.SentimentVeryBullish},
		{150, 100, models.SentimentBullish},
		{125, 100, models.SentimentBullish},
		{100, 100, models.SentimentNeutral},
		{80, 100, models.SentimentBearish},
		{60, 100, models.SentimentBearish},
		{50, 100, models.SentimentVeryBearish},
		{0, 100, models.SentimentVeryBearish},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SentimentFor(d(tc.call), d(tc.put)), "call=%d put=%d", tc.call, tc.put)
	}
}

func TestAggregator_FlowBySymbol(t *testing.T) {
	agg := NewOrderFlowAggregator(config.DefaultEngine().Aggregator, WithClock(fixedClock(base.Add(time.Minute))))

	agg.AddTrade(optTrade("1", "AAPL", models.Call, 180, 12.50, 100, base))
	agg.AddTrade(optTrade("2", "AAPL", models.Call, 185, 1.10, 30, base))
	agg.AddTrade(optTrade("3", "AAPL", models.Put, 170, 0.95, 20, base))
	agg.AddTrade(optTrade("4", "MSFT", models.Put, 400, 3.00, 10, base))

	f := agg.FlowBySymbol("AAPL")
	assert.Equal(t, 3, f.TotalTrades)
	assert.Equal(t, 2, f.Calls.Trades)
	assert.Equal(t, int64(130), f.Calls.Contracts)
	assert.InDelta(t, 128300.0, f.Calls.Premium, 1e-9)
	assert.InDelta(t, 1900.0, f.Puts.Premium, 1e-9)
	assert.Equal(t, f.Calls.Premium+f.Puts.Premium, f.TotalPremium)
	assert.Equal(t, models.SentimentVeryBullish, f.Sentiment)
	assert.Equal(t, 1, f.Institutional)
	assert.Equal(t, 125000.0, f.LargestPremium)

	again := agg.FlowBySymbol("AAPL")
	assert.Equal(t, f, again)

	empty := agg.FlowBySymbol("TSLA")
	assert.Zero(t, empty.TotalTrades)
	assert.Equal(t, models.SentimentNeutral, empty.Sentiment)
}

func TestAggregator_ExactTotals(t *testing.T) {
	agg := NewOrderFlowAggregator(config.DefaultEngine().Aggregator, WithClock(fixedClock(base)))
	for i := 0; i < 1000; i++ {
		agg.AddTrade(optTrade(fmt.Sprint(i), "SPY", models.Call, 500, 0.01, 1, base))
		agg.AddTrade(optTrade(fmt.Sprint(i), "SPY", models.Put, 500, 0.07, 3, base))
	}
	f := agg.FlowBySymbol("SPY")
	assert.Equal(t, 1000.0, f.Calls.Premium)
	assert.Equal(t, 21000.0, f.Puts.Premium)
	assert.Equal(t, 22000.0, f.TotalPremium)
	assert.Equal(t, -20000.0, f.NetPremium)
}

func TestAggregator_FlowByStrike(t *testing.T) {
	agg := NewOrderFlowAggregator(config.DefaultEngine().Aggregator, WithClock(fixedClock(base)))
	agg.AddTrade(optTrade("1", "AAPL", models.Call, 190, 1, 10, base))
	agg.AddTrade(optTrade("2", "AAPL", models.Put, 170, 1, 10, base))
	agg.AddTrade(optTrade("3", "AAPL", models.Call, 180, 1, 10, base))
	agg.AddTrade(optTrade("4", "AAPL", models.Put, 180, 1, 10, base))

	strikes := agg.FlowByStrike("AAPL")
	require.Len(t, strikes, 3)
	assert.Equal(t, []float64{170, 180, 190}, []float64{strikes[0].Strike, strikes[1].Strike, strikes[2].Strike})
	assert.Equal(t, models.SentimentNeutral, strikes[1].Sentiment)
	assert.Equal(t, models.SentimentVeryBearish, strikes[0].Sentiment)
}

func TestAggregator_WindowEviction(t *testing.T) {
	now := base
	agg := NewOrderFlowAggregator(config.DefaultEngine().Aggregator, WithClock(func() time.Time { return now }))
	agg.AddTrade(optTrade("old", "AAPL", models.Call, 180, 20, 100, base))
	agg.AddTrade(optTrade("new", "AAPL", models.Call, 180, 20, 100, base.Add(50*time.Minute)))

	now = base.Add(70 * time.Minute)
	f := agg.FlowBySymbol("AAPL")
	assert.Equal(t, 1, f.TotalTrades)

	inst := agg.InstitutionalSummary()
	assert.Equal(t, 1, inst.TotalTrades)

	assert.Equal(t, 1, agg.Expire(base.Add(3*time.Hour)))
	assert.Empty(t, agg.Trades("AAPL"))
}

func TestAggregator_InstitutionalSummary(t *testing.T) {
	agg := NewOrderFlowAggregator(config.DefaultEngine().Aggregator, WithClock(fixedClock(base)))
	agg.AddTrade(optTrade("1", "AAPL", models.Call, 180, 10, 200, base)) // 200k
	agg.AddTrade(optTrade("2", "MSFT", models.Put, 400, 5, 300, base))   // 150k
	agg.AddTrade(optTrade("3", "TSLA", models.Call, 250, 1, 10, base))   // 1k, retail

	s := agg.InstitutionalSummary()
	assert.Equal(t, 2, s.TotalTrades)
	assert.Equal(t, 350000.0, s.TotalPremium)
	assert.Equal(t, int64(500), s.TotalContracts)
	assert.Equal(t, []string{"AAPL", "MSFT"}, s.Symbols)
	assert.Equal(t, models.SentimentBullish, s.Sentiment)
}

func aggressiveCall(id string, at time.Time) *models.OptionsTrade {
	tr := optTrade(id, "GME", models.Call, 30, 2.50, 300, at)
	tr.IsAggressive = true
	tr.IsOpening = true
	return tr
}

func TestFlowAnalyzer_AggressiveRun(t *testing.T) {
	fa := NewFlowAnalyzer(config.DefaultEngine().Flow, WithIDGenerator(seqIDs()))

	var emitted []models.FlowPattern
	for i := 0; i < 4; i++ {
		emitted = append(emitted, fa.AnalyzeTrade(aggressiveCall(fmt.Sprint(i), base.Add(time.Duration(i)*time.Second)))...)
	}
	require.Len(t, emitted, 1)
	p := emitted[0]
	assert.Equal(t, models.PatternAggressiveCallBuying, p.Type)
	assert.Equal(t, models.SignalBullish, p.Signal)
	assert.Equal(t, 4, p.TradeCount)
	assert.Equal(t, 300000.0, p.TotalPremium)
	assert.Equal(t, int64(1200), p.TotalContracts)
	assert.InDelta(t, 0.6, p.Confidence, 1e-9)
	assert.Equal(t, "p1", p.ID)

	// the fifth trade stays on the same level
	assert.Empty(t, fa.AnalyzeTrade(aggressiveCall("4", base.Add(5*time.Second))))
}

func TestFlowAnalyzer_RunBrokenByOppositeSide(t *testing.T) {
	fa := NewFlowAnalyzer(config.DefaultEngine().Flow)
	for i := 0; i < 3; i++ {
		fa.AnalyzeTrade(aggressiveCall(fmt.Sprint(i), base))
	}
	put := optTrade("put", "GME", models.Put, 25, 0.5, 10, base)
	put.IsAggressive = true
	fa.AnalyzeTrade(put)

	// three calls would have crossed the threshold without the put
	assert.Empty(t, fa.AnalyzeTrade(aggressiveCall("x", base)))
}

func TestFlowAnalyzer_PassiveTradesIgnoredByRun(t *testing.T) {
	fa := NewFlowAnalyzer(config.DefaultEngine().Flow)
	for i := 0; i < 3; i++ {
		fa.AnalyzeTrade(aggressiveCall(fmt.Sprint(i), base))
		passive := optTrade("m", "GME", models.Put, 25, 0.5, 10, base)
		passive.Side = models.SideMid
		fa.AnalyzeTrade(passive)
	}
	patterns := fa.AnalyzeTrade(aggressiveCall("last", base))
	require.Len(t, patterns, 1)
	assert.Equal(t, models.PatternAggressiveCallBuying, patterns[0].Type)
}

func TestFlowAnalyzer_Institutional(t *testing.T) {
	fa := NewFlowAnalyzer(config.DefaultEngine().Flow)

	var inst []models.FlowPattern
	for i := 0; i < 15; i++ {
		for _, p := range fa.AnalyzeTrade(aggressiveCall(fmt.Sprint(i), base.Add(time.Duration(i)*time.Second))) {
			if p.Type == models.PatternInstitutionalFlow {
				inst = append(inst, p)
			}
		}
	}
	require.Len(t, inst, 1)
	assert.Equal(t, models.SignalBullish, inst[0].Signal)
	assert.Equal(t, 14, inst[0].TradeCount)
	assert.GreaterOrEqual(t, inst[0].TotalPremium, 1_000_000.0)
}

func TestFlowAnalyzer_WindowAndSummary(t *testing.T) {
	fa := NewFlowAnalyzer(config.DefaultEngine().Flow)
	fa.AnalyzeTrade(optTrade("1", "AAPL", models.Call, 180, 1, 10, base))
	fa.AnalyzeTrade(optTrade("2", "AAPL", models.Call, 180, 1, 10, base.Add(20*time.Minute)))

	s := fa.FlowSummary("AAPL")
	assert.Equal(t, 1, s.TradeCount)
	assert.Equal(t, 1000.0, s.TotalPremium)
	assert.Equal(t, s, fa.FlowSummary("AAPL"))

	fa.Expire(base.Add(time.Hour))
	assert.Zero(t, fa.FlowSummary("AAPL").TradeCount)
}

func TestFlowAnalyzer_RecentPatternsBounded(t *testing.T) {
	cfg := config.DefaultEngine().Flow
	cfg.MaxPatterns = 3
	cfg.AggressiveCallPremium = 1000
	fa := NewFlowAnalyzer(cfg, WithIDGenerator(seqIDs()))

	for i := 0; i < 10; i++ {
		tr := optTrade(fmt.Sprint(i), "AAPL", models.Call, 180, 1, 10, base)
		tr.IsAggressive = true
		fa.AnalyzeTrade(tr)
	}
	recent := fa.RecentPatterns(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "p10", recent[0].ID)
	assert.Len(t, fa.RecentPatterns(2), 2)
}

func TestConfidenceBounds(t *testing.T) {
	for _, n := range []int{0, 1, 5, 10, 100} {
		for _, prem := range []float64{0, 1e3, 1e6, 1e9} {
			for _, r := range []float64{0, 0.5, 1} {
				c := Confidence(n, prem, 250000, r)
				assert.GreaterOrEqual(t, c, 0.0)
				assert.LessOrEqual(t, c, 1.0)
			}
		}
	}
}
