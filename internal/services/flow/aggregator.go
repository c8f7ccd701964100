package flow

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/pkg/config"
)

// Sentiment cutoffs on the call/put premium ratio.
const (
	veryBullishRatio = 2.0
	bullishRatio     = 1.25
	neutralRatio     = 0.8
	bearishRatio     = 0.5
)

type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() string
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator replaces the pattern id source.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

// OrderFlowAggregator keeps every trade inside the aggregation window, split
// by underlying, plus the institutional-sized subset.
type OrderFlowAggregator struct {
	cfg config.AggregatorConfig
	now func() time.Time

	mu            sync.Mutex
	bySymbol      map[string][]*models.OptionsTrade
	institutional []*models.OptionsTrade
}

func NewOrderFlowAggregator(cfg config.AggregatorConfig, opts ...Option) *OrderFlowAggregator {
	o := buildOptions(opts)
	return &OrderFlowAggregator{
		cfg:      cfg,
		now:      o.now,
		bySymbol: make(map[string][]*models.OptionsTrade),
	}
}

func (a *OrderFlowAggregator) AddTrade(t *models.OptionsTrade) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.bySymbol[t.Underlying] = append(a.bySymbol[t.Underlying], t)
	if a.IsInstitutional(t) {
		a.institutional = append(a.institutional, t)
	}
}

func (a *OrderFlowAggregator) IsInstitutional(t *models.OptionsTrade) bool {
	return t.Notional() >= a.cfg.InstitutionalPremium
}

// Trades returns a snapshot of the windowed trades for an underlying.
func (a *OrderFlowAggregator) Trades(symbol string) []*models.OptionsTrade {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refresh(a.now())
	return append([]*models.OptionsTrade(nil), a.bySymbol[symbol]...)
}

// FlowBySymbol summarises the windowed flow of one underlying.
func (a *OrderFlowAggregator) FlowBySymbol(symbol string) models.SymbolFlow {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	a.refresh(now)

	out := models.SymbolFlow{
		Symbol:      symbol,
		WindowStart: now.Add(-a.cfg.Window),
		WindowEnd:   now,
	}
	var calls, puts sideTotals
	for _, t := range a.bySymbol[symbol] {
		if t.ContractType == models.Call {
			calls.add(t)
		} else {
			puts.add(t)
		}
		if a.IsInstitutional(t) {
			out.Institutional++
		}
		if n := t.Notional(); n > out.LargestPremium {
			out.LargestPremium = n
		}
	}

	out.Calls, out.Puts = calls.flow(), puts.flow()
	out.TotalTrades = calls.trades + puts.trades
	out.TotalPremium = calls.premium.Add(puts.premium).InexactFloat64()
	out.NetPremium = calls.premium.Sub(puts.premium).InexactFloat64()
	out.CallPutRatio = ratio(calls.premium, puts.premium)
	out.Sentiment = SentimentFor(calls.premium, puts.premium)
	return out
}

// FlowByStrike partitions the windowed flow of one underlying by strike,
// ascending.
func (a *OrderFlowAggregator) FlowByStrike(symbol string) []models.StrikeFlow {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refresh(a.now())

	type pair struct{ calls, puts sideTotals }
	strikes := make(map[float64]*pair)
	for _, t := range a.bySymbol[symbol] {
		p, ok := strikes[t.Strike]
		if !ok {
			p = &pair{}
			strikes[t.Strike] = p
		}
		if t.ContractType == models.Call {
			p.calls.add(t)
		} else {
			p.puts.add(t)
		}
	}

	out := make([]models.StrikeFlow, 0, len(strikes))
	for strike, p := range strikes {
		out = append(out, models.StrikeFlow{
			Strike:       strike,
			Calls:        p.calls.flow(),
			Puts:         p.puts.flow(),
			TotalPremium: p.calls.premium.Add(p.puts.premium).InexactFloat64(),
			Sentiment:    SentimentFor(p.calls.premium, p.puts.premium),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out
}

// InstitutionalSummary aggregates institutional-sized trades across all
// underlyings.
func (a *OrderFlowAggregator) InstitutionalSummary() models.InstitutionalFlow {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refresh(a.now())

	var calls, puts sideTotals
	symbols := make(map[string]struct{})
	for _, t := range a.institutional {
		if t.ContractType == models.Call {
			calls.add(t)
		} else {
			puts.add(t)
		}
		symbols[t.Underlying] = struct{}{}
	}

	out := models.InstitutionalFlow{
		TotalTrades:    calls.trades + puts.trades,
		TotalPremium:   calls.premium.Add(puts.premium).InexactFloat64(),
		CallPremium:    calls.premium.InexactFloat64(),
		PutPremium:     puts.premium.InexactFloat64(),
		TotalContracts: calls.contracts + puts.contracts,
		Symbols:        make([]string, 0, len(symbols)),
		Sentiment:      SentimentFor(calls.premium, puts.premium),
	}
	for s := range symbols {
		out.Symbols = append(out.Symbols, s)
	}
	sort.Strings(out.Symbols)
	return out
}

// Expire evicts trades that fell out of the window and returns how many
// were dropped.
func (a *OrderFlowAggregator) Expire(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refresh(now)
}

func (a *OrderFlowAggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bySymbol = make(map[string][]*models.OptionsTrade)
	a.institutional = nil
}

func (a *OrderFlowAggregator) refresh(now time.Time) int {
	cutoff := now.Add(-a.cfg.Window)
	dropped := 0
	for sym, trades := range a.bySymbol {
		kept := evictBefore(trades, cutoff)
		dropped += len(trades) - len(kept)
		if len(kept) == 0 {
			delete(a.bySymbol, sym)
			continue
		}
		a.bySymbol[sym] = kept
	}
	a.institutional = evictBefore(a.institutional, cutoff)
	return dropped
}

func evictBefore(trades []*models.OptionsTrade, cutoff time.Time) []*models.OptionsTrade {
	kept := trades[:0]
	for _, t := range trades {
		if !t.Timestamp.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	// release the tail so evicted trades can be collected
	for i := len(kept); i < len(trades); i++ {
		trades[i] = nil
	}
	return kept
}

type sideTotals struct {
	trades    int
	contracts int64
	premium   decimal.Decimal
}

func (s *sideTotals) add(t *models.OptionsTrade) {
	s.trades++
	s.contracts += t.Size
	s.premium = s.premium.Add(notional(t))
}

func (s sideTotals) flow() models.SideFlow {
	return models.SideFlow{
		Trades:    s.trades,
		Contracts: s.contracts,
		Premium:   s.premium.InexactFloat64(),
	}
}

func notional(t *models.OptionsTrade) decimal.Decimal {
	return decimal.NewFromFloat(t.Premium).
		Mul(decimal.NewFromInt(t.Size)).
		Mul(decimal.NewFromInt(models.ContractMultiplier))
}

// ratio returns call/put, or 0 when there is no put premium.
func ratio(call, put decimal.Decimal) float64 {
	if put.IsZero() {
		return 0
	}
	return call.Div(put).InexactFloat64()
}

// SentimentFor labels a call/put premium split.
func SentimentFor(call, put decimal.Decimal) models.Sentiment {
	if put.IsZero() {
		if call.IsPositive() {
			return models.SentimentVeryBullish
		}
		return models.SentimentNeutral
	}
	r := call.Div(put).InexactFloat64()
	switch {
	case r >= veryBullishRatio:
		return models.SentimentVeryBullish
	case r >= bullishRatio:
		return models.SentimentBullish
	case r > neutralRatio:
		return models.SentimentNeutral
	case r > bearishRatio:
		return models.SentimentBearish
	default:
		return models.SentimentVeryBearish
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, newID: uuid.NewString}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
