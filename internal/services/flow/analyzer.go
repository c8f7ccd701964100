package flow

import (
	"math"
	"sync"
	"time"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/pkg/config"
)

// dominance is how far one side must outweigh the other before an
// institutional pattern takes a direction.
const dominance = 1.2

type flowWindow struct {
	trades []*models.OptionsTrade

	// trailing run of aggressive trades of one contract type
	run       []*models.OptionsTrade
	runType   models.ContractType
	runLevel  int
	instLevel int
}

// FlowAnalyzer finds directional and institutional patterns over a rolling
// per-underlying window.
//
// Patterns fire on threshold levels: a pattern is emitted each time the
// cumulative premium reaches another whole multiple of its threshold, so a
// long run produces a bounded, increasing sequence of patterns rather than
// one per trade.
type FlowAnalyzer struct {
	cfg   config.FlowConfig
	newID func() string

	mu       sync.RWMutex
	windows  map[string]*flowWindow
	patterns []models.FlowPattern
}

func NewFlowAnalyzer(cfg config.FlowConfig, opts ...Option) *FlowAnalyzer {
	o := buildOptions(opts)
	return &FlowAnalyzer{
		cfg:     cfg,
		newID:   o.newID,
		windows: make(map[string]*flowWindow),
	}
}

func isAggressive(t *models.OptionsTrade) bool {
	return t.IsAggressive || t.AboveAsk
}

// AnalyzeTrade adds t to its underlying's window and returns any patterns the
// trade completed.
func (f *FlowAnalyzer) AnalyzeTrade(t *models.OptionsTrade) []models.FlowPattern {
	f.mu.Lock()
	defer f.mu.Unlock()

	w, ok := f.windows[t.Underlying]
	if !ok {
		w = &flowWindow{}
		f.windows[t.Underlying] = w
	}
	cutoff := t.Timestamp.Add(-f.cfg.Window)
	w.trades = append(evictBefore(w.trades, cutoff), t)
	w.run = evictBefore(w.run, cutoff)

	var out []models.FlowPattern
	if p, ok := f.checkRun(w, t); ok {
		out = append(out, p)
	}
	if p, ok := f.checkInstitutional(w, t); ok {
		out = append(out, p)
	}

	f.patterns = append(f.patterns, out...)
	if over := len(f.patterns) - f.cfg.MaxPatterns; over > 0 {
		f.patterns = append([]models.FlowPattern(nil), f.patterns[over:]...)
	}
	return out
}

// checkRun extends or restarts the aggressive run. Passive trades neither
// extend nor break it; an aggressive trade of the other type restarts it.
func (f *FlowAnalyzer) checkRun(w *flowWindow, t *models.OptionsTrade) (models.FlowPattern, bool) {
	if isAggressive(t) {
		if len(w.run) == 0 || w.runType != t.ContractType {
			w.run = w.run[:0]
			w.runType = t.ContractType
			w.runLevel = 0
		}
		w.run = append(w.run, t)
	}
	if len(w.run) == 0 {
		w.runLevel = 0
		return models.FlowPattern{}, false
	}

	threshold := f.cfg.AggressiveCallPremium
	typ, signal := models.PatternAggressiveCallBuying, models.SignalBullish
	if w.runType == models.Put {
		threshold = f.cfg.AggressivePutPremium
		typ, signal = models.PatternAggressivePutBuying, models.SignalBearish
	}

	premium := totalPremium(w.run)
	level := int(math.Floor(premium / threshold))
	if level <= w.runLevel {
		w.runLevel = level
		return models.FlowPattern{}, false
	}
	w.runLevel = level

	return f.pattern(typ, t, w.run, threshold, signal), true
}

func (f *FlowAnalyzer) checkInstitutional(w *flowWindow, t *models.OptionsTrade) (models.FlowPattern, bool) {
	var large []*models.OptionsTrade
	var callPrem, putPrem float64
	for _, tr := range w.trades {
		if !tr.IsOpening || tr.Notional() < f.cfg.LargeTradePremium {
			continue
		}
		large = append(large, tr)
		if tr.ContractType == models.Call {
			callPrem += tr.Notional()
		} else {
			putPrem += tr.Notional()
		}
	}

	level := int(math.Floor((callPrem + putPrem) / f.cfg.MinPatternPremium))
	if level <= w.instLevel {
		w.instLevel = level
		return models.FlowPattern{}, false
	}
	w.instLevel = level

	signal := models.SignalNeutral
	switch {
	case callPrem > putPrem*dominance:
		signal = models.SignalBullish
	case putPrem > callPrem*dominance:
		signal = models.SignalBearish
	}
	return f.pattern(models.PatternInstitutionalFlow, t, large, f.cfg.MinPatternPremium, signal), true
}

func (f *FlowAnalyzer) pattern(typ models.PatternType, last *models.OptionsTrade, trades []*models.OptionsTrade, threshold float64, signal models.Signal) models.FlowPattern {
	p := models.FlowPattern{
		ID:         f.newID(),
		Type:       typ,
		Symbol:     last.Underlying,
		DetectedAt: last.Timestamp,
		TradeCount: len(trades),
		Signal:     signal,
		TradeIDs:   make([]string, 0, len(trades)),
	}
	aggressive := 0
	for _, tr := range trades {
		p.TotalPremium += tr.Notional()
		p.TotalContracts += tr.Size
		p.TradeIDs = append(p.TradeIDs, tr.ID)
		if isAggressive(tr) {
			aggressive++
		}
	}
	p.Confidence = Confidence(len(trades), p.TotalPremium, threshold, float64(aggressive)/float64(len(trades)))
	return p
}

// Confidence scales with trade count, premium against threshold and the
// share of aggressive prints. The result is in [0,1].
func Confidence(trades int, premium, threshold, aggressiveRatio float64) float64 {
	countScore := math.Min(float64(trades)/10, 1)
	premiumScore := 1.0
	if threshold > 0 {
		premiumScore = math.Min(premium/(2*threshold), 1)
	}
	v := 0.4*countScore + 0.4*premiumScore + 0.2*aggressiveRatio
	return math.Max(0, math.Min(v, 1))
}

// FlowSummary reports the window contents of one underlying.
func (f *FlowAnalyzer) FlowSummary(symbol string) models.WindowSummary {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := models.WindowSummary{Symbol: symbol}
	if w, ok := f.windows[symbol]; ok {
		out.TradeCount = len(w.trades)
		out.TotalPremium = totalPremium(w.trades)
	}
	return out
}

// RecentPatterns returns up to limit patterns, newest first.
func (f *FlowAnalyzer) RecentPatterns(limit int) []models.FlowPattern {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if limit <= 0 || limit > len(f.patterns) {
		limit = len(f.patterns)
	}
	out := make([]models.FlowPattern, 0, limit)
	for i := len(f.patterns) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.patterns[i])
	}
	return out
}

// Expire trims every window to now and drops empty ones.
func (f *FlowAnalyzer) Expire(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := now.Add(-f.cfg.Window)
	for sym, w := range f.windows {
		w.trades = evictBefore(w.trades, cutoff)
		w.run = evictBefore(w.run, cutoff)
		if len(w.trades) == 0 {
			delete(f.windows, sym)
		}
	}
}

func (f *FlowAnalyzer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = make(map[string]*flowWindow)
	f.patterns = nil
}

func totalPremium(trades []*models.OptionsTrade) float64 {
	sum := 0.0
	for _, t := range trades {
		sum += t.Notional()
	}
	return sum
}
