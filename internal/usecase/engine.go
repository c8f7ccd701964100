package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/internal/domain/repository"
	"OptionsFlow/internal/services/alerting"
	"OptionsFlow/internal/services/detection"
	"OptionsFlow/internal/services/flow"
	"OptionsFlow/internal/services/marketmaker"
	"OptionsFlow/pkg/config"
	"OptionsFlow/pkg/logger"
	"OptionsFlow/pkg/metrics"
)

var ErrInvalidTrade = errors.New("invalid trade")

var validate = validator.New()

// ProcessResult is what one trade produced.
type ProcessResult struct {
	TradeID        string                `json:"trade_id"`
	Classification models.Classification `json:"classification"`
	SweepLegs      []string              `json:"sweep_legs,omitempty"`
	IsBlock        bool                  `json:"is_block"`
	IsDarkPool     bool                  `json:"is_dark_pool"`
	Patterns       []models.FlowPattern  `json:"patterns,omitempty"`
	Alerts         []*models.Alert       `json:"alerts,omitempty"`
}

// Statistics are the engine counters plus the alert manager's.
type Statistics struct {
	TradesProcessed  int64                  `json:"trades_processed"`
	SweepsDetected   int64                  `json:"sweeps_detected"`
	BlocksDetected   int64                  `json:"blocks_detected"`
	DarkPoolDetected int64                  `json:"dark_pool_detected"`
	PatternsDetected int64                  `json:"patterns_detected"`
	Rejected         int64                  `json:"rejected"`
	Alerts           models.AlertStatistics `json:"alerts"`
}

type EngineOption func(*engineOptions)

type engineOptions struct {
	now     func() time.Time
	metrics repository.Metrics
	log     *logger.Logger
}

func WithEngineClock(now func() time.Time) EngineOption {
	return func(o *engineOptions) { o.now = now }
}

func WithEngineMetrics(m repository.Metrics) EngineOption {
	return func(o *engineOptions) { o.metrics = m }
}

func WithEngineLogger(l *logger.Logger) EngineOption {
	return func(o *engineOptions) { o.log = l }
}

// Engine runs every trade through detection, aggregation and alerting, and
// answers queries over the accumulated state.
type Engine struct {
	cfg        config.Engine
	sweeps     *detection.SweepDetector
	blocks     *detection.BlockDetector
	darkPool   *detection.DarkPoolDetector
	aggregator *flow.OrderFlowAggregator
	analyzer   *flow.FlowAnalyzer
	mm         *marketmaker.Analyzer
	alerts     *alerting.Manager
	dispatcher *alerting.Dispatcher
	metrics    repository.Metrics
	log        *logger.Logger
	now        func() time.Time

	tradesProcessed  atomic.Int64
	sweepsDetected   atomic.Int64
	blocksDetected   atomic.Int64
	darkPoolDetected atomic.Int64
	patternsDetected atomic.Int64
	rejected         atomic.Int64

	runMu   sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

func NewEngine(cfg config.Engine, alerts *alerting.Manager, dispatcher *alerting.Dispatcher, opts ...EngineOption) *Engine {
	o := &engineOptions{
		now:     time.Now,
		metrics: metrics.Nop{},
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Engine{
		cfg:        cfg,
		sweeps:     detection.NewSweepDetector(cfg.Sweep),
		blocks:     detection.NewBlockDetector(cfg.Block),
		darkPool:   detection.NewDarkPoolDetector(cfg.DarkPool),
		aggregator: flow.NewOrderFlowAggregator(cfg.Aggregator, flow.WithClock(o.now)),
		analyzer:   flow.NewFlowAnalyzer(cfg.Flow, flow.WithClock(o.now)),
		mm:         marketmaker.NewAnalyzer(cfg.MarketMaker, marketmaker.WithClock(o.now)),
		alerts:     alerts,
		dispatcher: dispatcher,
		metrics:    o.metrics,
		log:        o.log.Component("engine"),
		now:        o.now,
	}
}

// ProcessTrade validates a copy of in and runs it through the pipeline. The
// caller's trade is never mutated.
func (e *Engine) ProcessTrade(ctx context.Context, in *models.OptionsTrade) (*ProcessResult, error) {
	if in == nil {
		e.rejected.Add(1)
		return nil, fmt.Errorf("%w: nil trade", ErrInvalidTrade)
	}
	t := *in
	// Classification is assigned by the detectors only.
	t.Classification = models.ClassRegular
	if err := ValidateTrade(&t); err != nil {
		e.rejected.Add(1)
		e.metrics.RecordError("invalid_trade")
		return nil, err
	}

	start := time.Now()
	e.tradesProcessed.Add(1)
	e.metrics.RecordTradeProcessed(t.Underlying)

	res := &ProcessResult{TradeID: t.ID}
	var created []*models.Alert

	if legs, extended := e.sweeps.Detect(&t); len(legs) > 0 {
		if !extended {
			e.sweepsDetected.Add(1)
			e.metrics.RecordDetection("sweep")
		}
		for _, leg := range legs {
			res.SweepLegs = append(res.SweepLegs, leg.ID)
		}
		if score := e.sweeps.SweepScore(legs); score >= e.cfg.Alerts.MinSweepScore {
			if a, ok := e.alerts.CreateSweepAlert(ctx, legs, score); ok {
				created = append(created, a)
			}
		}
	}

	if e.blocks.DetectBlock(&t) {
		res.IsBlock = true
		e.blocksDetected.Add(1)
		e.metrics.RecordDetection("block")
		if score := e.blocks.BlockScore(&t); score >= e.cfg.Alerts.MinBlockScore {
			if a, ok := e.alerts.CreateBlockAlert(ctx, &t, score); ok {
				created = append(created, a)
			}
		}
	}
	e.blocks.UpdateVolumeStats(&t)

	received := e.now()
	if e.darkPool.DetectDarkPool(&t, &received) {
		res.IsDarkPool = true
		e.darkPoolDetected.Add(1)
		e.metrics.RecordDetection("dark_pool")
		e.darkPool.AddToHistory(&t)
		if score := e.darkPool.DarkPoolScore(&t); score >= e.cfg.Alerts.MinDarkPoolScore {
			if a, ok := e.alerts.CreateDarkPoolAlert(ctx, &t, score); ok {
				created = append(created, a)
			}
		}
	}

	e.aggregator.AddTrade(&t)
	res.Patterns = e.analyzer.AnalyzeTrade(&t)
	for i := range res.Patterns {
		p := &res.Patterns[i]
		e.patternsDetected.Add(1)
		e.metrics.RecordDetection(string(p.Type))
		if a, ok := e.alerts.CreateFlowPatternAlert(ctx, p); ok {
			created = append(created, a)
		}
		if p.Type == models.PatternAggressiveCallBuying {
			if a, ok := e.checkGammaSqueeze(ctx, t.Underlying); ok {
				created = append(created, a)
			}
		}
	}

	for _, a := range created {
		e.dispatcher.Enqueue(a.Clone(), e.cfg.Dispatch.DefaultChannels)
	}

	res.Classification = t.Classification
	res.Alerts = created
	e.metrics.RecordLatency("process_trade", time.Since(start).Seconds())
	return res, nil
}

// Process is ProcessTrade for callers that only need the error.
func (e *Engine) Process(ctx context.Context, t *models.OptionsTrade) error {
	_, err := e.ProcessTrade(ctx, t)
	return err
}

// ValidateTrade checks struct tags and that the contract had not expired
// before the trade date.
func ValidateTrade(t *models.OptionsTrade) error {
	if t == nil {
		return fmt.Errorf("%w: nil trade", ErrInvalidTrade)
	}
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTrade, err)
	}
	if err := t.ValidateDates(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTrade, err)
	}
	return nil
}

func (e *Engine) checkGammaSqueeze(ctx context.Context, underlying string) (*models.Alert, bool) {
	pos := e.MarketMakerPosition(underlying)
	if !e.mm.IsGammaSqueezeSetup(pos) {
		return nil, false
	}
	e.metrics.RecordDetection("gamma_squeeze")
	return e.alerts.CreateGammaSqueezeAlert(ctx, &pos)
}

// MarketMakerPosition estimates dealer exposure from the aggregation window.
func (e *Engine) MarketMakerPosition(symbol string) models.MarketMakerPosition {
	return e.mm.CalculatePosition(symbol, e.aggregator.Trades(symbol))
}

func (e *Engine) OrderFlowSummary(symbol string) models.SymbolFlow {
	return e.aggregator.FlowBySymbol(symbol)
}

func (e *Engine) InstitutionalFlow() models.InstitutionalFlow {
	return e.aggregator.InstitutionalSummary()
}

func (e *Engine) FlowByStrike(symbol string) []models.StrikeFlow {
	return e.aggregator.FlowByStrike(symbol)
}

// DarkPoolVolume is the contracts printed dark for symbol in the last window.
func (e *Engine) DarkPoolVolume(symbol string, window time.Duration) int64 {
	return e.darkPool.RecentDarkPoolVolume(symbol, window, e.now())
}

// PatternWindow is what the pattern detector currently holds for symbol.
func (e *Engine) PatternWindow(symbol string) models.WindowSummary {
	return e.analyzer.FlowSummary(symbol)
}

func (e *Engine) RecentPatterns(limit int) []models.FlowPattern {
	return e.analyzer.RecentPatterns(limit)
}

func (e *Engine) ActiveAlerts(ctx context.Context, floor *models.Severity) ([]*models.Alert, error) {
	return e.alerts.ActiveAlerts(ctx, floor)
}

func (e *Engine) SubscribeToAlerts(fn alerting.Callback) alerting.SubscriptionID {
	return e.alerts.Subscribe(fn)
}

func (e *Engine) UnsubscribeFromAlerts(id alerting.SubscriptionID) bool {
	return e.alerts.Unsubscribe(id)
}

func (e *Engine) AcknowledgeAlert(ctx context.Context, id, actor string) bool {
	return e.alerts.Acknowledge(ctx, id, actor)
}

func (e *Engine) DeactivateAlert(ctx context.Context, id string) bool {
	return e.alerts.Deactivate(ctx, id)
}

func (e *Engine) DispatchLog(limit int) []models.DispatchRecord {
	return e.dispatcher.DispatchLog(limit)
}

// Dispatcher exposes channel registration.
func (e *Engine) Dispatcher() *alerting.Dispatcher {
	return e.dispatcher
}

func (e *Engine) Statistics(ctx context.Context) Statistics {
	return Statistics{
		TradesProcessed:  e.tradesProcessed.Load(),
		SweepsDetected:   e.sweepsDetected.Load(),
		BlocksDetected:   e.blocksDetected.Load(),
		DarkPoolDetected: e.darkPoolDetected.Load(),
		PatternsDetected: e.patternsDetected.Load(),
		Rejected:         e.rejected.Load(),
		Alerts:           e.alerts.Statistics(ctx),
	}
}

// ResetStatistics zeroes the counters. Windows and alerts are kept.
func (e *Engine) ResetStatistics() {
	e.tradesProcessed.Store(0)
	e.sweepsDetected.Store(0)
	e.blocksDetected.Store(0)
	e.darkPoolDetected.Store(0)
	e.patternsDetected.Store(0)
	e.rejected.Store(0)
	e.alerts.ResetStatistics()
}

// Start launches the dispatch workers and the housekeeping ticker.
func (e *Engine) Start(ctx context.Context) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stop = make(chan struct{})
	e.done = make(chan struct{})

	e.dispatcher.Start(ctx)
	go e.housekeepingLoop(ctx, e.stop, e.done)
	e.log.Info("engine started", logger.Duration("housekeeping_interval", e.cfg.HousekeepingInterval))
}

// Stop halts housekeeping and drains queued dispatches.
func (e *Engine) Stop() {
	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		return
	}
	e.running = false
	close(e.stop)
	done := e.done
	e.runMu.Unlock()

	<-done
	e.dispatcher.Stop()
	e.log.Info("engine stopped")
}

func (e *Engine) housekeepingLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.cfg.HousekeepingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.Housekeep(ctx, e.now())
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Housekeep expires every time-windowed buffer and purges old alerts so a
// symbol that stops trading does not keep stale state.
func (e *Engine) Housekeep(ctx context.Context, now time.Time) {
	start := time.Now()
	buffers := e.sweeps.Expire(now)
	e.darkPool.Expire(now)
	evicted := e.aggregator.Expire(now)
	e.analyzer.Expire(now)
	purged, err := e.alerts.PurgeExpired(ctx, now)
	if err != nil {
		e.metrics.RecordError("housekeeping")
		e.log.Error("purge alerts", logger.Error(err))
	}
	e.log.Debug("housekeeping done",
		logger.Int("sweep_buffers_dropped", buffers),
		logger.Int("trades_evicted", evicted),
		logger.Int("alerts_purged", purged),
	)
	e.metrics.RecordLatency("housekeeping", time.Since(start).Seconds())
}
