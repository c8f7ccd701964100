package alerting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/internal/domain/repository"
	pkgrepo "OptionsFlow/internal/repository"
	"OptionsFlow/pkg/config"
	"OptionsFlow/pkg/logger"
	"OptionsFlow/pkg/metrics"
)

// Callback receives a copy of every newly created alert.
type Callback func(a *models.Alert)

type SubscriptionID uint64

type Option func(*options)

type options struct {
	now     func() time.Time
	newID   func() string
	store   repository.AlertStore
	metrics repository.Metrics
	log     *logger.Logger
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

// WithStore swaps the in-memory alert store, e.g. for Redis.
func WithStore(s repository.AlertStore) Option {
	return func(o *options) { o.store = s }
}

func WithMetrics(m repository.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

type subscriber struct {
	id SubscriptionID
	fn Callback
}

type dedupEntry struct {
	bucket   int64
	severity models.Severity
}

// Manager builds, deduplicates, stores and broadcasts alerts.
type Manager struct {
	cfg     config.AlertConfig
	store   repository.AlertStore
	metrics repository.Metrics
	log     *logger.Logger
	now     func() time.Time
	newID   func() string

	mu           sync.Mutex
	seen         map[string]dedupEntry
	totalCreated int
	deduplicated int
	byType       map[models.AlertType]int
	bySeverity   map[string]int

	subMu   sync.RWMutex
	subs    []subscriber
	nextSub SubscriptionID
}

func NewManager(cfg config.AlertConfig, opts ...Option) *Manager {
	o := &options{
		now:     time.Now,
		newID:   uuid.NewString,
		metrics: metrics.Nop{},
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.store == nil {
		o.store = pkgrepo.NewMemoryAlertStore()
	}
	return &Manager{
		cfg:        cfg,
		store:      o.store,
		metrics:    o.metrics,
		log:        o.log.Component("alert_manager"),
		now:        o.now,
		newID:      o.newID,
		seen:       make(map[string]dedupEntry),
		byType:     make(map[models.AlertType]int),
		bySeverity: make(map[string]int),
	}
}

// CreateSweepAlert reports one sweep. Extensions of the same sweep share a
// dedup key and only pass when they escalate severity.
func (m *Manager) CreateSweepAlert(ctx context.Context, legs []*models.OptionsTrade, confidence float64) (*models.Alert, bool) {
	if len(legs) == 0 {
		return nil, false
	}
	first := legs[0]

	var (
		premium   float64
		contracts int64
		ids       = make([]string, 0, len(legs))
		venues    = make(map[string]struct{})
	)
	for _, t := range legs {
		premium += t.Notional()
		contracts += t.Size
		ids = append(ids, t.ID)
		venues[t.Venue] = struct{}{}
	}

	desc := fmt.Sprintf("%d legs, %s contracts, %s premium on %s",
		len(legs), humanize.Comma(contracts), dollars(premium), first.Symbol)
	a := &models.Alert{
		Type:           models.AlertSweep,
		Severity:       CalculateSeverity(premium, confidence, len(legs)),
		Symbol:         first.Symbol,
		Underlying:     first.Underlying,
		Title:          fmt.Sprintf("%s %s sweep across %d venues", first.Underlying, describeContract(first), len(venues)),
		Description:    desc,
		TotalPremium:   premium,
		TotalContracts: contracts,
		Confidence:     confidence,
		TradeIDs:       ids,
		Metadata: map[string]string{
			"venues": fmt.Sprint(len(venues)),
			"side":   string(first.Side),
		},
	}
	return m.register(ctx, a, first.Symbol+"/"+first.ID, first.Timestamp)
}

func (m *Manager) CreateBlockAlert(ctx context.Context, t *models.OptionsTrade, confidence float64) (*models.Alert, bool) {
	if t == nil {
		return nil, false
	}
	premium := t.Notional()
	desc := fmt.Sprintf("%s premium at %.2f on %s (%s side, %s)",
		dollars(premium), t.Price, t.Venue, t.Side, openClose(t))
	a := &models.Alert{
		Type:           models.AlertBlock,
		Severity:       CalculateSeverity(premium, confidence, 1),
		Symbol:         t.Symbol,
		Underlying:     t.Underlying,
		Title:          fmt.Sprintf("%s block: %s %s", t.Underlying, humanize.Comma(t.Size), describeContract(t)),
		Description:    desc,
		TotalPremium:   premium,
		TotalContracts: t.Size,
		Confidence:     confidence,
		TradeIDs:       []string{t.ID},
		Metadata:       map[string]string{"venue": t.Venue},
	}
	return m.register(ctx, a, t.Symbol, t.Timestamp)
}

func (m *Manager) CreateDarkPoolAlert(ctx context.Context, t *models.OptionsTrade, confidence float64) (*models.Alert, bool) {
	if t == nil {
		return nil, false
	}
	premium := t.Notional()
	desc := fmt.Sprintf("%s premium reported via %s",
		dollars(premium), t.Venue)
	a := &models.Alert{
		Type:           models.AlertDarkPool,
		Severity:       CalculateSeverity(premium, confidence, 1),
		Symbol:         t.Symbol,
		Underlying:     t.Underlying,
		Title:          fmt.Sprintf("%s off-exchange print: %s %s", t.Underlying, humanize.Comma(t.Size), describeContract(t)),
		Description:    desc,
		TotalPremium:   premium,
		TotalContracts: t.Size,
		Confidence:     confidence,
		TradeIDs:       []string{t.ID},
		Metadata:       map[string]string{"venue": t.Venue},
	}
	return m.register(ctx, a, t.Symbol, t.Timestamp)
}

// CreateFlowPatternAlert reports a smart-money flow pattern.
func (m *Manager) CreateFlowPatternAlert(ctx context.Context, p *models.FlowPattern) (*models.Alert, bool) {
	if p == nil {
		return nil, false
	}
	desc := fmt.Sprintf("%d trades, %s contracts, %s premium, %s",
		p.TradeCount, humanize.Comma(p.TotalContracts), dollars(p.TotalPremium), p.Signal)
	a := &models.Alert{
		Type:           models.AlertSmartMoneyFlow,
		Severity:       CalculateSeverity(p.TotalPremium, p.Confidence, p.TradeCount),
		Symbol:         p.Symbol,
		Underlying:     p.Symbol,
		Title:          fmt.Sprintf("%s %s", p.Symbol, strings.ReplaceAll(string(p.Type), "_", " ")),
		Description:    desc,
		TotalPremium:   p.TotalPremium,
		TotalContracts: p.TotalContracts,
		Confidence:     p.Confidence,
		TradeIDs:       append([]string(nil), p.TradeIDs...),
		Metadata: map[string]string{
			"pattern":    string(p.Type),
			"pattern_id": p.ID,
			"signal":     string(p.Signal),
		},
	}
	return m.register(ctx, a, p.Symbol+"/"+string(p.Type), p.DetectedAt)
}

// CreateGammaSqueezeAlert is always at least high severity.
func (m *Manager) CreateGammaSqueezeAlert(ctx context.Context, pos *models.MarketMakerPosition) (*models.Alert, bool) {
	if pos == nil {
		return nil, false
	}
	sev := CalculateSeverity(0, pos.Confidence, pos.TradeCount)
	if sev < models.SeverityHigh {
		sev = models.SeverityHigh
	}
	desc := fmt.Sprintf("dealers short %s gamma, net delta %s, hedge pressure %s",
		humanize.CommafWithDigits(-pos.NetGamma, 0), humanize.CommafWithDigits(pos.NetDelta, 0), pos.HedgePressure)
	a := &models.Alert{
		Type:           models.AlertGammaSqueeze,
		Severity:       sev,
		Symbol:         pos.Symbol,
		Underlying:     pos.Symbol,
		Title:          fmt.Sprintf("%s gamma squeeze setup", pos.Symbol),
		Description:    desc,
		TotalContracts: pos.CallVolume + pos.PutVolume,
		Confidence:     pos.Confidence,
		Metadata: map[string]string{
			"net_gamma": fmt.Sprintf("%.2f", pos.NetGamma),
			"bias":      string(pos.PositionBias),
		},
	}
	return m.register(ctx, a, pos.Symbol, pos.CalculatedAt)
}

// register applies dedup, stores the alert and broadcasts it.
func (m *Manager) register(ctx context.Context, a *models.Alert, subject string, eventTime time.Time) (*models.Alert, bool) {
	bucket := m.bucketOf(eventTime)
	key := fmt.Sprintf("%s|%s|%d", a.Type, subject, bucket)

	entry := dedupEntry{bucket: bucket, severity: a.Severity}
	m.mu.Lock()
	prev, hadPrev := m.seen[key]
	if hadPrev && a.Severity <= prev.severity {
		m.deduplicated++
		m.mu.Unlock()
		m.log.Debug("alert deduplicated", logger.String("key", key))
		return nil, false
	}
	m.seen[key] = entry
	m.mu.Unlock()

	a.ID = m.newID()
	a.CreatedAt = m.now()
	a.Active = true
	a.DedupKey = key

	if err := m.store.Save(ctx, a); err != nil {
		// Release the key so a retry of the same event is not deduplicated.
		m.mu.Lock()
		if m.seen[key] == entry {
			if hadPrev {
				m.seen[key] = prev
			} else {
				delete(m.seen, key)
			}
		}
		m.mu.Unlock()
		m.metrics.RecordError("alert_store")
		m.log.Error("save alert", logger.Error(err), logger.String("alert_id", a.ID))
		return nil, false
	}

	m.mu.Lock()
	m.totalCreated++
	m.byType[a.Type]++
	m.bySeverity[a.Severity.String()]++
	m.mu.Unlock()

	m.metrics.RecordAlert(string(a.Type), a.Severity.String())
	m.log.Info("alert created",
		logger.String("alert_id", a.ID),
		logger.String("type", string(a.Type)),
		logger.String("severity", a.Severity.String()),
		logger.String("symbol", a.Symbol),
		logger.Float64("premium", a.TotalPremium),
	)

	m.broadcast(a)
	return a.Clone(), true
}

func (m *Manager) bucketOf(t time.Time) int64 {
	if t.IsZero() {
		t = m.now()
	}
	return t.UnixNano() / int64(m.cfg.DedupBucket)
}

func (m *Manager) broadcast(a *models.Alert) {
	m.subMu.RLock()
	subs := append([]subscriber(nil), m.subs...)
	m.subMu.RUnlock()

	for _, s := range subs {
		m.notify(s, a.Clone())
	}
}

func (m *Manager) notify(s subscriber, a *models.Alert) {
	defer func() {
		if r := recover(); r != nil {
			m.metrics.RecordError("alert_subscriber")
			m.log.Error("alert subscriber panicked",
				logger.Any("subscription", s.id),
				logger.Any("panic", r),
			)
		}
	}()
	s.fn(a)
}

// Subscribe registers fn; subscribers are called in subscription order.
func (m *Manager) Subscribe(fn Callback) SubscriptionID {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.nextSub++
	m.subs = append(m.subs, subscriber{id: m.nextSub, fn: fn})
	return m.nextSub
}

func (m *Manager) Unsubscribe(id SubscriptionID) bool {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for i, s := range m.subs {
		if s.id == id {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return true
		}
	}
	return false
}

// ActiveAlerts returns active, unexpired alerts at or above floor (nil means
// any), newest first.
func (m *Manager) ActiveAlerts(ctx context.Context, floor *models.Severity) ([]*models.Alert, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	cutoff := m.now().Add(-m.cfg.Retention)

	out := make([]*models.Alert, 0, len(all))
	for _, a := range all {
		if !a.Active || a.CreatedAt.Before(cutoff) {
			continue
		}
		if floor != nil && a.Severity < *floor {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*models.Alert, error) {
	return m.store.Get(ctx, id)
}

// Acknowledge records actor and removes the alert from the active set.
// Acknowledging twice keeps the first actor.
func (m *Manager) Acknowledge(ctx context.Context, id, actor string) bool {
	now := m.now()
	err := m.store.Update(ctx, id, func(a *models.Alert) {
		if a.Acknowledged {
			return
		}
		a.Acknowledged = true
		a.AcknowledgedBy = actor
		a.AcknowledgedAt = &now
		a.Active = false
	})
	return m.updated(err, id)
}

func (m *Manager) Deactivate(ctx context.Context, id string) bool {
	err := m.store.Update(ctx, id, func(a *models.Alert) {
		a.Active = false
	})
	return m.updated(err, id)
}

func (m *Manager) updated(err error, id string) bool {
	if err == nil {
		return true
	}
	if !errors.Is(err, repository.ErrAlertNotFound) {
		m.metrics.RecordError("alert_store")
		m.log.Error("update alert", logger.Error(err), logger.String("alert_id", id))
	}
	return false
}

// PurgeExpired drops alerts older than the retention window and stale dedup
// entries. It returns the number of alerts removed.
func (m *Manager) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list alerts: %w", err)
	}
	cutoff := now.Add(-m.cfg.Retention)
	var expired []string
	for _, a := range all {
		if a.CreatedAt.Before(cutoff) {
			expired = append(expired, a.ID)
		}
	}
	if len(expired) > 0 {
		if err := m.store.Delete(ctx, expired...); err != nil {
			return 0, fmt.Errorf("delete expired alerts: %w", err)
		}
	}

	oldest := m.bucketOf(now) - 2
	m.mu.Lock()
	for k, e := range m.seen {
		if e.bucket < oldest {
			delete(m.seen, k)
		}
	}
	m.mu.Unlock()

	return len(expired), nil
}

func (m *Manager) Statistics(ctx context.Context) models.AlertStatistics {
	active, err := m.ActiveAlerts(ctx, nil)
	if err != nil {
		m.log.Warn("count active alerts", logger.Error(err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st := models.AlertStatistics{
		TotalCreated: m.totalCreated,
		Deduplicated: m.deduplicated,
		Active:       len(active),
		ByType:       make(map[models.AlertType]int, len(m.byType)),
		BySeverity:   make(map[string]int, len(m.bySeverity)),
	}
	for k, v := range m.byType {
		st.ByType[k] = v
	}
	for k, v := range m.bySeverity {
		st.BySeverity[k] = v
	}
	return st
}

// ResetStatistics zeroes counters; stored alerts are untouched.
func (m *Manager) ResetStatistics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalCreated = 0
	m.deduplicated = 0
	m.byType = make(map[models.AlertType]int)
	m.bySeverity = make(map[string]int)
}

func describeContract(t *models.OptionsTrade) string {
	return fmt.Sprintf("%s %s %s", humanize.Ftoa(t.Strike), strings.ToUpper(string(t.ContractType)), t.Expiration.Format("2006-01-02"))
}

func openClose(t *models.OptionsTrade) string {
	if t.IsOpening {
		return "opening"
	}
	return "closing"
}

func dollars(v float64) string {
	return "$" + humanize.CommafWithDigits(v, 0)
}
