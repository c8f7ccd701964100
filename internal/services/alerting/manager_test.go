package alerting

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OptionsFlow/internal/domain/models"
	pkgrepo "OptionsFlow/internal/repository"
	"OptionsFlow/pkg/config"
)

var t0 = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("alert-%d", n)
	}
}

func newTestManager(clock *fakeClock) *Manager {
	return NewManager(config.DefaultEngine().Alerts, WithClock(clock.Now), WithIDGenerator(seqIDs()))
}

func block(id string, size int64, premium float64, ts time.Time) *models.OptionsTrade {
	return &models.OptionsTrade{
		ID:           id,
		Symbol:       "AAPL240419C00180000",
		Underlying:   "AAPL",
		ContractType: models.Call,
		Strike:       180,
		Expiration:   time.Date(2024, 4, 19, 0, 0, 0, 0, time.UTC),
		Premium:      premium,
		Size:         size,
		Price:        premium,
		Timestamp:    ts,
		Venue:        "CBOE",
		Side:         models.SideAsk,
		IsOpening:    true,
	}
}

func TestManager_CreateBlockAlert(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: t0}
	m := newTestManager(clock)

	a, ok := m.CreateBlockAlert(ctx, block("t1", 500, 25, t0), 0.85)
	require.True(t, ok)
	assert.Equal(t, "alert-1", a.ID)
	assert.Equal(t, models.AlertBlock, a.Type)
	assert.Equal(t, 1_250_000.0, a.TotalPremium)
	assert.Equal(t, int64(500), a.TotalContracts)
	assert.Equal(t, models.SeverityMedium, a.Severity)
	assert.Equal(t, []string{"t1"}, a.TradeIDs)
	assert.True(t, a.Active)
	assert.Equal(t, t0, a.CreatedAt)
	assert.Contains(t, a.Title, "AAPL block: 500 180 CALL 2024-04-19")
	assert.Contains(t, a.Description, "$1,250,000")
}

func TestManager_SweepAlert(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: t0}
	m := newTestManager(clock)

	venues := []string{"CBOE", "ISE", "PHLX", "MIAX"}
	var legs []*models.OptionsTrade
	for i, v := range venues {
		leg := block(fmt.Sprintf("s%d", i), 50, 2, t0.Add(time.Duration(i)*100*time.Millisecond))
		leg.Venue = v
		legs = append(legs, leg)
	}

	a, ok := m.CreateSweepAlert(ctx, legs, 0.7)
	require.True(t, ok)
	assert.Equal(t, 40_000.0, a.TotalPremium)
	assert.Equal(t, int64(200), a.TotalContracts)
	assert.Len(t, a.TradeIDs, 4)
	assert.Equal(t, "4", a.Metadata["venues"])

	_, ok = m.CreateSweepAlert(ctx, nil, 0.7)
	assert.False(t, ok)
}

func TestManager_Dedup(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: t0}
	m := newTestManager(clock)

	p := &models.FlowPattern{
		ID:           "p1",
		Type:         models.PatternAggressiveCallBuying,
		Symbol:       "AAPL",
		DetectedAt:   t0,
		TotalPremium: 300_000,
		TradeCount:   4,
		Signal:       models.SignalBullish,
		Confidence:   0.6,
	}
	first, ok := m.CreateFlowPatternAlert(ctx, p)
	require.True(t, ok)
	assert.Equal(t, models.SeverityMedium, first.Severity)

	same := *p
	same.DetectedAt = t0.Add(10 * time.Second)
	same.TotalPremium = 525_000
	_, ok = m.CreateFlowPatternAlert(ctx, &same)
	assert.False(t, ok, "same bucket, same severity")

	escalated := same
	escalated.TotalPremium = 1_050_000
	escalated.TradeCount = 14
	escalated.Confidence = 1
	a, ok := m.CreateFlowPatternAlert(ctx, &escalated)
	require.True(t, ok, "higher severity passes dedup")
	assert.Equal(t, models.SeverityHigh, a.Severity)

	next := *p
	next.DetectedAt = t0.Add(2 * time.Minute)
	_, ok = m.CreateFlowPatternAlert(ctx, &next)
	assert.True(t, ok, "new bucket")

	other := *p
	other.Symbol = "MSFT"
	_, ok = m.CreateFlowPatternAlert(ctx, &other)
	assert.True(t, ok, "different symbol")

	st := m.Statistics(ctx)
	assert.Equal(t, 4, st.TotalCreated)
	assert.Equal(t, 1, st.Deduplicated)
	assert.Equal(t, 4, st.Active)
	assert.Equal(t, 4, st.ByType[models.AlertSmartMoneyFlow])
	assert.Equal(t, 3, st.BySeverity["medium"])
	assert.Equal(t, 1, st.BySeverity["high"])
}

// flakyStore fails the next `failures` saves.
type flakyStore struct {
	*pkgrepo.MemoryAlertStore
	failures int
}

func (s *flakyStore) Save(ctx context.Context, a *models.Alert) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("store unavailable")
	}
	return s.MemoryAlertStore.Save(ctx, a)
}

func TestManager_FailedSaveDoesNotConsumeDedupKey(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryAlertStore: pkgrepo.NewMemoryAlertStore(), failures: 1}
	m := NewManager(config.DefaultEngine().Alerts, WithClock(func() time.Time { return t0 }), WithStore(store))

	p := &models.FlowPattern{
		ID:           "p1",
		Type:         models.PatternAggressiveCallBuying,
		Symbol:       "AAPL",
		DetectedAt:   t0,
		TotalPremium: 300_000,
		TradeCount:   4,
		Signal:       models.SignalBullish,
		Confidence:   0.6,
	}
	_, ok := m.CreateFlowPatternAlert(ctx, p)
	require.False(t, ok)
	_, ok = m.CreateFlowPatternAlert(ctx, p)
	require.True(t, ok, "retry of the same event is stored")

	escalated := *p
	escalated.TotalPremium = 1_050_000
	escalated.TradeCount = 14
	escalated.Confidence = 1
	store.failures = 1
	_, ok = m.CreateFlowPatternAlert(ctx, &escalated)
	require.False(t, ok)
	_, ok = m.CreateFlowPatternAlert(ctx, p)
	assert.False(t, ok, "earlier severity is still recorded")
	a, ok := m.CreateFlowPatternAlert(ctx, &escalated)
	require.True(t, ok)
	assert.Equal(t, models.SeverityHigh, a.Severity)

	st := m.Statistics(ctx)
	assert.Equal(t, 2, st.TotalCreated)
	assert.Equal(t, 1, st.Deduplicated)
}

func TestManager_GammaSqueezeAtLeastHigh(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(&fakeClock{t: t0})

	a, ok := m.CreateGammaSqueezeAlert(ctx, &models.MarketMakerPosition{
		Symbol:        "GME",
		CalculatedAt:  t0,
		NetGamma:      -22500,
		PositionBias:  models.BiasShortGamma,
		HedgePressure: models.PressureBuy,
		CallVolume:    4500,
		TradeCount:    15,
		Confidence:    0.3,
	})
	require.True(t, ok)
	assert.Equal(t, models.SeverityHigh, a.Severity)
	assert.Equal(t, models.AlertGammaSqueeze, a.Type)
	assert.Equal(t, int64(4500), a.TotalContracts)
	assert.Contains(t, a.Description, "22,500")
}

func TestManager_SubscribersOrderedAndIsolated(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(&fakeClock{t: t0})

	var calls []string
	m.Subscribe(func(a *models.Alert) { calls = append(calls, "first") })
	m.Subscribe(func(a *models.Alert) { panic("boom") })
	third := m.Subscribe(func(a *models.Alert) {
		calls = append(calls, "third")
		a.Title = "mutated"
	})

	a, ok := m.CreateBlockAlert(ctx, block("t1", 500, 2, t0), 0.5)
	require.True(t, ok)
	assert.Equal(t, []string{"first", "third"}, calls)

	stored, err := m.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", stored.Title)

	assert.True(t, m.Unsubscribe(third))
	assert.False(t, m.Unsubscribe(third))

	calls = nil
	_, ok = m.CreateBlockAlert(ctx, block("t2", 500, 2, t0.Add(time.Hour)), 0.5)
	require.True(t, ok)
	assert.Equal(t, []string{"first"}, calls)
}

func TestManager_AcknowledgeAndDeactivate(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: t0}
	m := newTestManager(clock)

	a1, _ := m.CreateBlockAlert(ctx, block("t1", 500, 25, t0), 0.9)
	a2, _ := m.CreateBlockAlert(ctx, block("t2", 100, 5, t0.Add(time.Hour)), 0.9)

	active, err := m.ActiveAlerts(ctx, nil)
	require.NoError(t, err)
	require.Len(t, active, 2)

	assert.False(t, m.Acknowledge(ctx, "never-issued", "ops"))
	assert.False(t, m.Deactivate(ctx, "never-issued"))
	active, _ = m.ActiveAlerts(ctx, nil)
	assert.Len(t, active, 2)

	clock.Advance(time.Minute)
	require.True(t, m.Acknowledge(ctx, a1.ID, "ops"))
	require.True(t, m.Acknowledge(ctx, a1.ID, "someone-else"))

	got, err := m.Get(ctx, a1.ID)
	require.NoError(t, err)
	assert.True(t, got.Acknowledged)
	assert.False(t, got.Active)
	assert.Equal(t, "ops", got.AcknowledgedBy)
	require.NotNil(t, got.AcknowledgedAt)
	assert.Equal(t, t0.Add(time.Minute), *got.AcknowledgedAt)

	require.True(t, m.Deactivate(ctx, a2.ID))
	active, _ = m.ActiveAlerts(ctx, nil)
	assert.Empty(t, active)
}

func TestManager_ActiveAlertsFilter(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: t0}
	m := newTestManager(clock)

	_, ok := m.CreateBlockAlert(ctx, block("small", 100, 1, t0), 0.9)
	require.True(t, ok)
	clock.Advance(time.Second)
	_, ok = m.CreateBlockAlert(ctx, block("big", 5000, 25, t0.Add(time.Hour)), 0.95)
	require.True(t, ok)

	all, err := m.ActiveAlerts(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []string{"big"}, all[0].TradeIDs, "newest first")

	floor := models.SeverityHigh
	high, err := m.ActiveAlerts(ctx, &floor)
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, models.SeverityCritical, high[0].Severity)
}

func TestManager_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: t0}
	m := newTestManager(clock)

	old, _ := m.CreateBlockAlert(ctx, block("old", 500, 25, t0), 0.9)
	clock.Advance(23 * time.Hour)
	_, _ = m.CreateBlockAlert(ctx, block("new", 500, 25, clock.Now()), 0.9)

	clock.Advance(2 * time.Hour)
	active, _ := m.ActiveAlerts(ctx, nil)
	assert.Len(t, active, 1, "expired alerts are hidden before the purge runs")

	n, err := m.PurgeExpired(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = m.Get(ctx, old.ID)
	assert.Error(t, err)

	// Dedup state for the old bucket is gone, so the same event alerts again.
	_, ok := m.CreateBlockAlert(ctx, block("old", 500, 25, t0), 0.9)
	assert.True(t, ok)
}

func TestManager_ResetStatistics(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(&fakeClock{t: t0})
	_, _ = m.CreateBlockAlert(ctx, block("t1", 500, 25, t0), 0.9)

	m.ResetStatistics()
	st := m.Statistics(ctx)
	assert.Zero(t, st.TotalCreated)
	assert.Empty(t, st.ByType)
	assert.Equal(t, 1, st.Active, "alerts survive a statistics reset")
}
