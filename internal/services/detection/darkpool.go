package detection

import (
	"strings"
	"sync"
	"time"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/pkg/config"
)

type darkPrint struct {
	at   time.Time
	size int64
}

// DarkPoolDetector flags off-exchange or late-reported prints and keeps a
// rolling per-underlying history of their volume.
type DarkPoolDetector struct {
	cfg    config.DarkPoolConfig
	venues map[string]struct{}

	mu      sync.RWMutex
	history map[string][]darkPrint
}

func NewDarkPoolDetector(cfg config.DarkPoolConfig) *DarkPoolDetector {
	venues := make(map[string]struct{}, len(cfg.Venues))
	for _, v := range cfg.Venues {
		venues[strings.ToUpper(v)] = struct{}{}
	}
	return &DarkPoolDetector{
		cfg:     cfg,
		venues:  venues,
		history: make(map[string][]darkPrint),
	}
}

func (d *DarkPoolDetector) IsOffExchange(venue string) bool {
	_, ok := d.venues[strings.ToUpper(venue)]
	return ok
}

// IsDelayed reports whether the print was reported later than the allowed
// delay relative to marketTime.
func (d *DarkPoolDetector) IsDelayed(t *models.OptionsTrade, marketTime *time.Time) bool {
	return marketTime != nil && marketTime.Sub(t.Timestamp) > d.cfg.ReportingDelay
}

// DetectDarkPool reports whether t is a dark-pool print and classifies it when
// it is. marketTime is optional.
func (d *DarkPoolDetector) DetectDarkPool(t *models.OptionsTrade, marketTime *time.Time) bool {
	if t.Size < d.cfg.MinContracts || t.Notional() < d.cfg.MinPremium {
		return false
	}
	if !d.IsOffExchange(t.Venue) && !d.IsDelayed(t, marketTime) {
		return false
	}
	t.Classify(models.ClassDarkPool)
	return true
}

func (d *DarkPoolDetector) AddToHistory(t *models.OptionsTrade) {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := append(d.history[t.Underlying], darkPrint{at: t.Timestamp, size: t.Size})
	d.history[t.Underlying] = trimPrints(h, t.Timestamp.Add(-d.cfg.HistoryWindow))
}

// RecentDarkPoolVolume sums contracts printed dark for an underlying within
// window before now.
func (d *DarkPoolDetector) RecentDarkPoolVolume(underlying string, window time.Duration, now time.Time) int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	cutoff := now.Add(-window)
	var total int64
	for _, p := range d.history[underlying] {
		if !p.at.Before(cutoff) && !p.at.After(now) {
			total += p.size
		}
	}
	return total
}

// DarkPoolScore rates t in [0,1]. Size dominates; an off-exchange venue adds
// more than a late report alone.
func (d *DarkPoolDetector) DarkPoolScore(t *models.OptionsTrade) float64 {
	sizeScore := clamp01(float64(t.Size) / float64(d.cfg.MinContracts*10))
	venueScore := 0.0
	switch {
	case d.IsOffExchange(t.Venue):
		venueScore = 0.4
	case t.Classification == models.ClassDarkPool:
		venueScore = 0.2
	}
	return clamp01(0.6*sizeScore + venueScore)
}

func (d *DarkPoolDetector) Expire(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := now.Add(-d.cfg.HistoryWindow)
	for sym, h := range d.history {
		h = trimPrints(h, cutoff)
		if len(h) == 0 {
			delete(d.history, sym)
			continue
		}
		d.history[sym] = h
	}
}

func trimPrints(h []darkPrint, cutoff time.Time) []darkPrint {
	kept := h[:0]
	for _, p := range h {
		if !p.at.Before(cutoff) {
			kept = append(kept, p)
		}
	}
	return kept
}
