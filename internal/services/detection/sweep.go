package detection

import (
	"sort"
	"sync"
	"time"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/pkg/config"
)

// SweepDetector correlates prints of the same contract across venues inside a
// short trailing window.
type SweepDetector struct {
	cfg config.SweepConfig

	mu      sync.Mutex
	buffers map[string][]*models.OptionsTrade
	// confirmed sweeps still inside their window; late legs join them
	active  map[string][]*models.OptionsTrade
}

func NewSweepDetector(cfg config.SweepConfig) *SweepDetector {
	return &SweepDetector{
		cfg:     cfg,
		buffers: make(map[string][]*models.OptionsTrade),
		active:  make(map[string][]*models.OptionsTrade),
	}
}

// DetectSweep buffers t and returns the legs of a confirmed sweep, or nil.
// Confirmed legs are classified as sweeps and the contract buffer is cleared.
// A qualifying leg arriving while a confirmed sweep of the same contract is
// still inside its window extends that sweep; the whole group is returned
// again with the same first leg.
func (d *SweepDetector) DetectSweep(t *models.OptionsTrade) []*models.OptionsTrade {
	legs, _ := d.Detect(t)
	return legs
}

// Detect is DetectSweep that also reports whether t extended an already
// confirmed sweep rather than confirming a new one.
func (d *SweepDetector) Detect(t *models.OptionsTrade) (legs []*models.OptionsTrade, extended bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	qualifies := t.Notional() >= d.cfg.MinPremiumPerLeg
	if open, ok := d.active[t.Symbol]; ok {
		if t.Timestamp.Sub(open[0].Timestamp) > d.cfg.MaxTimeWindow {
			delete(d.active, t.Symbol)
		} else if qualifies && len(open) < d.cfg.MaxBufferLegs {
			t.Classify(models.ClassSweep)
			open = append(open, t)
			d.active[t.Symbol] = open
			return append([]*models.OptionsTrade(nil), open...), true
		}
	}

	buf := d.buffers[t.Symbol]
	if qualifies {
		buf = append(buf, t)
	}
	buf = d.trim(buf, newest(buf, t.Timestamp))
	if len(buf) == 0 {
		delete(d.buffers, t.Symbol)
		return nil, false
	}
	d.buffers[t.Symbol] = buf

	if len(buf) < d.cfg.MinLegs || distinctVenues(buf) < d.cfg.MinLegs {
		return nil, false
	}

	legs = make([]*models.OptionsTrade, len(buf))
	copy(legs, buf)
	sort.SliceStable(legs, func(i, j int) bool { return legs[i].Timestamp.Before(legs[j].Timestamp) })
	for _, leg := range legs {
		leg.Classify(models.ClassSweep)
	}
	delete(d.buffers, t.Symbol)
	d.active[t.Symbol] = append([]*models.OptionsTrade(nil), legs...)
	return legs, false
}

// trim keeps legs inside the window ending at end and enforces the buffer cap.
func (d *SweepDetector) trim(buf []*models.OptionsTrade, end time.Time) []*models.OptionsTrade {
	kept := buf[:0]
	for _, leg := range buf {
		if end.Sub(leg.Timestamp) <= d.cfg.MaxTimeWindow {
			kept = append(kept, leg)
		}
	}
	if over := len(kept) - d.cfg.MaxBufferLegs; over > 0 {
		kept = kept[over:]
	}
	return kept
}

// SweepScore rates a sweep in [0,1]. More venues, more legs and a tighter
// time cluster score higher.
func (d *SweepDetector) SweepScore(legs []*models.OptionsTrade) float64 {
	if len(legs) == 0 {
		return 0
	}
	first, last := legs[0].Timestamp, legs[0].Timestamp
	for _, leg := range legs[1:] {
		if leg.Timestamp.Before(first) {
			first = leg.Timestamp
		}
		if leg.Timestamp.After(last) {
			last = leg.Timestamp
		}
	}

	target := float64(2 * d.cfg.MinLegs)
	venueScore := clamp01(float64(distinctVenues(legs)) / target)
	legScore := clamp01(float64(len(legs)) / target)
	timeScore := clamp01(1 - float64(last.Sub(first))/float64(d.cfg.MaxTimeWindow))

	return clamp01(0.4*venueScore + 0.3*legScore + 0.3*timeScore)
}

// Expire drops contract buffers whose newest leg left the window before now.
func (d *SweepDetector) Expire(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	dropped := 0
	for sym, buf := range d.buffers {
		buf = d.trim(buf, now)
		if len(buf) == 0 {
			delete(d.buffers, sym)
			dropped++
			continue
		}
		d.buffers[sym] = buf
	}
	for sym, legs := range d.active {
		if now.Sub(legs[0].Timestamp) > d.cfg.MaxTimeWindow {
			delete(d.active, sym)
		}
	}
	return dropped
}

// Pending returns the number of buffered legs for a contract.
func (d *SweepDetector) Pending(symbol string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers[symbol])
}

func newest(buf []*models.OptionsTrade, ts time.Time) time.Time {
	for _, leg := range buf {
		if leg.Timestamp.After(ts) {
			ts = leg.Timestamp
		}
	}
	return ts
}

func distinctVenues(legs []*models.OptionsTrade) int {
	seen := make(map[string]struct{}, len(legs))
	for _, leg := range legs {
		seen[leg.Venue] = struct{}{}
	}
	return len(seen)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
