package detection

import (
	"sync"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/pkg/config"
)

type volumeStats struct {
	count int64
	mean  float64
}

// BlockDetector flags single oversized prints and tracks the running mean
// trade size per underlying.
type BlockDetector struct {
	cfg config.BlockConfig

	mu    sync.RWMutex
	stats map[string]*volumeStats
}

func NewBlockDetector(cfg config.BlockConfig) *BlockDetector {
	return &BlockDetector{
		cfg:   cfg,
		stats: make(map[string]*volumeStats),
	}
}

// DetectBlock reports whether t is a block and classifies it when it is.
func (d *BlockDetector) DetectBlock(t *models.OptionsTrade) bool {
	if t.Size < d.cfg.MinContracts || t.Notional() < d.cfg.MinPremium {
		return false
	}
	t.Classify(models.ClassBlock)
	return true
}

func (d *BlockDetector) UpdateVolumeStats(t *models.OptionsTrade) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.stats[t.Underlying]
	if !ok {
		s = &volumeStats{}
		d.stats[t.Underlying] = s
	}
	s.count++
	s.mean += (float64(t.Size) - s.mean) / float64(s.count)
}

// AverageSize returns the running mean size for an underlying, 0 if unseen.
func (d *BlockDetector) AverageSize(underlying string) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if s, ok := d.stats[underlying]; ok {
		return s.mean
	}
	return 0
}

// BlockScore rates t in [0,1] by size against the running average and by
// notional against the minimum. Missing open interest lowers the score.
func (d *BlockDetector) BlockScore(t *models.OptionsTrade) float64 {
	avg := d.AverageSize(t.Underlying)
	if avg <= 0 {
		avg = float64(d.cfg.MinContracts)
	}
	sizeScore := clamp01(float64(t.Size) / (avg * 10))

	premiumScore := 1.0
	if d.cfg.MinPremium > 0 {
		premiumScore = clamp01(t.Notional() / (d.cfg.MinPremium * 10))
	}

	score := 0.5*sizeScore + 0.5*premiumScore
	if t.OpenInterest == nil {
		score *= 0.9
	} else if *t.OpenInterest > 0 && t.Size > *t.OpenInterest {
		// more contracts than outstanding: almost certainly opening
		score += 0.1
	}
	return clamp01(score)
}
