package detection

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/pkg/config"
)

var base = time.Date(2025, 3, 14, 15, 30, 0, 0, time.UTC)

func trade(id, venue string, premium float64, size int64, at time.Time) *models.OptionsTrade {
	return &models.OptionsTrade{
		ID:             id,
		Symbol:         "AAPL250321C00180000",
		Underlying:     "AAPL",
		ContractType:   models.Call,
		Strike:         180,
		Expiration:     base.AddDate(0, 0, 7),
		Premium:        premium,
		Size:           size,
		Price:          premium,
		Timestamp:      at,
		Classification: models.ClassRegular,
		Venue:          venue,
		Side:           models.SideAsk,
	}
}

func TestSweepDetector_FourVenues(t *testing.T) {
	d := NewSweepDetector(config.DefaultEngine().Sweep)
	venues := []string{"CBOE", "PHLX", "ISE", "AMEX"}

	var legs []*models.OptionsTrade
	var all []*models.OptionsTrade
	for i, v := range venues {
		tr := trade(fmt.Sprintf("t%d", i), v, 1.00, 60, base.Add(time.Duration(i)*500*time.Millisecond))
		all = append(all, tr)
		var extended bool
		legs, extended = d.Detect(tr)
		assert.Equal(t, i == 3, extended, "leg %d", i)
	}

	require.Len(t, legs, 4)
	for _, tr := range all {
		assert.Equal(t, models.ClassSweep, tr.Classification, tr.ID)
	}
	assert.Equal(t, "t0", legs[0].ID)
}

func TestSweepDetector_ConfirmsAtMinLegs(t *testing.T) {
	d := NewSweepDetector(config.DefaultEngine().Sweep)

	assert.Nil(t, d.DetectSweep(trade("a", "CBOE", 1, 60, base)))
	assert.Nil(t, d.DetectSweep(trade("b", "PHLX", 1, 60, base.Add(100*time.Millisecond))))
	legs := d.DetectSweep(trade("c", "ISE", 1, 60, base.Add(200*time.Millisecond)))
	require.Len(t, legs, 3)
	assert.Equal(t, 0, d.Pending("AAPL250321C00180000"))
}

func TestSweepDetector_Rejects(t *testing.T) {
	cfg := config.DefaultEngine().Sweep

	t.Run("single venue", func(t *testing.T) {
		d := NewSweepDetector(cfg)
		for i := 0; i < 5; i++ {
			assert.Nil(t, d.DetectSweep(trade(fmt.Sprint(i), "CBOE", 1, 60, base.Add(time.Duration(i)*time.Millisecond))))
		}
	})

	t.Run("legs below premium", func(t *testing.T) {
		d := NewSweepDetector(cfg)
		for i, v := range []string{"CBOE", "PHLX", "ISE", "AMEX"} {
			tr := trade(fmt.Sprint(i), v, 0.5, 50, base.Add(time.Duration(i)*time.Millisecond))
			assert.Nil(t, d.DetectSweep(tr))
			assert.Equal(t, models.ClassRegular, tr.Classification)
		}
		assert.Equal(t, 0, d.Pending("AAPL250321C00180000"))
	})

	t.Run("outside window", func(t *testing.T) {
		d := NewSweepDetector(cfg)
		for i, v := range []string{"CBOE", "PHLX", "ISE", "AMEX"} {
			tr := trade(fmt.Sprint(i), v, 1, 60, base.Add(time.Duration(i)*1500*time.Millisecond))
			assert.Nil(t, d.DetectSweep(tr))
		}
		assert.Equal(t, 2, d.Pending("AAPL250321C00180000"))
	})
}

func TestSweepDetector_Expire(t *testing.T) {
	d := NewSweepDetector(config.DefaultEngine().Sweep)
	d.DetectSweep(trade("a", "CBOE", 1, 60, base))

	assert.Equal(t, 0, d.Expire(base.Add(time.Second)))
	assert.Equal(t, 1, d.Expire(base.Add(time.Minute)))
	assert.Equal(t, 0, d.Pending("AAPL250321C00180000"))
}

func TestSweepScore(t *testing.T) {
	d := NewSweepDetector(config.DefaultEngine().Sweep)
	assert.Zero(t, d.SweepScore(nil))

	tight := []*models.OptionsTrade{
		trade("a", "CBOE", 1, 60, base),
		trade("b", "PHLX", 1, 60, base.Add(10*time.Millisecond)),
		trade("c", "ISE", 1, 60, base.Add(20*time.Millisecond)),
	}
	loose := []*models.OptionsTrade{
		trade("a", "CBOE", 1, 60, base),
		trade("b", "PHLX", 1, 60, base.Add(time.Second)),
		trade("c", "ISE", 1, 60, base.Add(1900*time.Millisecond)),
	}
	assert.Greater(t, d.SweepScore(tight), d.SweepScore(loose))

	var many []*models.OptionsTrade
	for i := 0; i < 20; i++ {
		many = append(many, trade(fmt.Sprint(i), fmt.Sprintf("V%d", i), 1, 60, base))
	}
	for _, legs := range [][]*models.OptionsTrade{tight, loose, many, many[:1]} {
		s := d.SweepScore(legs)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestBlockDetector(t *testing.T) {
	d := NewBlockDetector(config.DefaultEngine().Block)

	block := trade("blk", "CBOE", 10.00, 200, base)
	require.True(t, d.DetectBlock(block))
	assert.Equal(t, models.ClassBlock, block.Classification)

	small := trade("small", "CBOE", 100, 99, base)
	assert.False(t, d.DetectBlock(small))
	assert.Equal(t, models.ClassRegular, small.Classification)

	cheap := trade("cheap", "CBOE", 1.00, 200, base)
	assert.False(t, d.DetectBlock(cheap), "20k notional is under the premium floor")
}

func TestBlockDetector_AlreadyClassified(t *testing.T) {
	d := NewBlockDetector(config.DefaultEngine().Block)
	tr := trade("x", "CBOE", 10, 200, base)
	tr.Classification = models.ClassSweep

	assert.True(t, d.DetectBlock(tr))
	assert.Equal(t, models.ClassSweep, tr.Classification)
}

func TestBlockDetector_Stats(t *testing.T) {
	d := NewBlockDetector(config.DefaultEngine().Block)
	assert.Zero(t, d.AverageSize("AAPL"))

	for _, size := range []int64{10, 20, 30} {
		d.UpdateVolumeStats(trade("s", "CBOE", 1, size, base))
	}
	assert.InDelta(t, 20.0, d.AverageSize("AAPL"), 1e-9)
}

func TestBlockScore(t *testing.T) {
	d := NewBlockDetector(config.DefaultEngine().Block)
	for i := 0; i < 10; i++ {
		d.UpdateVolumeStats(trade("s", "CBOE", 1, 10, base))
	}

	small := trade("a", "CBOE", 10, 100, base)
	large := trade("b", "CBOE", 10, 1000, base)
	assert.Greater(t, d.BlockScore(large), d.BlockScore(small))

	oi := int64(5000)
	withOI := trade("c", "CBOE", 10, 100, base)
	withOI.OpenInterest = &oi
	assert.Greater(t, d.BlockScore(withOI), d.BlockScore(small))

	huge := trade("d", "CBOE", 500, 1_000_000, base)
	assert.LessOrEqual(t, d.BlockScore(huge), 1.0)
}

func TestDarkPoolDetector(t *testing.T) {
	d := NewDarkPoolDetector(config.DefaultEngine().DarkPool)

	hit := trade("dp", "EDGX", 5.00, 100, base)
	require.True(t, d.DetectDarkPool(hit, nil))
	assert.Equal(t, models.ClassDarkPool, hit.Classification)

	small := trade("small", "EDGX", 5.00, 20, base)
	assert.False(t, d.DetectDarkPool(small, nil))

	lit := trade("lit", "CBOE", 5.00, 100, base)
	assert.False(t, d.DetectDarkPool(lit, nil))

	onTime := base.Add(5 * time.Second)
	assert.False(t, d.DetectDarkPool(lit, &onTime))

	late := base.Add(30 * time.Second)
	assert.True(t, d.DetectDarkPool(lit, &late))
	assert.Equal(t, models.ClassDarkPool, lit.Classification)
}

func TestDarkPoolDetector_History(t *testing.T) {
	d := NewDarkPoolDetector(config.DefaultEngine().DarkPool)
	d.AddToHistory(trade("a", "EDGX", 5, 100, base))
	d.AddToHistory(trade("b", "EDGX", 5, 250, base.Add(10*time.Minute)))

	now := base.Add(12 * time.Minute)
	assert.Equal(t, int64(250), d.RecentDarkPoolVolume("AAPL", 5*time.Minute, now))
	assert.Equal(t, int64(350), d.RecentDarkPoolVolume("AAPL", 15*time.Minute, now))
	assert.Zero(t, d.RecentDarkPoolVolume("MSFT", time.Hour, now))

	d.Expire(base.Add(2 * time.Hour))
	assert.Zero(t, d.RecentDarkPoolVolume("AAPL", 24*time.Hour, base.Add(2*time.Hour)))
}

func TestDarkPoolScore(t *testing.T) {
	d := NewDarkPoolDetector(config.DefaultEngine().DarkPool)

	offEx := trade("a", "EDGX", 5, 100, base)
	lit := trade("b", "CBOE", 5, 100, base)
	assert.Greater(t, d.DarkPoolScore(offEx), d.DarkPoolScore(lit))

	bigger := trade("c", "EDGX", 5, 400, base)
	assert.Greater(t, d.DarkPoolScore(bigger), d.DarkPoolScore(offEx))
	assert.LessOrEqual(t, d.DarkPoolScore(trade("d", "EDGX", 5, 1_000_000, base)), 1.0)
}
