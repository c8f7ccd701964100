package alerting

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"OptionsFlow/internal/domain/models"
)

func TestCalculateSeverity(t *testing.T) {
	tests := []struct {
		name       string
		premium    float64
		confidence float64
		trades     int
		want       models.Severity
	}{
		{"critical", 10_000_000, 0.9, 1, models.SeverityCritical},
		{"large but unsure", 10_000_000, 0.5, 1, models.SeverityLow},
		{"high by premium", 5_000_000, 0.8, 1, models.SeverityHigh},
		{"high by count", 1_000_000, 0.7, 10, models.SeverityHigh},
		{"medium by premium", 1_000_000, 0.6, 1, models.SeverityMedium},
		{"medium by count", 250_000, 0.5, 3, models.SeverityMedium},
		{"low by confidence", 100_000, 0.4, 1, models.SeverityLow},
		{"low by premium alone", 250_000, 0, 1, models.SeverityLow},
		{"info", 99_999, 0.99, 100, models.SeverityInfo},
		{"zero", 0, 0, 0, models.SeverityInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateSeverity(tt.premium, tt.confidence, tt.trades))
		})
	}
}

func TestCalculateSeverity_Monotonic(t *testing.T) {
	premiums := []float64{0, 50_000, 100_000, 250_000, 1_000_000, 5_000_000, 10_000_000, 50_000_000}
	confidences := []float64{0, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}
	counts := []int{0, 1, 3, 9, 10, 50}

	for pi, p := range premiums {
		for ci, c := range confidences {
			for ni, n := range counts {
				s := CalculateSeverity(p, c, n)
				if pi+1 < len(premiums) {
					assert.GreaterOrEqual(t, CalculateSeverity(premiums[pi+1], c, n), s, "premium %v->%v", p, premiums[pi+1])
				}
				if ci+1 < len(confidences) {
					assert.GreaterOrEqual(t, CalculateSeverity(p, confidences[ci+1], n), s, "confidence %v->%v", c, confidences[ci+1])
				}
				if ni+1 < len(counts) {
					assert.GreaterOrEqual(t, CalculateSeverity(p, c, counts[ni+1]), s, "count %v->%v", n, counts[ni+1])
				}
			}
		}
	}
}
