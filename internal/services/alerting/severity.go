package alerting

import "OptionsFlow/internal/domain/models"

type tier struct {
	severity   models.Severity
	premium    float64
	confidence float64
	trades     int
}

// Tiers are checked top-down; the first satisfied one wins. Each row only
// raises a floor, which keeps severity non-decreasing in every input.
var tiers = []tier{
	{models.SeverityCritical, 10_000_000, 0.9, 0},
	{models.SeverityHigh, 5_000_000, 0.8, 0},
	{models.SeverityHigh, 1_000_000, 0.7, 10},
	{models.SeverityMedium, 1_000_000, 0.6, 0},
	{models.SeverityMedium, 250_000, 0.5, 3},
	{models.SeverityLow, 100_000, 0.4, 0},
	{models.SeverityLow, 250_000, 0, 0},
}

// CalculateSeverity maps premium, confidence and trade count to a severity.
func CalculateSeverity(premium, confidence float64, tradeCount int) models.Severity {
	for _, t := range tiers {
		if premium >= t.premium && confidence >= t.confidence && tradeCount >= t.trades {
			return t.severity
		}
	}
	return models.SeverityInfo
}
