package models

import (
	"fmt"
	"strings"
	"time"
)

type AlertType string

const (
	AlertSweep          AlertType = "sweep"
	AlertBlock          AlertType = "block"
	AlertDarkPool       AlertType = "dark_pool"
	AlertSmartMoneyFlow AlertType = "smart_money_flow"
	AlertGammaSqueeze   AlertType = "gamma_squeeze"
)

// Severity is ordered: a larger value is more severe.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{"info", "low", "medium", "high", "critical"}

func (s Severity) String() string {
	if s < SeverityInfo || s > SeverityCritical {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

func ParseSeverity(v string) (Severity, error) {
	for i, name := range severityNames {
		if strings.EqualFold(v, name) {
			return Severity(i), nil
		}
	}
	return SeverityInfo, fmt.Errorf("unknown severity %q", v)
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Alert is an UnusualActivityAlert: a scored, deduplicated notification about
// one underlying event.
type Alert struct {
	ID             string            `json:"id"`
	Type           AlertType         `json:"type"`
	Severity       Severity          `json:"severity"`
	Symbol         string            `json:"symbol"`
	Underlying     string            `json:"underlying"`
	CreatedAt      time.Time         `json:"created_at"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	TotalPremium   float64           `json:"total_premium"`
	TotalContracts int64             `json:"total_contracts"`
	Confidence     float64           `json:"confidence"`
	TradeIDs       []string          `json:"trade_ids"`
	Active         bool              `json:"active"`
	Acknowledged   bool              `json:"acknowledged"`
	AcknowledgedBy string            `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time        `json:"acknowledged_at,omitempty"`
	DedupKey       string            `json:"dedup_key"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy so callers outside the store cannot mutate it.
func (a *Alert) Clone() *Alert {
	c := *a
	c.TradeIDs = append([]string(nil), a.TradeIDs...)
	if a.AcknowledgedAt != nil {
		at := *a.AcknowledgedAt
		c.AcknowledgedAt = &at
	}
	if a.Metadata != nil {
		c.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

type AlertStatistics struct {
	TotalCreated int               `json:"total_created"`
	Deduplicated int               `json:"deduplicated"`
	Active       int               `json:"active"`
	ByType       map[AlertType]int `json:"by_type"`
	BySeverity   map[string]int    `json:"by_severity"`
}

// DispatchRecord is one delivery attempt of one alert on one channel.
type DispatchRecord struct {
	AlertID   string    `json:"alert_id"`
	Channel   string    `json:"channel"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
