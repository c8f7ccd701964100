package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/internal/domain/repository"
)

const alertColumns = "created_at, alert_id, alert_type, severity, symbol, underlying, title, description, total_premium, total_contracts, confidence, trade_ids, dedup_key"

// ClickHouseAlertArchive is the append-only alert history in ClickHouse.
type ClickHouseAlertArchive struct {
	db    *sql.DB
	table string
}

func NewClickHouseAlertArchive(db *sql.DB, table string) *ClickHouseAlertArchive {
	return &ClickHouseAlertArchive{db: db, table: table}
}

var _ repository.AlertArchive = (*ClickHouseAlertArchive)(nil)

func (s *ClickHouseAlertArchive) Init(ctx context.Context) error {
	return s.Health(ctx)
}

// StoreBatch inserts alerts with multi-row VALUES, chunked to bound the
// statement size.
func (s *ClickHouseAlertArchive) StoreBatch(ctx context.Context, alerts []*models.Alert) error {
	const chunkSize = 500
	for start := 0; start < len(alerts); start += chunkSize {
		end := start + chunkSize
		if end > len(alerts) {
			end = len(alerts)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*13)
		for _, a := range alerts[start:end] {
			if a == nil || a.ID == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				a.CreatedAt.UTC(),
				a.ID,
				string(a.Type),
				a.Severity.String(),
				a.Symbol,
				a.Underlying,
				a.Title,
				a.Description,
				a.TotalPremium,
				a.TotalContracts,
				a.Confidence,
				a.TradeIDs,
				a.DedupKey,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, alertColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert %d alerts: %w", len(values), err)
		}
	}
	return nil
}

func (s *ClickHouseAlertArchive) Query(ctx context.Context, underlying string, from, to time.Time, limit int) ([]*models.Alert, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE underlying = ? AND created_at >= ? AND created_at <= ? ORDER BY created_at DESC LIMIT ?", alertColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, underlying, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []*models.Alert
	for rows.Next() {
		var (
			a        models.Alert
			typ, sev string
		)
		if err := rows.Scan(&a.CreatedAt, &a.ID, &typ, &sev, &a.Symbol, &a.Underlying, &a.Title,
			&a.Description, &a.TotalPremium, &a.TotalContracts, &a.Confidence, &a.TradeIDs, &a.DedupKey); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Type = models.AlertType(typ)
		if a.Severity, err = models.ParseSeverity(sev); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *ClickHouseAlertArchive) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *ClickHouseAlertArchive) Close() error {
	return nil
}
