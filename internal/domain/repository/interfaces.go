package repository

import (
	"context"
	"errors"
	"time"

	"OptionsFlow/internal/domain/models"
)

var ErrAlertNotFound = errors.New("alert not found")

// TradeStream is a live options-trade feed.
type TradeStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.OptionsTrade, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// AlertPublisher pushes alerts onto a message bus.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, a *models.Alert) error
	Close() error
}

// AlertArchive is durable, append-only alert history.
type AlertArchive interface {
	Init(ctx context.Context) error
	StoreBatch(ctx context.Context, alerts []*models.Alert) error
	Query(ctx context.Context, underlying string, from, to time.Time, limit int) ([]*models.Alert, error)
	Health(ctx context.Context) error
	Close() error
}

// AlertStore holds the alerts the manager owns. Implementations return
// copies; mutation goes through Update.
type AlertStore interface {
	Save(ctx context.Context, a *models.Alert) error
	Get(ctx context.Context, id string) (*models.Alert, error)
	Update(ctx context.Context, id string, fn func(a *models.Alert)) error
	List(ctx context.Context) ([]*models.Alert, error)
	Delete(ctx context.Context, ids ...string) error
}

// DispatchLog is a bounded record of delivery attempts.
type DispatchLog interface {
	Append(rec models.DispatchRecord)
	Recent(limit int) []models.DispatchRecord
}

type Metrics interface {
	RecordTradeProcessed(underlying string)
	RecordDetection(kind string)
	RecordAlert(alertType string, severity string)
	RecordDispatch(channel string, success bool)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
