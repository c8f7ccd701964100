package usecase

import (
	"context"
	"sync"
	"time"

	"OptionsFlow/internal/domain/models"
	domrepo "OptionsFlow/internal/domain/repository"
	"OptionsFlow/pkg/logger"
)

// AlertArchiver buffers alerts from the manager and writes them to the
// archive in batches, flushing on size or interval.
type AlertArchiver struct {
	archive   domrepo.AlertArchive
	metrics   domrepo.Metrics
	log       *logger.Logger
	batchSize int
	interval  time.Duration

	mu      sync.Mutex
	pending []*models.Alert

	flushCh chan struct{}
	stopCh  chan struct{}
	done    chan struct{}
}

func NewAlertArchiver(archive domrepo.AlertArchive, metrics domrepo.Metrics, log *logger.Logger, batchSize int, interval time.Duration) *AlertArchiver {
	if batchSize < 1 {
		batchSize = 1
	}
	return &AlertArchiver{
		archive:   archive,
		metrics:   metrics,
		log:       log.Component("alert_archiver"),
		batchSize: batchSize,
		interval:  interval,
		flushCh:   make(chan struct{}, 1),
	}
}

// OnAlert is an alert subscriber; it never blocks on the archive.
func (a *AlertArchiver) OnAlert(alert *models.Alert) {
	a.mu.Lock()
	a.pending = append(a.pending, alert)
	full := len(a.pending) >= a.batchSize
	a.mu.Unlock()

	if full {
		select {
		case a.flushCh <- struct{}{}:
		default:
		}
	}
}

func (a *AlertArchiver) Start(ctx context.Context) {
	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	go a.loop(ctx)
}

// Stop flushes whatever is pending and waits for the loop to exit.
func (a *AlertArchiver) Stop() {
	if a.stopCh == nil {
		return
	}
	close(a.stopCh)
	<-a.done
	a.stopCh = nil
}

func (a *AlertArchiver) loop(ctx context.Context) {
	defer close(a.done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.Flush(ctx)
		case <-a.flushCh:
			a.Flush(ctx)
		case <-a.stopCh:
			a.Flush(context.WithoutCancel(ctx))
			return
		case <-ctx.Done():
			return
		}
	}
}

// Flush writes the pending batch. On failure the batch is put back, bounded
// to ten batches so a dead archive cannot grow memory without limit.
func (a *AlertArchiver) Flush(ctx context.Context) {
	a.mu.Lock()
	batch := a.pending
	a.pending = nil
	a.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	start := time.Now()
	if err := a.archive.StoreBatch(ctx, batch); err != nil {
		a.metrics.RecordError("alert_archive")
		a.log.Error("archive batch", logger.Int("alerts", len(batch)), logger.Error(err))

		a.mu.Lock()
		a.pending = append(batch, a.pending...)
		if over := len(a.pending) - 10*a.batchSize; over > 0 {
			a.pending = a.pending[over:]
		}
		a.mu.Unlock()
		return
	}
	a.metrics.RecordLatency("alert_archive", time.Since(start).Seconds())
}

// Pending reports buffered alerts.
func (a *AlertArchiver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
