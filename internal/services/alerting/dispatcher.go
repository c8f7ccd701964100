package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/internal/domain/repository"
	pkgrepo "OptionsFlow/internal/repository"
	"OptionsFlow/internal/service/ratelimit"
	"OptionsFlow/pkg/config"
	pkghttp "OptionsFlow/pkg/http"
	"OptionsFlow/pkg/logger"
	"OptionsFlow/pkg/metrics"
)

const (
	ChannelConsole = "console"
	ChannelWebhook = "webhook"
	ChannelKafka   = "kafka"
)

var (
	ErrNoWebhooks     = errors.New("no webhooks registered")
	ErrNoPublisher    = errors.New("no alert publisher registered")
	ErrUnknownChannel = errors.New("unknown channel")
	ErrQueueFull      = errors.New("dispatch queue full")
)

// Handler delivers one alert on a custom channel.
type Handler func(ctx context.Context, a *models.Alert) error

type DispatcherOption func(*Dispatcher)

func WithDispatchLogger(l *logger.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

func WithDispatchMetrics(m repository.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithDispatchLog(l repository.DispatchLog) DispatcherOption {
	return func(d *Dispatcher) { d.dlog = l }
}

func WithDispatchClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

type job struct {
	alert    *models.Alert
	channels []string
}

// Dispatcher delivers alerts to named channels. Each channel is attempted
// independently and every attempt is logged.
type Dispatcher struct {
	cfg     config.DispatchConfig
	client  *pkghttp.Client
	limiter *ratelimit.Limiter
	dlog    repository.DispatchLog
	metrics repository.Metrics
	log     *logger.Logger
	now     func() time.Time

	mu        sync.RWMutex
	webhooks  []string
	custom    map[string]Handler
	publisher repository.AlertPublisher

	queue   chan job
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
	runMu   sync.Mutex
}

func NewDispatcher(cfg config.DispatchConfig, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		cfg:     cfg,
		client:  pkghttp.NewClient(pkghttp.WithTimeout(cfg.WebhookTimeout)),
		limiter: ratelimit.New(cfg.WebhookRPS, 1),
		metrics: metrics.Nop{},
		log:     logger.Nop(),
		now:     time.Now,
		custom:  make(map[string]Handler),
		queue:   make(chan job, max(cfg.QueueSize, 1)),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.dlog == nil {
		d.dlog = pkgrepo.NewRingDispatchLog(cfg.MaxLogEntries)
	}
	d.log = d.log.Component("alert_dispatcher")
	for _, u := range cfg.WebhookURLs {
		d.AddWebhookHandler(u)
	}
	return d
}

// AddWebhookHandler registers a URL for the webhook channel. Duplicates are ignored.
func (d *Dispatcher) AddWebhookHandler(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.webhooks {
		if u == url {
			return
		}
	}
	d.webhooks = append(d.webhooks, url)
}

// AddCustomHandler registers h under name, replacing any previous handler.
func (d *Dispatcher) AddCustomHandler(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.custom[name] = h
}

// SetPublisher enables the kafka channel.
func (d *Dispatcher) SetPublisher(p repository.AlertPublisher) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.publisher = p
}

// Dispatch delivers a on every channel and reports the outcome per channel.
func (d *Dispatcher) Dispatch(ctx context.Context, a *models.Alert, channels []string) map[string]bool {
	out := make(map[string]bool, len(channels))
	for _, ch := range channels {
		if _, done := out[ch]; done {
			continue
		}
		err := d.deliverBounded(ctx, ch, a)
		out[ch] = err == nil
		d.record(a.ID, ch, err)
	}
	return out
}

// deliverBounded gives every channel except console at most HandlerTimeout.
// A handler that ignores ctx is abandoned and reported as timed out; its
// goroutine finishes on its own.
func (d *Dispatcher) deliverBounded(ctx context.Context, channel string, a *models.Alert) error {
	if channel == ChannelConsole {
		return d.deliver(ctx, channel, a)
	}
	ctx, cancel := context.WithTimeout(ctx, d.handlerTimeout())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.deliver(ctx, channel, a) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("channel %s: %w", channel, ctx.Err())
	}
}

func (d *Dispatcher) handlerTimeout() time.Duration {
	if d.cfg.HandlerTimeout > 0 {
		return d.cfg.HandlerTimeout
	}
	if d.cfg.WebhookTimeout > 0 {
		return d.cfg.WebhookTimeout
	}
	return 5 * time.Second
}

func (d *Dispatcher) deliver(ctx context.Context, channel string, a *models.Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel %s panicked: %v", channel, r)
		}
	}()

	switch channel {
	case ChannelConsole:
		d.log.Info("alert",
			logger.String("alert_id", a.ID),
			logger.String("type", string(a.Type)),
			logger.String("severity", a.Severity.String()),
			logger.String("symbol", a.Symbol),
			logger.String("title", a.Title),
		)
		return nil
	case ChannelWebhook:
		return d.sendWebhooks(ctx, a)
	case ChannelKafka:
		d.mu.RLock()
		p := d.publisher
		d.mu.RUnlock()
		if p == nil {
			return ErrNoPublisher
		}
		return p.PublishAlert(ctx, a)
	}

	d.mu.RLock()
	h, ok := d.custom[channel]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	return h(ctx, a)
}

// sendWebhooks posts to every URL; it fails if any URL fails.
func (d *Dispatcher) sendWebhooks(ctx context.Context, a *models.Alert) error {
	d.mu.RLock()
	urls := append([]string(nil), d.webhooks...)
	d.mu.RUnlock()
	if len(urls) == 0 {
		return ErrNoWebhooks
	}

	var errs []error
	for _, u := range urls {
		if err := d.postWebhook(ctx, u, a); err != nil {
			d.log.Warn("webhook failed", logger.String("url", u), logger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) postWebhook(ctx context.Context, url string, a *models.Alert) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.WebhookTimeout)
	defer cancel()

	if err := d.limiter.Wait(ctx, url); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return d.client.PostJSON(ctx, url, a)
}

func (d *Dispatcher) record(alertID, channel string, err error) {
	rec := models.DispatchRecord{
		AlertID:   alertID,
		Channel:   channel,
		Success:   err == nil,
		Timestamp: d.now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	d.dlog.Append(rec)
	d.metrics.RecordDispatch(channel, err == nil)
}

// DispatchLog returns up to limit attempts, newest first.
func (d *Dispatcher) DispatchLog(limit int) []models.DispatchRecord {
	return d.dlog.Recent(limit)
}

// Enqueue hands a to the worker pool without blocking. When the queue is
// full the alert is dropped and a failed attempt is logged per channel.
func (d *Dispatcher) Enqueue(a *models.Alert, channels []string) bool {
	select {
	case d.queue <- job{alert: a, channels: channels}:
		return true
	default:
		for _, ch := range channels {
			d.record(a.ID, ch, ErrQueueFull)
		}
		d.log.Warn("dispatch queue full, alert dropped", logger.String("alert_id", a.ID))
		return false
	}
}

// Start runs the dispatch workers until Stop or ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.stop = make(chan struct{})

	workers := max(d.cfg.Workers, 1)
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, d.stop)
	}
	d.log.Info("dispatcher started", logger.Int("workers", workers))
}

// Stop signals the workers and waits for queued jobs to drain.
func (d *Dispatcher) Stop() {
	d.runMu.Lock()
	if !d.running {
		d.runMu.Unlock()
		return
	}
	d.running = false
	close(d.stop)
	d.runMu.Unlock()

	d.wg.Wait()
	d.log.Info("dispatcher stopped")
}

func (d *Dispatcher) worker(ctx context.Context, stop <-chan struct{}) {
	defer d.wg.Done()
	for {
		select {
		case j := <-d.queue:
			d.Dispatch(ctx, j.alert, j.channels)
		case <-stop:
			d.drain(context.WithoutCancel(ctx))
			return
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case j := <-d.queue:
			d.Dispatch(ctx, j.alert, j.channels)
		default:
			return
		}
	}
}
