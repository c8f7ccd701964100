package middleware

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"OptionsFlow/internal/domain/models"
	domrepo "OptionsFlow/internal/domain/repository"
	"OptionsFlow/pkg/logger"
)

var ErrQueueFull = errors.New("pipeline queue full")

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, t *models.OptionsTrade) error
}

// ShardedPipeline sits between the trade sources (websocket, Kafka, HTTP)
// and the engine. Every underlying hashes to one shard, and each shard is
// drained by a single goroutine, so one underlying's trades are processed
// in arrival order by one writer.
type ShardedPipeline struct {
	proc      Proc
	metrics   domrepo.Metrics
	log       *logger.Logger
	nShards   int
	queueSize int
	shards    []chan *models.OptionsTrade

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type PipelineOption func(*ShardedPipeline)

// WithShards sets the number of worker goroutines.
func WithShards(n int) PipelineOption {
	return func(p *ShardedPipeline) {
		if n > 0 {
			p.nShards = n
		}
	}
}

// WithQueueSize sets the per-shard buffer.
func WithQueueSize(n int) PipelineOption {
	return func(p *ShardedPipeline) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

func WithPipelineLogger(l *logger.Logger) PipelineOption {
	return func(p *ShardedPipeline) { p.log = l }
}

// NewShardedPipeline creates a new pipeline.
func NewShardedPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *ShardedPipeline {
	p := &ShardedPipeline{
		proc:      proc,
		metrics:   metrics,
		log:       logger.Nop(),
		nShards:   8,
		queueSize: 1024,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.Component("pipeline")
	p.shards = make([]chan *models.OptionsTrade, p.nShards)
	for i := range p.shards {
		p.shards[i] = make(chan *models.OptionsTrade, p.queueSize)
	}
	return p
}

// ShardFor maps an underlying to its shard index.
func (p *ShardedPipeline) ShardFor(underlying string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(underlying))
	return int(h.Sum32() % uint32(p.nShards))
}

// Submit queues t on its shard without blocking.
func (p *ShardedPipeline) Submit(ctx context.Context, t *models.OptionsTrade) error {
	if t == nil {
		return fmt.Errorf("trade nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.shards[p.ShardFor(t.Underlying)] <- t:
		return nil
	default:
		p.metrics.RecordError("pipeline_queue_full")
		return fmt.Errorf("%w: %s", ErrQueueFull, t.Underlying)
	}
}

// Start launches one worker per shard.
func (p *ShardedPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})

	for i, ch := range p.shards {
		p.wg.Add(1)
		go p.worker(ctx, i, ch, p.stopCh)
	}
	p.log.Info("pipeline started", logger.Int("shards", p.nShards), logger.Int("queue_size", p.queueSize))
}

// Stop signals the workers, lets them drain their queues and waits.
func (p *ShardedPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info("pipeline stopped")
}

func (p *ShardedPipeline) worker(ctx context.Context, shard int, ch <-chan *models.OptionsTrade, stop <-chan struct{}) {
	defer p.wg.Done()
	for {
		select {
		case t := <-ch:
			p.process(ctx, shard, t)
		case <-stop:
			drainCtx := context.WithoutCancel(ctx)
			for {
				select {
				case t := <-ch:
					p.process(drainCtx, shard, t)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *ShardedPipeline) process(ctx context.Context, shard int, t *models.OptionsTrade) {
	start := time.Now()
	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		p.log.Warn("trade rejected",
			logger.Int("shard", shard),
			logger.String("trade_id", t.ID),
			logger.String("underlying", t.Underlying),
			logger.Error(err),
		)
		return
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
}

// Depth reports queued trades per shard.
func (p *ShardedPipeline) Depth() []int {
	out := make([]int, len(p.shards))
	for i, ch := range p.shards {
		out[i] = len(ch)
	}
	return out
}
