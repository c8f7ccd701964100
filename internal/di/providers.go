package di

import (
	"context"
	"fmt"
	"time"

	"OptionsFlow/internal/domain/repository"
	"OptionsFlow/internal/handler/api"
	mid "OptionsFlow/internal/middleware"
	internalrepo "OptionsFlow/internal/repository"
	"OptionsFlow/internal/service/feed"
	"OptionsFlow/internal/services/alerting"
	"OptionsFlow/internal/usecase"
	pkgcache "OptionsFlow/pkg/cache"
	pkgch "OptionsFlow/pkg/clickhouse"
	"OptionsFlow/pkg/config"
	pkgkafka "OptionsFlow/pkg/kafka"
	"OptionsFlow/pkg/logger"
	"OptionsFlow/pkg/metrics"
	"OptionsFlow/pkg/server"
)

const alertTable = "alerts"

// ProvideLogger builds the root logger from the logging section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New()
}

// ProvideClickHouseClient connects and creates the alert archive schema.
// Returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		pkgch.WithPool(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns, cfg.ClickHouse.ConnMaxLifetime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, pkgch.AlertSchema(cfg.ClickHouse.Database, alertTable)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideAlertArchive returns nil when there is no ClickHouse client.
func ProvideAlertArchive(ch *pkgch.Client, cfg *config.Config) (repository.AlertArchive, error) {
	if ch == nil {
		return nil, nil
	}
	archive := internalrepo.NewClickHouseAlertArchive(ch.DB(), cfg.ClickHouse.Database+"."+alertTable)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ClickHouse.DialTimeout)
	defer cancel()
	if err := archive.Init(ctx); err != nil {
		return nil, fmt.Errorf("alert archive: %w", err)
	}
	return archive, nil
}

// ProvideRedisCache returns nil when Redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	c, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Addr),
		pkgcache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
		pkgcache.WithRedisPrefix(cfg.Redis.KeyPrefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return c, nil
}

// ProvideAlertStore keeps alerts in Redis when available, in memory otherwise.
func ProvideAlertStore(rc *pkgcache.RedisCache, cfg *config.Config) repository.AlertStore {
	if rc == nil {
		return internalrepo.NewMemoryAlertStore()
	}
	return internalrepo.NewRedisAlertStore(rc, cfg.Engine.Alerts.Retention)
}

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

func ProvideAlertManager(cfg *config.Config, store repository.AlertStore, m repository.Metrics, l *logger.Logger) *alerting.Manager {
	return alerting.NewManager(cfg.Engine.Alerts,
		alerting.WithStore(store),
		alerting.WithMetrics(m),
		alerting.WithLogger(l),
	)
}

// ProvideDispatcher registers the configured webhooks plus the Kafka and
// Telegram channels when those are enabled.
func ProvideDispatcher(cfg *config.Config, producer *pkgkafka.Producer, m repository.Metrics, l *logger.Logger) (*alerting.Dispatcher, error) {
	d := alerting.NewDispatcher(cfg.Engine.Dispatch,
		alerting.WithDispatchLogger(l),
		alerting.WithDispatchMetrics(m),
	)
	if producer != nil {
		d.SetPublisher(internalrepo.NewKafkaAlertPublisher(producer, cfg.Kafka.AlertsTopic))
	}
	if cfg.Telegram.Enabled {
		bot, err := alerting.NewTelegramBot(cfg.Telegram.Token, cfg.Engine.Dispatch.HandlerTimeout)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		d.AddCustomHandler("telegram", alerting.TelegramHandler(bot, cfg.Telegram.ChatID))
	}
	return d, nil
}

func ProvideEngine(cfg *config.Config, mgr *alerting.Manager, d *alerting.Dispatcher, m repository.Metrics, l *logger.Logger) *usecase.Engine {
	return usecase.NewEngine(cfg.Engine, mgr, d,
		usecase.WithEngineMetrics(m),
		usecase.WithEngineLogger(l),
	)
}

// ProvidePipeline shards ingress by underlying in front of the engine.
func ProvidePipeline(engine *usecase.Engine, m repository.Metrics, l *logger.Logger, cfg *config.Config) *mid.ShardedPipeline {
	return mid.NewShardedPipeline(engine, m,
		mid.WithShards(cfg.Ingestion.Shards),
		mid.WithQueueSize(cfg.Ingestion.QueueSize),
		mid.WithPipelineLogger(l),
	)
}

// ProvideTradeCollector returns nil when the websocket feed is disabled.
func ProvideTradeCollector(cfg *config.Config, pipe *mid.ShardedPipeline, m repository.Metrics, l *logger.Logger) *usecase.TradeCollector {
	fc := cfg.Ingestion.Feed
	if !fc.Enabled {
		return nil
	}
	stream := feed.New(fc.APIKey, fc.URL, fc.Underlyings, fc.ReconnectDelay, fc.PingInterval, l)
	return usecase.NewTradeCollector(stream, pipe, m, l)
}

// ProvideKafkaConsumer returns nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, m repository.Metrics, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
		pkgkafka.WithConsumerErrorHook(func(topic string, _ []byte, _ error) {
			m.RecordError("kafka_" + topic)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

func ProvideKafkaTradesHandler(cfg *config.Config, pipe *mid.ShardedPipeline, m repository.Metrics) *usecase.KafkaTradesHandler {
	return usecase.NewKafkaTradesHandler(cfg.Kafka.TradesTopic, pipe, m)
}

// ProvideAlertArchiver subscribes a batching archiver to the engine's alert
// stream. Returns nil without an archive.
func ProvideAlertArchiver(cfg *config.Config, archive repository.AlertArchive, engine *usecase.Engine, m repository.Metrics, l *logger.Logger) *usecase.AlertArchiver {
	if archive == nil {
		return nil
	}
	a := usecase.NewAlertArchiver(archive, m, l, cfg.ClickHouse.BatchSize, cfg.ClickHouse.FlushInterval)
	engine.SubscribeToAlerts(a.OnAlert)
	return a
}

func ProvideHTTPHandler(cfg *config.Config, engine *usecase.Engine, archive repository.AlertArchive, l *logger.Logger) *api.FlowEchoHandler {
	return api.NewFlowEchoHandler(l.Component("api"), engine, archive, cfg.Server.IngestRPS)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	engine *usecase.Engine,
	pipe *mid.ShardedPipeline,
	handler *api.FlowEchoHandler,
	collector *usecase.TradeCollector,
	consumer *pkgkafka.Consumer,
	trades *usecase.KafkaTradesHandler,
	archiver *usecase.AlertArchiver,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	rc *pkgcache.RedisCache,
) *server.App {
	return server.New(cfg, l, server.Components{
		Engine:    engine,
		Pipeline:  pipe,
		Handler:   handler,
		Collector: collector,
		Consumer:  consumer,
		Trades:    trades,
		Archiver:  archiver,
		Producer:  producer,
		CHClient:  ch,
		Redis:     rc,
	})
}
