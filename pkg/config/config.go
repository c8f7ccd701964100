package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		IngestRPS       float64       `yaml:"ingest_rps" default:"500" validate:"gte=0"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Ingestion struct {
		Shards    int `yaml:"shards" default:"8" validate:"gt=0"`
		QueueSize int `yaml:"queue_size" default:"1024" validate:"gt=0"`
		Feed      struct {
			Enabled        bool          `yaml:"enabled"`
			URL            string        `yaml:"url" validate:"required_if=Enabled true"`
			APIKey         string        `yaml:"api_key"`
			Underlyings    []string      `yaml:"underlyings"`
			ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
			PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		} `yaml:"feed"`
	} `yaml:"ingestion"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		TradesTopic  string   `yaml:"trades_topic" default:"options.trades"`
		AlertsTopic  string   `yaml:"alerts_topic" default:"options.alerts"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"options-flow"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"options.trades.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"options_flow"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime" default:"5m"`
		BatchSize        int           `yaml:"batch_size" default:"100"`
		FlushInterval    time.Duration `yaml:"flush_interval" default:"5s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled      bool          `yaml:"enabled"`
		Addr         string        `yaml:"addr" default:"localhost:6379"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		KeyPrefix    string        `yaml:"key_prefix" default:"optionsflow:alerts"`
		PoolSize     int           `yaml:"pool_size" default:"10"`
		MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
		PoolTimeout  time.Duration `yaml:"pool_timeout" default:"30s"`
	} `yaml:"redis"`
	Telegram struct {
		Enabled bool   `yaml:"enabled"`
		Token   string `yaml:"token" validate:"required_if=Enabled true"`
		ChatID  int64  `yaml:"chat_id" validate:"required_if=Enabled true"`
	} `yaml:"telegram"`
	Engine Engine `yaml:"engine"`
}

// Engine holds every threshold the detection core reads. Components receive
// only their own section.
type Engine struct {
	Sweep                SweepConfig       `yaml:"sweep"`
	Block                BlockConfig       `yaml:"block"`
	DarkPool             DarkPoolConfig    `yaml:"dark_pool"`
	Aggregator           AggregatorConfig  `yaml:"aggregator"`
	Flow                 FlowConfig        `yaml:"flow"`
	MarketMaker          MarketMakerConfig `yaml:"market_maker"`
	Alerts               AlertConfig       `yaml:"alerts"`
	Dispatch             DispatchConfig    `yaml:"dispatch"`
	HousekeepingInterval time.Duration     `yaml:"housekeeping_interval" default:"30s" validate:"gt=0"`
}

type SweepConfig struct {
	MinLegs          int           `yaml:"min_legs" default:"3" validate:"gte=2"`
	MaxTimeWindow    time.Duration `yaml:"max_time_window" default:"2s" validate:"gt=0"`
	MinPremiumPerLeg float64       `yaml:"min_premium_per_leg" default:"5000" validate:"gte=0"`
	MaxBufferLegs    int           `yaml:"max_buffer_legs" default:"64" validate:"gtefield=MinLegs"`
}

type BlockConfig struct {
	MinContracts int64   `yaml:"min_contracts" default:"100" validate:"gt=0"`
	MinPremium   float64 `yaml:"min_premium" default:"50000" validate:"gte=0"`
}

type DarkPoolConfig struct {
	MinContracts   int64         `yaml:"min_contracts" default:"50" validate:"gt=0"`
	MinPremium     float64       `yaml:"min_premium" default:"25000" validate:"gte=0"`
	Venues         []string      `yaml:"venues" default:"[\"EDGX\",\"DARK\",\"TRF\",\"ADF\",\"OTC\"]" validate:"min=1"`
	ReportingDelay time.Duration `yaml:"reporting_delay" default:"10s" validate:"gt=0"`
	HistoryWindow  time.Duration `yaml:"history_window" default:"1h" validate:"gt=0"`
}

type AggregatorConfig struct {
	Window               time.Duration `yaml:"window" default:"60m" validate:"gt=0"`
	InstitutionalPremium float64       `yaml:"institutional_premium" default:"100000" validate:"gte=0"`
}

type FlowConfig struct {
	Window                time.Duration `yaml:"window" default:"15m" validate:"gt=0"`
	MinPatternPremium     float64       `yaml:"min_pattern_premium" default:"1000000" validate:"gt=0"`
	AggressiveCallPremium float64       `yaml:"aggressive_call_premium" default:"250000" validate:"gt=0"`
	AggressivePutPremium  float64       `yaml:"aggressive_put_premium" default:"250000" validate:"gt=0"`
	LargeTradePremium     float64       `yaml:"large_trade_premium" default:"50000" validate:"gte=0"`
	MaxPatterns           int           `yaml:"max_patterns" default:"100" validate:"gt=0"`
}

type MarketMakerConfig struct {
	DeltaSlope           float64 `yaml:"delta_slope" default:"5" validate:"gt=0"`
	GammaPeak            float64 `yaml:"gamma_peak" default:"0.05" validate:"gt=0"`
	GammaWidth           float64 `yaml:"gamma_width" default:"0.1" validate:"gt=0"`
	DefaultIV            float64 `yaml:"default_iv" default:"0.3" validate:"gt=0"`
	NeutralDelta         float64 `yaml:"neutral_delta" default:"100" validate:"gte=0"`
	GammaSqueezeMinGamma float64 `yaml:"gamma_squeeze_min_gamma" default:"1000" validate:"gte=0"`
}

type AlertConfig struct {
	Retention        time.Duration `yaml:"retention" default:"24h" validate:"gt=0"`
	DedupBucket      time.Duration `yaml:"dedup_bucket" default:"60s" validate:"gt=0"`
	MinSweepScore    float64       `yaml:"min_sweep_score" default:"0" validate:"gte=0,lte=1"`
	MinBlockScore    float64       `yaml:"min_block_score" default:"0" validate:"gte=0,lte=1"`
	MinDarkPoolScore float64       `yaml:"min_dark_pool_score" default:"0" validate:"gte=0,lte=1"`
}

type DispatchConfig struct {
	DefaultChannels []string      `yaml:"default_channels" default:"[\"console\"]"`
	WebhookURLs     []string      `yaml:"webhook_urls" validate:"dive,url"`
	WebhookTimeout  time.Duration `yaml:"webhook_timeout" default:"5s" validate:"gt=0"`
	WebhookRPS      float64       `yaml:"webhook_rps" default:"5" validate:"gt=0"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout" default:"5s" validate:"gt=0"`
	MaxLogEntries   int           `yaml:"max_log_entries" default:"1000" validate:"gt=0"`
	Workers         int           `yaml:"workers" default:"2" validate:"gt=0"`
	QueueSize       int           `yaml:"queue_size" default:"256" validate:"gt=0"`
}

var validate = validator.New()

// Default returns a configuration with every documented default applied.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// DefaultEngine returns the default detection thresholds.
func DefaultEngine() Engine {
	return Default().Engine
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("KAFKA_TRADES_TOPIC"); v != "" {
		c.Kafka.TradesTopic = v
	}
	if v := os.Getenv("KAFKA_ALERTS_TOPIC"); v != "" {
		c.Kafka.AlertsTopic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
		c.Telegram.Enabled = true
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("WEBHOOK_URLS"); v != "" {
		c.Engine.Dispatch.WebhookURLs = splitList(v)
	}
	if v := os.Getenv("FEED_API_KEY"); v != "" {
		c.Ingestion.Feed.APIKey = v
	}
}

// Validate checks struct tags and the cross-section rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Engine.Sweep.MaxBufferLegs < c.Engine.Sweep.MinLegs {
		return fmt.Errorf("engine.sweep.max_buffer_legs must be >= min_legs")
	}
	for _, ch := range c.Engine.Dispatch.DefaultChannels {
		if ch == "kafka" && !c.Kafka.Enabled {
			return fmt.Errorf("dispatch channel %q requires kafka.enabled", ch)
		}
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
