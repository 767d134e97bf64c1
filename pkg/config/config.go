package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"oneof=development staging production"`
	Log         LogConfig        `yaml:"log"`
	Server      ServerConfig     `yaml:"server"`
	Pair        PairConfig       `yaml:"pair"`
	Engine      EngineConfig     `yaml:"engine"`
	Schedule    ScheduleConfig   `yaml:"schedule"`
	MarketData  MarketDataConfig `yaml:"market_data"`
	Finnhub     FinnhubConfig    `yaml:"finnhub"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Cache       CacheConfig      `yaml:"cache"`
	Postgres    PostgresConfig   `yaml:"postgres"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	Notify      NotifyConfig     `yaml:"notify"`
	API         APIConfig        `yaml:"api"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"auto" validate:"oneof=auto json console"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" default:"1s"`
	CORS            bool          `yaml:"cors"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// PairConfig names the two instruments whose ratio drives the strategy and
// the volatility index feeding the sentiment score.
type PairConfig struct {
	Growth     string `yaml:"growth" default:"QQQ" validate:"required"`
	Defensive  string `yaml:"defensive" default:"SPY" validate:"required,nefield=Growth"`
	Volatility string `yaml:"volatility" default:"^VIX" validate:"required"`
}

type EngineConfig struct {
	Indicators IndicatorsConfig `yaml:"indicators"`
	Sentiment  SentimentConfig  `yaml:"sentiment"`
	Crossover  CrossoverConfig  `yaml:"crossover"`
	Position   PositionConfig   `yaml:"position"`
}

type IndicatorsConfig struct {
	MAWindows      []int   `yaml:"ma_windows" default:"[10,20,40]" validate:"min=1,dive,gte=1"`
	RSIWindow      int     `yaml:"rsi_window" default:"14" validate:"gte=1"`
	Overbought     float64 `yaml:"overbought" default:"70"`
	Oversold       float64 `yaml:"oversold" default:"30"`
	BaselineWindow int     `yaml:"baseline_window" default:"10" validate:"gte=1"`
}

type SentimentConfig struct {
	MinSamples        int       `yaml:"min_samples" default:"20" validate:"gte=1"`
	HistoryWindow     int       `yaml:"history_window" default:"252"`
	PercentileWeight  float64   `yaml:"percentile_weight" default:"0.6"`
	LevelWeight       float64   `yaml:"level_weight" default:"0.4"`
	TrendAdjustment   float64   `yaml:"trend_adjustment" default:"10"`
	TrendWindow       int       `yaml:"trend_window" default:"5" validate:"gte=2"`
	TrendTolerancePct float64   `yaml:"trend_tolerance_pct" default:"5"`
	ExtremeGreedLevel float64   `yaml:"extreme_greed_level" default:"12"`
	GreedLevel        float64   `yaml:"greed_level" default:"15"`
	FearLevel         float64   `yaml:"fear_level" default:"25"`
	ExtremeFearLevel  float64   `yaml:"extreme_fear_level" default:"30"`
	Bands             []float64 `yaml:"bands" default:"[20,40,60,80]" validate:"len=4"`
	ShortMA           int       `yaml:"short_ma" default:"10"`
	LongMA            int       `yaml:"long_ma" default:"50"`
}

type CrossoverConfig struct {
	K               int    `yaml:"k" default:"3" validate:"gte=1"`
	Policy          string `yaml:"policy" default:"strict_all" validate:"oneof=strict_all majority"`
	RequireCrossing *bool  `yaml:"require_crossing"`
}

// PositionConfig lists one rule per risk position. An empty list means the
// classic pair: growth on a confirmed rise, defensive on a confirmed fall
// while the defensive leg holds above its 40-bar average.
type PositionConfig struct {
	Rules        []RuleConfig   `yaml:"rules" validate:"dive"`
	Override     OverrideConfig `yaml:"override"`
	Alternatives []string       `yaml:"alternatives" default:"[\"SH\",\"PSQ\",\"AGG\",\"LQD\",\"TLT\",\"GLD\"]"`
}

type RuleConfig struct {
	Position         string `yaml:"position" validate:"oneof=growth defensive hedge"`
	Symbol           string `yaml:"symbol" validate:"required"`
	EntryOn          string `yaml:"entry_on" validate:"oneof=confirmed_above confirmed_below"`
	Trend            string `yaml:"trend" validate:"omitempty,oneof=above_ma below_ma"`
	TrendSymbol      string `yaml:"trend_symbol"`
	TrendWindow      int    `yaml:"trend_window"`
	ExitOnTrendBreak bool   `yaml:"exit_on_trend_break"`
	OverrideExempt   bool   `yaml:"override_exempt"`
}

type OverrideConfig struct {
	Enabled    *bool    `yaml:"enabled"`
	ExitLevels []string `yaml:"exit_levels" default:"[\"extreme_fear\"]" validate:"dive,oneof=extreme_fear fear neutral greed extreme_greed"`
	BlockEntry *bool    `yaml:"block_entry"`
}

type ScheduleConfig struct {
	MarketHoursInterval   time.Duration `yaml:"market_hours_interval" default:"10m"`
	OffHoursInterval      time.Duration `yaml:"off_hours_interval" default:"1h"`
	WeekendInterval       time.Duration `yaml:"weekend_interval" default:"24h"`
	RetryInterval         time.Duration `yaml:"retry_interval" default:"5m"`
	CycleTimeout          time.Duration `yaml:"cycle_timeout" default:"2m"`
	LockTTL               time.Duration `yaml:"lock_ttl" default:"5m"`
	OnlyDuringMarketHours bool          `yaml:"only_during_market_hours"`
	Timezone              string        `yaml:"timezone" default:"America/New_York"`
}

type MarketDataConfig struct {
	BaseURL         string        `yaml:"base_url" default:"https://query1.finance.yahoo.com" validate:"url"`
	Interval        string        `yaml:"interval" default:"1wk" validate:"oneof=1d 1wk"`
	Bars            int           `yaml:"bars" default:"60" validate:"gte=1"`
	VolatilityBars  int           `yaml:"volatility_bars" default:"260" validate:"gte=1"`
	Timeout         time.Duration `yaml:"timeout" default:"15s"`
	Retries         int           `yaml:"retries" default:"2"`
	RatePerSecond   float64       `yaml:"rate_per_second" default:"2"`
	Burst           int           `yaml:"burst" default:"4"`
	FreshnessWindow time.Duration `yaml:"freshness_window" default:"24h"`
	UserAgent       string        `yaml:"user_agent" default:"Mozilla/5.0 (compatible; marketflow)"`
	Breaker         BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests" default:"1"`
	Interval         time.Duration `yaml:"interval" default:"1m"`
	Timeout          time.Duration `yaml:"timeout" default:"30s"`
	FailureThreshold uint32        `yaml:"failure_threshold" default:"5"`
}

type FinnhubConfig struct {
	Enabled        bool          `yaml:"enabled"`
	APIKey         string        `yaml:"api_key" validate:"required_if=Enabled true"`
	WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
	Symbols        []string      `yaml:"symbols"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	QuoteTTL       time.Duration `yaml:"quote_ttl" default:"15m"`
	MinInterval    time.Duration `yaml:"min_interval" default:"1s"`
	MaxJumpPct     float64       `yaml:"max_jump_pct" default:"20"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Addr             []string      `yaml:"addr" default:"[\"localhost:9000\"]"`
	Database         string        `yaml:"database" default:"marketflow"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type CacheConfig struct {
	Backend         string        `yaml:"backend" default:"memory" validate:"oneof=memory redis layered"`
	Redis           RedisConfig   `yaml:"redis"`
	MemoryMaxSize   int           `yaml:"memory_max_size" default:"1024"`
	MemoryTTL       time.Duration `yaml:"memory_ttl" default:"30s"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" default:"1m"`
	ReportTTL       time.Duration `yaml:"report_ttl" default:"168h"`
	JournalSize     int           `yaml:"journal_size" default:"500"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size" default:"10"`
	Prefix   string `yaml:"prefix" default:"marketflow"`
}

type PostgresConfig struct {
	Enabled  bool   `yaml:"enabled"`
	DSN      string `yaml:"dsn" validate:"required_if=Enabled true"`
	MaxConns int32  `yaml:"max_conns" default:"4"`
	MinConns int32  `yaml:"min_conns"`
}

type KafkaConfig struct {
	Enabled      bool                `yaml:"enabled"`
	Brokers      []string            `yaml:"brokers"`
	ReportsTopic string              `yaml:"reports_topic" default:"marketflow.reports"`
	RequiredAcks int                 `yaml:"required_acks" default:"-1"`
	Compression  string              `yaml:"compression" default:"snappy" validate:"oneof=snappy gzip lz4 zstd"`
	Consumer     KafkaConsumerConfig `yaml:"consumer"`
}

type KafkaConsumerConfig struct {
	GroupID    string        `yaml:"group_id" default:"marketflow-notify"`
	Workers    int           `yaml:"workers" default:"1"`
	RetryMax   int           `yaml:"retry_max" default:"3"`
	BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
	BackoffMax time.Duration `yaml:"backoff_max" default:"10s"`
	DLQTopic   string        `yaml:"dlq_topic" default:"marketflow.reports.dlq"`
}

type NotifyConfig struct {
	Cooldown time.Duration  `yaml:"cooldown" default:"1h"`
	Retries  int            `yaml:"retries" default:"3"`
	Timeout  time.Duration  `yaml:"timeout" default:"10s"`
	Bark     BarkConfig     `yaml:"bark"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type BarkConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url" default:"https://api.day.app"`
	Key     string `yaml:"key" validate:"required_if=Enabled true"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url" default:"https://api.telegram.org"`
	Token   string `yaml:"token" validate:"required_if=Enabled true"`
	ChatID  string `yaml:"chat_id" validate:"required_if=Enabled true"`
}

type APIConfig struct {
	TriggerRate  float64 `yaml:"trigger_rate" default:"0.1"`
	TriggerBurst int     `yaml:"trigger_burst" default:"1"`
}

var validate = validator.New()

// Load reads a YAML file, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes into a validated Config.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	return finish(c)
}

// envOverrides are read with the MARKETFLOW_ prefix, e.g. MARKETFLOW_KAFKA_BROKERS.
type envOverrides struct {
	Environment        string   `envconfig:"ENVIRONMENT"`
	LogLevel           string   `envconfig:"LOG_LEVEL"`
	ServerPort         int      `envconfig:"SERVER_PORT"`
	FinnhubAPIKey      string   `envconfig:"FINNHUB_API_KEY"`
	KafkaBrokers       []string `envconfig:"KAFKA_BROKERS"`
	RedisAddr          string   `envconfig:"REDIS_ADDR"`
	RedisPassword      string   `envconfig:"REDIS_PASSWORD"`
	ClickHouseAddr     []string `envconfig:"CLICKHOUSE_ADDR"`
	ClickHousePassword string   `envconfig:"CLICKHOUSE_PASSWORD"`
	PostgresDSN        string   `envconfig:"POSTGRES_DSN"`
	BarkKey            string   `envconfig:"BARK_KEY"`
	TelegramToken      string   `envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID     string   `envconfig:"TELEGRAM_CHAT_ID"`
}

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "MARKETFLOW"

// LoadWithEnv loads .env (if present) and the YAML file, then applies
// MARKETFLOW_* environment overrides before validating.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}

	var o envOverrides
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	o.apply(c)
	return finish(c)
}

func decode(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

func finish(c *Config) (*Config, error) {
	if err := defaults.Set(c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if c.Finnhub.Enabled && len(c.Finnhub.Symbols) == 0 {
		c.Finnhub.Symbols = []string{c.Pair.Growth, c.Pair.Defensive}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (o envOverrides) apply(c *Config) {
	setString(&c.Environment, o.Environment)
	setString(&c.Log.Level, o.LogLevel)
	if o.ServerPort != 0 {
		c.Server.Port = o.ServerPort
	}
	setString(&c.Finnhub.APIKey, o.FinnhubAPIKey)
	if len(o.KafkaBrokers) > 0 {
		c.Kafka.Brokers = o.KafkaBrokers
	}
	setString(&c.Cache.Redis.Addr, o.RedisAddr)
	setString(&c.Cache.Redis.Password, o.RedisPassword)
	if len(o.ClickHouseAddr) > 0 {
		c.ClickHouse.Addr = o.ClickHouseAddr
	}
	setString(&c.ClickHouse.Password, o.ClickHousePassword)
	setString(&c.Postgres.DSN, o.PostgresDSN)
	setString(&c.Notify.Bark.Key, o.BarkKey)
	setString(&c.Notify.Telegram.Token, o.TelegramToken)
	setString(&c.Notify.Telegram.ChatID, o.TelegramChatID)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate runs tag validation plus the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	s := c.Engine.Sentiment
	for i := 1; i < len(s.Bands); i++ {
		if s.Bands[i] <= s.Bands[i-1] {
			return fmt.Errorf("engine.sentiment.bands must be strictly increasing")
		}
	}
	if s.HistoryWindow < s.MinSamples {
		return fmt.Errorf("engine.sentiment.history_window must be >= min_samples")
	}
	if c.Engine.Indicators.Oversold >= c.Engine.Indicators.Overbought {
		return fmt.Errorf("engine.indicators.oversold must be below overbought")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	seen := make(map[string]bool, len(c.Engine.Position.Rules))
	for _, r := range c.Engine.Position.Rules {
		if seen[r.Position] {
			return fmt.Errorf("engine.position.rules: duplicate rule for %s", r.Position)
		}
		seen[r.Position] = true
		if r.Trend != "" && r.TrendWindow < 1 {
			return fmt.Errorf("engine.position.rules: %s trend needs trend_window", r.Position)
		}
	}
	if c.Schedule.MarketHoursInterval <= 0 || c.Schedule.OffHoursInterval <= 0 ||
		c.Schedule.WeekendInterval <= 0 || c.Schedule.RetryInterval <= 0 {
		return fmt.Errorf("schedule intervals must be positive")
	}
	return nil
}

// OverrideEnabled reports whether the sentiment override is on (default true).
func (o OverrideConfig) OverrideEnabled() bool {
	return o.Enabled == nil || *o.Enabled
}

// EntryBlocked reports whether override levels also veto entries from cash (default true).
func (o OverrideConfig) EntryBlocked() bool {
	return o.BlockEntry == nil || *o.BlockEntry
}

// Crossing reports whether a confirmed signal needs a prior opposite sample (default true).
func (c CrossoverConfig) Crossing() bool {
	return c.RequireCrossing == nil || *c.RequireCrossing
}

// Name keys stored state for the pair, e.g. "QQQ-SPY".
func (p PairConfig) Name() string {
	return p.Growth + "-" + p.Defensive
}
