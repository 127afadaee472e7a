package ops

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	yerrors "github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gopkg.in/yaml.v3"

	"exchange/internal/cache"
	"exchange/internal/candle"
	"exchange/internal/eventlog"
	"exchange/internal/gateway"
	"exchange/internal/orderbook"
	"exchange/pkg/conn"
	"exchange/pkg/exception"
)

// Event log drivers.
const (
	DriverJetStream = "jetstream"
	DriverKafka     = "kafka"
)

// Config mirrors the config file layout shared by every binary.
type Config struct {
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	NATS      NATSConfig      `json:"nats" yaml:"nats"`
	Kafka     KafkaConfig     `json:"kafka" yaml:"kafka"`
	EventLog  EventLogConfig  `json:"eventLog" yaml:"eventLog"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Orderbook OrderbookConfig `json:"orderbook" yaml:"orderbook"`
	Candle    CandleConfig    `json:"candle" yaml:"candle"`
	Gateway   GatewayConfig   `json:"gateway" yaml:"gateway"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Profiling ProfilingConfig `json:"profiling" yaml:"profiling"`
}

type DatabaseConfig struct {
	URL             string   `json:"url" yaml:"url"`
	Host            string   `json:"host" yaml:"host"`
	Port            int      `json:"port" yaml:"port"`
	User            string   `json:"user" yaml:"user"`
	Password        string   `json:"password" yaml:"password"`
	Name            string   `json:"name" yaml:"name"`
	SSLMode         string   `json:"sslMode" yaml:"sslMode"`
	MaxOpenConns    int      `json:"maxOpenConns" yaml:"maxOpenConns"`
	MaxIdleConns    int      `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`
}

func (c DatabaseConfig) Option() conn.Option {
	return conn.Option{
		ConnString:      c.URL,
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Database:        c.Name,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime.Std(),
	}
}

type NATSConfig struct {
	URL           string   `json:"url" yaml:"url"`
	Name          string   `json:"name" yaml:"name"`
	ReconnectWait Duration `json:"reconnectWait" yaml:"reconnectWait"`
	Timeout       Duration `json:"timeout" yaml:"timeout"`
}

// Option returns the connection options, naming the connection after the
// binary when no name is configured.
func (c NATSConfig) Option(binary string) conn.NATSOption {
	name := c.Name
	if name == "" {
		name = binary
	}
	return conn.NATSOption{
		URL:           c.URL,
		Name:          name,
		ReconnectWait: c.ReconnectWait.Std(),
		Timeout:       c.Timeout.Std(),
	}
}

type KafkaConfig struct {
	Brokers []string `json:"brokers" yaml:"brokers"`
}

// EventLogConfig selects the log driver and names the two event streams.
// With JetStream the topics are subjects; with Kafka they are topics.
type EventLogConfig struct {
	Driver         string        `json:"driver" yaml:"driver"`
	Stream         string        `json:"stream" yaml:"stream"`
	TradesTopic    string        `json:"tradesTopic" yaml:"tradesTopic"`
	OrderbookTopic string        `json:"orderbookTopic" yaml:"orderbookTopic"`
	FetchWait      Duration      `json:"fetchWait" yaml:"fetchWait"`
	AckWait        Duration      `json:"ackWait" yaml:"ackWait"`
	Backoff        BackoffConfig `json:"backoff" yaml:"backoff"`
}

type BackoffConfig struct {
	Min    Duration `json:"min" yaml:"min"`
	Max    Duration `json:"max" yaml:"max"`
	Factor float64  `json:"factor" yaml:"factor"`
	Jitter float64  `json:"jitter" yaml:"jitter"`
}

func (c BackoffConfig) Backoff() eventlog.Backoff {
	return eventlog.Backoff{
		Min:    c.Min.Std(),
		Max:    c.Max.Std(),
		Factor: c.Factor,
		Jitter: c.Jitter,
	}
}

type CacheConfig struct {
	Bucket        string   `json:"bucket" yaml:"bucket"`
	SubjectPrefix string   `json:"subjectPrefix" yaml:"subjectPrefix"`
	TTL           Duration `json:"ttl" yaml:"ttl"`
}

func (c CacheConfig) Option() cache.NATSOption {
	return cache.NATSOption{
		Bucket:        c.Bucket,
		SubjectPrefix: c.SubjectPrefix,
		TTL:           c.TTL.Std(),
	}
}

type OrderbookConfig struct {
	Depth int `json:"depth" yaml:"depth"`
}

type CandleConfig struct {
	Timeframes    []string `json:"timeframes" yaml:"timeframes"`
	FlushInterval Duration `json:"flushInterval" yaml:"flushInterval"`
	Reseed        *bool    `json:"reseed" yaml:"reseed"`
}

func (c CandleConfig) ReseedEnabled() bool {
	return c.Reseed == nil || *c.Reseed
}

type GatewayConfig struct {
	Addr      string   `json:"addr" yaml:"addr"`
	Liveness  Duration `json:"liveness" yaml:"liveness"`
	WriteWait Duration `json:"writeWait" yaml:"writeWait"`
	QueueSize int      `json:"queueSize" yaml:"queueSize"`
	ReadLimit int64    `json:"readLimit" yaml:"readLimit"`
}

func (c GatewayConfig) Option() gateway.Option {
	return gateway.Option{
		Addr:     c.Addr,
		Liveness: c.Liveness.Std(),
		Client: gateway.ClientOption{
			WriteWait: c.WriteWait.Std(),
			QueueSize: c.QueueSize,
			ReadLimit: c.ReadLimit,
		},
	}
}

// MetricsConfig is the metrics listener of the consumer binaries. The
// gateway serves metrics on its own address.
type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type ProfilingConfig struct {
	ApplicationName string            `json:"applicationName" yaml:"applicationName"`
	ServerAddress   string            `json:"serverAddress" yaml:"serverAddress"`
	Tags            map[string]string `json:"tags" yaml:"tags"`
}

// Load reads an optional .env, the config file at path (json or yaml; an
// empty path means defaults only), then applies environment overrides and
// defaults.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logs.Warnf("load .env, err: %+v", err)
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, yerrors.Wrapf(err, "read config %s", path)
		}
		if cfg, err = Parse(filepath.Ext(path), data); err != nil {
			return Config{}, yerrors.Wrapf(err, "parse config %s", path)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes data by file extension.
func Parse(ext string, data []byte) (Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".json":
		if err := sonic.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, yerrors.Wrapf(exception.ErrInvalidArgument, "unsupported config format %q", ext)
	}
	return cfg, nil
}

// ApplyEnv overrides endpoints from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set("DATABASE_URL", &c.Database.URL)
	set("NATS_URL", &c.NATS.URL)
	set("EVENTLOG_DRIVER", &c.EventLog.Driver)
	set("GATEWAY_ADDR", &c.Gateway.Addr)
	set("METRICS_ADDR", &c.Metrics.Addr)
	set("PYROSCOPE_SERVER_ADDRESS", &c.Profiling.ServerAddress)

	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = c.Kafka.Brokers[:0]
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
	}
}

// ApplyDefaults fills every zero value.
func (c *Config) ApplyDefaults() {
	if c.EventLog.Driver == "" {
		c.EventLog.Driver = DriverJetStream
	}
	if c.EventLog.Stream == "" {
		c.EventLog.Stream = "EVENTS"
	}
	if c.EventLog.TradesTopic == "" {
		c.EventLog.TradesTopic = "events.trades"
	}
	if c.EventLog.OrderbookTopic == "" {
		c.EventLog.OrderbookTopic = "events.orderbook"
	}
	if c.Orderbook.Depth <= 0 {
		c.Orderbook.Depth = orderbook.DefaultDepth
	}
	if len(c.Candle.Timeframes) == 0 {
		c.Candle.Timeframes = append([]string(nil), candle.DefaultTimeframes...)
	}
	if c.Candle.FlushInterval <= 0 {
		c.Candle.FlushInterval = Duration(candle.DefaultFlushInterval)
	}
	if c.Gateway.Addr == "" {
		c.Gateway.Addr = ":8080"
	}
	if c.Gateway.Liveness <= 0 {
		c.Gateway.Liveness = Duration(gateway.DefaultLiveness)
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Profiling.ApplicationName == "" {
		c.Profiling.ApplicationName = "exchange"
	}
}

func (c Config) Validate() error {
	switch c.EventLog.Driver {
	case DriverJetStream:
	case DriverKafka:
		if len(c.Kafka.Brokers) == 0 {
			return yerrors.Wrap(exception.ErrInvalidArgument, "kafka driver needs at least one broker")
		}
	default:
		return yerrors.Wrapf(exception.ErrInvalidArgument, "unknown event log driver %q", c.EventLog.Driver)
	}
	if _, err := candle.ParseTimeframes(c.Candle.Timeframes); err != nil {
		return err
	}
	if c.Gateway.QueueSize < 0 {
		return yerrors.Wrap(exception.ErrInvalidArgument, "gateway queue size must be >= 0")
	}
	return nil
}
