// Package config loads simulator settings from YAML, .env files and
// CLICKSIM_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"clicksim/internal/collector"
	"clicksim/internal/core"
	"clicksim/internal/delivery"
	"clicksim/internal/orchestrator"
	"clicksim/internal/runner"
)

const (
	SinkHTTP  = "http"
	SinkKafka = "kafka"

	DefaultEndpoint   = "http://localhost:3000/events"
	DefaultKafkaTopic = "clickstream-demo-stream"
	envPrefix         = "CLICKSIM_"
)

var (
	ErrNoEndpoint        = errors.New("endpoint is required for the http sink")
	ErrNoBrokers         = errors.New("kafka.brokers is required for the kafka sink")
	ErrNoTopic           = errors.New("kafka.topic is required for the kafka sink")
	ErrUnknownSink       = errors.New("sink must be http or kafka")
	ErrBadDuration       = errors.New("duration must be positive")
	ErrBadConcurrency    = errors.New("max_concurrency must be at least 1")
	ErrBadRange          = errors.New("range min must be non-negative and not above max")
	ErrBadBatchSize      = errors.New("delivery.max_batch_size must be at least 1")
	ErrNegativeSetting   = errors.New("setting must not be negative")
	ErrUnknownCompressor = errors.New("kafka.compression must be none, gzip, snappy, lz4 or zstd")
)

// Config is the root configuration structure.
type Config struct {
	Sink           string                `yaml:"sink"`
	Endpoint       string                `yaml:"endpoint"`
	Duration       time.Duration         `yaml:"duration"`
	MaxConcurrency int                   `yaml:"max_concurrency"`
	Seed           int64                 `yaml:"seed"`
	DrainPolicy    string                `yaml:"drain_policy"`
	GracePeriod    time.Duration         `yaml:"grace_period"`
	SessionRate    float64               `yaml:"session_rate"`
	WaveInterval   core.Range            `yaml:"wave_interval"`
	Pacing         PacingConfig          `yaml:"pacing"`
	Delivery       DeliveryConfig        `yaml:"delivery"`
	Kafka          KafkaConfig           `yaml:"kafka"`
	Catalog        CatalogConfig         `yaml:"catalog"`
	Log            LogConfig             `yaml:"log"`
	Thresholds     *collector.Thresholds `yaml:"thresholds,omitempty"`
}

// PacingConfig sets the pauses between the events of one session.
type PacingConfig struct {
	Cold               core.Range `yaml:"cold"`
	Warm               core.Range `yaml:"warm"`
	WarmAfterPageViews int        `yaml:"warm_after_page_views"`
}

// DeliveryConfig controls batching and the delivery queue.
type DeliveryConfig struct {
	Tick          time.Duration `yaml:"tick"`
	MaxBatchSize  int           `yaml:"max_batch_size"`
	Timeout       time.Duration `yaml:"timeout"`
	FlushTimeout  time.Duration `yaml:"flush_timeout"`
	HighWatermark int           `yaml:"high_watermark"`
}

// KafkaConfig configures the kafka sink.
type KafkaConfig struct {
	Brokers         []string      `yaml:"brokers"`
	Topic           string        `yaml:"topic"`
	Retries         int           `yaml:"retries"`
	Timeout         time.Duration `yaml:"timeout"`
	RequiredAcks    int           `yaml:"required_acks"`
	Compression     string        `yaml:"compression"`
	MaxMessageBytes int           `yaml:"max_message_bytes"`
}

// CatalogConfig points at a product file. An empty File means a generated
// catalog.
type CatalogConfig struct {
	File string `yaml:"file"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"`
}

// Default returns the stock configuration.
func Default() *Config {
	run := orchestrator.DefaultConfig()
	pacing := runner.DefaultPacing()
	batch := delivery.DefaultBatchConfig()
	return &Config{
		Sink:           SinkHTTP,
		Endpoint:       DefaultEndpoint,
		Duration:       run.Duration,
		MaxConcurrency: run.MaxConcurrency,
		DrainPolicy:    string(run.DrainPolicy),
		GracePeriod:    run.GracePeriod,
		WaveInterval:   run.WaveInterval,
		Pacing: PacingConfig{
			Cold:               pacing.Cold,
			Warm:               pacing.Warm,
			WarmAfterPageViews: pacing.WarmAfterPageViews,
		},
		Delivery: DeliveryConfig{
			Tick:          batch.Tick,
			MaxBatchSize:  batch.MaxBatchSize,
			Timeout:       delivery.DefaultHTTPTimeout,
			FlushTimeout:  batch.FlushTimeout,
			HighWatermark: 10000,
		},
		Kafka: KafkaConfig{
			Brokers:         []string{"localhost:9092"},
			Topic:           DefaultKafkaTopic,
			Retries:         3,
			Timeout:         10 * time.Second,
			RequiredAcks:    -1,
			Compression:     "snappy",
			MaxMessageBytes: 1000000,
		},
		Log: LogConfig{Level: "info", Env: "development"},
	}
}

// LoadConfig reads a YAML configuration file over the defaults. Unknown keys
// are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides settings from CLICKSIM_* variables. Malformed values
// leave the current setting in place.
func (c *Config) ApplyEnv() {
	c.Sink = getEnv("SINK", c.Sink)
	c.Endpoint = getEnv("ENDPOINT", c.Endpoint)
	c.Duration = getEnvAsDuration("DURATION", c.Duration)
	c.MaxConcurrency = getEnvAsInt("MAX_CONCURRENCY", c.MaxConcurrency)
	c.Seed = getEnvAsInt64("SEED", c.Seed)
	c.DrainPolicy = getEnv("DRAIN_POLICY", c.DrainPolicy)
	c.GracePeriod = getEnvAsDuration("GRACE_PERIOD", c.GracePeriod)
	c.SessionRate = getEnvAsFloat("SESSION_RATE", c.SessionRate)

	c.Delivery.Tick = getEnvAsDuration("DELIVERY_TICK", c.Delivery.Tick)
	c.Delivery.MaxBatchSize = getEnvAsInt("DELIVERY_MAX_BATCH_SIZE", c.Delivery.MaxBatchSize)
	c.Delivery.Timeout = getEnvAsDuration("DELIVERY_TIMEOUT", c.Delivery.Timeout)
	c.Delivery.FlushTimeout = getEnvAsDuration("DELIVERY_FLUSH_TIMEOUT", c.Delivery.FlushTimeout)
	c.Delivery.HighWatermark = getEnvAsInt("DELIVERY_HIGH_WATERMARK", c.Delivery.HighWatermark)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)
	c.Kafka.Retries = getEnvAsInt("KAFKA_RETRIES", c.Kafka.Retries)
	c.Kafka.Timeout = getEnvAsDuration("KAFKA_TIMEOUT", c.Kafka.Timeout)
	c.Kafka.RequiredAcks = getEnvAsInt("KAFKA_REQUIRED_ACKS", c.Kafka.RequiredAcks)
	c.Kafka.Compression = getEnv("KAFKA_COMPRESSION", c.Kafka.Compression)

	c.Catalog.File = getEnv("CATALOG_FILE", c.Catalog.File)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Env = getEnv("ENV", c.Log.Env)
}

// Validate checks the configuration for values the simulator cannot run
// with.
func (c *Config) Validate() error {
	switch c.Sink {
	case SinkHTTP:
		if c.Endpoint == "" {
			return ErrNoEndpoint
		}
	case SinkKafka:
		if len(c.Kafka.Brokers) == 0 {
			return ErrNoBrokers
		}
		if c.Kafka.Topic == "" {
			return ErrNoTopic
		}
		switch c.Kafka.Compression {
		case "", "none", "gzip", "snappy", "lz4", "zstd":
		default:
			return fmt.Errorf("%w: %q", ErrUnknownCompressor, c.Kafka.Compression)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSink, c.Sink)
	}

	if c.Duration <= 0 {
		return ErrBadDuration
	}
	if c.MaxConcurrency < 1 {
		return ErrBadConcurrency
	}
	if _, err := orchestrator.ParseDrainPolicy(c.DrainPolicy); err != nil {
		return err
	}
	ranges := []struct {
		name string
		r    core.Range
	}{
		{"wave_interval", c.WaveInterval},
		{"pacing.cold", c.Pacing.Cold},
		{"pacing.warm", c.Pacing.Warm},
	}
	for _, rr := range ranges {
		if !rr.r.Valid() {
			return fmt.Errorf("%s: %w", rr.name, ErrBadRange)
		}
	}
	if c.Delivery.MaxBatchSize < 1 {
		return ErrBadBatchSize
	}
	negatives := []struct {
		name     string
		negative bool
	}{
		{"grace_period", c.GracePeriod < 0},
		{"session_rate", c.SessionRate < 0},
		{"delivery.tick", c.Delivery.Tick < 0},
		{"delivery.timeout", c.Delivery.Timeout < 0},
		{"delivery.flush_timeout", c.Delivery.FlushTimeout < 0},
		{"delivery.high_watermark", c.Delivery.HighWatermark < 0},
		{"pacing.warm_after_page_views", c.Pacing.WarmAfterPageViews < 0},
	}
	for _, n := range negatives {
		if n.negative {
			return fmt.Errorf("%s: %w", n.name, ErrNegativeSetting)
		}
	}
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	return nil
}

// Run returns the orchestrator settings.
func (c *Config) Run() orchestrator.Config {
	policy, _ := orchestrator.ParseDrainPolicy(c.DrainPolicy)
	return orchestrator.Config{
		Duration:       c.Duration,
		MaxConcurrency: c.MaxConcurrency,
		WaveInterval:   c.WaveInterval,
		GracePeriod:    c.GracePeriod,
		DrainPolicy:    policy,
		Seed:           c.Seed,
		SessionRate:    c.SessionRate,
	}
}

// RunnerPacing returns the session pacing settings.
func (c *Config) RunnerPacing() runner.Pacing {
	return runner.Pacing{
		Cold:               c.Pacing.Cold,
		Warm:               c.Pacing.Warm,
		WarmAfterPageViews: c.Pacing.WarmAfterPageViews,
	}
}

// Batch returns the batch sender settings.
func (c *Config) Batch() delivery.BatchConfig {
	return delivery.BatchConfig{
		Tick:         c.Delivery.Tick,
		MaxBatchSize: c.Delivery.MaxBatchSize,
		FlushTimeout: c.Delivery.FlushTimeout,
	}
}

// KafkaSink returns the kafka producer settings.
func (c *Config) KafkaSink() delivery.KafkaConfig {
	return delivery.KafkaConfig{
		Brokers:         c.Kafka.Brokers,
		Topic:           c.Kafka.Topic,
		Retries:         c.Kafka.Retries,
		Timeout:         c.Kafka.Timeout,
		RequiredAcks:    c.Kafka.RequiredAcks,
		Compression:     c.Kafka.Compression,
		MaxMessageBytes: c.Kafka.MaxMessageBytes,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(envPrefix + key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(envPrefix + key)
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(envPrefix + key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(envPrefix + key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
