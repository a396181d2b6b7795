// Command clicksim simulates storefront visitors and delivers their
// clickstream events to an ingestion endpoint or a Kafka topic.
//
// Usage:
//
//	clicksim [flags]
//
// Settings are read from the YAML file given with -config, then from a .env
// file and CLICKSIM_* environment variables, then from flags.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"clicksim/internal/catalog"
	"clicksim/internal/collector"
	"clicksim/internal/config"
	"clicksim/internal/delivery"
	"clicksim/internal/event"
	"clicksim/internal/journey"
	"clicksim/internal/logging"
	"clicksim/internal/orchestrator"
	"clicksim/internal/progress"
	"clicksim/internal/queue"
	"clicksim/internal/runner"
	"clicksim/internal/stats"
)

const (
	ExitSuccess         = 0
	ExitThresholdFailed = 1
	ExitError           = 2
)

type flags struct {
	configPath  string
	envFile     string
	output      string
	quiet       bool
	verbose     bool
	sink        string
	endpoint    string
	duration    time.Duration
	concurrency int
	seed        int64
	drain       string
	sessionRate float64
	catalogFile string
}

func parseFlags() *flags {
	f := &flags{}
	flag.StringVar(&f.configPath, "config", "", "path to YAML config file")
	flag.StringVar(&f.envFile, "env-file", ".env", "dotenv file to load before reading CLICKSIM_* variables")
	flag.StringVar(&f.output, "output", "text", "output format: text, json")
	flag.BoolVar(&f.quiet, "quiet", false, "suppress progress output during the run")
	flag.BoolVar(&f.verbose, "verbose", false, "enable debug logging")
	flag.StringVar(&f.sink, "sink", "", "delivery sink: http, kafka")
	flag.StringVar(&f.endpoint, "endpoint", "", "ingestion endpoint URL for the http sink")
	flag.DurationVar(&f.duration, "duration", 0, "simulation duration")
	flag.IntVar(&f.concurrency, "concurrency", 0, "maximum sessions launched per wave")
	flag.Int64Var(&f.seed, "seed", 0, "random seed (0 = time based)")
	flag.StringVar(&f.drain, "drain", "", "drain policy for in-flight sessions: abandon, wait")
	flag.Float64Var(&f.sessionRate, "session-rate", 0, "maximum session starts per second (0 = unlimited)")
	flag.StringVar(&f.catalogFile, "catalog", "", "product catalog file (CSV or JSON)")
	flag.Parse()
	return f
}

// apply copies flags the user actually set over cfg.
func (f *flags) apply(cfg *config.Config) {
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "sink":
			cfg.Sink = f.sink
		case "endpoint":
			cfg.Endpoint = f.endpoint
		case "duration":
			cfg.Duration = f.duration
		case "concurrency":
			cfg.MaxConcurrency = f.concurrency
		case "seed":
			cfg.Seed = f.seed
		case "drain":
			cfg.DrainPolicy = f.drain
		case "session-rate":
			cfg.SessionRate = f.sessionRate
		case "catalog":
			cfg.Catalog.File = f.catalogFile
		case "verbose":
			if f.verbose {
				cfg.Log.Level = "debug"
			}
		}
	})
}

func main() {
	os.Exit(run())
}

func run() int {
	f := parseFlags()

	if f.output != "text" && f.output != "json" {
		fmt.Fprintf(os.Stderr, "error: --output must be 'text' or 'json', got %q\n", f.output)
		return ExitError
	}

	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitError
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: building logger: %v\n", err)
		return ExitError
	}
	defer logger.Sync()

	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	cat, err := loadCatalog(cfg, f.configPath)
	if err != nil {
		logger.Error("catalog unavailable", zap.Error(err))
		return ExitError
	}

	sender, err := newSender(cfg, logging.WithComponent(logger, "sink"))
	if err != nil {
		logger.Error("sink unavailable", zap.String("sink", cfg.Sink), zap.Error(err))
		return ExitError
	}
	defer sender.Close()

	st := stats.New()
	q := queue.New(
		queue.WithHighWatermark(cfg.Delivery.HighWatermark),
		queue.WithLogger(logging.WithComponent(logger, "queue")),
	)
	coll := collector.NewCollector()

	batch := delivery.NewBatchSender(q, sender, cfg.Batch(), logging.WithComponent(logger, "delivery"),
		delivery.WithReporter(coll),
		delivery.WithRecorder(st),
	)
	sessions := runner.New(runner.Config{
		Journeys:  journey.Default(),
		Factory:   event.NewFactory(cat, st, nil),
		Sink:      q,
		Lifecycle: st,
		Pacing:    cfg.RunnerPacing(),
		Logger:    logging.WithComponent(logger, "runner"),
	})
	orch := orchestrator.New(cfg.Run(), sessions, batch, q, st, logging.WithComponent(logger, "orchestrator"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var interrupted atomic.Bool
	go func() {
		<-sigCh
		interrupted.Store(true)
		if !f.quiet {
			fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down...")
		}
		cancel()
	}()

	prog := progress.NewProgress(orch, f.quiet)
	prog.Printf("Clicksim starting: sink %s, duration %v, up to %d sessions per wave, %d products, seed %d",
		sender.Name(), cfg.Duration, cfg.MaxConcurrency, cat.Len(), cfg.Seed)

	prog.Start()
	res, runErr := orch.Run(ctx)
	prog.Stop()
	coll.Close()

	if runErr != nil {
		logger.Error("simulation failed", zap.Error(runErr))
	}
	if res.Undelivered > 0 {
		logger.Warn("events left undelivered", zap.Int("count", res.Undelivered))
	}

	metrics := coll.Compute()

	var thresholdResults *collector.ThresholdResults
	if cfg.Thresholds != nil {
		thresholdResults = cfg.Thresholds.Check(metrics)
	}

	if f.output == "json" {
		printJSON(os.Stdout, res, metrics, thresholdResults)
	} else {
		stats.FormatText(os.Stdout, res.Summary)
		collector.FormatText(os.Stdout, metrics, thresholdResults)
	}

	if runErr != nil {
		return ExitError
	}
	if interrupted.Load() {
		return ExitSuccess
	}
	if thresholdResults != nil && !thresholdResults.Passed {
		if f.output == "text" {
			fmt.Fprintln(os.Stderr, "\nThreshold check failed!")
		}
		return ExitThresholdFailed
	}
	return ExitSuccess
}

func loadConfig(f *flags) (*config.Config, error) {
	if err := config.LoadDotEnv(f.envFile); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.LoadConfig(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	f.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadCatalog(cfg *config.Config, configPath string) (*catalog.Catalog, error) {
	if cfg.Catalog.File == "" {
		return catalog.Generate(rand.New(rand.NewSource(cfg.Seed))), nil
	}
	baseDir := "."
	if configPath != "" {
		baseDir = filepath.Dir(configPath)
	}
	return catalog.LoadFile(cfg.Catalog.File, baseDir)
}

func newSender(cfg *config.Config, logger *zap.Logger) (delivery.Sender, error) {
	switch cfg.Sink {
	case config.SinkKafka:
		kc := cfg.KafkaSink()
		producer, err := delivery.NewKafkaProducer(kc, logger)
		if err != nil {
			return nil, err
		}
		return delivery.NewKafkaSender(producer, kc.Topic, logger), nil
	default:
		return delivery.NewHTTPSender(cfg.Endpoint, cfg.Delivery.Timeout, logger), nil
	}
}

func printJSON(w io.Writer, res orchestrator.Result, m *collector.Metrics, thresholds *collector.ThresholdResults) {
	output := struct {
		Seed        int64                `json:"seed"`
		Waves       int64                `json:"waves"`
		Undelivered int                  `json:"undelivered"`
		Summary     stats.JSONSummary    `json:"summary"`
		Delivery    collector.JSONReport `json:"delivery"`
	}{
		Seed:        res.Seed,
		Waves:       res.Waves,
		Undelivered: res.Undelivered,
		Summary:     stats.ToJSON(res.Summary),
		Delivery:    collector.ToJSON(m, thresholds),
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output) // stdout errors are unrecoverable
}
