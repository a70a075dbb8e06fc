package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/comet/internal/pipeline"
	"github.com/ajitpratap0/comet/pkg/config"
	"github.com/ajitpratap0/comet/pkg/csv"
	"github.com/ajitpratap0/comet/pkg/engine"
	"github.com/ajitpratap0/comet/pkg/logger"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var configFile string

	root := &cobra.Command{
		Use:   "comet",
		Short: "Comet - Streaming CSV parsing toolkit",
		Long: `Comet is a streaming CSV parsing toolkit with pluggable execution backends.
It parses CSV from files, stdin, or compressed archives, routing work across
a sequential lexer, a parallel indexing backend, and pooled worker units.`,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (optional)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Comet v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "capabilities",
		Short: "Show detected environment capabilities and the routing plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(configFile)
			if err != nil {
				return err
			}
			engCfg, err := settings.EngineConfig()
			if err != nil {
				return err
			}
			eng, err := engine.New(engCfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			out := map[string]interface{}{
				"capabilities": eng.Capabilities(),
				"config":       eng.Config(),
				"plan_stream":  eng.Plan(engine.InputStream, csv.FormatObject, ""),
				"plan_binary":  eng.Plan(engine.InputBinary, csv.FormatObject, ""),
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	})

	var (
		inputPath      string
		outputPath     string
		outputFormat   string
		compressionFmt string
		delimiter      string
		quote          string
		recordFormat   string
		skipEmpty      bool
		maxFieldCount  int
		charsetName    string
		useWorker      bool
		workerStrategy string
		strict         bool
		hint           string
		maxWorkers     int
		metricsAddr    string
		logLevel       string
		timeout        time.Duration
	)

	parseCmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse a CSV input",
		Long: `Parse a CSV input into JSON lines or normalized CSV.

Example:
  comet parse --input data.csv.gz --output-format json
  cat data.csv | comet parse --worker --hint speed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(configFile)
			if err != nil {
				return err
			}
			flagSettings(cmd, &settings, flagValues{
				delimiter: delimiter, quote: quote, format: recordFormat,
				skipEmpty: skipEmpty, maxFieldCount: maxFieldCount, charset: charsetName,
				worker: useWorker, strategy: workerStrategy, strict: strict,
				hint: hint, maxWorkers: maxWorkers, logLevel: logLevel, metricsAddr: metricsAddr,
			})

			if err := logger.Init(logger.Config{Level: settings.LogLevel, Encoding: "json", OutputPaths: []string{"stderr"}}); err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			log := logger.With(zap.String("component", "comet-cli"))

			engCfg, err := settings.EngineConfig()
			if err != nil {
				return err
			}
			opts, err := settings.CSVOptions()
			if err != nil {
				return err
			}

			engOpts := []engine.Option{}
			if settings.Engine.MaxWorkers > 0 {
				engOpts = append(engOpts, engine.WithMaxWorkers(settings.Engine.MaxWorkers))
			}
			eng, err := engine.New(engCfg, engOpts...)
			if err != nil {
				return err
			}
			defer eng.Close()

			if settings.MetricsAddr != "" {
				go serveMetrics(settings.MetricsAddr, log)
			}

			ctx := context.Background()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			p := pipeline.New(eng, pipeline.Config{
				InputPath:    inputPath,
				OutputPath:   outputPath,
				OutputFormat: outputFormat,
				Compression:  compressionFmt,
				Options:      opts,
			}, log)
			return p.Run(ctx)
		},
	}

	parseCmd.Flags().StringVarP(&inputPath, "input", "i", "-", "Input file path, or - for stdin")
	parseCmd.Flags().StringVarP(&outputPath, "output", "o", "-", "Output file path, or - for stdout")
	parseCmd.Flags().StringVar(&outputFormat, "output-format", "json", "Output format (json, csv)")
	parseCmd.Flags().StringVar(&compressionFmt, "compression", "auto", "Input compression (auto, none, gzip, zstd, snappy, s2, lz4, deflate)")
	parseCmd.Flags().StringVar(&delimiter, "delimiter", ",", "Field delimiter character")
	parseCmd.Flags().StringVar(&quote, "quote", `"`, "Quote character")
	parseCmd.Flags().StringVar(&recordFormat, "format", "object", "Record shape (object, array)")
	parseCmd.Flags().BoolVar(&skipEmpty, "skip-empty-lines", false, "Skip records with no content")
	parseCmd.Flags().IntVar(&maxFieldCount, "max-field-count", 0, "Maximum fields per record (0 = default limit)")
	parseCmd.Flags().StringVar(&charsetName, "charset", "", "Input character set (default UTF-8)")
	parseCmd.Flags().BoolVar(&useWorker, "worker", false, "Execute on pooled worker units")
	parseCmd.Flags().StringVar(&workerStrategy, "strategy", "", "Worker transport strategy (message, stream-transfer)")
	parseCmd.Flags().BoolVar(&strict, "strict", false, "Disable automatic strategy fallback")
	parseCmd.Flags().StringVar(&hint, "hint", "balanced", "Optimization hint (speed, memory, balanced, responsive)")
	parseCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Worker pool size (0 = one per CPU)")
	parseCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	parseCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	parseCmd.Flags().DurationVar(&timeout, "timeout", 0, "Parse timeout (0 = none)")
	root.AddCommand(parseCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// flagValues carries the parse command's flag variables so explicitly set
// flags can override file and environment configuration.
type flagValues struct {
	delimiter, quote, format     string
	skipEmpty                    bool
	maxFieldCount                int
	charset                      string
	worker                       bool
	strategy                     string
	strict                       bool
	hint                         string
	maxWorkers                   int
	logLevel, metricsAddr        string
}

func flagSettings(cmd *cobra.Command, s *config.Settings, f flagValues) {
	set := cmd.Flags().Changed
	if set("delimiter") {
		s.Parse.Delimiter = f.delimiter
	}
	if set("quote") {
		s.Parse.Quote = f.quote
	}
	if set("format") {
		s.Parse.Format = f.format
	}
	if set("skip-empty-lines") {
		s.Parse.SkipEmptyLines = f.skipEmpty
	}
	if set("max-field-count") {
		s.Parse.MaxFieldCount = f.maxFieldCount
	}
	if set("charset") {
		s.Parse.Charset = f.charset
	}
	if set("worker") {
		s.Engine.Worker = f.worker
	}
	if set("strategy") {
		s.Engine.WorkerStrategy = f.strategy
	}
	if set("strict") {
		s.Engine.Strict = f.strict
	}
	if set("hint") {
		s.Engine.Hint = f.hint
	}
	if set("max-workers") {
		s.Engine.MaxWorkers = f.maxWorkers
	}
	if set("log-level") {
		s.LogLevel = f.logLevel
	}
	if set("metrics-addr") {
		s.MetricsAddr = f.metricsAddr
	}
}

func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("metrics server stopped", zap.Error(err))
	}
}
