// Package config provides process-level configuration loading for the comet
// CLI and embedding hosts: a config file (optional), COMET_-prefixed
// environment variables, and defaults, merged in that precedence order.
package config

import (
	stderrors "errors"
	"strings"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/comet/pkg/csv"
	"github.com/ajitpratap0/comet/pkg/engine"
	"github.com/ajitpratap0/comet/pkg/errors"
)

// Settings is the full process configuration.
type Settings struct {
	LogLevel    string         `mapstructure:"log_level"`
	MetricsAddr string         `mapstructure:"metrics_addr"`
	Engine      EngineSettings `mapstructure:"engine"`
	Parse       ParseSettings  `mapstructure:"parse"`
}

// EngineSettings configures execution routing.
type EngineSettings struct {
	Worker         bool   `mapstructure:"worker"`
	WASM           bool   `mapstructure:"wasm"`
	GPU            bool   `mapstructure:"gpu"`
	WorkerStrategy string `mapstructure:"worker_strategy"`
	Strict         bool   `mapstructure:"strict"`
	Hint           string `mapstructure:"hint"`
	MaxWorkers     int    `mapstructure:"max_workers"`
}

// ParseSettings configures CSV dialect defaults.
type ParseSettings struct {
	Delimiter      string `mapstructure:"delimiter"`
	Quote          string `mapstructure:"quote"`
	Format         string `mapstructure:"format"`
	SkipEmptyLines bool   `mapstructure:"skip_empty_lines"`
	MaxFieldCount  int    `mapstructure:"max_field_count"`
	Charset        string `mapstructure:"charset"`
}

// Defaults returns the built-in configuration.
func Defaults() Settings {
	return Settings{
		LogLevel: "info",
		Engine: EngineSettings{
			WASM: true,
			Hint: string(engine.HintBalanced),
		},
		Parse: ParseSettings{
			Delimiter: ",",
			Quote:     `"`,
			Format:    "object",
		},
	}
}

// Load merges defaults, an optional config file, and COMET_ environment
// variables. With an empty path, a comet.yaml in the working directory or
// under $HOME/.comet is picked up when present and silently skipped when
// not.
func Load(path string) (Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("COMET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Defaults()
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("metrics_addr", def.MetricsAddr)
	v.SetDefault("engine.worker", def.Engine.Worker)
	v.SetDefault("engine.wasm", def.Engine.WASM)
	v.SetDefault("engine.gpu", def.Engine.GPU)
	v.SetDefault("engine.worker_strategy", def.Engine.WorkerStrategy)
	v.SetDefault("engine.strict", def.Engine.Strict)
	v.SetDefault("engine.hint", def.Engine.Hint)
	v.SetDefault("engine.max_workers", def.Engine.MaxWorkers)
	v.SetDefault("parse.delimiter", def.Parse.Delimiter)
	v.SetDefault("parse.quote", def.Parse.Quote)
	v.SetDefault("parse.format", def.Parse.Format)
	v.SetDefault("parse.skip_empty_lines", def.Parse.SkipEmptyLines)
	v.SetDefault("parse.max_field_count", def.Parse.MaxFieldCount)
	v.SetDefault("parse.charset", def.Parse.Charset)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, errors.Wrap(err, errors.ErrorTypeConfig, "reading config file")
		}
	} else {
		v.SetConfigName("comet")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.comet")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !stderrors.As(err, &notFound) {
				return Settings{}, errors.Wrap(err, errors.ErrorTypeConfig, "reading config file")
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, errors.Wrap(err, errors.ErrorTypeConfig, "decoding configuration")
	}
	return s, nil
}

// EngineConfig maps the settings to a validated engine configuration.
func (s Settings) EngineConfig() (engine.Config, error) {
	cfg := engine.Config{
		Worker:         s.Engine.Worker,
		WASM:           s.Engine.WASM,
		GPU:            s.Engine.GPU,
		WorkerStrategy: engine.WorkerStrategy(s.Engine.WorkerStrategy),
		Strict:         s.Engine.Strict,
		Hint:           engine.OptimizationHint(s.Engine.Hint),
	}
	if err := cfg.Validate(); err != nil {
		return engine.Config{}, err
	}
	return cfg, nil
}

// CSVOptions maps the settings to CSV parse options.
func (s Settings) CSVOptions() (csv.Options, error) {
	opts := csv.Options{
		SkipEmptyLines: s.Parse.SkipEmptyLines,
		MaxFieldCount:  s.Parse.MaxFieldCount,
		Charset:        s.Parse.Charset,
	}
	var err error
	if opts.Delimiter, err = singleRune(s.Parse.Delimiter, "delimiter"); err != nil {
		return csv.Options{}, err
	}
	if opts.Quote, err = singleRune(s.Parse.Quote, "quote"); err != nil {
		return csv.Options{}, err
	}
	switch s.Parse.Format {
	case "", "object":
		opts.Format = csv.FormatObject
	case "array":
		opts.Format = csv.FormatArray
	default:
		return csv.Options{}, errors.Newf(errors.ErrorTypeConfig, "unknown output format %q", s.Parse.Format)
	}
	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		return csv.Options{}, err
	}
	return opts, nil
}

func singleRune(s, name string) (rune, error) {
	runes := []rune(s)
	switch len(runes) {
	case 0:
		return 0, nil
	case 1:
		return runes[0], nil
	default:
		return 0, errors.Newf(errors.ErrorTypeConfig, "%s must be a single character, got %q", name, s)
	}
}
