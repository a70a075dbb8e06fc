package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/comet/pkg/config"
	"github.com/ajitpratap0/comet/pkg/csv"
	"github.com/ajitpratap0/comet/pkg/engine"
	"github.com/ajitpratap0/comet/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	s, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", s.LogLevel)
	assert.True(t, s.Engine.WASM)
	assert.False(t, s.Engine.Worker)
	assert.Equal(t, "balanced", s.Engine.Hint)
	assert.Equal(t, ",", s.Parse.Delimiter)
	assert.Equal(t, "object", s.Parse.Format)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("COMET_LOG_LEVEL", "debug")
	t.Setenv("COMET_ENGINE_WORKER", "true")
	t.Setenv("COMET_ENGINE_HINT", "speed")
	t.Setenv("COMET_PARSE_DELIMITER", ";")

	s, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", s.LogLevel)
	assert.True(t, s.Engine.Worker)
	assert.Equal(t, "speed", s.Engine.Hint)
	assert.Equal(t, ";", s.Parse.Delimiter)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "comet.yaml")
	content := `
log_level: warn
engine:
  worker: true
  worker_strategy: message
parse:
  delimiter: "|"
  skip_empty_lines: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", s.LogLevel)
	assert.True(t, s.Engine.Worker)
	assert.Equal(t, "message", s.Engine.WorkerStrategy)
	assert.Equal(t, "|", s.Parse.Delimiter)
	assert.True(t, s.Parse.SkipEmptyLines)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestEngineConfigMapping(t *testing.T) {
	s := config.Defaults()
	s.Engine.Worker = true
	s.Engine.WorkerStrategy = "stream-transfer"
	s.Engine.Strict = true

	cfg, err := s.EngineConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Worker)
	assert.Equal(t, engine.StrategyStreamTransfer, cfg.WorkerStrategy)
	assert.True(t, cfg.Strict)
}

func TestEngineConfigInvalid(t *testing.T) {
	s := config.Defaults()
	s.Engine.WorkerStrategy = "message" // strategy without worker
	_, err := s.EngineConfig()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestCSVOptionsMapping(t *testing.T) {
	s := config.Defaults()
	s.Parse.Delimiter = "\t"
	s.Parse.Quote = "'"
	s.Parse.Format = "array"
	s.Parse.Charset = "iso-8859-1"

	opts, err := s.CSVOptions()
	require.NoError(t, err)
	assert.Equal(t, '\t', opts.Delimiter)
	assert.Equal(t, '\'', opts.Quote)
	assert.Equal(t, csv.FormatArray, opts.Format)
	assert.Equal(t, "iso-8859-1", opts.Charset)
}

func TestCSVOptionsRejectsMultiCharDelimiter(t *testing.T) {
	s := config.Defaults()
	s.Parse.Delimiter = "::"
	_, err := s.CSVOptions()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestCSVOptionsRejectsUnknownFormat(t *testing.T) {
	s := config.Defaults()
	s.Parse.Format = "tuple"
	_, err := s.CSVOptions()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
