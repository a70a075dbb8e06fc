// Package pipeline wires a complete parse run end to end: an input source
// (file or stdin, optionally compressed), the execution engine, and an
// output sink (JSON lines or CSV). It is the execution core behind the
// comet CLI.
package pipeline

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/comet/pkg/compression"
	"github.com/ajitpratap0/comet/pkg/csv"
	"github.com/ajitpratap0/comet/pkg/engine"
	"github.com/ajitpratap0/comet/pkg/errors"
)

// Config controls one pipeline run.
type Config struct {
	// InputPath is the source file; "-" or empty reads stdin.
	InputPath string
	// OutputPath is the destination file; "-" or empty writes stdout.
	OutputPath string
	// OutputFormat selects the sink: "json" (default) or "csv".
	OutputFormat string
	// Compression names the input compression, or "auto" to sniff it.
	Compression string
	// Options is the CSV dialect for the parse.
	Options csv.Options
}

// Pipeline streams records from one input through the engine into one sink.
type Pipeline struct {
	engine *engine.Engine
	cfg    Config
	logger *zap.Logger

	recordsProcessed atomic.Int64
	startTime        time.Time
}

// New creates a pipeline. It is initialized but not started; call Run.
func New(eng *engine.Engine, cfg Config, log *zap.Logger) *Pipeline {
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "json"
	}
	if cfg.Compression == "" {
		cfg.Compression = "auto"
	}
	return &Pipeline{engine: eng, cfg: cfg, logger: log}
}

// Run executes the pipeline until the input is exhausted or an error
// occurs. It blocks for the duration of the run.
func (p *Pipeline) Run(ctx context.Context) error {
	p.startTime = time.Now()
	p.logger.Info("starting parse pipeline",
		zap.String("input", displayPath(p.cfg.InputPath)),
		zap.String("output", displayPath(p.cfg.OutputPath)),
		zap.String("output_format", p.cfg.OutputFormat),
		zap.String("compression", p.cfg.Compression))

	src, closeSrc, err := p.openInput()
	if err != nil {
		return err
	}
	defer closeSrc()

	dst, closeDst, err := p.openOutput()
	if err != nil {
		return err
	}

	sink, err := newSink(dst, p.cfg.OutputFormat, p.cfg.Options)
	if err != nil {
		closeDst()
		return err
	}

	if err := p.process(ctx, src, sink); err != nil {
		closeDst()
		return err
	}
	if err := closeDst(); err != nil {
		return err
	}

	duration := time.Since(p.startTime)
	processed := p.recordsProcessed.Load()
	p.logger.Info("pipeline completed",
		zap.Int64("records_processed", processed),
		zap.Duration("duration", duration),
		zap.Float64("records_per_second", float64(processed)/duration.Seconds()))
	return nil
}

// process streams records from src into the sink. The result channel is
// always drained before returning: abandoning it mid-parse would strand the
// engine goroutine and its worker session.
func (p *Pipeline) process(ctx context.Context, src io.Reader, out sink) error {
	ctx, cancel := context.WithCancel(ctx)
	results := p.engine.ParseStream(ctx, src, p.cfg.Options)
	defer func() {
		cancel()
		for range results {
		}
	}()

	for r := range results {
		if r.Err != nil {
			return r.Err
		}
		if err := out.Write(r.Record); err != nil {
			return err
		}
		p.recordsProcessed.Add(1)
	}
	return out.Flush()
}

// Metrics returns run counters.
func (p *Pipeline) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"records_processed": p.recordsProcessed.Load(),
	}
}

// openInput opens the input and layers decompression over it. Auto mode
// sniffs the magic bytes without consuming them.
func (p *Pipeline) openInput() (io.Reader, func(), error) {
	var raw io.Reader
	closers := []io.Closer{}
	if stdio(p.cfg.InputPath) {
		raw = os.Stdin
	} else {
		f, err := os.Open(p.cfg.InputPath)
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrorTypeTransport, "opening input")
		}
		raw = f
		closers = append(closers, f)
	}

	br := bufio.NewReaderSize(raw, 64*1024)
	format, err := p.inputFormat(br)
	if err != nil {
		closeAll(closers)
		return nil, nil, err
	}

	rc, err := compression.NewReader(br, format)
	if err != nil {
		closeAll(closers)
		return nil, nil, err
	}
	closers = append([]io.Closer{rc}, closers...)
	return rc, func() { closeAll(closers) }, nil
}

func (p *Pipeline) inputFormat(br *bufio.Reader) (compression.Format, error) {
	if p.cfg.Compression != "auto" {
		return compression.ParseFormat(p.cfg.Compression)
	}
	prefix, err := br.Peek(8)
	if err != nil && err != io.EOF && len(prefix) == 0 {
		return compression.None, errors.Wrap(err, errors.ErrorTypeTransport, "sniffing input")
	}
	return compression.Detect(prefix), nil
}

// openOutput opens the sink destination. The returned close function is
// idempotent-enough for the error paths above: closing a file twice only
// yields a harmless error.
func (p *Pipeline) openOutput() (io.Writer, func() error, error) {
	if stdio(p.cfg.OutputPath) {
		w := bufio.NewWriter(os.Stdout)
		return w, w.Flush, nil
	}
	f, err := os.Create(p.cfg.OutputPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeTransport, "creating output")
	}
	w := bufio.NewWriter(f)
	return w, func() error {
		if err := w.Flush(); err != nil {
			f.Close()
			return errors.Wrap(err, errors.ErrorTypeTransport, "flushing output")
		}
		if err := f.Close(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeTransport, "closing output")
		}
		return nil
	}, nil
}

func stdio(path string) bool {
	return path == "" || path == "-"
}

func displayPath(path string) string {
	if stdio(path) {
		return "stdio"
	}
	return path
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}
