package engine

import (
	"context"
	"io"
	"runtime"

	"go.uber.org/zap"

	"github.com/ajitpratap0/comet/pkg/csv"
	"github.com/ajitpratap0/comet/pkg/errors"
	"github.com/ajitpratap0/comet/pkg/index"
	"github.com/ajitpratap0/comet/pkg/logger"
	"github.com/ajitpratap0/comet/pkg/metrics"
	"github.com/ajitpratap0/comet/pkg/worker"
)

// Input is one parse input in any of the three supported shapes.
type Input struct {
	Kind    InputKind
	Text    string
	Payload []byte
	Reader  io.Reader
}

// Result is one element of a parse result stream: a record, or the terminal
// error. After an error result the channel closes; a clean close with no
// error result means the input was fully consumed. Consumers must drain the
// channel until it closes, even after cancelling the parse context; ReadAll
// does this.
type Result struct {
	Record csv.Record
	Err    error
}

// GPUFactory builds a GPU-style token producer tuned by the planner's GPU
// configuration. Registering one makes the gpu backend available.
type GPUFactory func(GPUConfig) TokenProducer

// Engine routes parses across backends and execution contexts according to
// its configuration and the host capabilities. It is safe for concurrent use;
// one engine is meant to be shared across all parses of a process.
type Engine struct {
	cfg        Config
	env        Capabilities
	envSet     bool
	pool       *worker.Pool
	ownPool    bool
	accel      TokenProducer
	gpuFactory GPUFactory
	onFallback FallbackFunc
	maxWorkers int
	log        *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkerPool shares an existing pool instead of creating one. The engine
// never terminates a shared pool.
func WithWorkerPool(p *worker.Pool) Option {
	return func(e *Engine) { e.pool = p }
}

// WithMaxWorkers bounds the engine-owned pool. Default is GOMAXPROCS-ish:
// one unit per CPU.
func WithMaxWorkers(n int) Option {
	return func(e *Engine) { e.maxWorkers = n }
}

// WithFallbackNotify registers a callback invoked on every automatic
// strategy substitution.
func WithFallbackNotify(f FallbackFunc) Option {
	return func(e *Engine) { e.onFallback = f }
}

// WithGPUBackend registers a GPU-style backend factory.
func WithGPUBackend(f GPUFactory) Option {
	return func(e *Engine) { e.gpuFactory = f }
}

// WithAcceleratedBackend replaces the default parallel indexer in the wasm
// backend slot. Passing nil removes the backend.
func WithAcceleratedBackend(tp TokenProducer) Option {
	return func(e *Engine) { e.accel = tp }
}

// WithCapabilities overrides environment detection.
func WithCapabilities(env Capabilities) Option {
	return func(e *Engine) {
		e.env = env
		e.envSet = true
	}
}

// New builds an engine from a validated configuration.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:        cfg.Normalize(),
		maxWorkers: runtime.NumCPU(),
		accel:      index.New(index.Config{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if !e.envSet {
		env := Detect()
		env.GPU = e.gpuFactory != nil
		env.WASM = e.accel != nil
		e.env = env
	}
	if e.cfg.Worker && e.pool == nil {
		p, err := worker.NewPool(e.maxWorkers, ParseHandler())
		if err != nil {
			return nil, err
		}
		e.pool = p
		e.ownPool = true
	}
	e.log = logger.With(zap.String("component", "engine"))
	return e, nil
}

// Close releases engine-owned resources. Shared pools are left running.
func (e *Engine) Close() {
	if e.ownPool && e.pool != nil {
		e.pool.Terminate()
	}
}

// Config returns the normalized engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Capabilities returns the environment the engine plans against.
func (e *Engine) Capabilities() Capabilities {
	return e.env
}

// Plan exposes the routing decision for a hypothetical parse, mainly for
// diagnostics.
func (e *Engine) Plan(input InputKind, format csv.OutputFormat, cs string) ExecutionPlan {
	return Resolve(ParseContext{
		Input:   input,
		Format:  format,
		Charset: cs,
		Config:  e.cfg,
		Env:     e.env,
	})
}

// ParseString parses an in-memory string.
func (e *Engine) ParseString(ctx context.Context, text string, opts csv.Options) <-chan Result {
	return e.parse(ctx, Input{Kind: InputString, Text: text}, opts)
}

// ParseBytes parses an in-memory byte payload, transcoding it when the
// options declare a non-UTF-8 charset.
func (e *Engine) ParseBytes(ctx context.Context, payload []byte, opts csv.Options) <-chan Result {
	return e.parse(ctx, Input{Kind: InputBinary, Payload: payload}, opts)
}

// ParseStream parses an incremental reader. Records are delivered as soon as
// each one completes; the reader is pulled under backpressure from the
// result channel.
func (e *Engine) ParseStream(ctx context.Context, r io.Reader, opts csv.Options) <-chan Result {
	return e.parse(ctx, Input{Kind: InputStream, Reader: r}, opts)
}

// ReadAll drains a result stream into a slice, returning the records
// delivered before the first error along with that error.
func ReadAll(results <-chan Result) ([]csv.Record, error) {
	var records []csv.Record
	var first error
	for r := range results {
		if r.Err != nil {
			if first == nil {
				first = r.Err
			}
			continue
		}
		records = append(records, r.Record)
	}
	return records, first
}

// parse routes one input through the planner and streams results back.
// The returned channel closes after the terminal result; cancel ctx to
// abandon a parse early.
func (e *Engine) parse(ctx context.Context, in Input, opts csv.Options) <-chan Result {
	out := make(chan Result)
	go func() {
		defer close(out)

		opts = opts.Normalize()
		if err := opts.Validate(); err != nil {
			e.fail(out, err)
			return
		}

		plan := e.Plan(in.Kind, opts.Format, opts.Charset)
		backend := string(plan.Backends[0])
		execCtx := string(plan.Contexts[0])
		e.log.Debug("parse routed",
			zap.String("input", string(in.Kind)),
			zap.String("backend", backend),
			zap.String("context", execCtx))

		timer := metrics.NewTimer(backend)
		defer timer.Stop()

		emit := func(rec csv.Record) error {
			select {
			case out <- Result{Record: rec}:
				metrics.RecordsParsed.WithLabelValues(backend, execCtx).Inc()
				return nil
			case <-ctx.Done():
				return errors.FromContext(ctx.Err())
			}
		}

		var err error
		if plan.Contexts[0] == ContextMain {
			err = e.runMain(ctx, in, opts, plan, emit)
		} else {
			err = e.runWorker(ctx, in, opts, plan, emit)
		}
		if err != nil {
			e.fail(out, err)
		}
	}()
	return out
}

// fail delivers the terminal error. The send is unconditional: the result
// channel contract is that the consumer drains until close, so delivery
// cannot deadlock even under cancellation.
func (e *Engine) fail(out chan<- Result, err error) {
	metrics.ParseErrors.WithLabelValues(string(errors.TypeOf(err))).Inc()
	out <- Result{Err: err}
}

// runMain executes on the caller's goroutine, walking the plan's backend
// chain. A backend that refuses the dialect with a capability error yields
// to the next candidate; the baseline sequential backend refuses nothing.
func (e *Engine) runMain(ctx context.Context, in Input, opts csv.Options, plan ExecutionPlan, emit func(csv.Record) error) error {
	if in.Kind == InputStream {
		// Parallel backends need the whole buffer; streams stay sequential.
		return parseReader(ctx, in.Reader, opts, emit)
	}

	data := in.Payload
	if in.Kind == InputString {
		data = []byte(in.Text)
	}
	data, err := decodeBytes(data, opts.Charset)
	if err != nil {
		return err
	}
	opts.Charset = ""

	for i, b := range plan.Backends {
		records, err := parseBuffer(ctx, data, opts, e.producerFor(b, plan))
		if err != nil {
			if errors.IsType(err, errors.ErrorTypeCapability) && i < len(plan.Backends)-1 {
				e.log.Debug("backend refused dialect, trying next",
					zap.String("backend", string(b)), zap.Error(err))
				continue
			}
			return err
		}
		for _, rec := range records {
			if err := emit(rec); err != nil {
				return err
			}
		}
		return nil
	}
	return errors.New(errors.ErrorTypeInternal, "execution plan had no usable backend")
}

// producerFor maps a planned backend to its token producer. The baseline
// backend maps to nil, which parseBuffer reads as the sequential lexer.
func (e *Engine) producerFor(b Backend, plan ExecutionPlan) TokenProducer {
	switch b {
	case BackendGPU:
		if e.gpuFactory != nil && plan.GPU != nil {
			return e.gpuFactory(*plan.GPU)
		}
		return nil
	case BackendWASM:
		return e.accel
	default:
		return nil
	}
}

// runWorker executes on a pooled worker unit via the configured transport
// strategy.
func (e *Engine) runWorker(ctx context.Context, in Input, opts csv.Options, plan ExecutionPlan, emit func(csv.Record) error) error {
	if e.pool == nil {
		return errors.New(errors.ErrorTypeInternal, "worker context planned without a pool")
	}
	sess, err := worker.NewSession(ctx, worker.SessionOptions{Pool: e.pool})
	if err != nil {
		return err
	}
	defer sess.Close()

	useAccel := plan.Backends[0] != BackendJS
	return e.executeWorker(ctx, in, opts, sess, useAccel, emit)
}
