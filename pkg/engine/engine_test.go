package engine

import (
	"context"
	stderrors "errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/comet/pkg/csv"
	"github.com/ajitpratap0/comet/pkg/errors"
)

const sampleCSV = "name,age\nalice,30\nbob,25\n"

var sampleRecords = []csv.Record{
	csv.ObjectRecord(map[string]string{"name": "alice", "age": "30"}),
	csv.ObjectRecord(map[string]string{"name": "bob", "age": "25"}),
}

func newEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestEngineParseStringMainContext(t *testing.T) {
	e := newEngine(t, Config{})
	records, err := ReadAll(e.ParseString(context.Background(), sampleCSV, csv.Options{}))
	require.NoError(t, err)
	assert.Equal(t, sampleRecords, records)
}

func TestEngineParseStringAccelerated(t *testing.T) {
	e := newEngine(t, Config{WASM: true, Hint: HintBalanced})
	records, err := ReadAll(e.ParseString(context.Background(), sampleCSV, csv.Options{}))
	require.NoError(t, err)
	assert.Equal(t, sampleRecords, records)
}

func TestEngineParseBytesWithCharset(t *testing.T) {
	// "café" in ISO-8859-1: é is a single 0xE9 byte.
	payload := []byte{'h', '\n', 'c', 'a', 'f', 0xE9, '\n'}
	e := newEngine(t, Config{WASM: true})
	records, err := ReadAll(e.ParseBytes(context.Background(), payload, csv.Options{Charset: "ISO-8859-1"}))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "café", records[0].Object["h"])
}

func TestEngineParseStream(t *testing.T) {
	e := newEngine(t, Config{})
	records, err := ReadAll(e.ParseStream(context.Background(), strings.NewReader(sampleCSV), csv.Options{}))
	require.NoError(t, err)
	assert.Equal(t, sampleRecords, records)
}

func TestEngineWorkerMessageContext(t *testing.T) {
	e := newEngine(t, Config{Worker: true, WASM: true}, WithMaxWorkers(2))
	records, err := ReadAll(e.ParseString(context.Background(), sampleCSV, csv.Options{}))
	require.NoError(t, err)
	assert.Equal(t, sampleRecords, records)
}

func TestEngineWorkerStreamTransfer(t *testing.T) {
	e := newEngine(t, Config{Worker: true, WorkerStrategy: StrategyStreamTransfer}, WithMaxWorkers(2))
	records, err := ReadAll(e.ParseStream(context.Background(), strings.NewReader(sampleCSV), csv.Options{}))
	require.NoError(t, err)
	assert.Equal(t, sampleRecords, records)
}

func TestEngineStrategyFallback(t *testing.T) {
	// Stream-transfer requested for a non-stream input lands in the message
	// context, where the requested strategy cannot run; the engine must fall
	// back to message transport and still deliver every record.
	var notices []FallbackNotice
	e := newEngine(t,
		Config{Worker: true, WorkerStrategy: StrategyStreamTransfer},
		WithMaxWorkers(1),
		WithFallbackNotify(func(n FallbackNotice) { notices = append(notices, n) }),
	)

	records, err := ReadAll(e.ParseString(context.Background(), sampleCSV, csv.Options{}))
	require.NoError(t, err)
	assert.Equal(t, sampleRecords, records)

	require.Len(t, notices, 1)
	assert.Equal(t, StrategyStreamTransfer, notices[0].RequestedStrategy)
	assert.Equal(t, StrategyMessage, notices[0].ActualStrategy)
	assert.Error(t, notices[0].Err)
}

func TestEngineStrictDisablesFallback(t *testing.T) {
	e := newEngine(t,
		Config{Worker: true, WorkerStrategy: StrategyStreamTransfer, Strict: true},
		WithMaxWorkers(1),
	)

	_, err := ReadAll(e.ParseString(context.Background(), sampleCSV, csv.Options{}))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))
}

func TestEngineFallbackOutputMatchesDirectRun(t *testing.T) {
	direct := newEngine(t, Config{Worker: true}, WithMaxWorkers(1))
	want, err := ReadAll(direct.ParseString(context.Background(), sampleCSV, csv.Options{}))
	require.NoError(t, err)

	fallback := newEngine(t, Config{Worker: true, WorkerStrategy: StrategyStreamTransfer}, WithMaxWorkers(1))
	got, err := ReadAll(fallback.ParseString(context.Background(), sampleCSV, csv.Options{}))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEngineParseErrorDisablesFallback(t *testing.T) {
	// A duplicate header is fatal regardless of transport: the error must
	// surface instead of triggering a message retry over a reader the first
	// attempt already consumed.
	var notices []FallbackNotice
	e := newEngine(t,
		Config{Worker: true, WorkerStrategy: StrategyStreamTransfer},
		WithMaxWorkers(1),
		WithFallbackNotify(func(n FallbackNotice) { notices = append(notices, n) }),
	)

	records, err := ReadAll(e.ParseStream(context.Background(), strings.NewReader("a,a\n1,2\n"), csv.Options{}))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeParse))
	assert.Contains(t, err.Error(), `duplicate header "a"`)
	assert.Empty(t, records)
	assert.Empty(t, notices)
}

func TestEngineSizeLimitDisablesFallback(t *testing.T) {
	var notices []FallbackNotice
	e := newEngine(t,
		Config{Worker: true, WorkerStrategy: StrategyStreamTransfer},
		WithMaxWorkers(1),
		WithFallbackNotify(func(n FallbackNotice) { notices = append(notices, n) }),
	)

	opts := csv.Options{MaxFieldCount: 2}
	_, err := ReadAll(e.ParseStream(context.Background(), strings.NewReader("a,b,c\n1,2,3\n"), opts))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSizeLimit))
	assert.Empty(t, notices)
}

func TestEngineStreamFallbackReplaysConsumedBytes(t *testing.T) {
	// The first attempt consumes part of the stream before the source fails
	// with a transient error; the message retry must parse the full input,
	// not just the leftovers.
	src := &stutterReader{steps: []stutterStep{
		{data: "name"},
		{err: stderrors.New("connection reset")},
		{data: ",age\n1,2\n"},
	}}

	var notices []FallbackNotice
	e := newEngine(t,
		Config{Worker: true, WorkerStrategy: StrategyStreamTransfer},
		WithMaxWorkers(1),
		WithFallbackNotify(func(n FallbackNotice) { notices = append(notices, n) }),
	)

	records, err := ReadAll(e.ParseStream(context.Background(), src, csv.Options{}))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, map[string]string{"name": "1", "age": "2"}, records[0].Object)

	require.Len(t, notices, 1)
	assert.True(t, errors.IsType(notices[0].Err, errors.ErrorTypeTransport))
}

// stutterReader serves scripted reads: data chunks interleaved with errors,
// the way an unreliable network source behaves. After the script it is EOF.
type stutterReader struct {
	steps []stutterStep
}

type stutterStep struct {
	data string
	err  error
}

func (r *stutterReader) Read(p []byte) (int, error) {
	if len(r.steps) == 0 {
		return 0, io.EOF
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	if step.err != nil {
		return 0, step.err
	}
	return copy(p, step.data), nil
}

func TestEngineParseErrorSurfaces(t *testing.T) {
	e := newEngine(t, Config{WASM: true})
	_, err := ReadAll(e.ParseString(context.Background(), "\"unterminated", csv.Options{}))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeParse))
}

func TestEngineInvalidOptionsSurface(t *testing.T) {
	e := newEngine(t, Config{})
	_, err := ReadAll(e.ParseString(context.Background(), "a", csv.Options{Delimiter: '"'}))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestEngineCancellation(t *testing.T) {
	e := newEngine(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadAll(e.ParseString(ctx, sampleCSV, csv.Options{}))
	require.Error(t, err)
	assert.True(t, errors.IsCancellation(err))
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{WorkerStrategy: StrategyMessage})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

// recordingProducer counts invocations and delegates nothing: it refuses
// every dialect so the chain moves on.
type recordingProducer struct {
	calls int
}

func (p *recordingProducer) Tokens(ctx context.Context, data []byte, opts csv.Options) ([]csv.Token, error) {
	p.calls++
	return nil, errors.New(errors.ErrorTypeCapability, "unsupported dialect")
}

func TestEngineGPUFactoryReceivesPlanConfig(t *testing.T) {
	producer := &recordingProducer{}
	var gotCfg GPUConfig
	e := newEngine(t,
		Config{GPU: true, WASM: true, Hint: HintSpeed},
		WithGPUBackend(func(cfg GPUConfig) TokenProducer {
			gotCfg = cfg
			return producer
		}),
	)

	records, err := ReadAll(e.ParseString(context.Background(), sampleCSV, csv.Options{}))
	require.NoError(t, err)
	assert.Equal(t, sampleRecords, records)

	// Speed hint tunes the GPU dispatch; its capability refusal falls
	// through to the next backend without surfacing an error.
	assert.Equal(t, 256, gotCfg.WorkgroupSize)
	assert.Equal(t, "high-performance", gotCfg.DevicePreference)
	assert.Equal(t, 1, producer.calls)
}

func TestEngineBackendChainFallsToSequential(t *testing.T) {
	// Both parallel backends refuse; the baseline still parses.
	producer := &recordingProducer{}
	e := newEngine(t,
		Config{GPU: true, WASM: true, Hint: HintSpeed},
		WithGPUBackend(func(GPUConfig) TokenProducer { return producer }),
		WithAcceleratedBackend(producer),
	)

	records, err := ReadAll(e.ParseString(context.Background(), sampleCSV, csv.Options{}))
	require.NoError(t, err)
	assert.Equal(t, sampleRecords, records)
	assert.Equal(t, 2, producer.calls)
}

func TestEngineCapabilitiesReflectRegisteredBackends(t *testing.T) {
	e := newEngine(t, Config{})
	caps := e.Capabilities()
	assert.False(t, caps.GPU)
	assert.True(t, caps.WASM)
	assert.True(t, caps.TransferableStreams)

	withGPU := newEngine(t, Config{GPU: true},
		WithGPUBackend(func(GPUConfig) TokenProducer { return &recordingProducer{} }))
	assert.True(t, withGPU.Capabilities().GPU)
}

func TestEngineStreamBackpressure(t *testing.T) {
	// Records arrive incrementally: the first record must be available
	// before the stream is exhausted.
	pr, pw := newBlockingPipe()
	e := newEngine(t, Config{})

	results := e.ParseStream(context.Background(), pr, csv.Options{Header: []string{"v"}})

	pw.write("1\n")
	r := <-results
	require.NoError(t, r.Err)
	assert.Equal(t, "1", r.Record.Object["v"])

	pw.write("2\n")
	r = <-results
	require.NoError(t, r.Err)
	assert.Equal(t, "2", r.Record.Object["v"])

	pw.close()
	_, ok := <-results
	assert.False(t, ok)
}

// blockingPipe is a minimal channel-backed reader for incremental delivery.
type blockingPipe struct {
	ch  chan []byte
	rem []byte
}

func newBlockingPipe() (*blockingPipe, *blockingPipe) {
	p := &blockingPipe{ch: make(chan []byte, 8)}
	return p, p
}

func (p *blockingPipe) Read(b []byte) (int, error) {
	if len(p.rem) == 0 {
		chunk, ok := <-p.ch
		if !ok {
			return 0, io.EOF
		}
		p.rem = chunk
	}
	n := copy(b, p.rem)
	p.rem = p.rem[n:]
	return n, nil
}

func (p *blockingPipe) write(s string) { p.ch <- []byte(s) }
func (p *blockingPipe) close()         { close(p.ch) }
