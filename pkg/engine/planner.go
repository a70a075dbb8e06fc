package engine

import (
	"github.com/ajitpratap0/comet/pkg/charset"
	"github.com/ajitpratap0/comet/pkg/csv"
)

// InputKind is the shape of the data handed to the engine.
type InputKind string

const (
	// InputString is an in-memory string payload.
	InputString InputKind = "string"
	// InputBinary is an in-memory byte payload.
	InputBinary InputKind = "binary"
	// InputStream is an incremental reader of unknown length.
	InputStream InputKind = "stream"
)

// Backend identifies a parsing implementation.
type Backend string

const (
	// BackendGPU is a plugged GPU-style parallel backend.
	BackendGPU Backend = "gpu"
	// BackendWASM is the accelerated parallel indexing backend.
	BackendWASM Backend = "wasm"
	// BackendJS is the baseline sequential lexer, available everywhere.
	BackendJS Backend = "js"
)

// ExecContext identifies where a parse executes.
type ExecContext string

const (
	// ContextMain runs the parse on the caller's goroutine.
	ContextMain ExecContext = "main"
	// ContextWorkerMessage runs the parse on a worker unit over message
	// transport.
	ContextWorkerMessage ExecContext = "worker-message"
	// ContextWorkerStream runs the parse on a worker unit with stream
	// ownership transfer.
	ContextWorkerStream ExecContext = "worker-stream-transfer"
)

// GPUConfig tunes a GPU-style backend for the chosen optimization hint.
type GPUConfig struct {
	WorkgroupSize    int
	DevicePreference string
}

// ParseContext is everything the planner needs to route one parse. It is a
// pure value: building it has no side effects and Resolve is deterministic
// over it.
type ParseContext struct {
	Input   InputKind
	Format  csv.OutputFormat
	Charset string
	Config  Config
	Env     Capabilities
}

// ExecutionPlan is the planner's output: candidate backends and execution
// contexts, both in preference order, never empty. The head of each list is
// the primary choice; the tail is the fallback chain.
type ExecutionPlan struct {
	Backends []Backend
	Contexts []ExecContext
	GPU      *GPUConfig
}

// hint-ordered backend preference. The baseline backend appears in every
// row so filtering can never empty the list.
var backendOrder = map[OptimizationHint][]Backend{
	HintSpeed:      {BackendGPU, BackendWASM, BackendJS},
	HintMemory:     {BackendJS, BackendWASM, BackendGPU},
	HintBalanced:   {BackendWASM, BackendGPU, BackendJS},
	HintResponsive: {BackendJS, BackendWASM, BackendGPU},
}

// Resolve maps a parse context to an execution plan. It is a pure function:
// no detection, no allocation of resources, just routing. The baseline
// sequential backend and the main context survive every filter, so the plan
// always has at least one entry on each axis.
func Resolve(pc ParseContext) ExecutionPlan {
	cfg := pc.Config.Normalize()
	utf8 := charset.IsUTF8(pc.Charset)

	var backends []Backend
	for _, b := range backendOrder[cfg.Hint] {
		switch b {
		case BackendGPU:
			// GPU must be both requested and present, and only handles
			// UTF-8 input.
			if cfg.GPU && pc.Env.GPU && utf8 {
				backends = append(backends, b)
			}
		case BackendWASM:
			// The accelerated indexer handles UTF-8 object-shaped output.
			if cfg.WASM && pc.Env.WASM && utf8 && pc.Format != csv.FormatArray {
				backends = append(backends, b)
			}
		case BackendJS:
			backends = append(backends, b)
		}
	}

	plan := ExecutionPlan{
		Backends: backends,
		Contexts: resolveContexts(pc, cfg),
	}
	for _, b := range backends {
		if b == BackendGPU {
			plan.GPU = gpuConfigFor(cfg.Hint)
			break
		}
	}
	return plan
}

// resolveContexts orders execution contexts for the parse. Speed and memory
// hints keep work on the caller's goroutine to skip the transfer overhead;
// balanced and responsive prefer offloading to a worker unit.
func resolveContexts(pc ParseContext, cfg Config) []ExecContext {
	var workerCtx ExecContext
	switch {
	case pc.Input == InputStream && cfg.Worker && pc.Env.TransferableStreams:
		workerCtx = ContextWorkerStream
	case pc.Input != InputStream && cfg.Worker:
		workerCtx = ContextWorkerMessage
	}

	if workerCtx == "" {
		return []ExecContext{ContextMain}
	}
	if cfg.Hint == HintSpeed || cfg.Hint == HintMemory {
		return []ExecContext{ContextMain, workerCtx}
	}
	return []ExecContext{workerCtx, ContextMain}
}

func gpuConfigFor(hint OptimizationHint) *GPUConfig {
	switch hint {
	case HintSpeed:
		return &GPUConfig{WorkgroupSize: 256, DevicePreference: "high-performance"}
	case HintMemory:
		return &GPUConfig{WorkgroupSize: 64, DevicePreference: "low-power"}
	default:
		return &GPUConfig{WorkgroupSize: 128, DevicePreference: "default"}
	}
}
