package engine

// Capabilities describes what the host environment can execute. The planner
// consumes it to filter backends and execution contexts.
type Capabilities struct {
	// GPU is set when a GPU-style parallel backend has been plugged in.
	GPU bool
	// WASM is set when the accelerated in-process indexing backend is
	// available.
	WASM bool
	// TransferableStreams is set when stream ownership can be handed to a
	// worker unit without copying.
	TransferableStreams bool
}

// Detect probes the runtime environment. The parallel indexing backend is
// compiled in and channel-based stream handoff is always available; a GPU
// backend is only present when registered, which New accounts for after
// options are applied.
func Detect() Capabilities {
	return Capabilities{
		GPU:                 false,
		WASM:                true,
		TransferableStreams: true,
	}
}
