// Package engine implements Comet's execution routing layer: a validated
// engine configuration, a pure execution planner, transport strategies with
// automatic fallback, and the Engine facade that streams records back to the
// caller under backpressure regardless of which backend did the parsing.
package engine

import (
	"github.com/ajitpratap0/comet/pkg/errors"
)

// OptimizationHint biases backend and context ordering.
type OptimizationHint string

const (
	// HintSpeed prioritizes raw throughput.
	HintSpeed OptimizationHint = "speed"
	// HintMemory prioritizes low memory footprint.
	HintMemory OptimizationHint = "memory"
	// HintBalanced is the default trade-off.
	HintBalanced OptimizationHint = "balanced"
	// HintResponsive prioritizes keeping the caller's context unblocked.
	HintResponsive OptimizationHint = "responsive"
)

// WorkerStrategy names the data-transport mechanism into a worker unit.
type WorkerStrategy string

const (
	// StrategyUnset means no explicit strategy was requested.
	StrategyUnset WorkerStrategy = ""
	// StrategyMessage copies the payload into a single request message.
	StrategyMessage WorkerStrategy = "message"
	// StrategyStreamTransfer transfers stream ownership to the unit with a
	// dedicated result channel, adding no extra copy.
	StrategyStreamTransfer WorkerStrategy = "stream-transfer"
)

// Config is the validated engine capability set. It is a plain struct with
// invariants checked by Validate, not a bit field: construct it, validate
// it once, and treat it as immutable afterwards.
type Config struct {
	// Worker enables execution on pooled worker units.
	Worker bool
	// WASM requests the accelerated in-process indexing backend.
	WASM bool
	// GPU requests a plugged GPU-style parallel backend.
	GPU bool
	// WorkerStrategy picks the transport into worker units. Requires Worker.
	WorkerStrategy WorkerStrategy
	// Strict disables automatic strategy fallback. Requires the
	// stream-transfer strategy.
	Strict bool
	// Hint biases backend/context ordering. Default balanced.
	Hint OptimizationHint
}

// Validate checks the configuration invariants. Violations are fatal
// configuration errors and never reach the parsing hot path.
func (c Config) Validate() error {
	switch c.WorkerStrategy {
	case StrategyUnset, StrategyMessage, StrategyStreamTransfer:
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown worker strategy %q", c.WorkerStrategy)
	}
	if c.WorkerStrategy != StrategyUnset && !c.Worker {
		return errors.New(errors.ErrorTypeConfig, "workerStrategy requires worker")
	}
	if c.Strict && c.WorkerStrategy != StrategyStreamTransfer {
		return errors.New(errors.ErrorTypeConfig, "strict requires the stream-transfer strategy")
	}
	switch c.Hint {
	case "", HintSpeed, HintMemory, HintBalanced, HintResponsive:
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown optimization hint %q", c.Hint)
	}
	return nil
}

// Normalize returns a copy with defaults applied: worker without a strategy
// defaults to message-based, and the hint defaults to balanced.
func (c Config) Normalize() Config {
	if c.Worker && c.WorkerStrategy == StrategyUnset {
		c.WorkerStrategy = StrategyMessage
	}
	if c.Hint == "" {
		c.Hint = HintBalanced
	}
	return c
}

// HasStreamTransfer reports whether the stream-transfer strategy is
// configured.
func (c Config) HasStreamTransfer() bool {
	return c.WorkerStrategy == StrategyStreamTransfer
}

// Fallback returns the substitute configuration used when the requested
// strategy is unavailable or fails: message-based transport with strict
// mode forced off.
func (c Config) Fallback() Config {
	c.WorkerStrategy = StrategyMessage
	c.Strict = false
	return c
}
