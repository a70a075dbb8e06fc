package engine

import (
	"bytes"
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/comet/pkg/csv"
	"github.com/ajitpratap0/comet/pkg/errors"
	"github.com/ajitpratap0/comet/pkg/logger"
	"github.com/ajitpratap0/comet/pkg/metrics"
	"github.com/ajitpratap0/comet/pkg/worker"
)

// streamChunkSize is the read granularity when pumping a reader across the
// worker boundary or through the sequential pipeline.
const streamChunkSize = 32 * 1024

// FallbackNotice describes one automatic strategy substitution. It names
// both the requested and substituted strategies and carries the triggering
// error, so hosts can log or surface the downgrade.
type FallbackNotice struct {
	RequestedStrategy WorkerStrategy
	ActualStrategy    WorkerStrategy
	RequestedConfig   Config
	ActualConfig      Config
	Err               error
}

// FallbackFunc receives fallback notices. It is called synchronously on the
// parsing goroutine, before the substitute strategy runs.
type FallbackFunc func(FallbackNotice)

// executeWorker runs one parse on a worker unit, applying the configured
// transport strategy with automatic fallback. Fallback substitutes
// message-based transport when the requested strategy is unavailable, and
// only then: parse and size-limit failures describe the input, not the
// transport, and surface unchanged. Strict mode, cancellation, and records
// already delivered all disable fallback too.
func (e *Engine) executeWorker(ctx context.Context, in Input, opts csv.Options, sess *worker.Session, useAccel bool, emit func(csv.Record) error) error {
	requested := StrategyMessage
	if e.cfg.HasStreamTransfer() {
		requested = StrategyStreamTransfer
	}

	// Stream bytes consumed by a failed attempt must stay replayable, or
	// the fallback retry would see only the leftovers.
	var tap *replayReader
	if requested == StrategyStreamTransfer && in.Kind == InputStream {
		tap = &replayReader{src: in.Reader}
		in.Reader = tap
	}

	emitted := 0
	counting := func(rec csv.Record) error {
		if err := emit(rec); err != nil {
			return err
		}
		emitted++
		return nil
	}

	err := e.runStrategy(ctx, requested, in, opts, sess, useAccel, counting)
	if err == nil {
		return nil
	}
	if e.cfg.Strict || requested == StrategyMessage || !fallbackEligible(err) {
		return err
	}
	if emitted > 0 {
		// Records already reached the caller; replaying the input under a
		// different strategy would duplicate them.
		return err
	}

	fb := e.cfg.Fallback()
	metrics.StrategyFallbacks.WithLabelValues(string(requested), string(StrategyMessage)).Inc()
	logger.Warn("worker strategy fallback",
		zap.String("requested", string(requested)),
		zap.String("actual", string(StrategyMessage)),
		zap.Error(err))
	if e.onFallback != nil {
		e.onFallback(FallbackNotice{
			RequestedStrategy: requested,
			ActualStrategy:    StrategyMessage,
			RequestedConfig:   e.cfg,
			ActualConfig:      fb,
			Err:               err,
		})
	}

	// Message transport needs the whole payload up front. The replay tap
	// holds everything the failed attempt consumed; the rest is still in
	// the source.
	if in.Kind == InputStream {
		if _, rerr := io.ReadAll(tap); rerr != nil {
			return errors.Wrap(rerr, errors.ErrorTypeTransport, "materializing stream for fallback")
		}
		in = Input{Kind: InputBinary, Payload: tap.consumed()}
	}
	return e.runStrategy(ctx, StrategyMessage, in, opts, sess, useAccel, counting)
}

// fallbackEligible reports whether a failure is about the transport rather
// than the input. Parse and size-limit errors are final for any strategy;
// cancellation belongs to the caller.
func fallbackEligible(err error) bool {
	return errors.IsType(err, errors.ErrorTypeTransport) ||
		errors.IsType(err, errors.ErrorTypeCapability)
}

// replayReader records everything read through it so a fallback retry can
// reconstruct the full input.
type replayReader struct {
	src io.Reader
	buf bytes.Buffer
}

func (r *replayReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 {
		r.buf.Write(p[:n])
	}
	return n, err
}

func (r *replayReader) consumed() []byte {
	return r.buf.Bytes()
}

// runStrategy executes one parse over one transport strategy, no fallback.
func (e *Engine) runStrategy(ctx context.Context, strat WorkerStrategy, in Input, opts csv.Options, sess *worker.Session, useAccel bool, emit func(csv.Record) error) error {
	switch strat {
	case StrategyStreamTransfer:
		return e.runStreamTransfer(ctx, in, opts, sess, useAccel, emit)
	default:
		return e.runMessage(ctx, in, opts, sess, useAccel, emit)
	}
}

// runMessage copies the payload into a single request message and waits for
// the batched response.
func (e *Engine) runMessage(ctx context.Context, in Input, opts csv.Options, sess *worker.Session, useAccel bool, emit func(csv.Record) error) error {
	req := worker.Request{
		ID:             sess.NextRequestID(),
		Options:        opts,
		UseAccelerated: useAccel,
	}
	switch in.Kind {
	case InputString:
		req.Kind = worker.ParseString
		req.Text = in.Text
	case InputBinary:
		req.Kind = worker.ParseBinary
		req.Payload = in.Payload
	default:
		return errors.New(errors.ErrorTypeTransport,
			"message transport requires an in-memory payload; parse streams with the stream-transfer strategy or in the main context")
	}

	records, err := sess.Unit().Call(ctx, req)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := emit(rec); err != nil {
			return err
		}
	}
	return nil
}

// runStreamTransfer hands chunk ownership to the unit and relays the
// dedicated event channel back to the caller. Chunks crossing the boundary
// are always UTF-8; transcoding happens on this side.
func (e *Engine) runStreamTransfer(ctx context.Context, in Input, opts csv.Options, sess *worker.Session, useAccel bool, emit func(csv.Record) error) error {
	if in.Kind != InputStream {
		return errors.New(errors.ErrorTypeTransport,
			"stream-transfer strategy requires stream input")
	}
	if !e.env.TransferableStreams {
		return errors.New(errors.ErrorTypeCapability,
			"environment does not support stream transfer")
	}

	src, err := decodedReader(in.Reader, opts.Charset)
	if err != nil {
		return err
	}
	// Chunks are re-lexed as UTF-8 on the far side.
	opts.Charset = ""

	pumpCtx, stopPump := context.WithCancel(ctx)
	defer stopPump()
	chunks := make(chan []byte)
	pumpErr := make(chan error, 1)
	go pump(pumpCtx, src, chunks, pumpErr)

	req := worker.Request{
		ID:             sess.NextRequestID(),
		Kind:           worker.ParseStream,
		Stream:         chunks,
		Options:        opts,
		UseAccelerated: useAccel,
	}
	events := make(chan worker.Event, 16)
	req.Events = events
	if err := sess.Unit().CallStream(ctx, req); err != nil {
		return err
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Terminal event was lost to an abort. Unblock the pump
				// before draining its error, then report the real cause.
				stopPump()
				perr := <-pumpErr
				if cerr := ctx.Err(); cerr != nil {
					return errors.FromContext(cerr)
				}
				if perr != nil && !errors.IsCancellation(perr) {
					return perr
				}
				return errors.New(errors.ErrorTypeTransport,
					"worker closed result stream without a terminal event")
			}
			switch ev.Kind {
			case worker.EventRecord:
				if err := emit(ev.Record); err != nil {
					sess.Unit().Abort(req.ID)
					return err
				}
			case worker.EventError:
				return errors.FromKind(ev.ErrKind, ev.ErrMsg)
			case worker.EventDone:
				if err := <-pumpErr; err != nil {
					return err
				}
				return nil
			}
		case <-ctx.Done():
			sess.Unit().Abort(req.ID)
			return errors.FromContext(ctx.Err())
		}
	}
}

// pump reads src in fresh chunks onto out, closing out at EOF. Each chunk is
// newly allocated: ownership transfers to the receiver. The first read error
// (and only that) lands on errc, which always receives exactly one value.
func pump(ctx context.Context, src io.Reader, out chan<- []byte, errc chan<- error) {
	defer close(out)
	for {
		buf := make([]byte, streamChunkSize)
		n, err := src.Read(buf)
		if n > 0 {
			select {
			case out <- buf[:n]:
			case <-ctx.Done():
				errc <- errors.FromContext(ctx.Err())
				return
			}
		}
		if err == io.EOF {
			errc <- nil
			return
		}
		if err != nil {
			errc <- errors.Wrap(err, errors.ErrorTypeTransport, "stream read failed")
			return
		}
	}
}
