package engine

import (
	"context"
	"io"

	"github.com/ajitpratap0/comet/pkg/charset"
	"github.com/ajitpratap0/comet/pkg/csv"
	"github.com/ajitpratap0/comet/pkg/errors"
	"github.com/ajitpratap0/comet/pkg/index"
	"github.com/ajitpratap0/comet/pkg/worker"
)

// TokenProducer turns a whole in-memory payload into the token stream the
// assembler consumes. The parallel indexer implements it; GPU-style backends
// plug in through the same interface.
type TokenProducer interface {
	Tokens(ctx context.Context, data []byte, opts csv.Options) ([]csv.Token, error)
}

// ParseHandler builds the handler worker units execute: the same
// lexer-assembler pipeline as main-context execution, with the parallel
// indexer for accelerated requests.
func ParseHandler() worker.Handler {
	ix := index.New(index.Config{})
	return func(ctx context.Context, req worker.Request, emit func(csv.Record) error) ([]csv.Record, error) {
		switch req.Kind {
		case worker.ParseStream:
			return nil, parseChunks(ctx, req.Stream, req.Options, emit)
		case worker.ParseString:
			return parseBuffer(ctx, []byte(req.Text), req.Options, acceleratedOrNil(ix, req.UseAccelerated))
		case worker.ParseBinary:
			data, err := decodeBytes(req.Payload, req.Options.Charset)
			if err != nil {
				return nil, err
			}
			opts := req.Options
			opts.Charset = ""
			return parseBuffer(ctx, data, opts, acceleratedOrNil(ix, req.UseAccelerated))
		default:
			return nil, errors.Newf(errors.ErrorTypeInternal, "unknown request kind %q", req.Kind)
		}
	}
}

// NewWorkerPool builds a worker pool running the standard parse handler,
// for hosts that want to share one pool across several engines.
func NewWorkerPool(maxWorkers int) (*worker.Pool, error) {
	return worker.NewPool(maxWorkers, ParseHandler())
}

func acceleratedOrNil(ix *index.Indexer, accelerated bool) TokenProducer {
	if accelerated {
		return ix
	}
	return nil
}

// parseBuffer parses a whole in-memory payload. With a producer, tokens come
// from it in one shot; without one (or when the producer refuses the dialect
// with a capability error) the sequential lexer runs instead.
func parseBuffer(ctx context.Context, data []byte, opts csv.Options, producer TokenProducer) ([]csv.Record, error) {
	if producer != nil {
		tokens, err := producer.Tokens(ctx, data, opts)
		if err == nil {
			return assembleAll(tokens, opts)
		}
		if !errors.IsType(err, errors.ErrorTypeCapability) {
			return nil, err
		}
	}

	lx, err := csv.NewLexer(opts)
	if err != nil {
		return nil, err
	}
	defer lx.Close()
	tokens, err := lx.LexBytes(ctx, data, false)
	if err != nil {
		return nil, err
	}
	return assembleAll(tokens, opts)
}

func assembleAll(tokens []csv.Token, opts csv.Options) ([]csv.Record, error) {
	asm, err := csv.NewAssembler(opts)
	if err != nil {
		return nil, err
	}
	defer asm.Close()
	return asm.Assemble(tokens, false)
}

// parseChunks runs the incremental pipeline over an owned chunk channel,
// emitting records as soon as each one completes. Chunks must already be
// UTF-8; transcoding happens before the channel boundary.
func parseChunks(ctx context.Context, chunks <-chan []byte, opts csv.Options, emit func(csv.Record) error) error {
	opts.Charset = ""
	lx, err := csv.NewLexer(opts)
	if err != nil {
		return err
	}
	defer lx.Close()
	asm, err := csv.NewAssembler(opts)
	if err != nil {
		return err
	}
	defer asm.Close()

	emitAll := func(records []csv.Record) error {
		for _, rec := range records {
			if err := emit(rec); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				tokens, err := lx.Flush(ctx)
				if err != nil {
					return err
				}
				records, err := asm.Assemble(tokens, false)
				if err != nil {
					return err
				}
				return emitAll(records)
			}
			tokens, err := lx.LexBytes(ctx, chunk, true)
			if err != nil {
				return err
			}
			records, err := asm.Assemble(tokens, true)
			if err != nil {
				return err
			}
			if err := emitAll(records); err != nil {
				return err
			}
		case <-ctx.Done():
			return errors.FromContext(ctx.Err())
		}
	}
}

// parseReader runs the incremental pipeline directly over a reader, for
// main-context stream parsing. Backpressure is pull-based: the next read
// happens only after the previous chunk's records were consumed.
func parseReader(ctx context.Context, r io.Reader, opts csv.Options, emit func(csv.Record) error) error {
	src, err := decodedReader(r, opts.Charset)
	if err != nil {
		return err
	}
	opts.Charset = ""

	lx, err := csv.NewLexer(opts)
	if err != nil {
		return err
	}
	defer lx.Close()
	asm, err := csv.NewAssembler(opts)
	if err != nil {
		return err
	}
	defer asm.Close()

	emitAll := func(records []csv.Record) error {
		for _, rec := range records {
			if err := emit(rec); err != nil {
				return err
			}
		}
		return nil
	}

	buf := make([]byte, streamChunkSize)
	for {
		if cerr := ctx.Err(); cerr != nil {
			return errors.FromContext(cerr)
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			tokens, err := lx.LexBytes(ctx, buf[:n], true)
			if err != nil {
				return err
			}
			records, err := asm.Assemble(tokens, true)
			if err != nil {
				return err
			}
			if err := emitAll(records); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			tokens, err := lx.Flush(ctx)
			if err != nil {
				return err
			}
			records, err := asm.Assemble(tokens, false)
			if err != nil {
				return err
			}
			return emitAll(records)
		}
		if rerr != nil {
			return errors.Wrap(rerr, errors.ErrorTypeTransport, "stream read failed")
		}
	}
}

// decodeBytes transcodes a payload to UTF-8 when a non-UTF-8 charset is
// declared, otherwise returns it as is.
func decodeBytes(payload []byte, name string) ([]byte, error) {
	if charset.IsUTF8(name) {
		return payload, nil
	}
	s, err := charset.Decode(payload, name, false)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// decodedReader wraps a reader with charset transcoding when needed.
func decodedReader(r io.Reader, name string) (io.Reader, error) {
	if charset.IsUTF8(name) {
		return r, nil
	}
	return charset.NewReader(r, name)
}
