// Package comet provides a streaming CSV parsing toolkit with pluggable
// execution backends and isolated worker concurrency.
//
// Comet parses CSV from strings, byte payloads, or readers of unknown
// length, and decides at runtime where and how each parse executes:
//
//   - a sequential streaming lexer that resumes across arbitrary chunk
//     boundaries (mid-field, mid-quote, mid-CRLF, mid-UTF-8-sequence)
//   - a parallel indexing backend that scans segments of an in-memory
//     buffer concurrently and reproduces the lexer's token stream exactly
//   - pooled worker units reachable only through channels, with message
//     and stream-ownership-transfer transports and automatic fallback
//
// # Architecture
//
// Parsing is a two-stage pipeline: the lexer (pkg/csv.Lexer) turns chunked
// character input into field/delimiter tokens with exact positions, and the
// assembler (pkg/csv.Assembler) folds tokens into object- or array-shaped
// records, inferring and validating headers. The engine (pkg/engine) routes
// each parse through a pure planner that weighs the requested configuration,
// detected host capabilities, the input shape, and an optimization hint.
//
// # Quick Start
//
// Parse a stream into records:
//
//	eng, _ := engine.New(engine.Config{WASM: true})
//	defer eng.Close()
//
//	results := eng.ParseStream(ctx, file, csv.Options{})
//	for r := range results {
//	    if r.Err != nil {
//	        return r.Err
//	    }
//	    process(r.Record)
//	}
//
// # Key Packages
//
//	pkg/csv          - Streaming lexer, record assembler, CSV writer
//	pkg/index        - Parallel indexing backend (token producer)
//	pkg/engine       - Execution planner, strategies, engine facade
//	pkg/worker       - Isolated execution units, bounded pool, sessions
//	pkg/charset      - Charset detection and transcoding to UTF-8
//	pkg/compression  - Magic-byte detection and decompression
//	pkg/errors       - Typed errors with stack capture
//	internal/pipeline - File/stdin to JSON-lines/CSV execution core
package comet
