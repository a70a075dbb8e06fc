// Package pool provides typed object pooling for Comet's parsing hot path.
// It offers a generic, type-safe wrapper around sync.Pool with automatic
// reset on return, plus pre-configured global pools for the row and token
// buffers the lexer and assembler recycle on every record boundary.
//
// Example usage:
//
//	row := pool.GetRowBuffer()
//	defer pool.PutRowBuffer(row)
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool represents a generic object pool with type safety.
// It wraps sync.Pool with allocation statistics and automatic reset
// functionality. The pool is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated int64
		hits      int64
		misses    int64
	}
}

// New creates a new typed pool with custom allocation and reset functions.
// The new function is called when the pool is empty; the reset function is
// called before returning an object to the pool.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		atomic.AddInt64(&p.stats.misses, 1)
		return newFn()
	}
	return p
}

// Get retrieves an object from the pool, allocating if necessary.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.hits, 1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool after resetting it.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	p.pool.Put(obj)
}

// Allocated returns the total number of objects allocated by this pool.
func (p *Pool[T]) Allocated() int64 {
	return atomic.LoadInt64(&p.stats.allocated)
}

// Global pools for the buffers recycled on every record boundary.
var (
	rowBufferPool = New(
		func() []string { return make([]string, 0, 32) },
		nil, // reset happens on Get side via slicing; values must not leak
	)

	tokenBufferPool = New(
		func() []byte { return make([]byte, 0, 4096) },
		nil,
	)
)

// GetRowBuffer returns an empty row buffer with retained capacity.
func GetRowBuffer() []string {
	return rowBufferPool.Get()[:0]
}

// PutRowBuffer returns a row buffer to the pool. The buffer is cleared so a
// future borrower can never observe a previous record's field values.
func PutRowBuffer(row []string) {
	row = row[:cap(row)]
	for i := range row {
		row[i] = ""
	}
	rowBufferPool.Put(row[:0])
}

// GetByteBuffer returns an empty byte buffer with retained capacity.
func GetByteBuffer() []byte {
	return tokenBufferPool.Get()[:0]
}

// PutByteBuffer returns a byte buffer to the pool.
func PutByteBuffer(buf []byte) {
	tokenBufferPool.Put(buf[:0])
}
