package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ajitpratap0/comet/pkg/errors"
)

// SessionOptions configures session acquisition. With a Pool, the session
// borrows a unit from it; otherwise Handler is required and the session
// owns a dedicated unit.
type SessionOptions struct {
	Pool    *Pool
	Handler Handler
}

// Session is a borrowed-or-owned execution unit plus a request-id source.
// Borrowed units are returned to their pool on Close without termination;
// only pool disposal terminates pooled units. Owned units are terminated on
// Close. Close must run on every exit path, including cancellation, so
// acquire sessions with defer:
//
//	sess, err := worker.NewSession(ctx, worker.SessionOptions{Pool: pool})
//	if err != nil { return err }
//	defer sess.Close()
type Session struct {
	unit      *Unit
	pool      *Pool
	privateID atomic.Uint64
	closeOnce sync.Once
}

// NewSession acquires a session.
func NewSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	if opts.Pool != nil {
		u, err := opts.Pool.GetWorker(ctx)
		if err != nil {
			return nil, err
		}
		return &Session{unit: u, pool: opts.Pool}, nil
	}
	if opts.Handler == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "session requires a pool or a handler")
	}
	return &Session{unit: NewUnit(0, opts.Handler)}, nil
}

// Unit returns the session's execution unit.
func (s *Session) Unit() *Unit {
	return s.unit
}

// NextRequestID returns the next request id. Pooled sessions delegate to the
// pool's shared counter so ids stay unique across all sessions sharing it.
func (s *Session) NextRequestID() uint64 {
	if s.pool != nil {
		return s.pool.NextRequestID()
	}
	return s.privateID.Add(1)
}

// Close releases the session. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.pool == nil {
			s.unit.Terminate()
		}
	})
}
