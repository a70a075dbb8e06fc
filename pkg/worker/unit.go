// Package worker provides Comet's isolated concurrent execution units, the
// bounded pool that owns them, and the session handles callers borrow them
// through. A unit is a goroutine reachable only through channels: requests
// go in by copy or ownership transfer, correlated responses come back by
// request id. No memory is mutably shared across the boundary.
package worker

import (
	"context"
	stderrors "errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/comet/pkg/csv"
	"github.com/ajitpratap0/comet/pkg/errors"
	"github.com/ajitpratap0/comet/pkg/logger"
	"github.com/ajitpratap0/comet/pkg/metrics"
)

// RequestKind identifies the payload shape of a cross-boundary request.
type RequestKind string

const (
	// ParseString carries the whole input as a string payload.
	ParseString RequestKind = "parseString"
	// ParseBinary carries the whole input as a byte payload.
	ParseBinary RequestKind = "parseBinary"
	// ParseStream transfers ownership of a chunk channel and streams
	// results back on a dedicated event channel.
	ParseStream RequestKind = "parseStream"
)

// Request is the cross-boundary request envelope. Only serializable values
// travel here: cancellation contexts and pool handles are excluded by
// construction. Payload and Stream ownership passes to the unit.
type Request struct {
	ID             uint64
	Kind           RequestKind
	Text           string
	Payload        []byte
	Stream         <-chan []byte
	Options        csv.Options
	UseAccelerated bool
	// Events is the dedicated result channel for ParseStream requests. The
	// unit closes it after the terminal done or error event.
	Events chan<- Event
}

// EventKind classifies a stream-transfer result event.
type EventKind uint8

const (
	// EventRecord delivers one record.
	EventRecord EventKind = iota
	// EventDone terminates the stream successfully.
	EventDone
	// EventError terminates the stream with an error.
	EventError
)

// Event is one element of a stream-transfer response.
type Event struct {
	Kind    EventKind
	Record  csv.Record
	ErrKind string
	ErrMsg  string
}

// Response is the message-based response envelope, matched to its caller by
// ID. Errors travel as (kind, message) pairs and are reconstructed with
// errors.FromKind on the receiving side.
type Response struct {
	ID      uint64
	Records []csv.Record
	ErrKind string
	ErrMsg  string
}

// Handler executes one request inside a unit. For stream requests, emit
// delivers records incrementally; for message requests emit is nil and the
// handler returns the full batch.
type Handler func(ctx context.Context, req Request, emit func(csv.Record) error) ([]csv.Record, error)

// Unit is one isolated execution unit. All interaction goes through
// channels; multiple requests may be in flight concurrently on one unit.
type Unit struct {
	id       int
	handler  Handler
	requests chan Request
	aborts   chan uint64
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	waiters  map[uint64]chan Response
	inflight map[uint64]context.CancelFunc
	wg       sync.WaitGroup
}

// NewUnit spawns a unit running the given handler.
func NewUnit(id int, handler Handler) *Unit {
	u := &Unit{
		id:       id,
		handler:  handler,
		requests: make(chan Request),
		aborts:   make(chan uint64, 32),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		waiters:  make(map[uint64]chan Response),
		inflight: make(map[uint64]context.CancelFunc),
	}
	go u.run()
	metrics.ActiveWorkers.Inc()
	logger.Debug("worker unit started", zap.Int("worker_id", id))
	return u
}

// run is the unit's mailbox loop.
func (u *Unit) run() {
	for {
		select {
		case req := <-u.requests:
			// Each request gets its own context rooted in the unit, not
			// the caller: cancellation crosses the boundary as an abort
			// message, never as a shared context.
			hctx, cancel := context.WithCancel(context.Background())
			u.mu.Lock()
			u.inflight[req.ID] = cancel
			u.mu.Unlock()
			u.wg.Add(1)
			go u.handle(hctx, cancel, req)

		case id := <-u.aborts:
			u.mu.Lock()
			if cancel, ok := u.inflight[id]; ok {
				cancel()
			}
			u.mu.Unlock()

		case <-u.quit:
			u.mu.Lock()
			for _, cancel := range u.inflight {
				cancel()
			}
			u.mu.Unlock()
			u.wg.Wait()
			close(u.done)
			return
		}
	}
}

// handle executes one request and delivers its result.
func (u *Unit) handle(ctx context.Context, cancel context.CancelFunc, req Request) {
	defer u.wg.Done()
	defer cancel()
	defer func() {
		u.mu.Lock()
		delete(u.inflight, req.ID)
		u.mu.Unlock()
	}()

	if req.Kind == ParseStream {
		u.handleStream(ctx, req)
		return
	}

	records, err := u.handler(ctx, req, nil)
	resp := Response{ID: req.ID, Records: records}
	if err != nil {
		resp = Response{ID: req.ID, ErrKind: string(errors.TypeOf(err)), ErrMsg: errMessage(err)}
	}
	u.deliver(resp)
}

// handleStream executes a stream-transfer request, emitting records on the
// request's dedicated event channel and closing it after the terminal event.
func (u *Unit) handleStream(ctx context.Context, req Request) {
	defer close(req.Events)

	send := func(ev Event) bool {
		select {
		case req.Events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	emit := func(rec csv.Record) error {
		if !send(Event{Kind: EventRecord, Record: rec}) {
			return errors.FromContext(ctx.Err())
		}
		return nil
	}

	if _, err := u.handler(ctx, req, emit); err != nil {
		send(Event{Kind: EventError, ErrKind: string(errors.TypeOf(err)), ErrMsg: errMessage(err)})
		return
	}
	send(Event{Kind: EventDone})
}

// deliver routes a response to the waiter registered under its id.
func (u *Unit) deliver(resp Response) {
	u.mu.Lock()
	ch, ok := u.waiters[resp.ID]
	if ok {
		delete(u.waiters, resp.ID)
	}
	u.mu.Unlock()
	if ok {
		ch <- resp // buffered; never blocks
	}
}

// Call sends a message-based request and waits for its correlated response.
// If the caller's context ends first, the unit is told to abort the in-flight
// request and a cancellation error (timeout-distinguishable) is returned.
func (u *Unit) Call(ctx context.Context, req Request) ([]csv.Record, error) {
	ch := make(chan Response, 1)
	u.mu.Lock()
	u.waiters[req.ID] = ch
	u.mu.Unlock()
	defer func() {
		u.mu.Lock()
		delete(u.waiters, req.ID)
		u.mu.Unlock()
	}()

	select {
	case u.requests <- req:
	case <-ctx.Done():
		return nil, errors.FromContext(ctx.Err())
	case <-u.quit:
		return nil, errors.New(errors.ErrorTypeTransport, "worker unit terminated")
	}

	select {
	case resp := <-ch:
		if resp.ErrKind != "" {
			return nil, errors.FromKind(resp.ErrKind, resp.ErrMsg)
		}
		return resp.Records, nil
	case <-ctx.Done():
		u.Abort(req.ID)
		return nil, errors.FromContext(ctx.Err())
	case <-u.quit:
		return nil, errors.New(errors.ErrorTypeTransport, "worker unit terminated")
	}
}

// CallStream sends a stream-transfer request. Results arrive on req.Events;
// the caller owns reading it to the terminal event or aborting via Abort.
func (u *Unit) CallStream(ctx context.Context, req Request) error {
	if req.Events == nil {
		return errors.New(errors.ErrorTypeInternal, "stream request requires an event channel")
	}
	select {
	case u.requests <- req:
		return nil
	case <-ctx.Done():
		return errors.FromContext(ctx.Err())
	case <-u.quit:
		return errors.New(errors.ErrorTypeTransport, "worker unit terminated")
	}
}

// Abort tells the unit to cancel the in-flight request with the given id.
func (u *Unit) Abort(id uint64) {
	select {
	case u.aborts <- id:
	case <-u.quit:
	}
}

// Terminate stops the unit, cancelling all in-flight requests, and waits for
// its goroutines to exit. Safe to call more than once.
func (u *Unit) Terminate() {
	u.stopOnce.Do(func() {
		close(u.quit)
		metrics.ActiveWorkers.Dec()
		logger.Debug("worker unit terminated", zap.Int("worker_id", u.id))
	})
	<-u.done
}

// errMessage strips the type prefix when the error is already structured,
// so the kind does not get doubled up on reconstruction.
func errMessage(err error) string {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
