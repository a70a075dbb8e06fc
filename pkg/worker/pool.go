package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/comet/pkg/errors"
	"github.com/ajitpratap0/comet/pkg/logger"
)

// Pool owns a bounded set of execution units with round-robin load
// balancing. Creation is keyed by slot: a slot holds its in-flight creation
// from the moment it is claimed, so concurrent acquisitions see pending
// creations as occupying capacity and can never over-provision the pool.
//
// The slot array, cursor, and request-id counter are the only mutable shared
// state; all of it is guarded by a single mutex owned by the pool.
type Pool struct {
	handler Handler

	mu         sync.Mutex
	slots      []*slot
	cursor     int
	terminated bool

	nextID atomic.Uint64
}

// slot holds one unit, or its in-flight creation. ready is closed once unit
// is set; every caller routed to this slot awaits the same creation.
type slot struct {
	ready chan struct{}
	unit  *Unit
}

// NewPool creates a pool bounded at maxWorkers units. Units spawn lazily on
// first acquisition. A bound below 1 is a configuration error.
func NewPool(maxWorkers int, handler Handler) (*Pool, error) {
	if maxWorkers < 1 {
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"maxWorkers must be at least 1, got %d", maxWorkers)
	}
	if handler == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "pool requires a handler")
	}
	return &Pool{
		handler: handler,
		slots:   make([]*slot, maxWorkers),
	}, nil
}

// GetWorker returns a unit, spawning one if capacity allows, otherwise
// picking the next unit round-robin. When the cursor lands on a slot whose
// creation is still in flight, the caller awaits that same creation rather
// than spawning another unit.
func (p *Pool) GetWorker(ctx context.Context) (*Unit, error) {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return nil, errors.New(errors.ErrorTypeTransport, "worker pool terminated")
	}

	for i, s := range p.slots {
		if s == nil {
			s = &slot{ready: make(chan struct{})}
			p.slots[i] = s
			p.mu.Unlock()
			go p.fill(i, s)
			return p.await(ctx, s)
		}
	}

	s := p.slots[p.cursor]
	p.cursor = (p.cursor + 1) % len(p.slots)
	p.mu.Unlock()
	return p.await(ctx, s)
}

func (p *Pool) fill(id int, s *slot) {
	s.unit = NewUnit(id, p.handler)
	close(s.ready)
	logger.Debug("pool spawned worker unit", zap.Int("worker_id", id))
}

func (p *Pool) await(ctx context.Context, s *slot) (*Unit, error) {
	select {
	case <-s.ready:
		return s.unit, nil
	case <-ctx.Done():
		return nil, errors.FromContext(ctx.Err())
	}
}

// IsFull reports whether every slot is claimed. Pending creations count, so
// saturation is detected before any unit finishes starting.
func (p *Pool) IsFull() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.slots {
		if s == nil {
			return false
		}
	}
	return true
}

// ActiveCount returns the number of units that have finished starting.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.slots {
		if s == nil {
			continue
		}
		select {
		case <-s.ready:
			n++
		default:
		}
	}
	return n
}

// PendingCount returns the number of creations still in flight.
func (p *Pool) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.slots {
		if s == nil {
			continue
		}
		select {
		case <-s.ready:
		default:
			n++
		}
	}
	return n
}

// MaxWorkers returns the pool's capacity.
func (p *Pool) MaxWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// NextRequestID returns a request id unique across every session sharing
// this pool.
func (p *Pool) NextRequestID() uint64 {
	return p.nextID.Add(1)
}

// Terminate stops every unit and clears all pool state. From the caller's
// perspective the pool empties atomically: the state is cleared under the
// lock, then units (including any still starting) are stopped.
func (p *Pool) Terminate() {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return
	}
	p.terminated = true
	slots := p.slots
	p.slots = make([]*slot, len(slots))
	p.cursor = 0
	p.mu.Unlock()

	for _, s := range slots {
		if s == nil {
			continue
		}
		<-s.ready
		s.unit.Terminate()
	}
	logger.Debug("worker pool terminated", zap.Int("max_workers", len(slots)))
}
