package pool_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/comet/pkg/pool"
)

func TestTypedPoolReuse(t *testing.T) {
	p := pool.New(
		func() *[]int { s := make([]int, 0, 8); return &s },
		func(s *[]int) { *s = (*s)[:0] },
	)

	s := p.Get()
	*s = append(*s, 1, 2, 3)
	p.Put(s)

	got := p.Get()
	assert.Empty(t, *got)
	assert.GreaterOrEqual(t, p.Allocated(), int64(1))
}

func TestRowBufferClearedOnPut(t *testing.T) {
	row := pool.GetRowBuffer()
	row = append(row, "secret", "values")
	pool.PutRowBuffer(row)

	next := pool.GetRowBuffer()
	assert.Empty(t, next)
	// Stale values must not survive in the backing array.
	full := next[:cap(next)]
	for _, v := range full {
		assert.Empty(t, v)
	}
}

func TestByteBufferRoundTrip(t *testing.T) {
	buf := pool.GetByteBuffer()
	buf = append(buf, "field data"...)
	pool.PutByteBuffer(buf)

	next := pool.GetByteBuffer()
	assert.Empty(t, next)
}

func TestPoolConcurrentAccess(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				row := pool.GetRowBuffer()
				row = append(row, "x")
				pool.PutRowBuffer(row)
			}
		}()
	}
	wg.Wait()
}
