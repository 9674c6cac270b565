package inference

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool_SerializesSingleItem(t *testing.T) {
	p := newPool([]int{7})

	var inFlight, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			it, err := p.acquire(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			defer p.release(it)

			n := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&peak), "a pool of one must never lend twice")
	assert.Equal(t, []int{7}, p.drain())
}

func TestPool_AcquireHonoursContext(t *testing.T) {
	p := newPool([]string{"only"})

	it, err := p.acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = p.acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.release(it)
	assert.Len(t, p.drain(), 1)
}
