package billing

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDelay(t *testing.T) {
	base, limit := 500*time.Millisecond, 3*time.Second
	assert.Equal(t, 500*time.Millisecond, backoffDelay(base, limit, 0))
	assert.Equal(t, 500*time.Millisecond, backoffDelay(base, limit, 1))
	assert.Equal(t, time.Second, backoffDelay(base, limit, 2))
	assert.Equal(t, 2*time.Second, backoffDelay(base, limit, 3))
	assert.Equal(t, limit, backoffDelay(base, limit, 4))
	assert.Equal(t, limit, backoffDelay(base, limit, 40))
}

func TestSleepCtx_Cancelado(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}

func TestLocalLeaser_ExclusionMutua(t *testing.T) {
	l := NewLocalLeaser()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), leaseKey("doc-1"))
			require.NoError(t, err)
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestLocalLeaser_ClavesIndependientes(t *testing.T) {
	l := NewLocalLeaser()
	r1, err := l.Acquire(context.Background(), leaseKey("a"))
	require.NoError(t, err)
	defer r1()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r2, err := l.Acquire(ctx, leaseKey("b"))
	require.NoError(t, err)
	r2()
}

func TestLocalLeaser_EsperaRespetaContexto(t *testing.T) {
	l := NewLocalLeaser()
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release() // idempotente
	r, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	r()
}
