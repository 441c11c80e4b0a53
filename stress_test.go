package bufpool

import (
	"context"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

// TestStressConcurrentAllocateRelease drives many producer/consumer
// goroutines against a single Manager and checks that every buffer handed
// out is eventually accounted for, with no goroutines leaked once the
// workload finishes. Scaled down from a full stress run so it stays fast
// enough to run on every CI invocation.
func TestStressConcurrentAllocateRelease(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in -short mode")
	}

	opts := goleak.IgnoreCurrent()

	m, err := NewWithConfig(&Config{
		BaseBufferSize: 64,
		NumberOfPools:  2,
		GrowthFactor:   2,
		SlicesPerPool:  4,
		HeapFraction:   0.5,
		HostEnvironment: testHostEnvironment{
			processors: 4,
			heapBytes:  1 << 22,
		},
	})
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}

	const goroutines = 16
	const opsPerGoroutine = 20000

	var allocated, released int64

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < goroutines; i++ {
		g.Go(func() error {
			for j := 0; j < opsPerGoroutine; j++ {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				size := 1 + (j % 256)
				buf, err := m.Allocate(size)
				if err != nil {
					return err
				}
				atomic.AddInt64(&allocated, 1)

				if _, err := buf.Put(make([]byte, buf.Remaining())); err != nil {
					return err
				}
				m.Release(buf)
				atomic.AddInt64(&released, 1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("stress workload failed: %v", err)
	}

	if allocated != released {
		t.Fatalf("allocated %d buffers but released %d", allocated, released)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	goleak.VerifyNone(t, opts)
}
