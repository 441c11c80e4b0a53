// Package bufpool provides a tiered, lock-free pool of reusable byte
// buffers for high-throughput network I/O.
//
// Buffers are grouped into size classes (4KiB, 16KiB, 64KiB by default,
// each a power-of-two multiple of the one before it). Each size class is
// striped across several independent lock-free ring queues so that
// concurrent allocation and release never contend on a single shared
// index. Requests larger than the biggest configured class are served by
// a composite buffer assembled from multiple pool segments.
//
// # Quick Start
//
//	m, err := bufpool.NewWithDefaults()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer m.Close()
//
//	buf, err := m.Allocate(1024)
//	if err != nil {
//		log.Fatal(err)
//	}
//	buf.Put([]byte("hello"))
//	defer m.Release(buf)
//
// # Constructor Functions
//
//	// Size-class ladder only, safe defaults elsewhere.
//	m, err := bufpool.New(4096, 3, 2)
//
//	// Production defaults: 4KiB/16KiB/64KiB classes, one slice per CPU.
//	m, err := bufpool.NewWithDefaults()
//
//	// Disposal-site tracking enabled, for debugging use-after-dispose bugs.
//	m, err := bufpool.NewDebug()
//
//	// Full control over every tunable.
//	m, err := bufpool.NewWithConfig(&bufpool.Config{
//		BaseBufferSizeStr: "4KB",
//		NumberOfPools:     3,
//		GrowthFactor:      2,
//		SlicesPerPool:     8,
//		HeapFraction:      0.10,
//	})
//
// # Sharing and Disposal
//
// A buffer returned by Allocate is owned by the caller until Released
// (equivalently, Disposed). Slice, Duplicate, AsReadOnly, and Split each
// produce an independent view over the same underlying allocation; the
// allocation returns to its pool only once every view, including the
// original, has been disposed:
//
//	buf, _ := m.Allocate(64)
//	view := buf.(*bufpool.PooledBuffer).Duplicate()
//	buf.Dispose()  // allocation not yet returned: view still holds it
//	view.Dispose() // now it returns to its slice
//
// # Oversize Requests
//
// Requests above the largest configured size class are served by a
// CompositeBuffer spanning multiple segments. Reallocate transparently
// grows or shrinks across the PooledBuffer/CompositeBuffer boundary as
// needed.
//
// # Monitoring
//
// Allocation and release events are reported through a Probe; the default
// implementation publishes Prometheus counters and gauges under the
// "bufpool" namespace. Stats() returns an in-process snapshot for ad-hoc
// inspection without a metrics scrape.
//
// # Thread Safety
//
// Manager, Pool and PoolSlice are safe for concurrent use by multiple
// goroutines. An individual PooledBuffer or CompositeBuffer is not: its
// position and limit are plain fields, so one buffer (or one view of it)
// is used by one goroutine at a time. The allocator never blocks: ring exhaustion degrades to a direct
// same-class heap allocation rather than waiting for a buffer to free up.
package bufpool
