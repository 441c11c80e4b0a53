// manager.go: public API - tiered lock-free buffer pool allocator
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package bufpool

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// newEmptyBuffer builds a fresh zero-length buffer for Allocate(0) and
// friends. Each call returns an independent buffer: sharing one singleton
// across calls would mean Dispose on one caller's empty buffer flips the
// free bit for every other concurrent holder too, and a subsequent
// checkDisposed would panic on a buffer the caller never released itself.
// It is never pooled: disposing it is always a no-op beyond marking it free
// (owningSlice is nil).
func newEmptyBuffer() *PooledBuffer {
	b := newOriginBuffer(nil, nil)
	b.shareCount.Store(1)
	return b
}

// Manager is the façade over a tiered set of size classes: it validates
// configuration, builds the pool table, and dispatches Allocate/Reallocate/
// Release across whichever size class (or composite) a request needs.
//
// Basic usage example:
//
//	m, err := bufpool.NewWithDefaults()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer m.Close()
//
//	buf, err := m.Allocate(1000)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer m.Release(buf)
//	buf.Put([]byte("hello"))
type Manager struct {
	pools               []*Pool // ascending by bufferSize
	maxPooledBufferSize int

	assembler *CompositeAssembler
	sampler   *occupancySampler

	config Config

	closeOnce sync.Once
}

// New creates a Manager with the given base size, number of size classes,
// and growth factor, applying safe defaults for everything else. This is
// the recommended way to create a Manager when only the size-class ladder
// needs to be controlled.
//
// Example:
//
//	m, err := bufpool.New(4096, 3, 2)
func New(baseBufferSize, numberOfPools, growthFactor int) (*Manager, error) {
	return NewWithConfig(&Config{
		BaseBufferSize: baseBufferSize,
		NumberOfPools:  numberOfPools,
		GrowthFactor:   growthFactor,
	})
}

// NewWithDefaults creates a Manager using production defaults: a 4096-byte
// base size class, 3 size classes, growth factor 2 (so classes are 4KiB,
// 16KiB, 64KiB), one slice per available CPU, and a 10% heap fraction.
//
// Example:
//
//	m, err := bufpool.NewWithDefaults()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer m.Close()
func NewWithDefaults() (*Manager, error) {
	return NewWithConfig(&Config{})
}

// NewDebug creates a Manager tuned for development: disposal-site tracking
// is enabled (so use-after-dispose panics report where Dispose was called)
// at the cost of a captured stack frame per release.
//
// Example:
//
//	m, err := bufpool.NewDebug()
func NewDebug() (*Manager, error) {
	return NewWithConfig(&Config{TrackDisposalSites: true})
}

// NewWithConfig creates a Manager with full control over every tunable.
// Zero-valued fields in cfg fall back to package defaults. Returns a
// *ConfigError if any configured value is invalid.
//
// Example:
//
//	m, err := bufpool.NewWithConfig(&bufpool.Config{
//		BaseBufferSizeStr: "4KB",
//		NumberOfPools:     3,
//		GrowthFactor:      2,
//		SlicesPerPool:     8,
//		HeapFraction:      0.10,
//	})
func NewWithConfig(cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	resolved := *cfg

	baseSize, err := resolved.baseBufferSize()
	if err != nil {
		return nil, newConfigError("BaseBufferSizeStr", resolved.BaseBufferSizeStr, err.Error())
	}
	if baseSize <= 0 || !isPowerOfTwo(baseSize) {
		return nil, newConfigError("BaseBufferSize", baseSize, "must be a positive power of two")
	}

	numberOfPools := resolved.NumberOfPools
	if numberOfPools == 0 {
		numberOfPools = 3
	}
	if numberOfPools < 0 {
		return nil, newConfigError("NumberOfPools", numberOfPools, "must be >= 1")
	}

	growthFactor := resolved.growthFactor()
	if growthFactor < 0 {
		return nil, newConfigError("GrowthFactor", growthFactor, "must be >= 0")
	}
	if numberOfPools > 1 && (growthFactor <= 0 || !isPowerOfTwo(growthFactor)) {
		return nil, newConfigError("GrowthFactor", growthFactor, "must be a positive power of two when NumberOfPools > 1")
	}

	hostEnv := resolved.HostEnvironment
	if hostEnv == nil {
		hostEnv = DefaultHostEnvironment{}
	}

	slicesPerPool := resolved.SlicesPerPool
	if slicesPerPool < 0 {
		return nil, newConfigError("SlicesPerPool", slicesPerPool, "must be >= 1")
	}
	if slicesPerPool == 0 {
		slicesPerPool = hostEnv.AvailableProcessors()
		if slicesPerPool <= 0 {
			slicesPerPool = 1
		}
	}

	heapFraction := resolved.HeapFraction
	if heapFraction == 0 {
		heapFraction = 0.10
	}
	if heapFraction <= 0 || heapFraction >= 1 {
		return nil, newConfigError("HeapFraction", heapFraction, "must be in (0, 1)")
	}

	probe := resolved.Probe
	if probe == nil {
		probe = NewPrometheusProbe()
	}

	maxHeap := hostEnv.MaxHeapBytes()
	perPoolBudget := float64(maxHeap) * heapFraction / float64(numberOfPools)

	m := &Manager{config: resolved}

	bufferSize := baseSize
	for i := 0; i < numberOfPools; i++ {
		perSliceBudget := perPoolBudget / float64(slicesPerPool)
		slotsPerSlice := int(perSliceBudget) / bufferSize
		if slotsPerSlice <= 0 {
			slotsPerSlice = STRIDE
		}

		p, err := newPool(bufferSize, slicesPerPool, slotsPerSlice, resolved.SkipBufferWaitLoop, resolved.TrackDisposalSites, probe)
		if err != nil {
			return nil, fmt.Errorf("bufpool: building size class %d (bufferSize=%d): %w", i, bufferSize, err)
		}
		m.pools = append(m.pools, p)

		if i < numberOfPools-1 {
			bufferSize <<= uint(growthFactor)
		}
	}
	m.maxPooledBufferSize = m.pools[len(m.pools)-1].BufferSize()
	m.assembler = newCompositeAssembler(m)
	m.sampler = newOccupancySampler(m.pools, 5*time.Second)

	return m, nil
}

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

// poolFor returns the smallest size class whose bufferSize >= n. Callers
// must already know n <= maxPooledBufferSize.
func (m *Manager) poolFor(n int) *Pool {
	for _, p := range m.pools {
		if p.BufferSize() >= n {
			return p
		}
	}
	panic(&ProgrammingError{Op: "poolFor: no size class satisfies request within maxPooledBufferSize"})
}

// Allocate returns a buffer with capacity >= n and Limit() == n. Requests
// within the largest configured size class are served from that class's
// rings (falling back to a direct allocation if every slice is momentarily
// exhausted); larger requests are served by a composite spanning multiple
// segments.
func (m *Manager) Allocate(n int) (Buffer, error) {
	if n < 0 {
		return nil, newConfigError("n", n, "must be >= 0")
	}
	if n == 0 {
		return newEmptyBuffer(), nil
	}
	if n <= m.maxPooledBufferSize {
		buf := m.poolFor(n).Allocate()
		buf.SetLimit(n)
		return buf, nil
	}

	c := m.assembler.Build(n)
	c.SetLimit(n)
	return c, nil
}

// AllocateAtLeast is like Allocate but leaves Limit() at the chosen size
// class's full capacity (or the composite's full segment capacity)
// instead of clamping it to n, giving the caller any headroom the class
// provides.
func (m *Manager) AllocateAtLeast(n int) (Buffer, error) {
	if n < 0 {
		return nil, newConfigError("n", n, "must be >= 0")
	}
	if n == 0 {
		return newEmptyBuffer(), nil
	}
	if n <= m.maxPooledBufferSize {
		return m.poolFor(n).Allocate(), nil
	}
	return m.assembler.Build(n), nil
}

// Reallocate resizes old to newSize, preserving as much of its content as
// possible, and disposes old unless it was resized in place. newSize == 0
// disposes old and returns a fresh empty buffer.
func (m *Manager) Reallocate(old Buffer, newSize int) (Buffer, error) {
	if newSize < 0 {
		return nil, newConfigError("newSize", newSize, "must be >= 0")
	}
	if newSize == 0 {
		old.Dispose()
		return newEmptyBuffer(), nil
	}

	switch b := old.(type) {
	case *PooledBuffer:
		return m.reallocatePooled(b, newSize)
	case *CompositeBuffer:
		return m.reallocateComposite(b, newSize)
	default:
		return nil, errors.New("bufpool: Reallocate: unrecognised buffer type")
	}
}

func (m *Manager) reallocatePooled(b *PooledBuffer, newSize int) (Buffer, error) {
	sameClass := b.Capacity() == m.poolFor(min(newSize, m.maxPooledBufferSize)).BufferSize()

	if b.Capacity() >= newSize {
		if sameClass {
			b.SetLimit(newSize)
			return b, nil
		}
		nb, err := m.Allocate(newSize)
		if err != nil {
			return nil, err
		}
		copyPreserving(nb, b, newSize)
		b.Dispose()
		return nb, nil
	}

	if newSize <= m.maxPooledBufferSize {
		nb, err := m.Allocate(newSize)
		if err != nil {
			return nil, err
		}
		copyPreserving(nb, b, b.Capacity())
		b.Dispose()
		return nb, nil
	}

	// newSize exceeds the largest size class: wrap b into a new composite
	// and extend by the remainder.
	segments := []*PooledBuffer{b}
	c := newCompositeBuffer(segments, b.Capacity())
	m.assembler.Extend(c, newSize-b.Capacity())
	c.SetLimit(newSize)
	return c, nil
}

func (m *Manager) reallocateComposite(c *CompositeBuffer, newSize int) (Buffer, error) {
	if newSize <= c.Capacity() {
		keep := 0
		covered := 0
		for _, seg := range c.segments {
			covered += seg.Capacity()
			keep++
			if covered >= newSize {
				break
			}
		}
		c.Trim(keep)
		c.SetLimit(newSize)
		return c, nil
	}

	m.assembler.Extend(c, newSize-c.Capacity())
	c.SetLimit(newSize)
	return c, nil
}

// copyPreserving copies the first n bytes of src's backing region (at most
// its capacity) into dst starting at offset 0, then sets dst's position to
// src's old position, clamped to dst's limit. dst's limit is left as is.
func copyPreserving(dst, src Buffer, n int) {
	pos := src.Position()
	src.SetLimit(src.Capacity())
	src.SetPosition(0)
	data := src.Bytes()
	if len(data) > n {
		data = data[:n]
	}
	dst.Put(data)
	dst.SetPosition(min(pos, dst.Limit()))
}

// Release returns b to the pool it came from (or, for a buffer that
// bypassed every ring, simply drops it for GC). Equivalent to calling
// b.Dispose() directly; provided so callers can treat the Manager as the
// single entry and exit point for every buffer it hands out.
func (m *Manager) Release(b Buffer) {
	b.Dispose()
}

// WillAllocateDirect always returns false: this allocator never serves a
// request with a direct (off-heap, unpooled-class) allocation that the
// caller would need to treat specially — oversize requests are served by
// composites, and ring exhaustion degrades transparently to a same-class
// heap allocation.
func (m *Manager) WillAllocateDirect(n int) bool { return false }

// Wrap adapts an existing byte slice into the Buffer interface without
// copying it and without any pool involvement: Dispose on the result is a
// no-op beyond marking it free, since there is no owning slice to return
// it to.
func (m *Manager) Wrap(data []byte) Buffer {
	b := newOriginBuffer(data, nil)
	b.shareCount.Store(1)
	return b
}

// Pools returns a defensive snapshot of the Manager's size-class table, in
// ascending order of bufferSize. Callers must not mutate the result.
func (m *Manager) Pools() []*Pool {
	out := make([]*Pool, len(m.pools))
	copy(out, m.pools)
	return out
}

// MaxPooledBufferSize returns the capacity of the largest configured size
// class; requests above this are served by a composite.
func (m *Manager) MaxPooledBufferSize() int { return m.maxPooledBufferSize }

// Stats is a point-in-time snapshot of a Manager's pool table, useful for
// logging or ad-hoc inspection outside of the Prometheus metrics surface.
type Stats struct {
	PoolStats []PoolStats `json:"pools"`
}

// PoolStats summarizes one size class.
type PoolStats struct {
	BufferSize    int `json:"buffer_size"`
	ElementsCount int `json:"elements_count"`
	SizeBytes     int `json:"size_bytes"`
	SlicesPerPool int `json:"slices_per_pool"`
}

// Stats returns a snapshot of every size class's occupancy. Safe to call
// concurrently; each field is read from the pool's own atomic counters.
func (m *Manager) Stats() Stats {
	s := Stats{PoolStats: make([]PoolStats, len(m.pools))}
	for i, p := range m.pools {
		s.PoolStats[i] = PoolStats{
			BufferSize:    p.BufferSize(),
			ElementsCount: p.ElementsCount(),
			SizeBytes:     p.Size(),
			SlicesPerPool: len(p.Slices()),
		}
	}
	return s
}

// Close stops the Manager's background occupancy sampler. It does not
// drain or invalidate outstanding buffers; those remain usable and should
// still be Released by their holders. Safe to call more than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.sampler.Stop()
	})
	return nil
}

func (m *Manager) reportError(operation string, err error) {
	m.config.reportError(operation, err)
}
