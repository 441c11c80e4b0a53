// pool.go: one size class, striped across independent ring slices
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package bufpool

import "math/rand/v2"

// Pool owns every PoolSlice for one buffer size class. Allocate picks a
// slice uniformly at random rather than by goroutine affinity, so that no
// single goroutine's habits skew which slices empty out first.
type Pool struct {
	bufferSize int
	slices     []*PoolSlice
}

func newPool(bufferSize, slicesPerPool, maxPoolSizePerSlice int, skipWaitLoop, trackDisposalSites bool, probe Probe) (*Pool, error) {
	if slicesPerPool <= 0 {
		return nil, newConfigError("slicesPerPool", slicesPerPool, "must be positive")
	}
	p := &Pool{
		bufferSize: bufferSize,
		slices:     make([]*PoolSlice, slicesPerPool),
	}
	for i := range p.slices {
		s, err := newPoolSlice(bufferSize, maxPoolSizePerSlice, skipWaitLoop, trackDisposalSites, probe)
		if err != nil {
			return nil, err
		}
		p.slices[i] = s
	}
	return p, nil
}

// BufferSize returns the fixed size of buffers this pool hands out.
func (p *Pool) BufferSize() int { return p.bufferSize }

// Slices returns a snapshot copy of the pool's slices, for
// inspection/monitoring. Callers must not mutate the result.
func (p *Pool) Slices() []*PoolSlice {
	out := make([]*PoolSlice, len(p.slices))
	copy(out, p.slices)
	return out
}

// ElementsCount returns the total number of buffers currently resident
// across all of the pool's slices.
func (p *Pool) ElementsCount() int {
	total := 0
	for _, s := range p.slices {
		total += s.Count()
	}
	return total
}

// Size returns the pool's total resident byte footprint.
func (p *Pool) Size() int { return p.ElementsCount() * p.bufferSize }

// Allocate returns a buffer from one of the pool's slices, starting at one
// chosen at random. If that slice is empty, the remaining slices are tried
// in order (wrapping around); only when every slice is exhausted does it
// fall back to a direct heap allocation outside any ring — the buffer
// still behaves normally but simply has no slice to return to on Dispose.
func (p *Pool) Allocate() *PooledBuffer {
	n := len(p.slices)
	start := rand.IntN(n)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if buf, ok := p.slices[idx].Poll(); ok {
			return buf
		}
	}
	reportDirectAllocation(p.bufferSize)
	buf := newOriginBuffer(make([]byte, p.bufferSize), nil)
	buf.shareCount.Store(1)
	return buf
}
