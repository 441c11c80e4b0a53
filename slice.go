// slice.go: lock-free bounded MPMC ring of fixed-size buffers
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package bufpool

import (
	"runtime"
	"sync/atomic"
)

// STRIDE is the step, in virtual index, between logically adjacent ring
// positions. Virtual positions that differ by one land on physically
// distant array cells (see physicalSlot); the sequence of positions next()
// walks, however, maps back onto physical cells 0, 1, 2, ... in order.
// Separation of neighbouring slots onto different cache lines comes from
// the per-slot padding in PaddedAtomicSlotArray.
const STRIDE = 16

// wrapBit (bit 30) toggles every time a PoolSlice's index finishes a full
// sweep of one backing array; it also selects which of the two arrays
// (arrayA when clear, arrayB when set) that index currently addresses.
const wrapBit uint32 = 1 << 30

// indexMask isolates the virtual-index bits (0..29) from the wrap bit.
const indexMask uint32 = wrapBit - 1

func unmask(i uint32) int  { return int(i & indexMask) }
func wrapOf(i uint32) uint32 { return i & wrapBit }

// PoolSlice is one independent lock-free bounded ring holding buffers of a
// single fixed size. Pool stripes allocation requests across several of
// these to keep contention on any one ring low.
//
// The ring is laid out as two parallel slot arrays plus a pair of 32-bit
// atomic indices (pollIdx, offerIdx) that each pack a virtual position
// (bits 0..29) and a wrap bit (bit 30). A single CAS on an index both
// advances position and, on wraparound, flips which array it names —
// distinguishing an empty ring (pollIdx == offerIdx) from a full one
// (pollIdx XOR offerIdx == wrapBit) without a third atomic.
type PoolSlice struct {
	bufferSize  int
	maxPoolSize int // rounded up to a multiple of STRIDE, always < 2^30

	arrayA *PaddedAtomicSlotArray
	arrayB *PaddedAtomicSlotArray

	pollIdx  PaddedAtomicCounter
	offerIdx PaddedAtomicCounter

	// polled/offered are auxiliary monotonic counters used for Count().
	// The virtual index stored in pollIdx/offerIdx is itself a permuted
	// (strided) position, not a plain step counter, so deriving an element
	// count from raw index arithmetic would require inverting that
	// permutation; these counters give an exact count directly instead.
	polled  atomic.Int64
	offered atomic.Int64

	skipWaitLoop       bool
	trackDisposalSites bool
	probe              Probe
}

// roundUpToStride rounds n up to the nearest positive multiple of STRIDE.
func roundUpToStride(n int) int {
	if n <= 0 {
		return STRIDE
	}
	return ((n + STRIDE - 1) / STRIDE) * STRIDE
}

// newPoolSlice builds a ring sized for maxPoolSize buffers of bufferSize
// bytes each (maxPoolSize is rounded up to a multiple of STRIDE), with
// arrayA pre-populated so the ring starts full.
func newPoolSlice(bufferSize, maxPoolSize int, skipWaitLoop, trackDisposalSites bool, probe Probe) (*PoolSlice, error) {
	if bufferSize <= 0 {
		return nil, newConfigError("bufferSize", bufferSize, "must be positive")
	}
	if maxPoolSize <= 0 {
		return nil, newConfigError("maxPoolSize", maxPoolSize, "must be positive")
	}
	rounded := roundUpToStride(maxPoolSize)
	if rounded >= 1<<30 {
		return nil, newConfigError("maxPoolSize", rounded, "slice capacity must be < 2^30")
	}
	if probe == nil {
		probe = noopProbe{}
	}

	s := &PoolSlice{
		bufferSize:         bufferSize,
		maxPoolSize:        rounded,
		arrayA:             NewPaddedAtomicSlotArray(rounded),
		arrayB:             NewPaddedAtomicSlotArray(rounded),
		skipWaitLoop:       skipWaitLoop,
		trackDisposalSites: trackDisposalSites,
		probe:              probe,
	}
	s.offerIdx.Store(wrapBit) // pollIdx starts at 0: ring begins "full" on arrayA

	for phys := 0; phys < rounded; phys++ {
		buf := newOriginBuffer(make([]byte, bufferSize), s)
		buf.free.Store(true)
		s.arrayA.Store(phys, buf)
	}

	return s, nil
}

// next advances a ring index by one logical position. It steps by STRIDE
// within the current array while that stays strictly inside bounds; once a
// STRIDE-step would reach or overshoot maxPoolSize, it continues from the
// residual offset left over from that overshoot (off), walking the
// STRIDE-1 intermediate "rows" (virtual positions 1, 2, 3, ... up to
// STRIDE-1, each itself stepped by STRIDE) so that, combined with
// physicalSlot's transpose, every one of the maxPoolSize physical slots is
// visited exactly once per full sweep of an array. Only once off itself
// reaches STRIDE (the last row has also been fully walked) does the index
// wrap: flip the wrap bit and reset the virtual position to 0, switching to
// the other array.
func (s *PoolSlice) next(i uint32) uint32 {
	k := unmask(i)
	if k+STRIDE < s.maxPoolSize {
		return i + STRIDE
	}
	off := k - s.maxPoolSize + STRIDE + 1
	if off == STRIDE {
		return wrapBit ^ (i & wrapBit)
	}
	return uint32(off) | (i & wrapBit)
}

// physicalSlot maps a ring index's virtual position to the physical cell
// in whichever array it addresses, per the slice's striding scheme: a
// logical position p maps to p/STRIDE + (p%STRIDE)*(maxPoolSize/STRIDE).
func (s *PoolSlice) physicalSlot(i uint32) int {
	p := unmask(i)
	groups := s.maxPoolSize / STRIDE
	return p/STRIDE + (p%STRIDE)*groups
}

func (s *PoolSlice) arrayFor(i uint32) *PaddedAtomicSlotArray {
	if wrapOf(i) == 0 {
		return s.arrayA
	}
	return s.arrayB
}

// Poll removes and returns one buffer from the ring, or (nil, false) if it
// was observed empty.
func (s *PoolSlice) Poll() (*PooledBuffer, bool) {
	for {
		r := s.pollIdx.Load()
		w := s.offerIdx.Load()
		if r == w {
			return nil, false // empty
		}
		if !s.pollIdx.CompareAndSwap(r, s.next(r)) {
			continue
		}

		arr := s.arrayFor(r)
		slot := s.physicalSlot(r)
		for {
			buf := arr.Swap(slot, nil)
			if buf != nil {
				s.polled.Add(1)
				buf.resetForReuse()
				s.probe.BufferAllocated(s.bufferSize)
				return buf, true
			}
			// Index CAS committed but the matching Offer hasn't published
			// its slot yet. Default behaviour is to wait for it; the
			// SkipBufferWaitLoop toggle opts into failing fast instead.
			if s.skipWaitLoop {
				return nil, false
			}
			runtime.Gosched()
		}
	}
}

// Offer inserts b into the ring. It returns false immediately if b is not
// owned by this slice, or if the ring was observed full.
func (s *PoolSlice) Offer(b *PooledBuffer) bool {
	if b.owningSlice != s {
		return false
	}
	for {
		w := s.offerIdx.Load()
		r := s.pollIdx.Load()
		if (r ^ w) == wrapBit {
			return false // full
		}
		if !s.offerIdx.CompareAndSwap(w, s.next(w)) {
			continue
		}

		arr := s.arrayFor(w)
		slot := s.physicalSlot(w)
		for {
			if arr.CompareAndSwap(slot, nil, b) {
				s.offered.Add(1)
				s.probe.BufferReleased(s.bufferSize)
				return true
			}
			// Mirror image of the Poll-side wait: a lagging consumer has
			// not yet cleared this slot from a previous cycle.
			if s.skipWaitLoop {
				return false
			}
			runtime.Gosched()
		}
	}
}

// Count returns an approximate element count: consistent with a single
// snapshot of the slice's bookkeeping, but not linearised against
// concurrent Poll/Offer calls.
func (s *PoolSlice) Count() int {
	return s.maxPoolSize + int(s.offered.Load()) - int(s.polled.Load())
}

// ElementsCount is an alias for Count, matching the naming used elsewhere
// in the package's pool/manager surface.
func (s *PoolSlice) ElementsCount() int { return s.Count() }

// Size returns the slice's resident byte footprint: Count() * bufferSize.
func (s *PoolSlice) Size() int { return s.Count() * s.bufferSize }

// BufferSize returns the fixed size of buffers held by this slice.
func (s *PoolSlice) BufferSize() int { return s.bufferSize }

// Clear drains the ring, dropping every buffer it holds for GC. It is not
// called by Manager (Close does not drain the rings) or on the hot
// allocate/release path.
func (s *PoolSlice) Clear() {
	for {
		buf, ok := s.Poll()
		if !ok {
			return
		}
		buf.owningSlice = nil // let Dispose (if ever called) skip the Offer
		buf.underlying = nil
	}
}
