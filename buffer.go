// buffer.go: share-counted pooled byte buffer and its derived views
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package bufpool

import (
	"sync/atomic"
)

// PooledBuffer wraps a fixed-size byte region handed out by a Pool, or a
// derived view (Slice/Duplicate/AsReadOnly/Split) over one. All views
// sharing a single allocation share one shareCount: the allocation returns
// to its owning PoolSlice only when the last view is Disposed.
//
// shareCount models the number of live holders of the underlying
// allocation. A freshly allocated buffer starts with shareCount == 1 (the
// caller is the sole holder). Slice/Duplicate/AsReadOnly/Split each add a
// holder (increment); Dispose removes a holder (decrement) and performs the
// actual return-to-pool exactly once, on whichever Dispose call observes
// the count drop to zero. This is the standard atomic refcounting
// discipline and satisfies the invariant that the source returns to its
// slice exactly once.
type PooledBuffer struct {
	owningSlice *PoolSlice    // non-nil only for the pool-owned origin
	source      *PooledBuffer // non-nil for a derived view; points at the origin
	shareCount  *atomic.Int32 // shared by the origin and all of its views

	underlying     []byte // current backing region this view addresses
	origUnderlying []byte // saved by Split on the parent, for restoration on return

	free       atomic.Bool
	readOnly   bool
	disposedAt string // Dispose call site, recorded only when disposal-site tracking is enabled

	position int
	limit    int
}

// newOriginBuffer wraps a freshly allocated region as a pool-owned origin.
// owningSlice may be nil for overflow allocations that bypass the ring
// (Pool.Allocate falls back to this when every slice is exhausted); such
// buffers are simply left for GC on Dispose since there is no slice to
// offer them back to.
func newOriginBuffer(underlying []byte, owningSlice *PoolSlice) *PooledBuffer {
	return &PooledBuffer{
		owningSlice: owningSlice,
		shareCount:  new(atomic.Int32),
		underlying:  underlying,
		limit:       len(underlying),
	}
}

// resetForReuse restores a recycled origin buffer (coming back out of a
// PoolSlice via Poll) to its initial handed-out state: full cursor range,
// fresh share count, no outstanding views.
func (b *PooledBuffer) resetForReuse() *PooledBuffer {
	b.free.Store(false)
	b.readOnly = false
	b.position = 0
	b.limit = len(b.underlying)
	b.source = nil
	b.origUnderlying = nil
	b.shareCount.Store(1)
	return b
}

// Capacity returns the size of the region this view addresses.
func (b *PooledBuffer) Capacity() int { return len(b.underlying) }

// Limit returns the current limit (exclusive upper bound of valid data).
func (b *PooledBuffer) Limit() int { return b.limit }

// SetLimit sets the limit. Panics if n is out of [0, Capacity()] or if the
// buffer was already disposed.
func (b *PooledBuffer) SetLimit(n int) {
	b.checkDisposed("SetLimit")
	if n < 0 || n > b.Capacity() {
		panic(&ProgrammingError{Op: "SetLimit: out of range"})
	}
	b.limit = n
	if b.position > n {
		b.position = n
	}
}

// Position returns the current cursor position.
func (b *PooledBuffer) Position() int { return b.position }

// SetPosition sets the cursor position. Panics if n is out of [0, Limit()].
func (b *PooledBuffer) SetPosition(n int) {
	b.checkDisposed("SetPosition")
	if n < 0 || n > b.limit {
		panic(&ProgrammingError{Op: "SetPosition: out of range"})
	}
	b.position = n
}

// Remaining returns Limit() - Position().
func (b *PooledBuffer) Remaining() int { return b.limit - b.position }

// ReadOnly reports whether mutating operations are rejected.
func (b *PooledBuffer) ReadOnly() bool { return b.readOnly }

// Bytes returns the valid window [position, limit) of the backing region.
// The returned slice aliases the buffer's storage; callers must not retain
// it past Dispose.
func (b *PooledBuffer) Bytes() []byte {
	b.checkDisposed("Bytes")
	return b.underlying[b.position:b.limit]
}

// Clear resets position to 0 and limit to capacity.
func (b *PooledBuffer) Clear() {
	b.checkDisposed("Clear")
	b.position = 0
	b.limit = b.Capacity()
}

// Put copies src into the buffer starting at the current position and
// advances position by len(src). Returns the number of bytes written and an
// error if src would not fit before limit or the buffer is read-only.
func (b *PooledBuffer) Put(src []byte) (int, error) {
	b.checkDisposed("Put")
	if b.readOnly {
		return 0, &ProgrammingError{Op: "Put: read-only buffer"}
	}
	if len(src) > b.Remaining() {
		return 0, &ProgrammingError{Op: "Put: would exceed limit"}
	}
	n := copy(b.underlying[b.position:b.limit], src)
	b.position += n
	return n, nil
}

// PutAll is equivalent to calling Put once per source slice, in order,
// stopping at the first error.
func (b *PooledBuffer) PutAll(srcs ...[]byte) (int, error) {
	total := 0
	for _, s := range srcs {
		n, err := b.Put(s)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Slice returns a new view over [Position(), Limit()) of the receiver, with
// its own position (0) and limit (Remaining()). It shares the share count
// with the receiver, so the parent allocation is not returned to its slice
// until every view, including this one, is Disposed.
func (b *PooledBuffer) Slice() *PooledBuffer {
	b.checkDisposed("Slice")
	return b.deriveView(b.underlying[b.position:b.limit], 0, b.limit-b.position, b.readOnly)
}

// Duplicate returns an independent cursor over the same full backing region
// as the receiver, starting with the same position and limit.
func (b *PooledBuffer) Duplicate() *PooledBuffer {
	b.checkDisposed("Duplicate")
	v := b.deriveView(b.underlying, b.position, b.limit, b.readOnly)
	return v
}

// AsReadOnly returns a duplicate view that rejects Put/PutAll.
func (b *PooledBuffer) AsReadOnly() *PooledBuffer {
	b.checkDisposed("AsReadOnly")
	return b.deriveView(b.underlying, b.position, b.limit, true)
}

// deriveView builds a child view sharing the receiver's share count and
// pointing its source at the origin of the family (the receiver itself, if
// it is the origin, else the receiver's own source).
func (b *PooledBuffer) deriveView(underlying []byte, position, limit int, readOnly bool) *PooledBuffer {
	origin := b
	if b.source != nil {
		origin = b.source
	}
	origin.shareCount.Add(1)
	return &PooledBuffer{
		source:     origin,
		shareCount: origin.shareCount,
		underlying: underlying,
		position:   position,
		limit:      limit,
		readOnly:   readOnly,
	}
}

// Split divides the receiver at byte offset at: the receiver is mutated in
// place to address [0, at) of its current backing region, and a new buffer
// addressing [at, Capacity()) is returned. Both share the family's share
// count. The receiver's original backing region is saved so that, when the
// family's last view is Disposed, the true pool-owned origin can be
// restored to its full size before being offered back to its slice.
//
// Position/limit on both halves are clamped against at, matching standard
// byte-buffer split semantics.
func (b *PooledBuffer) Split(at int) *PooledBuffer {
	b.checkDisposed("Split")
	if at < 0 || at > b.Capacity() {
		panic(&ProgrammingError{Op: "Split: offset out of range"})
	}

	origin := b
	if b.source != nil {
		origin = b.source
	}
	origin.shareCount.Add(1)

	full := b.underlying
	right := &PooledBuffer{
		source:     origin,
		shareCount: origin.shareCount,
		underlying: full[at:],
		readOnly:   b.readOnly,
	}
	if b.position > at {
		right.position = b.position - at
	}
	if b.limit > at {
		right.limit = b.limit - at
	} else {
		right.limit = 0
	}

	// Only the true origin carries origUnderlying; it is what gets restored
	// on return to the slice.
	if b == origin && b.origUnderlying == nil {
		b.origUnderlying = full
	}
	b.underlying = full[:at]
	if b.limit > at {
		b.limit = at
	}
	if b.position > at {
		b.position = at
	}

	return right
}

// checkDisposed panics with a ProgrammingError if the buffer has already
// been returned. Called at the top of every mutating/view-producing
// operation.
func (b *PooledBuffer) checkDisposed(op string) {
	if b.free.Load() {
		panic(&ProgrammingError{Op: "use of disposed buffer: " + op, Site: b.disposedAt})
	}
}

func (b *PooledBuffer) tracksSites() bool {
	origin := b
	if b.source != nil {
		origin = b.source
	}
	return origin.owningSlice != nil && origin.owningSlice.trackDisposalSites
}

// Dispose releases this view's hold on its family's allocation. It is
// idempotent: disposing an already-free buffer is a no-op. When this call
// is the one that drops the family's share count to zero, the true
// pool-owned origin is restored (if it was split) and offered back to its
// owning slice; if the slice refuses the offer (full, or there is no
// owning slice because the buffer came from an overflow allocation), the
// backing region is simply dropped for GC.
func (b *PooledBuffer) Dispose() {
	if !b.free.CompareAndSwap(false, true) {
		return // already disposed
	}
	if b.tracksSites() {
		b.disposedAt = captureSite(1)
	}
	if b.shareCount.Add(-1) != 0 {
		return // a sibling still holds the family's allocation
	}
	b.finalizeReturn()
}

func (b *PooledBuffer) finalizeReturn() {
	origin := b
	if b.source != nil {
		origin = b.source
	}

	origin.free.Store(true) // guards stray use if a caller retained the origin reference directly

	if origin.origUnderlying != nil {
		origin.underlying = origin.origUnderlying
		origin.origUnderlying = nil
	}
	origin.position = 0
	origin.limit = len(origin.underlying)

	if origin.owningSlice == nil {
		return // overflow allocation: nothing to return to, let GC reclaim
	}
	if !origin.owningSlice.Offer(origin) {
		origin.underlying = nil // ring refused under pressure: drop to GC
	}
}
