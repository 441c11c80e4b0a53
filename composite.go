// composite.go: multi-segment logical buffer for oversize requests
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package bufpool

// Buffer is the common surface shared by PooledBuffer and CompositeBuffer,
// letting Manager callers treat a single pooled segment and a multi-segment
// composite interchangeably.
type Buffer interface {
	Capacity() int
	Limit() int
	SetLimit(int)
	Position() int
	SetPosition(int)
	Remaining() int
	ReadOnly() bool
	Bytes() []byte
	Clear()
	Put(src []byte) (int, error)
	PutAll(srcs ...[]byte) (int, error)
	Dispose()
}

// CompositeBuffer is an ordered list of pool-allocated segments whose
// logical size is the sum of their capacities. Used whenever a request
// exceeds the largest configured size class.
type CompositeBuffer struct {
	segments   []*PooledBuffer
	position   int
	limit      int
	appendable bool
}

// newCompositeBuffer wraps segments (already fully allocated, limit ==
// capacity on each) as one logical buffer with the given logical limit.
func newCompositeBuffer(segments []*PooledBuffer, limit int) *CompositeBuffer {
	return &CompositeBuffer{
		segments:   segments,
		limit:      limit,
		appendable: true,
	}
}

// Append adds a segment to the end of the composite, extending its
// capacity and logical limit by the segment's byte size. No-op guard: a
// frozen (non-appendable) composite panics rather than silently dropping
// the segment, since that would otherwise leak the caller's allocation.
func (c *CompositeBuffer) Append(segment *PooledBuffer) {
	if !c.appendable {
		panic(&ProgrammingError{Op: "Append: composite buffer is frozen"})
	}
	c.segments = append(c.segments, segment)
	c.limit += segment.Capacity()
}

// Appendable reports whether Append is currently permitted.
func (c *CompositeBuffer) Appendable() bool { return c.appendable }

// SetAppendable toggles whether further segments may be appended.
func (c *CompositeBuffer) SetAppendable(v bool) { c.appendable = v }

// Trim drops trailing segments so that the composite's capacity no longer
// exceeds newSegmentCount segments, disposing the dropped segments. Used
// when reallocate shrinks a composite below its current segment count.
func (c *CompositeBuffer) Trim(newSegmentCount int) {
	if newSegmentCount >= len(c.segments) {
		return
	}
	for _, seg := range c.segments[newSegmentCount:] {
		seg.Dispose()
	}
	c.segments = c.segments[:newSegmentCount]

	cap := 0
	for _, seg := range c.segments {
		cap += seg.Capacity()
	}
	if c.limit > cap {
		c.limit = cap
	}
	if c.position > c.limit {
		c.position = c.limit
	}
}

// Segments returns the composite's backing segments, in order.
func (c *CompositeBuffer) Segments() []*PooledBuffer { return c.segments }

// Capacity returns the sum of every segment's capacity.
func (c *CompositeBuffer) Capacity() int {
	total := 0
	for _, seg := range c.segments {
		total += seg.Capacity()
	}
	return total
}

func (c *CompositeBuffer) Limit() int { return c.limit }

func (c *CompositeBuffer) SetLimit(n int) {
	if n < 0 || n > c.Capacity() {
		panic(&ProgrammingError{Op: "SetLimit: out of range"})
	}
	c.limit = n
	if c.position > n {
		c.position = n
	}
}

func (c *CompositeBuffer) Position() int { return c.position }

func (c *CompositeBuffer) SetPosition(n int) {
	if n < 0 || n > c.limit {
		panic(&ProgrammingError{Op: "SetPosition: out of range"})
	}
	c.position = n
}

func (c *CompositeBuffer) Remaining() int { return c.limit - c.position }

func (c *CompositeBuffer) ReadOnly() bool { return false }

func (c *CompositeBuffer) Clear() {
	c.position = 0
	c.limit = c.Capacity()
}

// Bytes returns a freshly copied [position, limit) window spanning every
// segment it touches. Unlike PooledBuffer.Bytes, this cannot alias the
// composite's storage directly since the window may cross segment
// boundaries.
func (c *CompositeBuffer) Bytes() []byte {
	out := make([]byte, 0, c.Remaining())
	remainingStart := c.position
	remainingEnd := c.limit
	offset := 0
	for _, seg := range c.segments {
		segLen := seg.Capacity()
		segStart, segEnd := offset, offset+segLen
		offset = segEnd

		lo := max(segStart, remainingStart)
		hi := min(segEnd, remainingEnd)
		if lo >= hi {
			continue
		}
		out = append(out, seg.underlying[lo-segStart:hi-segStart]...)
	}
	return out
}

// Put writes src starting at the current position, advancing it, crossing
// segment boundaries as needed.
func (c *CompositeBuffer) Put(src []byte) (int, error) {
	if len(src) > c.Remaining() {
		return 0, &ProgrammingError{Op: "Put: would exceed limit"}
	}
	written := 0
	offset := 0
	for _, seg := range c.segments {
		segLen := seg.Capacity()
		segStart, segEnd := offset, offset+segLen
		offset = segEnd

		if c.position >= segEnd || written >= len(src) {
			continue
		}
		localPos := 0
		if c.position > segStart {
			localPos = c.position - segStart
		}
		n := copy(seg.underlying[localPos:segLen], src[written:])
		written += n
		c.position += n
	}
	return written, nil
}

// PutAll writes each source in turn, stopping at the first error.
func (c *CompositeBuffer) PutAll(srcs ...[]byte) (int, error) {
	total := 0
	for _, s := range srcs {
		n, err := c.Put(s)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Dispose releases every segment back to its owning slice.
func (c *CompositeBuffer) Dispose() {
	for _, seg := range c.segments {
		seg.Dispose()
	}
	c.segments = nil
}

// CompositeAssembler builds composite buffers out of a Manager's pool
// table for requests that exceed the largest configured size class.
type CompositeAssembler struct {
	m *Manager
}

func newCompositeAssembler(m *Manager) *CompositeAssembler {
	return &CompositeAssembler{m: m}
}

// Build assembles a composite whose capacity covers at least extraBytes: it
// greedily takes buffers from the largest size class while extraBytes is at
// least that class's size, then finishes with one buffer from the smallest
// class covering the remainder, so the capacity is rounded up to whole
// segments. The composite's limit is set to that full capacity.
func (a *CompositeAssembler) Build(extraBytes int) *CompositeBuffer {
	var segments []*PooledBuffer
	top := a.m.pools[len(a.m.pools)-1]

	for extraBytes >= top.BufferSize() {
		segments = append(segments, top.Allocate())
		extraBytes -= top.BufferSize()
	}
	if extraBytes > 0 {
		p := a.m.poolFor(extraBytes)
		segments = append(segments, p.Allocate())
	}

	total := 0
	for _, s := range segments {
		total += s.Capacity()
	}
	return newCompositeBuffer(segments, total)
}

// Extend appends further segments to an existing composite to cover
// additional bytes, using the same greedy top-class-then-remainder
// strategy as Build. The composite's appendable state is preserved across
// the call.
func (a *CompositeAssembler) Extend(c *CompositeBuffer, additionalBytes int) {
	wasAppendable := c.appendable
	c.appendable = true

	top := a.m.pools[len(a.m.pools)-1]
	for additionalBytes >= top.BufferSize() {
		c.Append(top.Allocate())
		additionalBytes -= top.BufferSize()
	}
	if additionalBytes > 0 {
		p := a.m.poolFor(additionalBytes)
		c.Append(p.Allocate())
	}

	c.appendable = wasAppendable
}
