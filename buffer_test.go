package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSlice(t *testing.T, bufferSize, count int) *PoolSlice {
	t.Helper()
	s, err := newPoolSlice(bufferSize, count, false, false, nil)
	require.NoError(t, err)
	return s
}

func TestPooledBuffer_PutAndBytes(t *testing.T) {
	s := newTestSlice(t, 16, STRIDE)
	buf, ok := s.Poll()
	require.True(t, ok)
	defer buf.Dispose()

	n, err := buf.Put([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, buf.Position())

	buf.SetLimit(buf.Position())
	buf.SetPosition(0)
	assert.Equal(t, []byte("hello"), buf.Bytes())
}

func TestPooledBuffer_PutRejectsOverLimit(t *testing.T) {
	s := newTestSlice(t, 4, STRIDE)
	buf, ok := s.Poll()
	require.True(t, ok)
	defer buf.Dispose()

	_, err := buf.Put([]byte("12345"))
	assert.Error(t, err)
}

func TestPooledBuffer_ShareCountLaw(t *testing.T) {
	// The allocation returns to its slice only once every derived view,
	// including the original, has been disposed.
	s := newTestSlice(t, 16, STRIDE)
	before := s.Count()

	buf, ok := s.Poll()
	require.True(t, ok)
	assert.Equal(t, before-1, s.Count())

	view := buf.Duplicate()
	buf.Dispose()
	assert.Equal(t, before-1, s.Count(), "one live view still holds the allocation")

	view.Dispose()
	assert.Equal(t, before, s.Count(), "last view disposed, allocation returned")
}

func TestPooledBuffer_DisposeIsIdempotent(t *testing.T) {
	s := newTestSlice(t, 16, STRIDE)
	buf, ok := s.Poll()
	require.True(t, ok)

	buf.Dispose()
	assert.NotPanics(t, func() { buf.Dispose() })
}

func TestPooledBuffer_UseAfterDisposePanics(t *testing.T) {
	s := newTestSlice(t, 16, STRIDE)
	buf, ok := s.Poll()
	require.True(t, ok)
	buf.Dispose()

	assert.Panics(t, func() { buf.Put([]byte("x")) })
	assert.Panics(t, func() { buf.Bytes() })
}

func TestPooledBuffer_AsReadOnlyRejectsPut(t *testing.T) {
	s := newTestSlice(t, 16, STRIDE)
	buf, ok := s.Poll()
	require.True(t, ok)
	defer buf.Dispose()

	ro := buf.AsReadOnly()
	defer ro.Dispose()

	assert.True(t, ro.ReadOnly())
	_, err := ro.Put([]byte("x"))
	assert.Error(t, err)
}

func TestPooledBuffer_SplitAndRestore(t *testing.T) {
	s := newTestSlice(t, 16, STRIDE)
	before := s.Count()

	buf, ok := s.Poll()
	require.True(t, ok)

	right := buf.Split(10)
	assert.Equal(t, 10, buf.Capacity())
	assert.Equal(t, 6, right.Capacity())

	buf.Dispose()
	assert.Equal(t, before-1, s.Count(), "right half still outstanding")

	right.Dispose()
	assert.Equal(t, before, s.Count(), "origin restored to full size and returned")
}

func TestPooledBuffer_SliceSharesBackingAndCount(t *testing.T) {
	s := newTestSlice(t, 16, STRIDE)
	buf, ok := s.Poll()
	require.True(t, ok)

	buf.Put([]byte("abcdef"))
	buf.SetLimit(6)
	buf.SetPosition(2)

	view := buf.Slice()
	assert.Equal(t, 4, view.Capacity())
	assert.Equal(t, []byte("cdef"), view.Bytes())

	buf.Dispose()
	view.Dispose()
	assert.Equal(t, s.maxPoolSize, s.Count())
}
