package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewWithConfig(&Config{
		BaseBufferSize: 16,
		NumberOfPools:  3,
		GrowthFactor:   2,
		SlicesPerPool:  2,
		HeapFraction:   0.5,
		HostEnvironment: testHostEnvironment{
			processors: 2,
			heapBytes:  1 << 24,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

type testHostEnvironment struct {
	processors int
	heapBytes  uint64
}

func (e testHostEnvironment) AvailableProcessors() int { return e.processors }
func (e testHostEnvironment) MaxHeapBytes() uint64      { return e.heapBytes }

func TestCompositeAssembler_BuildCoversRequestedSize(t *testing.T) {
	m := newTestManager(t)
	// Largest class is 16*4*4 = 256; request spans several segments.
	top := m.pools[len(m.pools)-1].BufferSize()

	c := m.assembler.Build(top*2 + 5)
	defer c.Dispose()

	assert.True(t, c.Capacity() >= top*2+5)
	assert.True(t, len(c.Segments()) >= 2)
}

func TestCompositeBuffer_PutAndBytesCrossSegments(t *testing.T) {
	m := newTestManager(t)
	top := m.pools[len(m.pools)-1].BufferSize()

	c := m.assembler.Build(top + 4)
	defer c.Dispose()
	c.SetLimit(c.Capacity())

	data := make([]byte, c.Capacity())
	for i := range data {
		data[i] = byte(i)
	}
	n, err := c.Put(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	c.SetPosition(0)
	assert.Equal(t, data, c.Bytes())
}

func TestCompositeBuffer_TrimDisposesTrailingSegments(t *testing.T) {
	m := newTestManager(t)
	top := m.pools[len(m.pools)-1].BufferSize()
	beforeCount := m.pools[len(m.pools)-1].ElementsCount()

	c := m.assembler.Build(top*3 + 1)
	require.True(t, len(c.Segments()) >= 3)

	c.Trim(1)
	assert.Equal(t, top, c.Capacity())

	c.Dispose()
	assert.Equal(t, beforeCount, m.pools[len(m.pools)-1].ElementsCount())
}

func TestCompositeBuffer_AppendPanicsWhenFrozen(t *testing.T) {
	m := newTestManager(t)
	c := m.assembler.Build(m.pools[len(m.pools)-1].BufferSize())
	defer c.Dispose()

	c.SetAppendable(false)
	seg := m.pools[0].Allocate()
	defer seg.Dispose()

	assert.Panics(t, func() { c.Append(seg) })
}

func TestCompositeAssembler_ExtendPreservesAppendableState(t *testing.T) {
	m := newTestManager(t)
	c := m.assembler.Build(m.pools[0].BufferSize())
	defer c.Dispose()

	c.SetAppendable(false)
	m.assembler.Extend(c, m.pools[0].BufferSize())
	assert.False(t, c.Appendable())
}
