package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_AllocateStripesAcrossSlices(t *testing.T) {
	p, err := newPool(32, 4, STRIDE, false, false, nil)
	require.NoError(t, err)

	total := p.ElementsCount()
	require.Equal(t, 4*STRIDE, total)

	buf := p.Allocate()
	require.NotNil(t, buf)
	assert.Equal(t, total-1, p.ElementsCount())
	buf.Dispose()
	assert.Equal(t, total, p.ElementsCount())
}

func TestPool_AllocateFallsBackToDirectWhenExhausted(t *testing.T) {
	p, err := newPool(16, 1, STRIDE, false, false, nil)
	require.NoError(t, err)

	var held []*PooledBuffer
	for p.ElementsCount() > 0 {
		held = append(held, p.Allocate())
	}

	overflow := p.Allocate()
	require.NotNil(t, overflow)
	assert.Nil(t, overflow.owningSlice, "overflow allocation bypasses every ring")
	assert.Equal(t, 16, overflow.Capacity())

	for _, b := range held {
		b.Dispose()
	}
	overflow.Dispose()
}

func TestPool_SizeReflectsOccupancy(t *testing.T) {
	p, err := newPool(64, 2, STRIDE, false, false, nil)
	require.NoError(t, err)
	assert.Equal(t, p.ElementsCount()*64, p.Size())
}
