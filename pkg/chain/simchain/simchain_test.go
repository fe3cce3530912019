package simchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrianLudlam/block-racer/pkg/chain"
)

func TestRandomValueWindow(t *testing.T) {
	c := New([32]byte{0xde, 0xad})
	c.Advance(300)

	_, err := c.RandomValueAt(0)
	assert.ErrorIs(t, err, chain.ErrValueUnavailable, "height 0 never sealed")

	_, err = c.RandomValueAt(301)
	assert.ErrorIs(t, err, chain.ErrValueUnavailable, "beyond tip")

	_, err = c.RandomValueAt(300)
	assert.NoError(t, err, "tip itself")

	// retention: exactly RetentionWindow-1 heights behind the tip is the
	// oldest readable value
	_, err = c.RandomValueAt(300 - chain.RetentionWindow + 1)
	assert.NoError(t, err)
	_, err = c.RandomValueAt(300 - chain.RetentionWindow)
	assert.ErrorIs(t, err, chain.ErrValueUnavailable)
}

func TestRandomValueDeterministic(t *testing.T) {
	seed := [32]byte{7, 7, 7}
	a := New(seed)
	b := New(seed)
	a.Advance(10)
	b.Advance(10)

	va, err := a.RandomValueAt(5)
	require.NoError(t, err)
	vb, err := b.RandomValueAt(5)
	require.NoError(t, err)
	assert.Equal(t, va, vb)

	v6, err := a.RandomValueAt(6)
	require.NoError(t, err)
	assert.NotEqual(t, va, v6)

	c := New([32]byte{8, 8, 8})
	c.Advance(10)
	vc, err := c.RandomValueAt(5)
	require.NoError(t, err)
	assert.NotEqual(t, va, vc, "different genesis, different stream")
}

func TestAdvanceMovesTip(t *testing.T) {
	c := New([32]byte{1})
	assert.Zero(t, c.CurrentHeight())
	assert.Equal(t, uint64(3), c.Advance(3))
	assert.Equal(t, uint64(3), c.CurrentHeight())
}
