package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIndex_PutPart(t *testing.T) {
	c := NewClientIndex("C1")
	_, ok := c.LastPart()
	assert.False(t, ok)

	c.PutPart(Part{ID: 0, ToVersion: 1})
	c.PutPart(Part{ID: 0, ToVersion: 3, Size: 10})
	require.Len(t, c.Parts, 1)
	assert.Equal(t, Version(3), c.Parts[0].ToVersion)

	c.PutPart(Part{ID: 1, FromVersion: VersionPtr(3), ToVersion: 4})
	last, ok := c.LastPart()
	require.True(t, ok)
	assert.Equal(t, 1, last.ID)
}

func TestClientIndex_PartsAfter(t *testing.T) {
	c := testClient()
	assert.Len(t, c.PartsAfter(0), 2)
	after := c.PartsAfter(1)
	require.Len(t, after, 1)
	assert.Equal(t, 1, after[0].ID)
	assert.Empty(t, c.PartsAfter(2))
}

func TestClientIndex_CheckChain(t *testing.T) {
	assert.NoError(t, testClient().CheckChain())
	assert.NoError(t, NewClientIndex("C1").CheckChain())

	gap := testClient()
	gap.Parts[1].FromVersion = VersionPtr(0)
	assert.ErrorContains(t, gap.CheckChain(), "does not continue")

	order := testClient()
	order.Parts[1].ID = 0
	assert.ErrorContains(t, order.CheckChain(), "ids not ascending")

	stale := testClient()
	stale.Latest = 1
	assert.ErrorContains(t, stale.CheckChain(), "latest 1")
}
