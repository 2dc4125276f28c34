package canvas

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreUpsertLWW(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Upsert(ctx, Pixel{X: 5, Y: 5, Colour: 2, Updated: 9}))
	require.NoError(t, store.Upsert(ctx, Pixel{X: 5, Y: 5, Colour: 1, Updated: 10}))

	pixels, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, pixels, 1)
	assert.Equal(t, Pixel{X: 5, Y: 5, Colour: 1, Updated: 10}, pixels[0])
}

func TestMemoryStoreUpsertIgnoresStaleUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Upsert(ctx, Pixel{X: 0, Y: 0, Colour: 7, Updated: 5}))
	require.NoError(t, store.Upsert(ctx, Pixel{X: 0, Y: 0, Colour: 3, Updated: 1}))

	pixels, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, pixels, 1)
	assert.EqualValues(t, 7, pixels[0].Colour)
}

func TestMemoryStoreReplaceAll(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Upsert(ctx, Pixel{X: 1, Y: 1, Colour: 1, Updated: 1}))

	require.NoError(t, store.ReplaceAll(ctx, []Pixel{
		{X: 2, Y: 2, Colour: 2, Updated: 2},
	}))

	pixels, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, pixels, 1)
	assert.EqualValues(t, 2, pixels[0].X)
}
