package poller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreFetchSkipsClaimed(t *testing.T) {
	store := NewMemoryStore()
	store.Enqueue(WorkItem{ID: "1", Text: "a"})
	store.Enqueue(WorkItem{ID: "2", Text: "b"})

	ctx := context.Background()
	claimed, err := store.Claim(ctx, "1")
	require.NoError(t, err)
	assert.True(t, claimed)

	items, err := store.Fetch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "2", items[0].ID)
}

func TestMemoryStoreClaimIsOneShot(t *testing.T) {
	store := NewMemoryStore()
	store.Enqueue(WorkItem{ID: "1", Text: "a"})

	ctx := context.Background()
	first, err := store.Claim(ctx, "1")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := store.Claim(ctx, "1")
	require.NoError(t, err)
	assert.False(t, second)
}

func TestMemoryStoreFetchRespectsLimit(t *testing.T) {
	store := NewMemoryStore()
	for _, id := range []string{"1", "2", "3"} {
		store.Enqueue(WorkItem{ID: id, Text: id})
	}

	items, err := store.Fetch(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
