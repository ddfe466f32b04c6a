package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := NewMemoryRepository(rdb, testSessionConfig())
	ctx := context.Background()

	tests := []struct {
		name  string
		value interface{}
	}{
		{"string", "blue"},
		{"number", float64(42)},
		{"nested object", map[string]interface{}{"home": map[string]interface{}{"city": "Accra"}}},
		{"array", []interface{}{"go", "rust", float64(3)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.StoreMemory(ctx, "u1", tt.name, tt.value, nil)
			require.NoError(t, err)

			got, err := repo.GetMemory(ctx, "u1", tt.name)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.value, got.Value)
		})
	}
}

func TestStoreMemoryNormalizesNumbers(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := NewMemoryRepository(rdb, testSessionConfig())
	ctx := context.Background()

	stored, err := repo.StoreMemory(ctx, "u1", "age", 42, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(42), stored.Value)

	stored, err = repo.StoreMemory(ctx, "u1", "scores", map[string]int{"go": 9}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"go": float64(9)}, stored.Value)

	got, err := repo.GetMemory(ctx, "u1", "age")
	require.NoError(t, err)
	assert.Equal(t, float64(42), got.Value)
	got, err = repo.GetMemory(ctx, "u1", "scores")
	require.NoError(t, err)
	assert.Equal(t, stored.Value, got.Value)
}

func TestGetMemoryMissing(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := NewMemoryRepository(rdb, testSessionConfig())

	got, err := repo.GetMemory(context.Background(), "u1", "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreMemoryOverwritesAndResetsTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	cfg := testSessionConfig()
	repo := NewMemoryRepository(rdb, cfg)
	ctx := context.Background()

	_, err := repo.StoreMemory(ctx, "u1", "color", "red", nil)
	require.NoError(t, err)
	mr.FastForward(24 * time.Hour)
	_, err = repo.StoreMemory(ctx, "u1", "color", "blue", nil)
	require.NoError(t, err)

	assert.Equal(t, cfg.MemoryTTL, mr.TTL(userMemoryKey("u1")))
	all, err := repo.GetAllMemories(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "blue", all["color"].Value)
}

func TestGetAllMemoriesSkipsMalformed(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := NewMemoryRepository(rdb, testSessionConfig())
	ctx := context.Background()

	_, err := repo.StoreMemory(ctx, "u1", "good", "value", nil)
	require.NoError(t, err)
	require.NoError(t, rdb.HSet(ctx, userMemoryKey("u1"), "bad", "not-json").Err())

	all, err := repo.GetAllMemories(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, "good")
}

func TestSearchMemories(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := NewMemoryRepository(rdb, testSessionConfig())
	ctx := context.Background()

	_, err := repo.StoreMemory(ctx, "u1", "color", "blue", nil)
	require.NoError(t, err)
	_, err = repo.StoreMemory(ctx, "u1", "size", "large", nil)
	require.NoError(t, err)
	_, err = repo.StoreMemory(ctx, "u1", "pet", map[string]interface{}{"kind": "Dog"}, map[string]interface{}{"source": "onboarding"})
	require.NoError(t, err)

	hits, err := repo.SearchMemories(ctx, "u1", "blue")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "color", hits[0].Key)

	hits, err = repo.SearchMemories(ctx, "u1", "BLUE")
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = repo.SearchMemories(ctx, "u1", "dog")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "pet", hits[0].Key)

	hits, err = repo.SearchMemories(ctx, "u1", "onboard")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "pet", hits[0].Key)

	hits, err = repo.SearchMemories(ctx, "u1", "SIZ")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "size", hits[0].Key)

	hits, err = repo.SearchMemories(ctx, "u1", "nothing-matches")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDeleteMemory(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := NewMemoryRepository(rdb, testSessionConfig())
	ctx := context.Background()

	_, err := repo.StoreMemory(ctx, "u1", "k", "v", nil)
	require.NoError(t, err)

	ok, err := repo.DeleteMemory(ctx, "u1", "k")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.DeleteMemory(ctx, "u1", "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
