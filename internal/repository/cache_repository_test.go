package repository

import (
	"context"
	"testing"

	"mind-tutor-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocalCacheWriteReplaces(t *testing.T) {
	cache := NewMemoryLocalCache()
	ctx := context.Background()

	cache.Write(ctx, "42", []model.Message{
		{ID: "a", Role: model.RoleUser, Content: "old"},
		{ID: "b", Role: model.RoleAssistant, Content: "old reply"},
	})
	cache.Write(ctx, "42", []model.Message{
		{ID: "c", Role: model.RoleUser, Content: "new"},
	})

	// 写入是整体替换，不与旧镜像合并
	got := cache.Read(ctx, "42")
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)
}

func TestMemoryLocalCacheReadMissingConversation(t *testing.T) {
	cache := NewMemoryLocalCache()

	got := cache.Read(context.Background(), "never-written")

	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMemoryLocalCacheReadReturnsCopy(t *testing.T) {
	cache := NewMemoryLocalCache()
	ctx := context.Background()
	cache.Write(ctx, "42", []model.Message{{ID: "a", Content: "original"}})

	first := cache.Read(ctx, "42")
	first[0].Content = "mutated"

	second := cache.Read(ctx, "42")
	assert.Equal(t, "original", second[0].Content)
}

func TestMemoryLocalCacheInvalidate(t *testing.T) {
	cache := NewMemoryLocalCache()
	ctx := context.Background()
	cache.Write(ctx, "42", []model.Message{{ID: "a"}})
	cache.Write(ctx, "43", []model.Message{{ID: "b"}})

	cache.Invalidate(ctx, "42")

	assert.Empty(t, cache.Read(ctx, "42"))
	assert.Len(t, cache.Read(ctx, "43"), 1)
}
