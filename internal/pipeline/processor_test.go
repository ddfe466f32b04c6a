package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jotium-go/internal/config"
	"jotium-go/internal/model"
	"jotium-go/internal/repository"
	"jotium-go/internal/service"
	"jotium-go/pkg/tasks"
)

func TestCleanupProcessor(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.SessionConfig{ChatHistoryLimit: 10, ConversationTTL: time.Hour, MemoryTTL: time.Hour, MaxConversationsPerUser: 50}
	convRepo := repository.NewConversationRepository(rdb, cfg)
	ctx := context.Background()

	_, err := convRepo.SaveMessage(ctx, "u1", "stale", model.Message{Role: model.RoleUser, Content: "old", Timestamp: time.Now().Add(-72 * time.Hour)})
	require.NoError(t, err)
	_, err = convRepo.SaveMessage(ctx, "u1", "active", model.Message{Role: model.RoleUser, Content: "new"})
	require.NoError(t, err)

	svc := service.NewConversationService(convRepo, nil, 24*time.Hour)
	p := NewCleanupProcessor(svc, 0)
	require.NoError(t, p.Process(ctx, tasks.CleanupTask{TaskID: "t1", UserID: "u1"}))

	metas, err := convRepo.GetUserConversations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "active", metas[0].ID)
}
