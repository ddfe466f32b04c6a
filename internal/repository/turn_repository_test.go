package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"jotium-go/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "turns.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.TurnRecord{}))
	return db
}

func TestTurnRepositoryPagination(t *testing.T) {
	repo := NewTurnRepository(newTestDB(t))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Create(ctx, &model.TurnRecord{
			UserID: "u1", ConversationID: "c1",
			Question: fmt.Sprintf("q%d", i), Answer: fmt.Sprintf("a%d", i),
			StopReason: "completed", Iterations: 1,
		}))
	}
	require.NoError(t, repo.Create(ctx, &model.TurnRecord{UserID: "u2", ConversationID: "c9", Question: "x", Answer: "y"}))

	records, total, err := repo.FindWithPagination(ctx, "u1", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, records, 2)
	assert.Equal(t, "q3", records[0].Question)
	assert.Equal(t, "q2", records[1].Question)

	all, total, err := repo.FindWithPagination(ctx, "", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, all, 4)
}
