package tools

import (
	"context"
	"errors"
	"fmt"

	"jotium-go/internal/model"
	"jotium-go/internal/repository"
)

const recallLimit = 10

var errNoUser = errors.New("no user is associated with this conversation")

// NewMemoryTools 返回读写当前用户长期记忆的工具：remember_fact 和 recall_memories。
func NewMemoryTools(repo repository.MemoryRepository) []Tool {
	remember := NewFunctionTool(
		"remember_fact",
		"Store a durable fact about the user in long-term memory so it can be recalled in later conversations.",
		objectSchema(map[string]interface{}{
			"key": map[string]interface{}{
				"type":        "string",
				"description": "Short unique name for the fact, e.g. favorite_color",
			},
			"value": map[string]interface{}{
				"type":        "string",
				"description": "The fact to remember",
			},
		}, "key", "value"),
		func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			userID, ok := UserIDFromContext(ctx)
			if !ok {
				return nil, errNoUser
			}
			key := stringArg(args, "key", "")
			if key == "" {
				return nil, fmt.Errorf("remember_fact: key must be a non-empty string")
			}
			entry, err := repo.StoreMemory(ctx, userID, key, args["value"], map[string]interface{}{"source": "agent"})
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"stored": true, "key": entry.Key}, nil
		},
	)

	recall := NewFunctionTool(
		"recall_memories",
		"Recall facts previously stored about the user. Optionally filter with a search query.",
		objectSchema(map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Case-insensitive text to search for. Leave empty to list the most recent memories.",
			},
		}),
		func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			userID, ok := UserIDFromContext(ctx)
			if !ok {
				return nil, errNoUser
			}
			var entries []model.MemoryEntry
			if query := stringArg(args, "query", ""); query != "" {
				found, err := repo.SearchMemories(ctx, userID, query)
				if err != nil {
					return nil, err
				}
				entries = found
			} else {
				all, err := repo.GetAllMemories(ctx, userID)
				if err != nil {
					return nil, err
				}
				for _, e := range all {
					entries = append(entries, e)
				}
				repository.SortMemoriesByRecency(entries)
			}
			if len(entries) > recallLimit {
				entries = entries[:recallLimit]
			}
			memories := make([]map[string]interface{}, 0, len(entries))
			for _, e := range entries {
				memories = append(memories, map[string]interface{}{"key": e.Key, "value": e.Value})
			}
			return map[string]interface{}{"memories": memories, "count": len(memories)}, nil
		},
	)

	return []Tool{remember, recall}
}
