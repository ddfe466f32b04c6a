package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEntryKeepsShape(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name  string
		value interface{}
		kind  ValueKind
	}{
		{"string", "blue", ValueRaw},
		{"json-looking string stays raw", `{"a":1}`, ValueRaw},
		{"number", float64(42), ValueStructured},
		{"object", map[string]interface{}{"city": "Lagos", "zip": float64(100001)}, ValueStructured},
		{"array", []interface{}{"a", float64(1), true}, ValueStructured},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := NewMemoryEntry("k", tt.value, nil, now)
			assert.Equal(t, tt.kind, entry.Kind)

			data, err := entry.Encode()
			require.NoError(t, err)

			got, err := DecodeMemoryEntry(data)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.value, got.Value)
			assert.True(t, now.Equal(got.Timestamp))
		})
	}
}

func TestDecodeMemoryEntryRejectsUnknownKind(t *testing.T) {
	_, err := DecodeMemoryEntry([]byte(`{"key":"k","kind":"mystery"}`))
	assert.Error(t, err)

	_, err = DecodeMemoryEntry([]byte(`not json`))
	assert.Error(t, err)
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "blue", NewMemoryEntry("k", "blue", nil, time.Now()).ValueString())
	assert.Equal(t, `{"a":1}`, NewMemoryEntry("k", map[string]interface{}{"a": 1}, nil, time.Now()).ValueString())
}
