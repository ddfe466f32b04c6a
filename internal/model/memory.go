package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ValueKind 标记记忆值在写入时的形态，读取时据此还原，无需猜测。
type ValueKind string

const (
	ValueRaw        ValueKind = "raw"
	ValueStructured ValueKind = "structured"
)

// MemoryEntry 是用户的一条长期记忆，同一 key 重复写入时后写覆盖。
// Value 为 raw 时是 string，为 structured 时是 JSON 解码后的值，数字一律是 float64。
type MemoryEntry struct {
	Key       string                 `json:"key"`
	Kind      ValueKind              `json:"kind"`
	Value     interface{}            `json:"value"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// memoryRecord 是记忆在 Redis 哈希中的存储格式。
type memoryRecord struct {
	Key       string                 `json:"key"`
	Kind      ValueKind              `json:"kind"`
	Raw       string                 `json:"raw,omitempty"`
	Data      json.RawMessage        `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewMemoryEntry 根据值的类型决定存储形态：字符串为 raw，其余为 structured。
// structured 值会规范化为 JSON 解码后的形态（数字为 float64，对象为 map[string]interface{}），
// 与之后读取到的值一致。
func NewMemoryEntry(key string, value interface{}, metadata map[string]interface{}, now time.Time) MemoryEntry {
	kind := ValueStructured
	if _, ok := value.(string); ok {
		kind = ValueRaw
	} else if data, err := json.Marshal(value); err == nil {
		var normalized interface{}
		if err := json.Unmarshal(data, &normalized); err == nil {
			value = normalized
		}
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return MemoryEntry{Key: key, Kind: kind, Value: value, Timestamp: now, Metadata: metadata}
}

// Encode 将记忆编码为存储格式。
func (e MemoryEntry) Encode() ([]byte, error) {
	rec := memoryRecord{Key: e.Key, Kind: e.Kind, Timestamp: e.Timestamp, Metadata: e.Metadata}
	switch e.Kind {
	case ValueRaw:
		s, ok := e.Value.(string)
		if !ok {
			return nil, fmt.Errorf("raw memory %q must hold a string, got %T", e.Key, e.Value)
		}
		rec.Raw = s
	case ValueStructured:
		data, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal memory %q: %w", e.Key, err)
		}
		rec.Data = data
	default:
		return nil, fmt.Errorf("unknown memory kind %q", e.Kind)
	}
	return json.Marshal(rec)
}

// DecodeMemoryEntry 解析存储格式，结构化值会被还原为 JSON 对应的 Go 类型。
func DecodeMemoryEntry(data []byte) (MemoryEntry, error) {
	var rec memoryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return MemoryEntry{}, err
	}
	entry := MemoryEntry{Key: rec.Key, Kind: rec.Kind, Timestamp: rec.Timestamp, Metadata: rec.Metadata}
	switch rec.Kind {
	case ValueRaw:
		entry.Value = rec.Raw
	case ValueStructured:
		if len(rec.Data) == 0 {
			return MemoryEntry{}, fmt.Errorf("structured memory %q has no data", rec.Key)
		}
		if err := json.Unmarshal(rec.Data, &entry.Value); err != nil {
			return MemoryEntry{}, err
		}
	default:
		return MemoryEntry{}, fmt.Errorf("unknown memory kind %q", rec.Kind)
	}
	return entry, nil
}

// ValueString 返回记忆值的文本形式：raw 原样返回，structured 返回紧凑 JSON。
func (e MemoryEntry) ValueString() string {
	if s, ok := e.Value.(string); ok && e.Kind == ValueRaw {
		return s
	}
	data, err := json.Marshal(e.Value)
	if err != nil {
		return fmt.Sprint(e.Value)
	}
	return string(data)
}
