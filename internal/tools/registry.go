// Package tools 定义了模型可调用的工具以及工具注册表。
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"jotium-go/pkg/llm"
)

// ErrNotFound 表示模型请求了一个未注册的工具。
var ErrNotFound = errors.New("tool not found")

// NotFoundError 携带未注册的工具名，errors.Is(err, ErrNotFound) 成立。
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown function call: %s", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Tool 是模型可以调用的一项能力。
type Tool interface {
	Name() string
	// Declaration 返回提供给模型的名称、描述和参数 JSON Schema。
	Declaration() llm.ToolDeclaration
	// Invoke 执行工具，返回值必须可以被 JSON 序列化。
	Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// Registry 是工具名到工具实现的查找表，可以并发使用。
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry 创建注册表并注册给定的工具。
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register 注册一个工具，同名工具会被替换。
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Lookup 按名称查找工具。
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Invoke 按名称调用工具，工具不存在时返回 *NotFoundError。
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return t.Invoke(ctx, args)
}

// Names 返回按字母排序的工具名列表。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Declarations 返回按名称排序的全部工具声明。
func (r *Registry) Declarations() []llm.ToolDeclaration {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	decls := make([]llm.ToolDeclaration, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			decls = append(decls, t.Declaration())
		}
	}
	return decls
}

// FunctionTool 把一个普通函数包装成 Tool。调用前会检查 required 参数是否齐全。
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]interface{}
	fn          func(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// NewFunctionTool 创建一个 FunctionTool。
func NewFunctionTool(name, description string, parameters map[string]interface{}, fn func(ctx context.Context, args map[string]interface{}) (interface{}, error)) *FunctionTool {
	return &FunctionTool{name: name, description: description, parameters: parameters, fn: fn}
}

func (t *FunctionTool) Name() string {
	return t.name
}

func (t *FunctionTool) Declaration() llm.ToolDeclaration {
	return llm.ToolDeclaration{Name: t.name, Description: t.description, Parameters: t.parameters}
}

func (t *FunctionTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	for _, key := range requiredParams(t.parameters) {
		if _, ok := args[key]; !ok {
			return nil, fmt.Errorf("%s: missing required parameter %q", t.name, key)
		}
	}
	return t.fn(ctx, args)
}

func requiredParams(schema map[string]interface{}) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []interface{}:
		out := make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// objectSchema 构造一个 type=object 的参数 Schema。
func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringArg(args map[string]interface{}, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

func intArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}
