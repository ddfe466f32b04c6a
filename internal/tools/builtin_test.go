package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jotium-go/internal/config"
	"jotium-go/internal/repository"
)

func TestDateTimeFormats(t *testing.T) {
	fixed := time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)
	tool := NewDateTimeTool(func() time.Time { return fixed })
	ctx := context.Background()

	tests := []struct {
		format string
		key    string
		want   interface{}
	}{
		{"date", "date", "March 5, 2024"},
		{"time", "time", "02:07:09 PM"},
		{"iso", "datetime", "2024-03-05T14:07:09Z"},
		{"full", "datetime", "Tuesday, March 5, 2024 at 02:07:09 PM UTC"},
		{"timestamp", "timestamp", fixed.Unix()},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			out, err := tool.Invoke(ctx, map[string]interface{}{"format": tt.format})
			require.NoError(t, err)
			res := out.(map[string]interface{})
			assert.Equal(t, tt.want, res[tt.key])
			assert.Equal(t, "UTC", res["timezone"])
		})
	}
}

func TestDateTimeTimezone(t *testing.T) {
	fixed := time.Date(2024, time.March, 5, 14, 0, 0, 0, time.UTC)
	tool := NewDateTimeTool(func() time.Time { return fixed })

	out, err := tool.Invoke(context.Background(), map[string]interface{}{"format": "iso", "timezone": "Asia/Tokyo"})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05T23:00:00+09:00", out.(map[string]interface{})["datetime"])

	_, err = tool.Invoke(context.Background(), map[string]interface{}{"format": "iso", "timezone": "Mars/Olympus"})
	assert.Error(t, err)

	_, err = tool.Invoke(context.Background(), map[string]interface{}{"format": "weekday"})
	assert.Error(t, err)
}

func TestWebSearch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"Heading":     "Go",
			"Abstract":    "Go is a programming language.",
			"AbstractURL": "https://go.dev",
			"RelatedTopics": []interface{}{
				map[string]interface{}{"Text": "Gopher - the mascot", "FirstURL": "https://example.com/gopher"},
				map[string]interface{}{"Name": "Tools", "Topics": []interface{}{
					map[string]interface{}{"Text": "gofmt - formatter", "FirstURL": "https://example.com/gofmt"},
					map[string]interface{}{"Text": "go vet - checker", "FirstURL": "https://example.com/vet"},
				}},
			},
		})
	}))
	defer srv.Close()

	tool := NewWebSearchTool(config.WebSearchConfig{Endpoint: srv.URL, Timeout: time.Second})
	out, err := tool.Invoke(context.Background(), map[string]interface{}{"query": "golang", "max_results": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, "golang", gotQuery)

	res := out.(map[string]interface{})
	results := res["results"].([]SearchResult)
	require.Len(t, results, 3)
	assert.Equal(t, 3, res["total"])
	assert.Equal(t, "Go", results[0].Title)
	assert.Equal(t, "Gopher", results[1].Title)
	assert.Equal(t, "gofmt", results[2].Title)
	assert.Equal(t, "https://example.com/gofmt", results[2].URL)
}

const duckDuckGoHTML = `<html><body><div id="links">
<div class="result results_links web-result"><div class="links_main links_deep result__body">
  <h2 class="result__title"><a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc">The Go <b>Programming</b> Language</a></h2>
  <a class="result__snippet" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F">Documentation for   the Go language.</a>
</div></div>
<div class="result results_links web-result"><div class="links_main links_deep result__body">
  <h2 class="result__title"><a class="result__a" href="https://example.com/no-snippet">No snippet</a></h2>
</div></div>
<div class="result results_links web-result"><div class="links_main links_deep result__body">
  <h2 class="result__title"><a class="result__a" href="https://example.com/tour">A Tour of Go</a></h2>
  <a class="result__snippet">Interactive introduction.</a>
</div></div>
</div></body></html>`

func TestWebSearchFallsBackToHTML(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Heading":"","Abstract":"","RelatedTopics":[]}`))
	})
	var gotQuery string
	mux.HandleFunc("/html", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(duckDuckGoHTML))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tool := NewWebSearchTool(config.WebSearchConfig{Endpoint: srv.URL + "/api", HTMLEndpoint: srv.URL + "/html"})
	out, err := tool.Invoke(context.Background(), map[string]interface{}{"query": "go docs"})
	require.NoError(t, err)
	assert.Equal(t, "go docs", gotQuery)

	res := out.(map[string]interface{})
	results := res["results"].([]SearchResult)
	require.Len(t, results, 2)
	assert.Equal(t, "The Go Programming Language", results[0].Title)
	assert.Equal(t, "Documentation for the Go language.", results[0].Snippet)
	assert.Equal(t, "https://go.dev/doc/", results[0].URL)
	assert.Equal(t, "A Tour of Go", results[1].Title)
	assert.Equal(t, "https://example.com/tour", results[1].URL)
	assert.Equal(t, 2, res["total"])
}

func TestWebSearchHTMLFailureReturnsEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/html", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tool := NewWebSearchTool(config.WebSearchConfig{Endpoint: srv.URL + "/api", HTMLEndpoint: srv.URL + "/html"})
	out, err := tool.Invoke(context.Background(), map[string]interface{}{"query": "nothing"})
	require.NoError(t, err)
	assert.Equal(t, 0, out.(map[string]interface{})["total"])
}

func TestWebSearchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tool := NewWebSearchTool(config.WebSearchConfig{Endpoint: srv.URL})
	_, err := tool.Invoke(context.Background(), map[string]interface{}{"query": "x"})
	assert.Error(t, err)

	_, err = tool.Invoke(context.Background(), map[string]interface{}{"query": "   "})
	assert.Error(t, err)
}

func TestMemoryTools(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	repo := repository.NewMemoryRepository(rdb, config.SessionConfig{MemoryTTL: time.Hour})

	reg := NewRegistry(NewMemoryTools(repo)...)
	ctx := WithUserID(context.Background(), "u1")

	_, err := reg.Invoke(ctx, "remember_fact", map[string]interface{}{"key": "favorite_color", "value": "teal"})
	require.NoError(t, err)

	stored, err := repo.GetMemory(context.Background(), "u1", "favorite_color")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "teal", stored.Value)
	assert.Equal(t, "agent", stored.Metadata["source"])

	out, err := reg.Invoke(ctx, "recall_memories", map[string]interface{}{"query": "TEAL"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.(map[string]interface{})["count"])

	out, err = reg.Invoke(ctx, "recall_memories", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.(map[string]interface{})["count"])

	_, err = reg.Invoke(context.Background(), "recall_memories", map[string]interface{}{})
	assert.Error(t, err)
}

func TestSlackTool(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tool := NewSlackTool(srv.URL, srv.Client())
	out, err := tool.Invoke(context.Background(), map[string]interface{}{"text": "deploy done", "channel": "#ops"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"sent": true}, out)
	assert.Equal(t, "deploy done", got["text"])
	assert.Equal(t, "#ops", got["channel"])
}
