package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"jotium-go/internal/config"
	"jotium-go/pkg/llm"
	"jotium-go/pkg/log"
)

const (
	defaultSearchResults = 5
	maxSearchResults     = 10
)

// WebSearchTool 通过 DuckDuckGo Instant Answer API 搜索网页，没有结果时退回到 HTML 搜索页。
type WebSearchTool struct {
	endpoint     string
	htmlEndpoint string
	client       *http.Client
}

// NewWebSearchTool 创建 search_web 工具。
func NewWebSearchTool(cfg config.WebSearchConfig) *WebSearchTool {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.duckduckgo.com/"
	}
	htmlEndpoint := cfg.HTMLEndpoint
	if htmlEndpoint == "" {
		htmlEndpoint = "https://html.duckduckgo.com/html/"
	}
	return &WebSearchTool{endpoint: endpoint, htmlEndpoint: htmlEndpoint, client: &http.Client{Timeout: timeout}}
}

func (t *WebSearchTool) Name() string {
	return "search_web"
}

func (t *WebSearchTool) Declaration() llm.ToolDeclaration {
	return llm.ToolDeclaration{
		Name:        t.Name(),
		Description: "Search the web for current information, facts and definitions.",
		Parameters: objectSchema(map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "The search query",
			},
			"max_results": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of results to return (default 5, max 10)",
			},
		}, "query"),
	}
}

// SearchResult 是一条搜索结果。
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
	Source  string `json:"source,omitempty"`
}

type instantAnswer struct {
	Heading          string         `json:"Heading"`
	Abstract         string         `json:"Abstract"`
	AbstractURL      string         `json:"AbstractURL"`
	AbstractSource   string         `json:"AbstractSource"`
	Definition       string         `json:"Definition"`
	DefinitionURL    string         `json:"DefinitionURL"`
	DefinitionSource string         `json:"DefinitionSource"`
	RelatedTopics    []relatedTopic `json:"RelatedTopics"`
}

type relatedTopic struct {
	Text     string         `json:"Text"`
	FirstURL string         `json:"FirstURL"`
	Topics   []relatedTopic `json:"Topics"`
}

func (t *WebSearchTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query := strings.TrimSpace(stringArg(args, "query", ""))
	if query == "" {
		return nil, fmt.Errorf("search_web: query is required")
	}
	limit := intArg(args, "max_results", defaultSearchResults)
	if limit <= 0 {
		limit = defaultSearchResults
	}
	if limit > maxSearchResults {
		limit = maxSearchResults
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		log.Errorf("[WebSearch] 调用搜索接口失败, query: %s, error: %v", query, err)
		return nil, fmt.Errorf("failed to call search api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search api returned non-200 status: %s", resp.Status)
	}

	var answer instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := collectResults(answer, limit)
	if len(results) == 0 {
		// HTML 搜索失败不影响返回，结果为空即可
		fallback, err := t.searchHTML(ctx, query, limit)
		if err != nil {
			log.Warnf("[WebSearch] HTML 搜索失败, query: %s, error: %v", query, err)
		} else {
			results = fallback
		}
	}
	log.Infof("[WebSearch] query: %s, results: %d", query, len(results))
	return map[string]interface{}{
		"query":   query,
		"results": results,
		"total":   len(results),
	}, nil
}

func collectResults(answer instantAnswer, limit int) []SearchResult {
	results := make([]SearchResult, 0, limit)
	if answer.Abstract != "" {
		results = append(results, SearchResult{
			Title:   answer.Heading,
			Snippet: answer.Abstract,
			URL:     answer.AbstractURL,
			Source:  answer.AbstractSource,
		})
	}
	if answer.Definition != "" {
		results = append(results, SearchResult{
			Title:   "Definition",
			Snippet: answer.Definition,
			URL:     answer.DefinitionURL,
			Source:  answer.DefinitionSource,
		})
	}
	var walk func(topics []relatedTopic)
	walk = func(topics []relatedTopic) {
		for _, topic := range topics {
			if len(results) >= limit {
				return
			}
			if len(topic.Topics) > 0 {
				walk(topic.Topics)
				continue
			}
			if topic.Text == "" {
				continue
			}
			title := topic.Text
			if i := strings.Index(title, " - "); i > 0 {
				title = title[:i]
			}
			results = append(results, SearchResult{Title: title, Snippet: topic.Text, URL: topic.FirstURL})
		}
	}
	walk(answer.RelatedTopics)

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// searchHTML 抓取 DuckDuckGo 的 HTML 搜索结果页，提取标题、摘要和链接。
func (t *WebSearchTool) searchHTML(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.htmlEndpoint+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create html search request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Jotium/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call html search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("html search returned non-200 status: %s", resp.Status)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html search page: %w", err)
	}

	results := make([]SearchResult, 0, limit)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(results) >= limit {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "result__body") {
			link := findElement(n, "result__a")
			snippet := findElement(n, "result__snippet")
			if link != nil && snippet != nil {
				title, text := nodeText(link), nodeText(snippet)
				if title != "" && text != "" {
					results = append(results, SearchResult{
						Title:   title,
						Snippet: text,
						URL:     resultURL(attrValue(link, "href")),
						Source:  "DuckDuckGo Search",
					})
				}
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findElement(n *html.Node, class string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && hasClass(c, class) {
			return c
		}
		if found := findElement(c, class); found != nil {
			return found
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// resultURL 还原 DuckDuckGo 跳转链接（//duckduckgo.com/l/?uddg=...）中的真实地址。
func resultURL(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
