package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	maxResponseBytes   = 4 << 20 // 4MB，单页搜索结果足够
	defaultHTTPTimeout = 15 * time.Second
	defaultConcurrency = 8
	defaultMaxPages    = 10
	userAgent          = "NewsPulseBot/1.0"
)

// ArticleDraft 是各数据源归一化后的结构，尚未计算情感分与关键词
type ArticleDraft struct {
	Title       string
	URL         string
	Body        string
	PublishedAt time.Time
	SourceLabel string
	Extra       map[string]any
}

// Adapter 抽象每一个上游数据源：拉取全部分页并映射为 ArticleDraft
type Adapter interface {
	Name() string
	FetchAll(ctx context.Context, query string) ([]ArticleDraft, error)
}

// UpstreamError 表示上游网络错误、超时、非 2xx 或响应结构不合法
type UpstreamError struct {
	Source     string
	URL        string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: upstream status %d: %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: upstream: %v", e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// AuthError 表示换取访问令牌失败
type AuthError struct {
	Source string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: token exchange failed: %v", e.Source, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

var errMalformed = errors.New("malformed response")

// Options 是各 Adapter 共用的抓取参数，零值取默认
type Options struct {
	HTTPClient  *http.Client
	Concurrency int
	MaxPages    int
}

func (o Options) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}

func (o Options) concurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return defaultConcurrency
}

func (o Options) capPages(total int) int {
	limit := o.MaxPages
	if limit <= 0 {
		limit = defaultMaxPages
	}
	if total > limit {
		return limit
	}
	return total
}

// ExtractHostname 从 URL 中取出简短来源名：www.example.com -> example
func ExtractHostname(raw string) string {
	if raw == "" {
		return "Unknown"
	}
	parts := strings.Split(raw, "/")
	hostname := parts[0]
	if strings.Contains(raw, "//") {
		if len(parts) < 3 {
			return "Unknown"
		}
		hostname = parts[2]
	}
	hostname = strings.Split(hostname, ":")[0]
	hostname = strings.Split(hostname, "?")[0]

	labels := strings.Split(hostname, ".")
	if len(labels) > 2 {
		return labels[len(labels)-2]
	}
	return labels[0]
}

// fetchPages 在已知总页数后并发拉取剩余页（first 为已拉取的第一页），
// 任意一页失败即取消其余请求并返回该错误
func fetchPages(ctx context.Context, opts Options, first []ArticleDraft, pages []int, fetch func(ctx context.Context, page int) ([]ArticleDraft, error)) ([]ArticleDraft, error) {
	results := make([][]ArticleDraft, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency())
	for i, page := range pages {
		g.Go(func() error {
			items, err := fetch(gctx, page)
			if err != nil {
				return err
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]ArticleDraft, 0, len(first)+len(pages)*len(first))
	out = append(out, first...)
	for _, items := range results {
		out = append(out, items...)
	}
	return out, nil
}

// pageRange 返回 [from, to] 闭区间的页码
func pageRange(from, to int) []int {
	if to < from {
		return nil
	}
	pages := make([]int, 0, to-from+1)
	for p := from; p <= to; p++ {
		pages = append(pages, p)
	}
	return pages
}

// getJSON 发起 GET 请求并解码 JSON，所有失败统一包装为 UpstreamError
func getJSON(ctx context.Context, client *http.Client, source, rawURL string, header http.Header, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &UpstreamError{Source: source, URL: redact(rawURL), Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	for k, vals := range header {
		for _, val := range vals {
			req.Header.Add(k, val)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return &UpstreamError{Source: source, URL: redact(rawURL), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &UpstreamError{
			Source:     source,
			URL:        redact(rawURL),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(v); err != nil {
		return &UpstreamError{Source: source, URL: redact(rawURL), Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

// redact 去掉查询串，避免 api-key 进入日志
func redact(rawURL string) string {
	if i := strings.Index(rawURL, "?"); i != -1 {
		return rawURL[:i]
	}
	return rawURL
}

func malformed(source, rawURL, what string) error {
	return &UpstreamError{Source: source, URL: redact(rawURL), Err: fmt.Errorf("%w: %s", errMalformed, what)}
}

// parseTime 依次尝试上游常见的时间格式，均失败返回零值
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05-0700", "2006-01-02T15:04:05Z0700", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
