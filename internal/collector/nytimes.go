package collector

import (
	"context"
	"log"
	"net/url"
	"strconv"
	"strings"
)

const (
	nytBaseURL     = "https://api.nytimes.com"
	nytPageSize    = 10  // Article Search 固定每页 10 条
	nytMaxPageSpan = 100 // 接口最多允许翻到第 100 页
)

// NYTimesFetcher 通过 NYT Article Search API 搜索文章
type NYTimesFetcher struct {
	APIKey  string
	BaseURL string
	Options
}

func (n *NYTimesFetcher) Name() string {
	return "nytimes"
}

type nytResp struct {
	Status   string `json:"status"`
	Response *struct {
		Docs []struct {
			WebURL   string `json:"web_url"`
			Abstract string `json:"abstract"`
			PubDate  string `json:"pub_date"`
			Section  string `json:"section_name"`
			Headline struct {
				Main string `json:"main"`
			} `json:"headline"`
		} `json:"docs"`
		Meta struct {
			Hits int `json:"hits"`
		} `json:"meta"`
	} `json:"response"`
}

func (n *NYTimesFetcher) FetchAll(ctx context.Context, query string) ([]ArticleDraft, error) {
	log.Printf("fetch NYTimes search %q...", query)

	// NYT 的页码从 0 开始
	first, hits, err := n.fetchPage(ctx, query, 0)
	if err != nil {
		return nil, err
	}
	totalPages := (hits + nytPageSize - 1) / nytPageSize
	if totalPages > nytMaxPageSpan {
		totalPages = nytMaxPageSpan
	}
	totalPages = n.capPages(totalPages)

	return fetchPages(ctx, n.Options, first, pageRange(1, totalPages-1), func(ctx context.Context, page int) ([]ArticleDraft, error) {
		items, _, err := n.fetchPage(ctx, query, page)
		return items, err
	})
}

func (n *NYTimesFetcher) fetchPage(ctx context.Context, query string, page int) ([]ArticleDraft, int, error) {
	base := n.BaseURL
	if base == "" {
		base = nytBaseURL
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("page", strconv.Itoa(page))
	params.Set("sort", "newest")
	params.Set("api-key", n.APIKey)
	pageURL := strings.TrimRight(base, "/") + "/svc/search/v2/articlesearch.json?" + params.Encode()

	var data nytResp
	if err := getJSON(ctx, n.client(), n.Name(), pageURL, nil, &data); err != nil {
		return nil, 0, err
	}
	if data.Response == nil {
		return nil, 0, malformed(n.Name(), pageURL, "missing response envelope")
	}

	items := make([]ArticleDraft, 0, len(data.Response.Docs))
	for _, d := range data.Response.Docs {
		items = append(items, ArticleDraft{
			Title:       d.Headline.Main,
			URL:         d.WebURL,
			Body:        d.Abstract,
			PublishedAt: parseTime(d.PubDate),
			SourceLabel: ExtractHostname(d.WebURL),
			Extra: map[string]any{
				"section": d.Section,
			},
		})
	}
	return items, data.Response.Meta.Hits, nil
}
