package collector

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

const (
	hnBaseURL  = "https://hacker-news.firebaseio.com/v0"
	hnItemURL  = "https://news.ycombinator.com/item?id=%d"
	hnMaxItems = 30
)

// HackerNewsFetcher 通过官方 Firebase API 抓取 Hacker News 热门故事；
// query 非空时只保留标题包含 query 的故事（忽略大小写）
type HackerNewsFetcher struct {
	BaseURL  string
	MaxItems int
	Options
}

func (h *HackerNewsFetcher) Name() string {
	return "hackernews"
}

type hnItem struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Text        string `json:"text"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Type        string `json:"type"`
	Deleted     bool   `json:"deleted"`
	Dead        bool   `json:"dead"`
}

func (h *HackerNewsFetcher) FetchAll(ctx context.Context, query string) ([]ArticleDraft, error) {
	log.Println("fetch Hacker News Top Stories...")

	base := strings.TrimRight(h.BaseURL, "/")
	if base == "" {
		base = hnBaseURL
	}

	var ids []int
	if err := getJSON(ctx, h.client(), h.Name(), base+"/topstories.json", nil, &ids); err != nil {
		return nil, err
	}

	maxItems := h.MaxItems
	if maxItems <= 0 {
		maxItems = hnMaxItems
	}
	if len(ids) > maxItems {
		ids = ids[:maxItems]
	}

	indexes := make([]int, len(ids))
	for i := range indexes {
		indexes[i] = i
	}
	needle := strings.ToLower(strings.TrimSpace(query))

	return fetchPages(ctx, h.Options, nil, indexes, func(ctx context.Context, i int) ([]ArticleDraft, error) {
		// 已删除的条目接口会返回 null，解码后 item 为 nil
		var it *hnItem
		if err := getJSON(ctx, h.client(), h.Name(), fmt.Sprintf("%s/item/%d.json", base, ids[i]), nil, &it); err != nil {
			return nil, err
		}
		if it == nil || it.Deleted || it.Dead || it.Type != "story" || it.Title == "" {
			return nil, nil
		}
		if needle != "" && !strings.Contains(strings.ToLower(it.Title), needle) {
			return nil, nil
		}

		itemURL := it.URL
		if itemURL == "" {
			itemURL = fmt.Sprintf(hnItemURL, it.ID)
		}
		return []ArticleDraft{{
			Title:       it.Title,
			URL:         itemURL,
			Body:        stripTags(it.Text),
			PublishedAt: time.Unix(it.Time, 0).UTC(),
			SourceLabel: ExtractHostname(itemURL),
			Extra: map[string]any{
				"hn_id":    it.ID,
				"author":   it.By,
				"comments": it.Descendants,
				"score":    it.Score,
				"rank":     i + 1,
			},
		}}, nil
	})
}
