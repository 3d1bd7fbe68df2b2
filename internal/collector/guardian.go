package collector

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	guardianBaseURL  = "https://content.guardianapis.com"
	guardianPageSize = 200
)

// GuardianFetcher 通过 The Guardian Content API 搜索文章
type GuardianFetcher struct {
	APIKey  string
	BaseURL string
	Options
}

func (g *GuardianFetcher) Name() string {
	return "guardian"
}

type guardianResp struct {
	Response *struct {
		Status  string `json:"status"`
		Pages   int    `json:"pages"`
		Results []struct {
			WebTitle           string `json:"webTitle"`
			WebURL             string `json:"webUrl"`
			WebPublicationDate string `json:"webPublicationDate"`
			SectionName        string `json:"sectionName"`
			Fields             struct {
				TrailText string `json:"trailText"`
			} `json:"fields"`
		} `json:"results"`
	} `json:"response"`
}

func (g *GuardianFetcher) FetchAll(ctx context.Context, query string) ([]ArticleDraft, error) {
	log.Printf("fetch Guardian search %q...", query)

	first, totalPages, err := g.fetchPage(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	totalPages = g.capPages(totalPages)

	return fetchPages(ctx, g.Options, first, pageRange(2, totalPages), func(ctx context.Context, page int) ([]ArticleDraft, error) {
		items, _, err := g.fetchPage(ctx, query, page)
		return items, err
	})
}

func (g *GuardianFetcher) fetchPage(ctx context.Context, query string, page int) ([]ArticleDraft, int, error) {
	base := g.BaseURL
	if base == "" {
		base = guardianBaseURL
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("page-size", strconv.Itoa(guardianPageSize))
	params.Set("page", strconv.Itoa(page))
	params.Set("show-fields", "trailText")
	params.Set("api-key", g.APIKey)
	pageURL := strings.TrimRight(base, "/") + "/search?" + params.Encode()

	var data guardianResp
	if err := getJSON(ctx, g.client(), g.Name(), pageURL, nil, &data); err != nil {
		return nil, 0, err
	}
	if data.Response == nil {
		return nil, 0, malformed(g.Name(), pageURL, "missing response envelope")
	}
	if data.Response.Status != "ok" {
		return nil, 0, malformed(g.Name(), pageURL, fmt.Sprintf("status %q", data.Response.Status))
	}

	items := make([]ArticleDraft, 0, len(data.Response.Results))
	for _, r := range data.Response.Results {
		items = append(items, ArticleDraft{
			Title:       r.WebTitle,
			URL:         r.WebURL,
			Body:        stripTags(r.Fields.TrailText),
			PublishedAt: parseTime(r.WebPublicationDate),
			SourceLabel: ExtractHostname(r.WebURL),
			Extra: map[string]any{
				"section": r.SectionName,
			},
		})
	}
	return items, data.Response.Pages, nil
}

// stripTags 将 trailText 等 HTML 片段转成纯文本：解码实体，块级元素之间以空格分隔
func stripTags(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}

	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			parts = append(parts, n.Data)
		case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style"):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Selection.Nodes {
		walk(n)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
