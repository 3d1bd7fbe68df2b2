package collector

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
)

const (
	scrapeTimeout     = 5 * time.Second
	scrapeConcurrency = 4
)

// BodyScraper 为缺少正文的文章抓取页面的描述 meta，作为情感分析的补充文本
type BodyScraper struct {
	Timeout     time.Duration
	Concurrency int
}

// Describe 访问页面并返回 og:description，缺失时退回 description
func (s *BodyScraper) Describe(pageURL string) (string, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = scrapeTimeout
	}

	c := colly.NewCollector(colly.UserAgent(userAgent))
	c.SetRequestTimeout(timeout)

	var og, desc string
	c.OnHTML(`meta[property="og:description"]`, func(e *colly.HTMLElement) {
		if og == "" {
			og = strings.TrimSpace(e.Attr("content"))
		}
	})
	c.OnHTML(`meta[name="description"]`, func(e *colly.HTMLElement) {
		if desc == "" {
			desc = strings.TrimSpace(e.Attr("content"))
		}
	})

	if err := c.Visit(pageURL); err != nil {
		return "", err
	}
	if og != "" {
		return og, nil
	}
	return desc, nil
}

// Fill 并发补全 Body 为空的条目，抓取失败只记录日志
func (s *BodyScraper) Fill(ctx context.Context, drafts []ArticleDraft) {
	limit := s.Concurrency
	if limit <= 0 {
		limit = scrapeConcurrency
	}

	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, limit)
	)
	for i := range drafts {
		if drafts[i].Body != "" || drafts[i].URL == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(d *ArticleDraft) {
			defer wg.Done()
			defer func() { <-sem }()

			body, err := s.Describe(d.URL)
			if err != nil {
				log.Printf("scrape body %s: %v", redact(d.URL), err)
				return
			}
			d.Body = body
		}(&drafts[i])
	}
	wg.Wait()
}

type scrapingAdapter struct {
	Adapter
	scraper *BodyScraper
}

// WithBodyScraper 包装一个 Adapter，在返回前补全缺失的正文
func WithBodyScraper(a Adapter, s *BodyScraper) Adapter {
	return &scrapingAdapter{Adapter: a, scraper: s}
}

func (s *scrapingAdapter) FetchAll(ctx context.Context, query string) ([]ArticleDraft, error) {
	drafts, err := s.Adapter.FetchAll(ctx, query)
	if err != nil {
		return nil, err
	}
	s.scraper.Fill(ctx, drafts)
	return drafts, nil
}
