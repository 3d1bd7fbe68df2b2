package pipeline

import (
	"log"
	"net/http"

	"github.com/LJTian/NewsPulse/internal/collector"
	"github.com/LJTian/NewsPulse/internal/config"
)

// SourcesFromConfig 根据配置注册数据源，缺少凭据的数据源跳过。
// 返回的 crons 以数据源名为 key，供调度器注册周期任务
func SourcesFromConfig(cfg *config.Config) ([]Source, map[string]string) {
	opts := collector.Options{
		HTTPClient:  &http.Client{Timeout: cfg.HTTPTimeout},
		Concurrency: cfg.FetchConcurrency,
		MaxPages:    cfg.MaxPages,
	}
	scraper := &collector.BodyScraper{Timeout: cfg.HTTPTimeout}

	var (
		sources []Source
		crons   = map[string]string{}
	)
	add := func(a collector.Adapter, sc config.SourceConfig) {
		if cfg.ScrapeBody(a.Name()) {
			a = collector.WithBodyScraper(a, scraper)
		}
		sources = append(sources, Source{
			Name:       a.Name(),
			Collection: sc.Collection,
			Query:      sc.Query,
			Adapter:    a,
		})
		crons[a.Name()] = sc.CronSpec
	}

	if cfg.GuardianAPIKey != "" {
		add(&collector.GuardianFetcher{APIKey: cfg.GuardianAPIKey, Options: opts}, cfg.Guardian)
	} else {
		log.Printf("warn: GUARDIAN_API_KEY not set, skip guardian")
	}

	if cfg.NYTimesAPIKey != "" {
		add(&collector.NYTimesFetcher{APIKey: cfg.NYTimesAPIKey, Options: opts}, cfg.NYTimes)
	} else {
		log.Printf("warn: NYTIMES_API_KEY not set, skip nytimes")
	}

	if cfg.RedditClientID != "" && cfg.RedditClientSecret != "" {
		add(&collector.RedditFetcher{
			ClientID:     cfg.RedditClientID,
			ClientSecret: cfg.RedditClientSecret,
			Username:     cfg.RedditUsername,
			Password:     cfg.RedditPassword,
			Subreddits:   cfg.RedditSubreddits,
			Options:      opts,
		}, cfg.Reddit)
	} else {
		log.Printf("warn: REDDIT_CLIENT_ID/REDDIT_CLIENT_SECRET not set, skip reddit")
	}

	// 公开接口，无需凭据
	add(&collector.CoinGeckoFetcher{Options: opts}, cfg.CoinGecko)
	add(&collector.HackerNewsFetcher{Options: opts}, cfg.HackerNews)

	return sources, crons
}
