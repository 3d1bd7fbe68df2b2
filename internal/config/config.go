package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// SourceConfig 是单个数据源的查询、集合名与采集周期
type SourceConfig struct {
	Query      string
	Collection string
	CronSpec   string
}

type Config struct {
	AppPort string

	BasicAuthUser string
	BasicAuthPass string

	PostgresDSN string
	RedisAddr   string
	CacheTTL    time.Duration

	HTTPTimeout       time.Duration
	FetchConcurrency  int
	MaxPages          int
	ScrapeBodySources []string

	GuardianAPIKey string
	Guardian       SourceConfig

	NYTimesAPIKey string
	NYTimes       SourceConfig

	RedditClientID     string
	RedditClientSecret string
	RedditUsername     string
	RedditPassword     string
	RedditSubreddits   []string
	Reddit             SourceConfig

	CoinGecko  SourceConfig
	HackerNews SourceConfig
}

func Load() *Config {
	// .env 可选，不存在时只读进程环境变量
	if err := godotenv.Load(); err == nil {
		log.Printf("config: loaded .env")
	}

	cfg := &Config{
		AppPort:       getEnv("APP_PORT", "8082"),
		BasicAuthUser: getEnv("APP_BASIC_USER", ""),
		BasicAuthPass: getEnv("APP_BASIC_PASS", ""),
		PostgresDSN:   getEnv("POSTGRES_DSN", "host=localhost user=newspulse password=newspulse dbname=newspulse port=5432 sslmode=disable TimeZone=UTC"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		CacheTTL:      getDuration("CACHE_TTL", time.Hour),

		HTTPTimeout:       getDuration("HTTP_TIMEOUT", 15*time.Second),
		FetchConcurrency:  getInt("FETCH_CONCURRENCY", 8),
		MaxPages:          getInt("MAX_PAGES", 10),
		ScrapeBodySources: getList("SCRAPE_BODY_SOURCES", ""),

		GuardianAPIKey: getEnv("GUARDIAN_API_KEY", ""),
		Guardian:       sourceConfig("GUARDIAN", "crypto", "guardian", "*/30 * * * *"),

		NYTimesAPIKey: getEnv("NYTIMES_API_KEY", ""),
		NYTimes:       sourceConfig("NYTIMES", "crypto", "nytimes", "0 * * * *"),

		RedditClientID:     getEnv("REDDIT_CLIENT_ID", ""),
		RedditClientSecret: getEnv("REDDIT_CLIENT_SECRET", ""),
		RedditUsername:     getEnv("REDDIT_USERNAME", ""),
		RedditPassword:     getEnv("REDDIT_PASSWORD", ""),
		RedditSubreddits:   getList("REDDIT_SUBREDDITS", "CryptoCurrency,Bitcoin"),
		Reddit:             sourceConfig("REDDIT", "crypto", "reddit", "*/15 * * * *"),

		CoinGecko:  sourceConfig("COINGECKO", "", "coingecko", "*/10 * * * *"),
		HackerNews: sourceConfig("HACKERNEWS", "", "hackernews", "0 * * * *"),
	}

	log.Printf("config loaded: port=%s cache_ttl=%s redis=%t", cfg.AppPort, cfg.CacheTTL, cfg.RedisAddr != "")
	return cfg
}

func sourceConfig(prefix, query, collection, cronSpec string) SourceConfig {
	return SourceConfig{
		Query:      getEnv(prefix+"_QUERY", query),
		Collection: getEnv(prefix+"_COLLECTION", collection),
		CronSpec:   getEnv(prefix+"_CRON", cronSpec),
	}
}

// ScrapeBody 判断某个数据源是否需要抓取页面描述补全正文
func (c *Config) ScrapeBody(source string) bool {
	for _, s := range c.ScrapeBodySources {
		if s == source {
			return true
		}
	}
	return false
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("config: invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("config: invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}

// getList 解析逗号分隔的列表，忽略空白项
func getList(key, def string) []string {
	raw := getEnv(key, def)
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
