package collector

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
)

const (
	coingeckoBaseURL  = "https://api.coingecko.com/api/v3"
	coingeckoCoinURL  = "https://www.coingecko.com/en/coins/"
	coingeckoPageSize = 250
)

// CoinGeckoFetcher 把币价行情转成 ArticleDraft，每个币一条，URL 为币种详情页。
// query 为逗号分隔的 coin id，为空时按市值拉取全部分页。
type CoinGeckoFetcher struct {
	BaseURL string
	Options
}

func (c *CoinGeckoFetcher) Name() string {
	return "coingecko"
}

type coingeckoGlobalResp struct {
	Data *struct {
		ActiveCryptocurrencies int `json:"active_cryptocurrencies"`
	} `json:"data"`
}

type coingeckoMarket struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	CurrentPrice             *float64 `json:"current_price"`
	MarketCap                float64  `json:"market_cap"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
	LastUpdated              string   `json:"last_updated"`
}

func (c *CoinGeckoFetcher) FetchAll(ctx context.Context, query string) ([]ArticleDraft, error) {
	log.Printf("fetch CoinGecko markets %q...", query)

	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = coingeckoBaseURL
	}

	ids := strings.TrimSpace(query)
	totalPages := 1
	if ids == "" {
		// 先读全局元数据，得出总页数
		globalURL := base + "/global"
		var global coingeckoGlobalResp
		if err := getJSON(ctx, c.client(), c.Name(), globalURL, nil, &global); err != nil {
			return nil, err
		}
		if global.Data == nil {
			return nil, malformed(c.Name(), globalURL, "missing data envelope")
		}
		totalPages = (global.Data.ActiveCryptocurrencies + coingeckoPageSize - 1) / coingeckoPageSize
		totalPages = c.capPages(totalPages)
	}

	return fetchPages(ctx, c.Options, nil, pageRange(1, totalPages), func(ctx context.Context, page int) ([]ArticleDraft, error) {
		return c.fetchMarkets(ctx, base, ids, page)
	})
}

func (c *CoinGeckoFetcher) fetchMarkets(ctx context.Context, base, ids string, page int) ([]ArticleDraft, error) {
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("order", "market_cap_desc")
	params.Set("per_page", strconv.Itoa(coingeckoPageSize))
	params.Set("page", strconv.Itoa(page))
	if ids != "" {
		params.Set("ids", ids)
	}
	pageURL := base + "/coins/markets?" + params.Encode()

	var markets []coingeckoMarket
	if err := getJSON(ctx, c.client(), c.Name(), pageURL, nil, &markets); err != nil {
		return nil, err
	}

	items := make([]ArticleDraft, 0, len(markets))
	for _, m := range markets {
		if m.ID == "" {
			return nil, malformed(c.Name(), pageURL, "market entry without id")
		}
		// 没有报价的币种跳过（新上架或已下架）
		if m.CurrentPrice == nil {
			continue
		}
		change := 0.0
		if m.PriceChangePercentage24h != nil {
			change = *m.PriceChangePercentage24h
		}
		link := coingeckoCoinURL + m.ID
		items = append(items, ArticleDraft{
			Title:       tickerTitle(m.Name, m.Symbol, *m.CurrentPrice, change),
			URL:         link,
			PublishedAt: parseTime(m.LastUpdated),
			SourceLabel: ExtractHostname(link),
			Extra: map[string]any{
				"price":      *m.CurrentPrice,
				"change_24h": change,
				"market_cap": m.MarketCap,
			},
		})
	}
	return items, nil
}

// tickerTitle 生成行情标题，例如 "Bitcoin (BTC) 64000.00 USD, 24h +2.35%"
func tickerTitle(name, symbol string, price, change float64) string {
	return fmt.Sprintf("%s (%s) %.2f USD, 24h %+.2f%%", name, strings.ToUpper(symbol), price, change)
}
