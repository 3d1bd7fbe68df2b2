package collector

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	redditTokenURL = "https://www.reddit.com/api/v1/access_token"
	redditBaseURL  = "https://oauth.reddit.com"
	redditSiteURL  = "https://www.reddit.com"
	redditLimit    = 100
)

// RedditFetcher 通过 Reddit OAuth API 搜索若干 subreddit。
// Reddit 列表是游标分页、不提供总页数，这里把配置的 subreddit 集合当作已知的页集合并发拉取。
type RedditFetcher struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	Subreddits   []string
	TokenURL     string
	BaseURL      string
	Options

	once   sync.Once
	tokens oauth2.TokenSource
}

func (r *RedditFetcher) Name() string {
	return "reddit"
}

type redditListing struct {
	Kind string `json:"kind"`
	Data *struct {
		Children []struct {
			Data struct {
				Title      string  `json:"title"`
				URL        string  `json:"url"`
				Permalink  string  `json:"permalink"`
				Selftext   string  `json:"selftext"`
				CreatedUTC float64 `json:"created_utc"`
				Score      int     `json:"score"`
				Subreddit  string  `json:"subreddit"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// uaTransport 给换取令牌的请求补上 User-Agent，Reddit 会拒绝缺省 UA
type uaTransport struct {
	base http.RoundTripper
}

func (t uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", userAgent)
	return t.base.RoundTrip(req)
}

// tokenSource 懒加载：令牌只在首次抓取时换取，过期后由 oauth2 自动刷新
func (r *RedditFetcher) tokenSource() oauth2.TokenSource {
	r.once.Do(func() {
		tokenURL := r.TokenURL
		if tokenURL == "" {
			tokenURL = redditTokenURL
		}
		conf := &clientcredentials.Config{
			ClientID:     r.ClientID,
			ClientSecret: r.ClientSecret,
			TokenURL:     tokenURL,
			EndpointParams: url.Values{
				"username": {r.Username},
				"password": {r.Password},
			},
			AuthStyle: oauth2.AuthStyleInHeader,
		}

		base := r.client()
		transport := base.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		hc := &http.Client{Timeout: base.Timeout, Transport: uaTransport{base: transport}}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
		r.tokens = conf.TokenSource(ctx)
	})
	return r.tokens
}

func (r *RedditFetcher) FetchAll(ctx context.Context, query string) ([]ArticleDraft, error) {
	log.Printf("fetch Reddit %v search %q...", r.Subreddits, query)

	tok, err := r.tokenSource().Token()
	if err != nil {
		return nil, &AuthError{Source: r.Name(), Err: err}
	}
	if len(r.Subreddits) == 0 {
		return nil, nil
	}

	header := http.Header{}
	header.Set("Authorization", tok.Type()+" "+tok.AccessToken)

	pages := make([]int, len(r.Subreddits))
	for i := range pages {
		pages[i] = i
	}
	return fetchPages(ctx, r.Options, nil, pages, func(ctx context.Context, i int) ([]ArticleDraft, error) {
		return r.fetchSubreddit(ctx, header, r.Subreddits[i], query)
	})
}

func (r *RedditFetcher) fetchSubreddit(ctx context.Context, header http.Header, sub, query string) ([]ArticleDraft, error) {
	base := r.BaseURL
	if base == "" {
		base = redditBaseURL
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(redditLimit))
	params.Set("raw_json", "1")

	path := "/r/" + url.PathEscape(sub) + "/new"
	if query != "" {
		path = "/r/" + url.PathEscape(sub) + "/search"
		params.Set("q", query)
		params.Set("restrict_sr", "1")
		params.Set("sort", "new")
	}
	pageURL := strings.TrimRight(base, "/") + path + "?" + params.Encode()

	var data redditListing
	if err := getJSON(ctx, r.client(), r.Name(), pageURL, header, &data); err != nil {
		return nil, err
	}
	if data.Kind != "Listing" || data.Data == nil {
		return nil, malformed(r.Name(), pageURL, fmt.Sprintf("unexpected listing kind %q", data.Kind))
	}

	items := make([]ArticleDraft, 0, len(data.Data.Children))
	for _, c := range data.Data.Children {
		post := c.Data
		link := post.URL
		if link == "" && post.Permalink != "" {
			link = redditSiteURL + post.Permalink
		}
		sec := int64(post.CreatedUTC)
		items = append(items, ArticleDraft{
			Title:       post.Title,
			URL:         link,
			Body:        post.Selftext,
			PublishedAt: time.Unix(sec, 0).UTC(),
			SourceLabel: ExtractHostname(link),
			Extra: map[string]any{
				"subreddit": post.Subreddit,
				"score":     post.Score,
				"permalink": post.Permalink,
			},
		})
	}
	return items, nil
}
