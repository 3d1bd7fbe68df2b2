package processor

import (
	"log"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/LJTian/NewsPulse/internal/collector"
)

// 存储层的字段上限；Process 产出的文章已满足这些约束，写库后读回与写入前一致
const (
	MaxTitleRunes = 512
	MaxLabelRunes = 128
	MaxURLBytes   = 2048
)

// ClampText 规范为合法 UTF-8 并按 rune 数截断，避免 PostgreSQL invalid byte sequence 和超长错误
func ClampText(s string, limit int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

// Article 是写入存储层前的统一结构，URL 是去重键
type Article struct {
	SourceLabel    string         `json:"source"`
	Title          string         `json:"title"`
	URL            string         `json:"url"`
	PublishedAt    time.Time      `json:"publicationDate"`
	SentimentScore int            `json:"sentimentScore"`
	Keywords       []string       `json:"keywords"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// SameContent 判断可变字段是否与已存储的版本一致，一致时无需写库
func (a Article) SameContent(b Article) bool {
	return a.Title == b.Title &&
		a.SourceLabel == b.SourceLabel &&
		a.PublishedAt.Equal(b.PublishedAt) &&
		a.SentimentScore == b.SentimentScore &&
		slices.Equal(a.Keywords, b.Keywords)
}

type (
	SentimentFunc func(text string) int
	KeywordFunc   func(text string) []string
)

// Processor 负责清洗、批内去重以及情感分/关键词计算
type Processor struct {
	Sentiment SentimentFunc
	Keywords  KeywordFunc
}

func NewProcessor() *Processor {
	return &Processor{Sentiment: AnalyzeSentiment, Keywords: ExtractKeywords}
}

func (p *Processor) Process(drafts []collector.ArticleDraft) []Article {
	out := make([]Article, 0, len(drafts))
	seen := make(map[string]struct{}, len(drafts))

	for _, d := range drafts {
		url := strings.TrimSpace(d.URL)
		if url == "" {
			continue
		}
		if len(url) > MaxURLBytes || !utf8.ValidString(url) {
			log.Printf("processor: drop article with unusable url (%d bytes): %.80s", len(url), url)
			continue
		}
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}

		title := ClampText(strings.TrimSpace(d.Title), MaxTitleRunes)
		text := title
		if body := strings.TrimSpace(d.Body); body != "" {
			text = title + " " + body
		}
		label := d.SourceLabel
		if label == "" {
			label = collector.ExtractHostname(url)
		}

		// 数据库时间戳精度为微秒
		published := d.PublishedAt.UTC().Truncate(time.Microsecond)

		out = append(out, Article{
			SourceLabel:    ClampText(label, MaxLabelRunes),
			Title:          title,
			URL:            url,
			PublishedAt:    published,
			SentimentScore: p.Sentiment(text),
			Keywords:       p.Keywords(text),
			Extra:          d.Extra,
		})
	}

	return out
}
