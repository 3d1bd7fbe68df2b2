package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/LJTian/NewsPulse/internal/collector"
	"github.com/LJTian/NewsPulse/internal/processor"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
)

// openTestStore 默认使用纯 Go 的 SQLite 内存库；设置 POSTGRES_TEST_DSN 时改用 PostgreSQL
func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	collection := strings.ToLower(strings.ReplaceAll(t.Name(), "/", "_"))

	if dsn := os.Getenv("POSTGRES_TEST_DSN"); dsn != "" {
		s, err := Open(postgres.Open(dsn))
		if err != nil {
			t.Fatalf("open postgres: %v", err)
		}
		s.DB.Where("collection = ?", collection).Delete(&ArticleRecord{})
		t.Cleanup(func() {
			s.DB.Where("collection = ?", collection).Delete(&ArticleRecord{})
			_ = s.Close()
		})
		return s, collection
	}

	s, err := Open(sqlite.Open("file:" + collection + "?mode=memory&cache=shared"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = s.Close() })
	return s, collection
}

func countRows(t *testing.T, s *Store, collection string) int64 {
	t.Helper()
	var n int64
	if err := s.DB.Model(&ArticleRecord{}).Where("collection = ?", collection).Count(&n).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

func byURL(list []processor.Article) map[string]processor.Article {
	out := make(map[string]processor.Article, len(list))
	for _, a := range list {
		out[a.URL] = a
	}
	return out
}

func TestStoreUpsertTwiceKeepsOneRowPerURL(t *testing.T) {
	ctx := context.Background()
	s, collection := openTestStore(t)
	ts := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	articles := processor.NewProcessor().Process([]collector.ArticleDraft{
		{Title: "Bitcoin rally brings great gains", URL: "https://www.example.com/1", PublishedAt: ts, Extra: map[string]any{"section": "Business"}},
		{Title: "Exchange hacked", URL: "https://www.example.com/2", PublishedAt: ts},
		{Title: "Duplicate", URL: "https://www.example.com/2", PublishedAt: ts},
	})

	for i := 0; i < 2; i++ {
		if err := s.UpsertMany(ctx, collection, articles); err != nil {
			t.Fatalf("UpsertMany #%d error: %v", i+1, err)
		}
	}
	if n := countRows(t, s, collection); n != 2 {
		t.Fatalf("expected 2 rows after repeated upsert, got %d", n)
	}

	stored, err := s.FindAll(ctx, collection)
	if err != nil {
		t.Fatalf("FindAll error: %v", err)
	}
	got := byURL(stored)
	for _, a := range articles {
		b, ok := got[a.URL]
		if !ok {
			t.Fatalf("article %s not stored", a.URL)
		}
		if !b.SameContent(a) {
			t.Fatalf("stored article differs from written one:\n%+v\n%+v", a, b)
		}
	}
	if got["https://www.example.com/1"].Extra["section"] != "Business" {
		t.Fatalf("extra data lost: %+v", got["https://www.example.com/1"].Extra)
	}

	// 更新可变字段只改写原行
	changed := articles[0]
	changed.Title = "Bitcoin crash wipes out gains"
	if err := s.UpsertMany(ctx, collection, []processor.Article{changed}); err != nil {
		t.Fatalf("UpsertMany update error: %v", err)
	}
	if n := countRows(t, s, collection); n != 2 {
		t.Fatalf("update should not add rows, got %d", n)
	}
	stored, _ = s.FindAll(ctx, collection)
	if byURL(stored)[changed.URL].Title != changed.Title {
		t.Fatalf("title not updated")
	}
}

func TestStoreReadsBackWhatProcessorProduced(t *testing.T) {
	ctx := context.Background()
	s, collection := openTestStore(t)

	longTitle := strings.Repeat("比特币", 214) // 642 runes
	longURL := "https://www.example.com/" + strings.Repeat("a", 1500)
	articles := processor.NewProcessor().Process([]collector.ArticleDraft{
		{Title: longTitle, URL: "https://www.example.com/long", PublishedAt: time.Date(2024, 1, 2, 10, 0, 0, 123456789, time.UTC)},
		{Title: "Bitcoin \xff price", URL: "https://www.example.com/bad-utf8", PublishedAt: time.Now()},
		{Title: "long url", URL: longURL, SourceLabel: strings.Repeat("x", 300)},
	})
	if len(articles) != 3 {
		t.Fatalf("expected 3 processed articles, got %d", len(articles))
	}
	if n := utf8.RuneCountInString(articles[0].Title); n != processor.MaxTitleRunes {
		t.Fatalf("title should be clamped before storage, got %d runes", n)
	}

	if err := s.UpsertMany(ctx, collection, articles); err != nil {
		t.Fatalf("UpsertMany error: %v", err)
	}
	stored, err := s.FindAll(ctx, collection)
	if err != nil {
		t.Fatalf("FindAll error: %v", err)
	}
	got := byURL(stored)
	for _, a := range articles {
		b, ok := got[a.URL]
		if !ok {
			t.Fatalf("article with %d-byte url not stored", len(a.URL))
		}
		// 读回后必须与写入前一致，否则每轮都会被误判为更新
		if !b.SameContent(a) {
			t.Fatalf("round trip changed article %.40q:\nwrote %+v\nread  %+v", a.URL, a, b)
		}
	}
}

func TestStoreListRecentAndFindSince(t *testing.T) {
	ctx := context.Background()
	s, collection := openTestStore(t)
	ts := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	err := s.UpsertMany(ctx, collection, []processor.Article{
		{URL: "old", PublishedAt: ts.Add(-48 * time.Hour)},
		{URL: "mid", PublishedAt: ts},
		{URL: "new", PublishedAt: ts.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("UpsertMany error: %v", err)
	}

	recent, err := s.ListRecent(ctx, collection, 2)
	if err != nil || len(recent) != 2 || recent[0].URL != "new" || recent[1].URL != "mid" {
		t.Fatalf("unexpected ListRecent: %+v (%v)", recent, err)
	}
	since, err := s.FindSince(ctx, collection, ts)
	if err != nil || len(since) != 2 {
		t.Fatalf("FindSince expected 2, got %d (%v)", len(since), err)
	}
	if other, _ := s.FindAll(ctx, collection+"_other"); len(other) != 0 {
		t.Fatalf("collections must be isolated, got %d", len(other))
	}
}
