package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
)

func guardianServer(t *testing.T, pages int, failPage int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("api-key") != "key" {
			t.Errorf("missing api-key")
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page == failPage {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"response":{"status":"ok","pages":%d,"results":[
			{"webTitle":"Bitcoin rally %d","webUrl":"https://www.theguardian.com/a/%d","webPublicationDate":"2024-01-02T10:00:00Z","sectionName":"Business","fields":{"trailText":"<strong>Good</strong> news"}},
			{"webTitle":"Crypto crash %d","webUrl":"https://www.theguardian.com/b/%d","webPublicationDate":"2024-01-03T10:00:00Z"}
		]}}`, pages, page, page, page, page)
	}))
}

func TestGuardianFetchesAllPages(t *testing.T) {
	var hits atomic.Int32
	srv := guardianServer(t, 3, 0, &hits)
	defer srv.Close()

	g := &GuardianFetcher{APIKey: "key", BaseURL: srv.URL}
	drafts, err := g.FetchAll(context.Background(), "crypto")
	if err != nil {
		t.Fatalf("FetchAll error: %v", err)
	}
	if len(drafts) != 6 {
		t.Fatalf("expected 6 drafts from 3 pages, got %d", len(drafts))
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 page requests, got %d", hits.Load())
	}
	d := drafts[0]
	if d.SourceLabel != "theguardian" {
		t.Fatalf("SourceLabel = %q, want theguardian", d.SourceLabel)
	}
	if d.Body != "Good news" {
		t.Fatalf("Body = %q, want tags stripped", d.Body)
	}
	if d.PublishedAt.IsZero() {
		t.Fatalf("PublishedAt should be parsed")
	}
}

func TestGuardianCapsPages(t *testing.T) {
	var hits atomic.Int32
	srv := guardianServer(t, 50, 0, &hits)
	defer srv.Close()

	g := &GuardianFetcher{APIKey: "key", BaseURL: srv.URL, Options: Options{MaxPages: 2}}
	drafts, err := g.FetchAll(context.Background(), "crypto")
	if err != nil {
		t.Fatalf("FetchAll error: %v", err)
	}
	if len(drafts) != 4 || hits.Load() != 2 {
		t.Fatalf("expected 2 pages / 4 drafts, got %d requests / %d drafts", hits.Load(), len(drafts))
	}
}

func TestGuardianPageFailureAbortsRun(t *testing.T) {
	var hits atomic.Int32
	srv := guardianServer(t, 3, 2, &hits)
	defer srv.Close()

	g := &GuardianFetcher{APIKey: "key", BaseURL: srv.URL}
	drafts, err := g.FetchAll(context.Background(), "crypto")
	if err == nil {
		t.Fatalf("expected error, got %d drafts", len(drafts))
	}
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %T: %v", err, err)
	}
	if upErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("StatusCode = %d, want 502", upErr.StatusCode)
	}
	if drafts != nil {
		t.Fatalf("no partial results expected on failure")
	}
}

func TestGuardianRejectsMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":"unauthorized"}`)
	}))
	defer srv.Close()

	g := &GuardianFetcher{APIKey: "key", BaseURL: srv.URL}
	_, err := g.FetchAll(context.Background(), "crypto")
	var upErr *UpstreamError
	if !errors.As(err, &upErr) || !errors.Is(err, errMalformed) {
		t.Fatalf("expected malformed UpstreamError, got %v", err)
	}
}

func TestNYTimesUsesHitsForPageCount(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/svc/search/v2/articlesearch.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		page := r.URL.Query().Get("page")
		fmt.Fprintf(w, `{"status":"OK","response":{"meta":{"hits":25},"docs":[
			{"web_url":"https://www.nytimes.com/2024/01/02/p%s.html","abstract":"A great day","pub_date":"2024-01-02T10:00:00+0000","headline":{"main":"Markets %s"}}
		]}}`, page, page)
	}))
	defer srv.Close()

	n := &NYTimesFetcher{APIKey: "key", BaseURL: srv.URL}
	drafts, err := n.FetchAll(context.Background(), "crypto")
	if err != nil {
		t.Fatalf("FetchAll error: %v", err)
	}
	// 25 hits -> 3 页 (0, 1, 2)
	if hits.Load() != 3 || len(drafts) != 3 {
		t.Fatalf("expected 3 pages, got %d requests / %d drafts", hits.Load(), len(drafts))
	}
	if drafts[0].SourceLabel != "nytimes" || drafts[0].Body != "A great day" {
		t.Fatalf("unexpected draft: %+v", drafts[0])
	}
}

func TestStripTagsDecodesEntitiesAndKeepsText(t *testing.T) {
	cases := map[string]string{
		"<p>Bitcoin&rsquo;s &quot;rally&quot; &amp; price</p>": "Bitcoin’s \"rally\" & price",
		"Fees fell when price < 5 and miners left":             "Fees fell when price < 5 and miners left",
		"<p>first</p><p>second</p>":                            "first second",
		"It&#x27;s <i>over</i><script>alert(1)</script>":       "It's over",
		"": "",
	}
	for in, want := range cases {
		if got := stripTags(in); got != want {
			t.Fatalf("stripTags(%q) = %q, want %q", in, got, want)
		}
	}
}
