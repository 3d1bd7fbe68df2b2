package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHackerNewsSkipsDeletedAndFiltersByQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/topstories.json":
			fmt.Fprint(w, `[1,2,3,4]`)
		case "/item/1.json":
			fmt.Fprint(w, `{"id":1,"type":"story","title":"Bitcoin hits new high","url":"https://www.example.com/btc","time":1704189600,"score":50}`)
		case "/item/2.json":
			fmt.Fprint(w, `null`)
		case "/item/3.json":
			fmt.Fprint(w, `{"id":3,"type":"comment","text":"nice"}`)
		case "/item/4.json":
			fmt.Fprint(w, `{"id":4,"type":"story","title":"Ask HN: bitcoin wallets?","time":1704189600}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	h := &HackerNewsFetcher{BaseURL: srv.URL}
	drafts, err := h.FetchAll(context.Background(), "BITCOIN")
	if err != nil {
		t.Fatalf("FetchAll error: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("expected 2 stories, got %d: %+v", len(drafts), drafts)
	}
	for _, d := range drafts {
		if d.Extra["hn_id"] == 4 && d.URL != "https://news.ycombinator.com/item?id=4" {
			t.Fatalf("story without url should link to item page, got %q", d.URL)
		}
	}
}

func TestHackerNewsItemFailureAbortsRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/topstories.json" {
			fmt.Fprint(w, `[1,2]`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := &HackerNewsFetcher{BaseURL: srv.URL}
	if _, err := h.FetchAll(context.Background(), ""); err == nil {
		t.Fatalf("expected error when an item request fails")
	}
}
