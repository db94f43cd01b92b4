package youtube

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

func TestSearchJoinsStatistics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "yt-key" {
			t.Errorf("missing api key")
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/search":
			if r.URL.Query().Get("order") != "viewCount" || r.URL.Query().Get("q") != "캠핑" {
				t.Errorf("unexpected search query %s", r.URL.RawQuery)
			}
			_, _ = io.WriteString(w, `{"items":[{"id":{"videoId":"a"}},{"id":{"videoId":"b"}}]}`)
		case "/videos":
			if r.URL.Query().Get("id") != "a,b" {
				t.Errorf("ids = %q", r.URL.Query().Get("id"))
			}
			_, _ = io.WriteString(w, `{"items":[
				{"id":"a","snippet":{"title":"캠핑 브이로그","channelTitle":"숲","publishedAt":"2026-01-02T03:04:05Z","thumbnails":{"medium":{"url":"https://i/a.jpg"}}},"statistics":{"viewCount":"1200","likeCount":"30"}},
				{"id":"b","snippet":{"title":"겨울 캠핑","channelTitle":"산"},"statistics":{"viewCount":"oops"}}
			]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewClient(Options{APIKey: "yt-key", BaseURL: srv.URL})
	defer client.Close()

	videos, err := client.Search(context.Background(), " 캠핑 ", 5)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("videos = %d, want 2", len(videos))
	}
	if videos[0].ViewCount != 1200 || videos[0].Thumbnail != "https://i/a.jpg" || videos[0].ChannelTitle != "숲" {
		t.Fatalf("first video = %+v", videos[0])
	}
	if videos[1].ViewCount != 0 {
		t.Fatalf("unparseable view count should be 0, got %d", videos[1].ViewCount)
	}
}

func TestSearchDecodesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"quotaExceeded"}}`)
	}))
	defer srv.Close()

	client := NewClient(Options{APIKey: "yt-key", BaseURL: srv.URL})
	_, err := client.Search(context.Background(), "go", 5)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Fatalf("error = %v", err)
	}
}

func TestSearchEmptyResults(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"items":[]}`)
	}))
	defer srv.Close()

	videos, err := NewClient(Options{APIKey: "k", BaseURL: srv.URL}).Search(context.Background(), "none", 0)
	if err != nil || len(videos) != 0 {
		t.Fatalf("videos = %v, err = %v", videos, err)
	}
	if calls != 1 {
		t.Fatalf("videos endpoint should be skipped, calls = %d", calls)
	}
}

func TestSearchRequiresKeyAndQuery(t *testing.T) {
	if _, err := NewClient(Options{}).Search(context.Background(), "go", 5); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v", err)
	}
	if _, err := NewClient(Options{APIKey: "k"}).Search(context.Background(), "  ", 5); err == nil {
		t.Fatalf("expected error for empty query")
	}
}

func TestSearchOpensBreakerAfterFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Options{APIKey: "k", BaseURL: srv.URL, FailureThreshold: 2, CooldownPeriod: time.Hour})
	for i := 0; i < 2; i++ {
		if _, err := client.Search(context.Background(), "go", 5); err == nil {
			t.Fatalf("call %d: expected upstream error", i)
		}
	}
	_, err := client.Search(context.Background(), "go", 5)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want open breaker", err)
	}
	if calls != 2 {
		t.Fatalf("open breaker should short-circuit, calls = %d", calls)
	}
}
