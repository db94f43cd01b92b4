// Package youtube queries the YouTube Data API for popular videos.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"resty.dev/v3"

	"academy/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("youtube: api key is required")

// Options configures the Data API client.
type Options struct {
	APIKey         string
	BaseURL        string
	RegionCode     string
	Language       string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
	// FailureThreshold consecutive upstream failures open the breaker.
	FailureThreshold uint32
	// CooldownPeriod is how long an open breaker rejects calls.
	CooldownPeriod time.Duration
}

// Client talks to the search and videos endpoints.
type Client struct {
	rest     *resty.Client
	apiKey   string
	region   string
	language string
	logger   *infra.Logger
	breaker  *gobreaker.CircuitBreaker[[]Video]
}

// Video is a single ranked search result with statistics.
type Video struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ChannelTitle string    `json:"channel_title"`
	PublishedAt  time.Time `json:"published_at"`
	ViewCount    int64     `json:"view_count"`
	LikeCount    int64     `json:"like_count"`
	CommentCount int64     `json:"comment_count"`
	Thumbnail    string    `json:"thumbnail"`
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string    `json:"title"`
			ChannelTitle string    `json:"channelTitle"`
			PublishedAt  time.Time `json:"publishedAt"`
			Thumbnails   map[string]struct {
				URL string `json:"url"`
			} `json:"thumbnails"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient constructs a client with defaults for every unset option.
func NewClient(opts Options) *Client {
	var rest *resty.Client
	if opts.HTTPClient != nil {
		rest = resty.NewWithClient(opts.HTTPClient)
	} else {
		rest = resty.New()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://www.googleapis.com/youtube/v3"
	}
	rest.SetBaseURL(baseURL).SetTimeout(timeout)

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	region := strings.ToUpper(strings.TrimSpace(opts.RegionCode))
	if region == "" {
		region = "KR"
	}
	language := strings.TrimSpace(opts.Language)
	if language == "" {
		language = "ko"
	}
	c := &Client{rest: rest, apiKey: strings.TrimSpace(opts.APIKey), region: region, language: language, logger: logger}
	c.breaker = newBreaker(opts, logger)
	return c
}

func newBreaker(opts Options, logger *infra.Logger) *gobreaker.CircuitBreaker[[]Video] {
	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	cooldown := opts.CooldownPeriod
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker[[]Video](gobreaker.Settings{
		Name:        "youtube",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// caller cancellations say nothing about upstream health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("youtube breaker state changed")
		},
	})
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c != nil && c.apiKey != ""
}

// Close releases idle connections held by the transport.
func (c *Client) Close() error {
	return c.rest.Close()
}

// Search returns up to max videos for query ordered by view count.
func (c *Client) Search(ctx context.Context, query string, max int) ([]Video, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("youtube: query is required")
	}
	if max <= 0 || max > 50 {
		max = 10
	}

	videos, err := c.breaker.Execute(func() ([]Video, error) {
		return c.search(ctx, query, max)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("youtube: %w", err)
	}
	return videos, err
}

func (c *Client) search(ctx context.Context, query string, max int) ([]Video, error) {
	var found searchResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":               c.apiKey,
			"part":              "id",
			"type":              "video",
			"order":             "viewCount",
			"q":                 query,
			"maxResults":        strconv.Itoa(max),
			"regionCode":        c.region,
			"relevanceLanguage": c.language,
		}).
		SetResult(&found).
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("youtube: search: %w", err)
	}
	if resp.IsError() {
		return nil, c.apiError("search", resp)
	}

	ids := make([]string, 0, len(found.Items))
	for _, item := range found.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	if len(ids) == 0 {
		return []Video{}, nil
	}

	var details videosResponse
	resp, err = c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":  c.apiKey,
			"part": "snippet,statistics",
			"id":   strings.Join(ids, ","),
		}).
		SetResult(&details).
		Get("/videos")
	if err != nil {
		return nil, fmt.Errorf("youtube: videos: %w", err)
	}
	if resp.IsError() {
		return nil, c.apiError("videos", resp)
	}

	videos := make([]Video, 0, len(details.Items))
	for _, item := range details.Items {
		v := Video{
			ID:           item.ID,
			Title:        item.Snippet.Title,
			ChannelTitle: item.Snippet.ChannelTitle,
			PublishedAt:  item.Snippet.PublishedAt,
			ViewCount:    parseCount(item.Statistics.ViewCount),
			LikeCount:    parseCount(item.Statistics.LikeCount),
			CommentCount: parseCount(item.Statistics.CommentCount),
		}
		for _, size := range []string{"high", "medium", "default"} {
			if thumb, ok := item.Snippet.Thumbnails[size]; ok && thumb.URL != "" {
				v.Thumbnail = thumb.URL
				break
			}
		}
		videos = append(videos, v)
	}
	return videos, nil
}

func (c *Client) apiError(op string, resp *resty.Response) error {
	var body errorResponse
	msg := strings.TrimSpace(resp.String())
	if err := json.Unmarshal([]byte(msg), &body); err == nil && body.Error.Message != "" {
		msg = body.Error.Message
	}
	c.logger.Warn().Int("status", resp.StatusCode()).Str("op", op).Msg("youtube api error")
	return fmt.Errorf("youtube: %s: status %d: %s", op, resp.StatusCode(), msg)
}

func parseCount(raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
