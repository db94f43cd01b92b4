// Package trends answers keyword popularity lookups from cache and spends
// a per-caller daily quota only when a fresh remote query is needed.
package trends

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"academy/internal/domain"
	"academy/internal/lookupcache"
	"academy/internal/metrics"
	"academy/internal/providers/youtube"
)

// Searcher returns ranked videos for a query.
type Searcher interface {
	Search(ctx context.Context, query string, max int) ([]youtube.Video, error)
}

// ChannelCount is one entry of the top channel summary.
type ChannelCount struct {
	Channel string `json:"channel"`
	Videos  int    `json:"videos"`
	Views   int64  `json:"views"`
}

// Summary aggregates the ranked video list.
type Summary struct {
	TotalViews  int64          `json:"total_views"`
	AvgViews    int64          `json:"avg_views"`
	TopChannels []ChannelCount `json:"top_channels"`
	Keywords    []string       `json:"keywords"`
}

// Report is the result of one trend analysis.
type Report struct {
	Keyword     string          `json:"keyword"`
	Videos      []youtube.Video `json:"videos"`
	Summary     Summary         `json:"summary"`
	GeneratedAt time.Time       `json:"generated_at"`
	Cached      bool            `json:"cached"`
	Remaining   int             `json:"remaining"`
}

// Options configures an Analyzer.
type Options struct {
	TTL        time.Duration
	MaxResults int
	Logger     *zerolog.Logger
}

// Analyzer serves trend reports.
type Analyzer struct {
	cache      *lookupcache.Cache[Report]
	search     Searcher
	ttl        time.Duration
	maxResults int
	logger     zerolog.Logger
}

// NewAnalyzer wires a report cache with a search backend.
func NewAnalyzer(cache *lookupcache.Cache[Report], search Searcher, opts Options) *Analyzer {
	a := &Analyzer{cache: cache, search: search, ttl: opts.TTL, maxResults: opts.MaxResults, logger: zerolog.Nop()}
	if a.ttl <= 0 {
		a.ttl = time.Hour
	}
	if a.maxResults <= 0 {
		a.maxResults = 10
	}
	if opts.Logger != nil {
		a.logger = *opts.Logger
	}
	return a
}

// Analyze returns the report for keyword. Cache hits never touch the quota;
// a miss consumes one unit atomically before the remote query and fails with
// ErrQuotaExceeded once the caller's daily allowance is spent. A failed
// remote query refunds its unit.
func (a *Analyzer) Analyze(ctx context.Context, callerID, keyword string) (Report, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return Report{}, fmt.Errorf("trends: keyword is required: %w", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(keyword) > 100 {
		return Report{}, fmt.Errorf("trends: keyword too long: %w", domain.ErrInvalidInput)
	}

	if cached, ok := a.cache.Get(keyword); ok {
		metrics.RecordTrendLookup(true)
		cached.Cached = true
		cached.Remaining = a.cache.CheckQuota(callerID).Remaining
		return cached, nil
	}
	metrics.RecordTrendLookup(false)

	quota := a.cache.TryConsume(callerID)
	if !quota.Allowed {
		metrics.RecordQuotaRejection()
		a.logger.Info().Str("caller_id", callerID).Msg("trend lookup refused: daily quota exhausted")
		return Report{}, fmt.Errorf("trends: %s: %w", callerID, domain.ErrQuotaExceeded)
	}

	start := time.Now()
	videos, err := a.search.Search(ctx, keyword, a.maxResults)
	metrics.RecordProviderCall("youtube", time.Since(start), err)
	if err != nil {
		// the caller got nothing for this unit
		a.cache.RefundQuota(callerID)
		a.logger.Warn().Err(err).Str("caller_id", callerID).Str("keyword", keyword).Msg("trend search failed")
		return Report{}, fmt.Errorf("trends: search %q: %w: %v", keyword, domain.ErrProviderFailure, err)
	}

	report := Report{
		Keyword:     keyword,
		Videos:      videos,
		Summary:     Summarize(keyword, videos),
		GeneratedAt: time.Now().UTC(),
	}
	a.cache.Put(keyword, report, a.ttl)

	report.Remaining = quota.Remaining
	return report, nil
}

// Quota reports the caller's remaining allowance without consuming it.
func (a *Analyzer) Quota(callerID string) lookupcache.QuotaStatus {
	return a.cache.CheckQuota(callerID)
}

// Limit returns the configured daily allowance.
func (a *Analyzer) Limit() int {
	return a.cache.DailyLimit()
}

const (
	topChannels = 5
	topKeywords = 10
)

// Summarize computes view totals, the busiest channels and the most
// frequent title words other than the query itself.
func Summarize(keyword string, videos []youtube.Video) Summary {
	s := Summary{TopChannels: []ChannelCount{}, Keywords: []string{}}
	if len(videos) == 0 {
		return s
	}

	channels := map[string]*ChannelCount{}
	words := map[string]int{}
	exclude := map[string]bool{}
	for _, w := range tokenize(keyword) {
		exclude[w] = true
	}

	for _, v := range videos {
		s.TotalViews += v.ViewCount
		if v.ChannelTitle != "" {
			c, ok := channels[v.ChannelTitle]
			if !ok {
				c = &ChannelCount{Channel: v.ChannelTitle}
				channels[v.ChannelTitle] = c
			}
			c.Videos++
			c.Views += v.ViewCount
		}
		seen := map[string]bool{}
		for _, w := range tokenize(v.Title) {
			if exclude[w] || seen[w] {
				continue
			}
			seen[w] = true
			words[w]++
		}
	}
	s.AvgViews = s.TotalViews / int64(len(videos))

	for _, c := range channels {
		s.TopChannels = append(s.TopChannels, *c)
	}
	sort.Slice(s.TopChannels, func(i, j int) bool {
		if s.TopChannels[i].Views != s.TopChannels[j].Views {
			return s.TopChannels[i].Views > s.TopChannels[j].Views
		}
		return s.TopChannels[i].Channel < s.TopChannels[j].Channel
	})
	if len(s.TopChannels) > topChannels {
		s.TopChannels = s.TopChannels[:topChannels]
	}

	for w := range words {
		s.Keywords = append(s.Keywords, w)
	}
	sort.Slice(s.Keywords, func(i, j int) bool {
		if words[s.Keywords[i]] != words[s.Keywords[j]] {
			return words[s.Keywords[i]] > words[s.Keywords[j]]
		}
		return s.Keywords[i] < s.Keywords[j]
	})
	if len(s.Keywords) > topKeywords {
		s.Keywords = s.Keywords[:topKeywords]
	}
	return s
}

// tokenize splits on anything that is not a letter or digit and drops
// single-rune tokens.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}
