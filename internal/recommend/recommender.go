// Package recommend suggests courses and study topics through a chat model.
package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"academy/internal/domain"
	"academy/internal/metrics"
	"academy/internal/providers/openai"
)

// ChatClient returns the raw JSON content of one chat completion.
type ChatClient interface {
	ChatJSON(ctx context.Context, system, user string) (string, error)
	HasCredentials() bool
}

// Request describes the learner asking for recommendations.
type Request struct {
	Goal      string   `json:"goal"`
	Level     string   `json:"level"`
	Interests []string `json:"interests"`
}

// Recommendation is one suggested topic.
type Recommendation struct {
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// Result is the recommendation list and where it came from.
type Result struct {
	Recommendations []Recommendation `json:"recommendations"`
	Provider        string           `json:"provider"`
}

const (
	providerOpenAI    = "openai"
	providerSynthetic = "synthetic"
	maxItems          = 5
)

const systemPrompt = "당신은 온라인 강의 플랫폼의 학습 코치입니다. 반드시 유효한 JSON만 응답하세요. " +
	`형식: {"recommendations":[{"title":"...","reason":"..."}]}`

// Recommender builds prompts and parses model output.
type Recommender struct {
	chat    ChatClient
	catalog []domain.Course
	logger  zerolog.Logger
}

// New returns a Recommender. catalog titles are offered to the model as
// preferred suggestions.
func New(chat ChatClient, catalog []domain.Course, logger *zerolog.Logger) *Recommender {
	r := &Recommender{chat: chat, catalog: catalog, logger: zerolog.Nop()}
	if logger != nil {
		r.logger = *logger
	}
	return r
}

// Recommend returns up to five suggestions. Without a configured model the
// result is built from the catalog.
func (r *Recommender) Recommend(ctx context.Context, req Request) (Result, error) {
	req.Goal = strings.TrimSpace(req.Goal)
	req.Level = strings.TrimSpace(req.Level)
	if req.Goal == "" {
		return Result{}, fmt.Errorf("recommend: goal is required: %w", domain.ErrInvalidInput)
	}
	if r.chat == nil || !r.chat.HasCredentials() {
		return r.synthetic(req), nil
	}

	start := time.Now()
	content, err := r.chat.ChatJSON(ctx, systemPrompt, r.buildPrompt(req))
	metrics.RecordProviderCall(providerOpenAI, time.Since(start), err)
	if err != nil {
		r.logger.Warn().Err(err).Msg("recommend: chat failed")
		return Result{}, fmt.Errorf("recommend: %w: %v", domain.ErrProviderFailure, err)
	}
	items, err := Parse(content)
	if err != nil {
		r.logger.Warn().Err(err).Msg("recommend: unparseable model output")
		return Result{}, fmt.Errorf("recommend: %w: %v", domain.ErrProviderFailure, err)
	}
	return Result{Recommendations: items, Provider: providerOpenAI}, nil
}

func (r *Recommender) buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "학습 목표: %s\n", req.Goal)
	if req.Level != "" {
		fmt.Fprintf(&b, "현재 수준: %s\n", req.Level)
	}
	if interests := cleanList(req.Interests); len(interests) > 0 {
		fmt.Fprintf(&b, "관심 분야: %s\n", strings.Join(interests, ", "))
	}
	if len(r.catalog) > 0 {
		b.WriteString("가능하면 다음 강의 중에서 우선 추천하세요:\n")
		for _, c := range r.catalog {
			fmt.Fprintf(&b, "- %s\n", c.Title)
		}
	}
	fmt.Fprintf(&b, "최대 %d개의 추천을 한국어로, 각 추천마다 한 문장의 이유와 함께 작성하세요.", maxItems)
	return b.String()
}

func (r *Recommender) synthetic(req Request) Result {
	items := make([]Recommendation, 0, maxItems)
	for _, c := range r.catalog {
		if len(items) == maxItems {
			break
		}
		items = append(items, Recommendation{
			Title:  c.Title,
			Reason: fmt.Sprintf("'%s' 목표에 필요한 기초를 다룹니다.", req.Goal),
		})
	}
	if len(items) == 0 {
		items = append(items, Recommendation{Title: req.Goal + " 입문", Reason: "목표와 직접 관련된 기초부터 시작하세요."})
	}
	return Result{Recommendations: items, Provider: providerSynthetic}
}

// Parse decodes model output, tolerating markdown code fences and
// surrounding prose. Items without a title are dropped.
func Parse(content string) ([]Recommendation, error) {
	raw := openai.ExtractJSON(content)
	if raw == "" {
		return nil, errors.New("no json object in response")
	}
	var payload struct {
		Recommendations []Recommendation `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode recommendations: %w", err)
	}
	out := make([]Recommendation, 0, len(payload.Recommendations))
	for _, item := range payload.Recommendations {
		item.Title = strings.TrimSpace(item.Title)
		item.Reason = strings.TrimSpace(item.Reason)
		if item.Title == "" {
			continue
		}
		out = append(out, item)
		if len(out) == maxItems {
			break
		}
	}
	if len(out) == 0 {
		return nil, errors.New("empty recommendation list")
	}
	return out, nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
