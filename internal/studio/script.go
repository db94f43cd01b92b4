package studio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"academy/internal/domain"
	"academy/internal/metrics"
	"academy/internal/providers/openai"
)

// ChatClient returns the raw JSON content of one chat completion.
type ChatClient interface {
	ChatJSON(ctx context.Context, system, user string) (string, error)
	HasCredentials() bool
}

// ScriptScene is one planned scene before generation.
type ScriptScene struct {
	Prompt    string `json:"prompt"`
	Narration string `json:"narration"`
}

const scriptSystemPrompt = "당신은 짧은 영상 콘텐츠의 스토리보드 작가입니다. 반드시 유효한 JSON만 응답하세요. " +
	`형식: {"scenes":[{"prompt":"이미지 생성용 영어 묘사","narration":"한국어 내레이션 한두 문장"}]}`

// ClampSceneCount bounds a requested scene count to [1, max].
func ClampSceneCount(n, max int) int {
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}

// Script drafts sceneCount scenes for topic. Without a configured chat
// model the draft is synthetic.
func (s *Service) Script(ctx context.Context, topic string, sceneCount int) ([]ScriptScene, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("studio: topic is required: %w", domain.ErrInvalidInput)
	}
	count := ClampSceneCount(sceneCount, s.maxScenes)
	if s.chat == nil || !s.chat.HasCredentials() {
		return syntheticScript(topic, count), nil
	}

	user := fmt.Sprintf("주제: %s\n장면 수: 정확히 %d개\n각 장면은 이전 장면과 자연스럽게 이어지도록 작성하세요.", topic, count)
	start := time.Now()
	content, err := s.chat.ChatJSON(ctx, scriptSystemPrompt, user)
	metrics.RecordProviderCall("openai", time.Since(start), err)
	if err != nil {
		s.logger.Warn().Err(err).Msg("studio: script generation failed")
		return nil, fmt.Errorf("studio: script: %w: %v", domain.ErrProviderFailure, err)
	}
	scenes, err := parseScript(content, count)
	if err != nil {
		s.logger.Warn().Err(err).Msg("studio: unparseable script")
		return nil, fmt.Errorf("studio: script: %w: %v", domain.ErrProviderFailure, err)
	}
	return scenes, nil
}

func parseScript(content string, max int) ([]ScriptScene, error) {
	raw := openai.ExtractJSON(content)
	if raw == "" {
		return nil, errors.New("no json object in response")
	}
	var payload struct {
		Scenes []ScriptScene `json:"scenes"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode scenes: %w", err)
	}
	out := make([]ScriptScene, 0, len(payload.Scenes))
	for _, sc := range payload.Scenes {
		sc.Prompt = strings.TrimSpace(sc.Prompt)
		sc.Narration = strings.TrimSpace(sc.Narration)
		if sc.Prompt == "" {
			continue
		}
		out = append(out, sc)
		if len(out) == max {
			break
		}
	}
	if len(out) == 0 {
		return nil, errors.New("script contained no scenes")
	}
	return out, nil
}

func syntheticScript(topic string, count int) []ScriptScene {
	scenes := make([]ScriptScene, count)
	for i := range scenes {
		scenes[i] = ScriptScene{
			Prompt:    fmt.Sprintf("%s, scene %d of %d, cinematic illustration, soft light", topic, i+1, count),
			Narration: fmt.Sprintf("%s 이야기의 %d번째 장면입니다.", topic, i+1),
		}
	}
	return scenes
}
