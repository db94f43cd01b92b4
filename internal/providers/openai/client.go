// Package openai wraps the chat, image and speech endpoints used by the
// content tools.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	goopenai "github.com/sashabaranov/go-openai"

	"academy/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("openai: api key is required")

// Options configures the OpenAI client.
type Options struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	ImageModel     string
	SpeechModel    string
	Voice          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs calls against the OpenAI API.
type Client struct {
	api         *goopenai.Client
	apiKey      string
	chatModel   string
	imageModel  string
	speechModel string
	voice       string
	logger      *infra.Logger
}

// Image is a decoded image generation result.
type Image struct {
	Data          []byte
	MIME          string
	RevisedPrompt string
}

// NewClient constructs a client with defaults for every unset option.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	apiKey := strings.TrimSpace(opts.APIKey)
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = httpClient

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		api:         goopenai.NewClientWithConfig(cfg),
		apiKey:      apiKey,
		chatModel:   coalesce(opts.ChatModel, "gpt-4o-mini"),
		imageModel:  coalesce(opts.ImageModel, goopenai.CreateImageModelDallE3),
		speechModel: coalesce(opts.SpeechModel, string(goopenai.TTSModel1)),
		voice:       coalesce(opts.Voice, string(goopenai.VoiceAlloy)),
		logger:      logger,
	}
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c != nil && c.apiKey != ""
}

// ChatJSON sends one system and one user message and returns the raw
// assistant content, requesting a JSON object response.
func (c *Client) ChatJSON(ctx context.Context, system, user string) (string, error) {
	if !c.HasCredentials() {
		return "", ErrMissingAPIKey
	}
	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.chatModel,
		Temperature: 0.7,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("model", c.chatModel).Msg("openai chat failed")
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: chat completion returned no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("openai: chat completion returned empty content")
	}
	return content, nil
}

// GenerateImage renders one image and returns its decoded bytes.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (*Image, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("openai: prompt is required")
	}
	req := goopenai.ImageRequest{
		Prompt: prompt,
		Model:  c.imageModel,
		N:      1,
		Size:   goopenai.CreateImageSize1024x1024,
	}
	// gpt-image models always answer with base64 and reject the field.
	if !strings.HasPrefix(c.imageModel, "gpt-image") {
		req.ResponseFormat = goopenai.CreateImageResponseFormatB64JSON
	}
	resp, err := c.api.CreateImage(ctx, req)
	if err != nil {
		c.logger.Warn().Err(err).Str("model", c.imageModel).Msg("openai image failed")
		return nil, fmt.Errorf("openai: create image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, errors.New("openai: create image returned no data")
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("openai: decode image: %w", err)
	}
	return &Image{Data: data, MIME: http.DetectContentType(data), RevisedPrompt: resp.Data[0].RevisedPrompt}, nil
}

// Speech synthesizes narration as MP3.
func (c *Client) Speech(ctx context.Context, text string) ([]byte, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("openai: speech input is required")
	}
	resp, err := c.api.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(c.speechModel),
		Input:          text,
		Voice:          goopenai.SpeechVoice(c.voice),
		ResponseFormat: goopenai.SpeechResponseFormatMp3,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("model", c.speechModel).Msg("openai speech failed")
		return nil, fmt.Errorf("openai: create speech: %w", err)
	}
	defer resp.Close()
	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("openai: read speech: %w", err)
	}
	return data, nil
}

func coalesce(v, fallback string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return fallback
}
