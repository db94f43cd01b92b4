package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	stdimage "image"
	"image/color"
	"image/png"
	"strings"

	"academy/internal/providers/openai"
)

// Request describes one still image to render.
type Request struct {
	Prompt    string
	RequestID string
}

// Asset is a rendered image.
type Asset struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Generator is the contract implemented by all image providers.
type Generator interface {
	Generate(ctx context.Context, req Request) (Asset, error)
}

type openAIImageClient interface {
	GenerateImage(ctx context.Context, prompt string) (*openai.Image, error)
	HasCredentials() bool
}

// OpenAIGenerator renders images through the OpenAI image endpoint and
// uses a fallback generator when credentials are missing.
type OpenAIGenerator struct {
	client   openAIImageClient
	fallback Generator
}

// NewOpenAIGenerator wires a client with an optional fallback generator.
func NewOpenAIGenerator(client openAIImageClient, fallback Generator) *OpenAIGenerator {
	return &OpenAIGenerator{client: client, fallback: fallback}
}

// Generate fulfils the Generator interface.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Asset, error) {
	if g == nil {
		return Asset{}, errors.New("image generator not configured")
	}
	if g.client == nil || !g.client.HasCredentials() {
		if g.fallback != nil {
			return g.fallback.Generate(ctx, req)
		}
		return Asset{}, openai.ErrMissingAPIKey
	}
	img, err := g.client.GenerateImage(ctx, req.Prompt)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Data: img.Data, MIME: img.MIME, Width: 1024, Height: 1024}, nil
}

// Synthetic renders a deterministic gradient PNG for environments without
// provider keys.
type Synthetic struct {
	Width  int
	Height int
}

// NewSynthetic returns a 16:9 synthetic generator.
func NewSynthetic() *Synthetic {
	return &Synthetic{Width: 320, Height: 180}
}

func (s *Synthetic) Generate(ctx context.Context, req Request) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return Asset{}, errors.New("image: prompt is required")
	}
	w, h := s.Width, s.Height
	if w <= 0 || h <= 0 {
		w, h = 320, 180
	}
	sum := sha256.Sum256([]byte(prompt))
	from := color.RGBA{R: sum[0], G: sum[1], B: sum[2], A: 0xff}
	to := color.RGBA{R: sum[3], G: sum[4], B: sum[5], A: 0xff}

	canvas := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		c := lerp(from, to, x, w)
		for y := 0; y < h; y++ {
			canvas.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return Asset{}, fmt.Errorf("image: encode png: %w", err)
	}
	return Asset{Data: buf.Bytes(), MIME: "image/png", Width: w, Height: h}, nil
}

func lerp(a, b color.RGBA, i, n int) color.RGBA {
	if n <= 1 {
		return a
	}
	mix := func(x, y uint8) uint8 {
		return uint8((int(x)*(n-1-i) + int(y)*i) / (n - 1))
	}
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 0xff}
}

var (
	_ Generator = (*OpenAIGenerator)(nil)
	_ Generator = (*Synthetic)(nil)
)
