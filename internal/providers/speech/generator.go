// Package speech turns scene narration into audio.
package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"unicode/utf8"

	"academy/internal/providers/openai"
)

// Asset is synthesized audio.
type Asset struct {
	Data []byte
	MIME string
}

// Generator is the contract implemented by all speech providers.
type Generator interface {
	Synthesize(ctx context.Context, text string) (Asset, error)
}

type openAISpeechClient interface {
	Speech(ctx context.Context, text string) ([]byte, error)
	HasCredentials() bool
}

// OpenAIGenerator synthesizes narration through the OpenAI speech endpoint.
type OpenAIGenerator struct {
	client   openAISpeechClient
	fallback Generator
}

// NewOpenAIGenerator wires a client with an optional fallback generator.
func NewOpenAIGenerator(client openAISpeechClient, fallback Generator) *OpenAIGenerator {
	return &OpenAIGenerator{client: client, fallback: fallback}
}

func (g *OpenAIGenerator) Synthesize(ctx context.Context, text string) (Asset, error) {
	if g.client == nil || !g.client.HasCredentials() {
		if g.fallback != nil {
			return g.fallback.Synthesize(ctx, text)
		}
		return Asset{}, openai.ErrMissingAPIKey
	}
	data, err := g.client.Speech(ctx, text)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Data: data, MIME: "audio/mpeg"}, nil
}

const (
	sampleRate     = 8000
	msPerRune      = 60
	maxSilenceSecs = 30
)

// Synthetic produces a silent mono WAV whose duration follows the text
// length.
type Synthetic struct{}

func NewSynthetic() *Synthetic { return &Synthetic{} }

func (Synthetic) Synthesize(ctx context.Context, text string) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Asset{}, errors.New("speech: text is required")
	}
	ms := utf8.RuneCountInString(text) * msPerRune
	if ms > maxSilenceSecs*1000 {
		ms = maxSilenceSecs * 1000
	}
	return Asset{Data: silentWAV(sampleRate * ms / 1000), MIME: "audio/wav"}, nil
}

// silentWAV encodes n samples of 8-bit PCM silence.
func silentWAV(n int) []byte {
	if n < 1 {
		n = 1
	}
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+n))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(8))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(n))
	buf.Write(bytes.Repeat([]byte{0x80}, n))
	return buf.Bytes()
}

var (
	_ Generator = (*OpenAIGenerator)(nil)
	_ Generator = Synthetic{}
)
