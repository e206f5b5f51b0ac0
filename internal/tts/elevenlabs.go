package tts

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/cuongbtq/audio-pipeline/internal/domain"
	"github.com/cuongbtq/audio-pipeline/internal/provider"
	"github.com/go-resty/resty/v2"
)

const elevenLabsName = "elevenlabs"

// VoiceSettings are the per-request voice tuning parameters
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// ElevenLabsConfig configures the ElevenLabs synthesizer
type ElevenLabsConfig struct {
	BaseURL       string
	APIKey        string
	VoiceID       string
	ModelID       string
	OutputFormat  string
	VoiceSettings VoiceSettings
	Timeout       time.Duration
	RetryCount    int
	RetryWait     time.Duration
}

// ElevenLabs synthesizes speech with the ElevenLabs text-to-speech API
type ElevenLabs struct {
	client *resty.Client
	config ElevenLabsConfig
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id,omitempty"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// NewElevenLabs creates a new ElevenLabs synthesizer
func NewElevenLabs(cfg ElevenLabsConfig) *ElevenLabs {
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	client := provider.NewClient(provider.ClientConfig{
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
		RetryCount: cfg.RetryCount,
		RetryWait:  cfg.RetryWait,
	}).
		SetHeader("xi-api-key", cfg.APIKey).
		SetHeader("Accept", "audio/mpeg")

	return &ElevenLabs{client: client, config: cfg}
}

func (e *ElevenLabs) Name() string {
	return elevenLabsName
}

// Synthesize renders text with the configured voice
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*Audio, error) {
	resp, err := e.client.R().
		SetContext(ctx).
		SetPathParam("voice_id", e.config.VoiceID).
		SetQueryParam("output_format", e.config.OutputFormat).
		SetHeader("Content-Type", "application/json").
		SetBody(synthesisRequest{
			Text:          text,
			ModelID:       e.config.ModelID,
			VoiceSettings: e.config.VoiceSettings,
		}).
		Post("/v1/text-to-speech/{voice_id}")
	if err != nil {
		return nil, fmt.Errorf("%w: %s request: %w", domain.ErrSynthesis, elevenLabsName, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %w", domain.ErrSynthesis, provider.NewError(elevenLabsName, resp))
	}

	contentType := resp.Header().Get("Content-Type")
	if !isAudio(contentType) {
		return nil, fmt.Errorf("%w: %w: %s: unexpected content type %q", domain.ErrSynthesis, domain.ErrSchemaMismatch, elevenLabsName, contentType)
	}
	data := resp.Body()
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %w: %s: empty audio body", domain.ErrSynthesis, domain.ErrSchemaMismatch, elevenLabsName)
	}

	return &Audio{
		Data:        data,
		ContentType: "audio/mpeg",
		RequestID:   resp.Header().Get("request-id"),
	}, nil
}

func isAudio(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "audio/") || mediaType == "application/octet-stream"
}
