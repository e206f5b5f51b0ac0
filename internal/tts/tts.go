package tts

import (
	"context"
	"math"
	"unicode/utf8"
)

// DefaultCharsPerSecond approximates conversational speech rate
const DefaultCharsPerSecond = 15.0

// Audio is a synthesized clip
type Audio struct {
	Data        []byte
	ContentType string
	RequestID   string
}

// Synthesizer converts text to speech.
// Errors returned by Synthesize wrap domain.ErrSynthesis.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) (*Audio, error)
}

// EstimateDuration approximates clip length in whole seconds from text length.
// It is not measured from the audio.
func EstimateDuration(text string, charsPerSecond float64) int {
	if charsPerSecond <= 0 {
		charsPerSecond = DefaultCharsPerSecond
	}
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n) / charsPerSecond))
}
