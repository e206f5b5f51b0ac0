package script

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cuongbtq/audio-pipeline/internal/domain"
)

const (
	// DefaultMinChars is the shortest script worth synthesizing
	DefaultMinChars = 50
	// DefaultMaxChars keeps a request under the synthesis provider's size limit
	DefaultMaxChars = 2500
)

var (
	headingPattern      = regexp.MustCompile(`(?m)^\s*#{1,6}\s*`)
	markdownLinkPattern = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	urlPattern          = regexp.MustCompile(`(?i)(?:https?://|www\.)\S+`)
	boldPattern         = regexp.MustCompile(`\*\*(.+?)\*\*`)
	underlinePattern    = regexp.MustCompile(`__(.+?)__`)
	strikePattern       = regexp.MustCompile(`~~(.+?)~~`)
	italicStarPattern   = regexp.MustCompile(`\*([^*\n]+)\*`)
	italicUnderPattern  = regexp.MustCompile(`\b_([^_\n]+)_\b`)
	strayMarkerPattern  = regexp.MustCompile(`\*+|~~+|__+`)
	emojiPattern        = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}\x{2600}-\x{27BF}\x{2B00}-\x{2BFF}\x{FE00}-\x{FE0F}\x{200D}\x{20E3}\x{E0020}-\x{E007F}]`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
)

// Sanitize turns generated text into plain speakable text.
// Markup, URLs and emoji are removed; link text is kept.
func Sanitize(text string) string {
	out := headingPattern.ReplaceAllString(text, "")
	out = markdownLinkPattern.ReplaceAllString(out, "$1")
	out = urlPattern.ReplaceAllString(out, "")
	out = boldPattern.ReplaceAllString(out, "$1")
	out = underlinePattern.ReplaceAllString(out, "$1")
	out = strikePattern.ReplaceAllString(out, "$1")
	out = italicStarPattern.ReplaceAllString(out, "$1")
	out = italicUnderPattern.ReplaceAllString(out, "$1")
	out = strayMarkerPattern.ReplaceAllString(out, "")
	out = emojiPattern.ReplaceAllString(out, "")
	out = whitespacePattern.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// ValidateLength checks the rune count of text against [minChars, maxChars]
func ValidateLength(text string, minChars, maxChars int) error {
	n := utf8.RuneCountInString(text)
	if n < minChars {
		return fmt.Errorf("%w: %d characters, minimum is %d", domain.ErrInvalidScriptLength, n, minChars)
	}
	if n > maxChars {
		return fmt.Errorf("%w: %d characters, maximum is %d", domain.ErrInvalidScriptLength, n, maxChars)
	}
	return nil
}
