package script

import (
	"cmp"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/cuongbtq/audio-pipeline/internal/domain"
)

// persona is the fixed voice every script is written in
const persona = "a warm, direct business growth coach recording a short personal voice message"

// PromptInput is everything the prompt is built from
type PromptInput struct {
	FirstName       string
	BusinessName    string
	BusinessContext string
	Scores          domain.Scores
	Notes           map[string]string
}

// PromptInputFromSurvey maps a survey response onto prompt input
func PromptInputFromSurvey(survey *domain.SurveyResponse) PromptInput {
	return PromptInput{
		FirstName:       survey.FirstName(),
		BusinessName:    survey.Answers.BusinessName,
		BusinessContext: survey.Answers.BusinessContext,
		Scores:          survey.Answers.Scores,
		Notes:           survey.Answers.Notes,
	}
}

// Bottlenecks returns up to two lowest-scoring dimensions, lowest first.
// Ties keep the original dimension order.
func Bottlenecks(scores domain.Scores) []domain.DimensionScore {
	sorted := slices.Clone(scores)
	slices.SortStableFunc(sorted, func(a, b domain.DimensionScore) int {
		return cmp.Compare(a.Score, b.Score)
	})
	if len(sorted) > 2 {
		sorted = sorted[:2]
	}
	return sorted
}

// BuildPrompt renders the completion prompt for one contact
func BuildPrompt(in PromptInput) string {
	name := in.FirstName
	if name == "" {
		name = "the contact"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.\n\n", persona)
	fmt.Fprintf(&b, "Write a spoken script addressed to %s", name)
	if in.BusinessName != "" {
		fmt.Fprintf(&b, ", owner of %s", in.BusinessName)
	}
	b.WriteString(".\n")
	if in.BusinessContext != "" {
		fmt.Fprintf(&b, "Business context: %s\n", in.BusinessContext)
	}

	b.WriteString("\nDiagnostic scores (lower means weaker):\n")
	for _, s := range in.Scores {
		fmt.Fprintf(&b, "- %s: %s\n", humanize(s.Dimension), formatScore(s.Score))
	}

	bottlenecks := Bottlenecks(in.Scores)
	if len(bottlenecks) > 0 {
		fmt.Fprintf(&b, "\nPrimary bottleneck: %s (score %s)\n", humanize(bottlenecks[0].Dimension), formatScore(bottlenecks[0].Score))
	}
	if len(bottlenecks) > 1 {
		fmt.Fprintf(&b, "Secondary bottleneck: %s (score %s)\n", humanize(bottlenecks[1].Dimension), formatScore(bottlenecks[1].Score))
	}

	if len(in.Notes) > 0 {
		b.WriteString("\nIn their own words:\n")
		keys := make([]string, 0, len(in.Notes))
		for k := range in.Notes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if v := strings.TrimSpace(in.Notes[k]); v != "" {
				fmt.Fprintf(&b, "- %s: %s\n", humanize(k), v)
			}
		}
	}

	fmt.Fprintf(&b, `
Structure:
1. Opening: greet %s by first name and thank them for completing the diagnostic.
2. Diagnosis: name the primary bottleneck concretely, say what it is likely costing the business, and link it to the secondary bottleneck.
3. Call to action: invite them to book a strategy call to fix it together.

Rules:
- Between 400 and 800 characters.
- Write for the ear: short sentences, natural spoken language, second person.
- Plain text only. No markdown, lists, emoji, hashtags or links.
- Do not invent numbers that are not in the scores above.
- Return only the script.
`, name)

	return b.String()
}

// Fallback is the static script used when completion fails
func Fallback(firstName string) string {
	if firstName == "" {
		firstName = "there"
	}
	return fmt.Sprintf("Hey %s, thanks so much for taking the time to complete your business diagnostic. "+
		"I went through your answers personally, and there is one area that is clearly holding your growth back more than the others. "+
		"The good news is that it is fixable, and usually faster than people expect once there is a clear plan. "+
		"I would love to walk you through exactly what I found and what I would do first in your position. "+
		"Book a quick strategy call and let's sort it out together. Talk soon.", firstName)
}

func humanize(key string) string {
	return strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(key))
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
