package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScores_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Scores
		wantErr  bool
	}{
		{
			name:  "object form keeps key order",
			input: `{"A":8,"B":2,"C":2,"D":5}`,
			expected: Scores{
				{Dimension: "A", Score: 8},
				{Dimension: "B", Score: 2},
				{Dimension: "C", Score: 2},
				{Dimension: "D", Score: 5},
			},
		},
		{
			name:  "list form",
			input: `[{"dimension":"sales","score":3.5},{"dimension":"ops","score":7}]`,
			expected: Scores{
				{Dimension: "sales", Score: 3.5},
				{Dimension: "ops", Score: 7},
			},
		},
		{
			name:     "null",
			input:    `null`,
			expected: nil,
		},
		{
			name:    "non numeric score",
			input:   `{"A":"high"}`,
			wantErr: true,
		},
		{
			name:    "scalar",
			input:   `42`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var scores Scores
			err := json.Unmarshal([]byte(tt.input), &scores)

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, scores)
		})
	}
}

func TestAnswers_Scan(t *testing.T) {
	var answers Answers
	err := answers.Scan([]byte(`{"first_name":"Ana Maria","business_context":"bakery","scores":{"marketing":4,"sales":2}}`))
	require.NoError(t, err)

	assert.Equal(t, "bakery", answers.BusinessContext)
	require.Len(t, answers.Scores, 2)
	assert.Equal(t, "marketing", answers.Scores[0].Dimension)

	survey := SurveyResponse{Answers: answers}
	assert.Equal(t, "Ana", survey.FirstName())

	err = answers.Scan(12)
	require.Error(t, err)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		force    bool
		want     bool
	}{
		{from: StatusPending, to: StatusProcessing, want: true},
		{from: "", to: StatusProcessing, want: true},
		{from: StatusProcessing, to: StatusCompleted, want: true},
		{from: StatusProcessing, to: StatusFailed, want: true},
		{from: StatusFailed, to: StatusProcessing, want: true},
		{from: StatusCompleted, to: StatusProcessing, want: false},
		{from: StatusCompleted, to: StatusProcessing, force: true, want: true},
		{from: StatusPending, to: StatusCompleted, want: false},
		{from: StatusFailed, to: StatusCompleted, want: false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s force=%v", tt.from, tt.to, tt.force), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to, tt.force))
		})
	}
}

func TestStageError(t *testing.T) {
	cause := &ProviderError{Provider: "tts", StatusCode: 502, Message: "bad gateway"}
	err := fmt.Errorf("run: %w", NewStageError(StageSynthesis, ErrSynthesis, cause))

	assert.True(t, errors.Is(err, ErrSynthesis))
	assert.False(t, errors.Is(err, ErrStorage))
	assert.Equal(t, StageSynthesis, StageOf(err))

	var providerErr *ProviderError
	require.True(t, errors.As(err, &providerErr))
	assert.Equal(t, 502, providerErr.StatusCode)
	assert.Contains(t, err.Error(), "bad gateway")
}
