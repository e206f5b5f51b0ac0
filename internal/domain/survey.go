package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SurveyResponse is a diagnostic answer set submitted by a contact.
// It is written by the intake process and only read here.
type SurveyResponse struct {
	ID            string    `db:"id"`
	UserID        string    `db:"user_id"`
	Email         string    `db:"email"`
	TransactionID string    `db:"transaction_id"`
	Answers       Answers   `db:"answers"`
	CreatedAt     time.Time `db:"created_at"`
}

// FirstName returns the contact's first name as given in the answers
func (s *SurveyResponse) FirstName() string {
	fields := strings.Fields(s.Answers.FirstName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Answers is the structured content of the answers jsonb column
type Answers struct {
	FirstName       string            `json:"first_name"`
	BusinessName    string            `json:"business_name,omitempty"`
	BusinessContext string            `json:"business_context,omitempty"`
	Scores          Scores            `json:"scores"`
	Notes           map[string]string `json:"notes,omitempty"`
}

// Scan implements sql.Scanner for jsonb columns
func (a *Answers) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Answers{}
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("answers: unsupported column type %T", src)
	}
}

// Value implements driver.Valuer
func (a Answers) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// DimensionScore is one diagnostic dimension and its score
type DimensionScore struct {
	Dimension string  `json:"dimension"`
	Score     float64 `json:"score"`
}

// Scores keeps dimensions in the order they were answered.
// Both the list form and the object form are accepted; object key order is preserved.
type Scores []DimensionScore

func (s *Scores) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = nil
		return nil
	}

	if trimmed[0] == '[' {
		var list []DimensionScore
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("scores: %w", err)
		}
		*s = list
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("scores: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("scores: expected object or array")
	}

	var out Scores
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("scores: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("scores: unexpected key %v", keyTok)
		}
		var value float64
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("scores: dimension %q: %w", key, err)
		}
		out = append(out, DimensionScore{Dimension: key, Score: value})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("scores: %w", err)
	}

	*s = out
	return nil
}
