package crm

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
)

const contactKeyPrefix = "contact."

// Field is a logical custom field the pipeline writes.
// Name is the human readable field name on the account; Key is the
// field key used when the field cannot be resolved to an id.
type Field struct {
	Name string
	Key  string
}

// Binding is a logical field resolved to its provider id.
// ID is empty when the field could not be resolved.
type Binding struct {
	Field Field
	ID    string
}

func (b Binding) Resolved() bool {
	return b.ID != ""
}

// FieldLister lists custom field definitions
type FieldLister interface {
	ListCustomFields(ctx context.Context) ([]CustomField, error)
}

// Resolver maps logical fields to provider ids. Bindings are never
// cached across calls.
type Resolver struct {
	lister FieldLister
	logger *slog.Logger
}

// NewResolver creates a new Resolver instance
func NewResolver(lister FieldLister, logger *slog.Logger) *Resolver {
	return &Resolver{lister: lister, logger: logger}
}

// Resolve returns one binding per field, in order. When the field listing
// fails every binding is unresolved and the error is returned with them.
func (r *Resolver) Resolve(ctx context.Context, fields ...Field) ([]Binding, error) {
	bindings := make([]Binding, len(fields))
	for i, f := range fields {
		bindings[i] = Binding{Field: f}
	}

	defs, err := r.lister.ListCustomFields(ctx)
	if err != nil {
		return bindings, err
	}

	for i, f := range fields {
		for _, def := range defs {
			if matches(f, def) {
				bindings[i].ID = def.ID
				break
			}
		}
		if !bindings[i].Resolved() {
			r.logger.Warn("Custom field not found on account",
				slog.String("field_name", f.Name),
				slog.String("field_key", f.Key),
				slog.Int("available_fields", len(defs)),
			)
		}
	}
	return bindings, nil
}

func matches(f Field, def CustomField) bool {
	want := candidates(f.Name, f.Key)
	for have := range candidates(def.Name, def.FieldKey) {
		if _, ok := want[have]; ok {
			return true
		}
	}
	return false
}

func candidates(name, key string) map[string]struct{} {
	out := make(map[string]struct{}, 3)
	for _, s := range []string{name, key, strings.TrimPrefix(strings.ToLower(key), contactKeyPrefix)} {
		if n := normalize(s); n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}

// normalize keeps only lowercased letters and digits
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
