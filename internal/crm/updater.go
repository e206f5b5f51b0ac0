package crm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/audio-pipeline/internal/domain"
)

// ContactWriter writes custom field values on a contact
type ContactWriter interface {
	UpdateContactFields(ctx context.Context, contactID string, values []FieldValue) ([]UpdatedField, error)
}

// UpdaterFields names the two fields the pipeline publishes to
type UpdaterFields struct {
	AudioURL Field
	Script   Field
}

// Updater publishes an audio URL and script onto a contact
type Updater struct {
	resolver *Resolver
	writer   ContactWriter
	fields   UpdaterFields
	logger   *slog.Logger
}

// NewUpdater creates a new Updater instance
func NewUpdater(resolver *Resolver, writer ContactWriter, fields UpdaterFields, logger *slog.Logger) *Updater {
	return &Updater{
		resolver: resolver,
		writer:   writer,
		fields:   fields,
		logger:   logger,
	}
}

// Update resolves both fields and performs one contact write.
// Unresolved fields are written by key. The write is still attempted
// when resolution fails, and any degradation is reported as
// domain.ErrCrmPropagation.
func (u *Updater) Update(ctx context.Context, contactID, audioURL, script string) error {
	if contactID == "" {
		return fmt.Errorf("%w: no contact id", domain.ErrCrmPropagation)
	}

	bindings, resolveErr := u.resolver.Resolve(ctx, u.fields.AudioURL, u.fields.Script)
	if resolveErr != nil {
		u.logger.Warn("Custom field resolution failed, writing by field key",
			slog.String("contact_id", contactID),
			slog.Any("error", resolveErr),
		)
	}

	values := []FieldValue{
		fieldValue(bindings[0], audioURL),
		fieldValue(bindings[1], script),
	}

	echoed, err := u.writer.UpdateContactFields(ctx, contactID, values)
	if err != nil {
		return err
	}

	var problems []string
	if resolveErr != nil {
		problems = append(problems, "field resolution failed: "+resolveErr.Error())
	}
	for _, b := range bindings {
		if !b.Resolved() {
			problems = append(problems, fmt.Sprintf("field %q unresolved, written by key %q", b.Field.Name, b.Field.Key))
		}
	}
	if missing := missingFromEcho(bindings, echoed); len(missing) > 0 {
		problems = append(problems, "update not reflected for field ids "+strings.Join(missing, ", "))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: contact %s: %s", domain.ErrCrmPropagation, contactID, strings.Join(problems, "; "))
	}

	u.logger.Info("CRM contact updated",
		slog.String("contact_id", contactID),
		slog.String("audio_url_field", bindings[0].ID),
		slog.String("script_field", bindings[1].ID),
	)
	return nil
}

func fieldValue(b Binding, value string) FieldValue {
	if b.Resolved() {
		return FieldValue{ID: b.ID, Value: value}
	}
	return FieldValue{Key: b.Field.Key, Value: value}
}

// missingFromEcho returns resolved ids absent from the echoed fields.
// A nil echo means the CRM did not return fields and nothing can be checked.
func missingFromEcho(bindings []Binding, echoed []UpdatedField) []string {
	if echoed == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(echoed))
	for _, f := range echoed {
		seen[f.ID] = struct{}{}
	}
	var missing []string
	for _, b := range bindings {
		if !b.Resolved() {
			continue
		}
		if _, ok := seen[b.ID]; !ok {
			missing = append(missing, b.ID)
		}
	}
	return missing
}
