package artifact

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const anonymousPrefix = "anonymous"

var unsafeKeyChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// Object is a stored artifact
type Object struct {
	Key  string
	URL  string
	Size int64
}

// Store persists audio artifacts. Put never overwrites an existing object.
// Errors returned by Put wrap domain.ErrStorage.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error)
}

// ObjectKey builds the storage key for a clip:
// {user_id|anonymous}/{unix_millis}_{sanitized_email}.mp3
func ObjectKey(userID, email string, at time.Time) string {
	prefix := SanitizeSegment(userID)
	if prefix == "" {
		prefix = anonymousPrefix
	}
	name := SanitizeSegment(strings.ReplaceAll(strings.ToLower(email), "@", "_at_"))
	if name == "" {
		name = "contact"
	}
	return fmt.Sprintf("%s/%d_%s.mp3", prefix, at.UnixMilli(), name)
}

// SanitizeSegment lowercases s and replaces anything outside [a-z0-9._-] with "_"
func SanitizeSegment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = unsafeKeyChars.ReplaceAllString(s, "_")
	return strings.Trim(s, "_.")
}
