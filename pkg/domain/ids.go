package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "crummey/pkg/domain-errors"
)

// ParseID parses an entity identifier from external input (path params, JSON).
//
// Errors: returns a validation error keyed by field when the value is empty,
// malformed or the nil UUID.
func ParseID(field, s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.Field(field, field+" is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil || parsed == uuid.Nil {
		return uuid.Nil, dErrors.Field(field, field+" must be a valid UUID")
	}
	return parsed, nil
}

// ParseIDs parses a list of identifiers, failing on the first invalid entry.
func ParseIDs(field string, values []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		parsed, err := ParseID(field, v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, parsed)
	}
	return ids, nil
}
