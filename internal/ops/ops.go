// Package ops implements the history operations shared by the CLI, the MCP
// server, and the web API: recording runs, listing, fetching, purging, and
// aggregate stats.
package ops

import (
	"strings"

	"github.com/hpungsan/clipflow/internal/errors"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// validOutcomes are the outcome filter values ListRuns accepts.
var validOutcomes = map[string]bool{
	"success":   true,
	"failure":   true,
	"cancelled": true,
}

// ValidateID trims id and rejects an empty one.
func ValidateID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewInvalidRequest("id is required")
	}
	return id, nil
}

// clampPage applies limit defaults and bounds and a non-negative offset.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, max(offset, 0)
}
