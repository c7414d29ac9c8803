package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hpungsan/clipflow/internal/db"
	"github.com/hpungsan/clipflow/internal/errors"
)

// ListInput contains parameters for the ListRuns operation.
type ListInput struct {
	Outcome string // optional: success, failure, cancelled
	Trigger string // optional
	Limit   int    // default: 20, max: 100
	Offset  int    // default: 0
}

// ListOutput contains the result of the ListRuns operation.
type ListOutput struct {
	Items      []db.RunSummary `json:"items"`
	Pagination Pagination      `json:"pagination"`
	Sort       string          `json:"sort"`
}

// ListRuns retrieves run summaries, newest first, with pagination.
func ListRuns(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	outcome := strings.ToLower(strings.TrimSpace(input.Outcome))
	if outcome != "" && !validOutcomes[outcome] {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown outcome %q", input.Outcome))
	}

	limit, offset := clampPage(input.Limit, input.Offset)

	summaries, total, err := db.ListRuns(ctx, database, db.ListFilters{
		Outcome: outcome,
		Trigger: strings.TrimSpace(input.Trigger),
	}, limit, offset)
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	if summaries == nil {
		summaries = []db.RunSummary{}
	}

	return &ListOutput{
		Items: summaries,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(summaries) < total,
			Total:   total,
		},
		Sort: "created_at_desc",
	}, nil
}
