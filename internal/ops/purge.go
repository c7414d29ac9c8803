package ops

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hpungsan/clipflow/internal/db"
	"github.com/hpungsan/clipflow/internal/errors"
)

// PurgeInput contains parameters for the PurgeRuns operation.
type PurgeInput struct {
	OlderThanDays *int // nil purges every run
}

// PurgeOutput contains the result of the PurgeRuns operation.
type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Message string `json:"message"`
}

// PurgeRuns permanently deletes runs and their stage results.
func PurgeRuns(ctx context.Context, database *sql.DB, input PurgeInput) (*PurgeOutput, error) {
	var olderThan time.Duration
	if input.OlderThanDays != nil {
		if *input.OlderThanDays < 0 {
			return nil, errors.NewInvalidRequest("older_than_days must be >= 0")
		}
		olderThan = time.Duration(*input.OlderThanDays) * 24 * time.Hour
	}

	count, err := db.PurgeOlderThan(ctx, database, olderThan)
	if err != nil {
		return nil, err
	}

	return &PurgeOutput{
		Purged:  count,
		Message: formatPurgeMessage(count, input.OlderThanDays),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count int, olderThanDays *int) string {
	if count == 0 {
		return "No runs to purge"
	}

	runWord := "run"
	if count > 1 {
		runWord = "runs"
	}

	msg := fmt.Sprintf("Permanently deleted %d %s", count, runWord)
	if olderThanDays != nil && *olderThanDays > 0 {
		msg += fmt.Sprintf(" (older than %d days)", *olderThanDays)
	}
	return msg
}
