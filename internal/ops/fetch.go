package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/clipflow/internal/db"
)

// FetchInput contains parameters for the FetchRun operation.
type FetchInput struct {
	ID          string
	IncludeText *bool // default: true (nil means default)
}

// FetchRun retrieves one run with its stage results.
func FetchRun(ctx context.Context, database *sql.DB, input FetchInput) (*db.Run, error) {
	id, err := ValidateID(input.ID)
	if err != nil {
		return nil, err
	}

	run, err := db.GetRun(ctx, database, id)
	if err != nil {
		return nil, err
	}

	includeText := true
	if input.IncludeText != nil {
		includeText = *input.IncludeText
	}
	if !includeText {
		run.InputText = ""
		run.OutputText = nil
		for i := range run.Stages {
			run.Stages[i].OutputText = ""
		}
	}

	return run, nil
}
