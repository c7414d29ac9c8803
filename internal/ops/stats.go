package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/clipflow/internal/db"
)

// Stats returns aggregate history counters.
func Stats(ctx context.Context, database *sql.DB) (*db.Stats, error) {
	return db.GetStats(ctx, database)
}
