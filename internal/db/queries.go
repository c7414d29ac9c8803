package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/clipflow/internal/errors"
)

// Run is one stored pipeline run.
type Run struct {
	ID           string     `json:"id"`
	Trigger      string     `json:"trigger"`
	Outcome      string     `json:"outcome"`
	ErrorCode    *string    `json:"error_code,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	InputText    string     `json:"input_text,omitempty"`
	OutputText   *string    `json:"output_text,omitempty"`
	InputChars   int        `json:"input_chars"`
	OutputChars  int        `json:"output_chars"`
	StageCount   int        `json:"stage_count"`
	DurationMs   int64      `json:"duration_ms"`
	SubmittedAt  int64      `json:"submitted_at"`
	CreatedAt    int64      `json:"created_at"`
	Stages       []StageRow `json:"stages,omitempty"`
}

// StageRow is one completed stage of a stored run.
type StageRow struct {
	Index      int    `json:"index"`
	StageID    string `json:"stage_id"`
	Name       string `json:"name"`
	OutputText string `json:"output_text,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// RunSummary is a run without its texts or stages.
type RunSummary struct {
	ID          string  `json:"id"`
	Trigger     string  `json:"trigger"`
	Outcome     string  `json:"outcome"`
	ErrorCode   *string `json:"error_code,omitempty"`
	InputChars  int     `json:"input_chars"`
	OutputChars int     `json:"output_chars"`
	StageCount  int     `json:"stage_count"`
	DurationMs  int64   `json:"duration_ms"`
	CreatedAt   int64   `json:"created_at"`
}

// ListFilters narrows ListRuns.
type ListFilters struct {
	Outcome string
	Trigger string
}

// Stats aggregates the history table.
type Stats struct {
	Total         int            `json:"total"`
	ByOutcome     map[string]int `json:"by_outcome"`
	AvgDurationMs float64        `json:"avg_duration_ms"`
	LastRunAt     *int64         `json:"last_run_at,omitempty"`
}

// InsertRun stores a run and its stage rows in one transaction.
func InsertRun(ctx context.Context, db *sql.DB, r *Run) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, source_trigger, outcome, error_code, error_message,
			input_text, output_text, input_chars, output_chars,
			stage_count, duration_ms, submitted_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.Trigger, r.Outcome, toNullString(r.ErrorCode), toNullString(r.ErrorMessage),
		r.InputText, toNullString(r.OutputText), r.InputChars, r.OutputChars,
		len(r.Stages), r.DurationMs, r.SubmittedAt, r.CreatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	for _, s := range r.Stages {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stage_results (run_id, stage_index, stage_id, name, output_text, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.ID, s.Index, s.StageID, s.Name, s.OutputText, s.DurationMs)
		if err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	r.StageCount = len(r.Stages)
	return nil
}

// GetRun retrieves a run and its stages by ID.
func GetRun(ctx context.Context, db *sql.DB, id string) (*Run, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, source_trigger, outcome, error_code, error_message,
			input_text, output_text, input_chars, output_chars,
			stage_count, duration_ms, submitted_at, created_at
		FROM runs
		WHERE id = ?
	`, id)

	var (
		r         Run
		errCode   sql.NullString
		errMsg    sql.NullString
		outputTxt sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.Trigger, &r.Outcome, &errCode, &errMsg,
		&r.InputText, &outputTxt, &r.InputChars, &r.OutputChars,
		&r.StageCount, &r.DurationMs, &r.SubmittedAt, &r.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	r.ErrorCode = fromNullString(errCode)
	r.ErrorMessage = fromNullString(errMsg)
	r.OutputText = fromNullString(outputTxt)

	rows, err := db.QueryContext(ctx, `
		SELECT stage_index, stage_id, name, output_text, duration_ms
		FROM stage_results
		WHERE run_id = ?
		ORDER BY stage_index
	`, id)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	for rows.Next() {
		var s StageRow
		if err := rows.Scan(&s.Index, &s.StageID, &s.Name, &s.OutputText, &s.DurationMs); err != nil {
			return nil, errors.NewInternal(err)
		}
		r.Stages = append(r.Stages, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return &r, nil
}

// ListRuns returns run summaries, newest first, and the total matching count.
func ListRuns(ctx context.Context, db *sql.DB, filters ListFilters, limit, offset int) ([]RunSummary, int, error) {
	where, args := filterClause(filters)

	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs"+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `
		SELECT id, source_trigger, outcome, error_code, input_chars, output_chars,
			stage_count, duration_ms, created_at
		FROM runs` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var (
			s       RunSummary
			errCode sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Trigger, &s.Outcome, &errCode, &s.InputChars, &s.OutputChars,
			&s.StageCount, &s.DurationMs, &s.CreatedAt); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		s.ErrorCode = fromNullString(errCode)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	return summaries, total, nil
}

// PurgeOlderThan permanently deletes runs created more than olderThan ago.
// A zero olderThan deletes every run.
func PurgeOlderThan(ctx context.Context, db *sql.DB, olderThan time.Duration) (int, error) {
	query := "DELETE FROM runs"
	var args []any
	if olderThan > 0 {
		query += " WHERE created_at < ?"
		args = append(args, time.Now().Add(-olderThan).Unix())
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

// GetStats aggregates run counts and durations.
func GetStats(ctx context.Context, db *sql.DB) (*Stats, error) {
	st := &Stats{ByOutcome: map[string]int{}}

	var (
		avg  sql.NullFloat64
		last sql.NullInt64
	)
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(duration_ms), MAX(created_at) FROM runs
	`).Scan(&st.Total, &avg, &last)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if avg.Valid {
		st.AvgDurationMs = avg.Float64
	}
	if last.Valid {
		st.LastRunAt = &last.Int64
	}

	rows, err := db.QueryContext(ctx, "SELECT outcome, COUNT(*) FROM runs GROUP BY outcome")
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, errors.NewInternal(err)
		}
		st.ByOutcome[outcome] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return st, nil
}

func filterClause(f ListFilters) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Outcome != "" {
		conds = append(conds, "outcome = ?")
		args = append(args, f.Outcome)
	}
	if f.Trigger != "" {
		conds = append(conds, "source_trigger = ?")
		args = append(args, f.Trigger)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
