package ledger

import (
	"context"
	"database/sql"
	"time"
)

type Store interface {
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	CreateRender(ctx context.Context, render *Render) error
	UpdateRender(ctx context.Context, render *Render) error
	GetRender(ctx context.Context, id string) (*Render, error)
	ListRenders(ctx context.Context, runID string) ([]*Render, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) CreateRun(ctx context.Context, r *Run) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = RunStatusRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, mode, input_dir, output_dir, status, total, succeeded, failed, skipped, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Mode, r.InputDir, r.OutputDir, r.Status, r.Total, r.Succeeded, r.Failed, r.Skipped,
		r.StartedAt.Format(time.RFC3339))
	return err
}

// FinishRun stores the final counts and status and stamps finished_at.
func (s *SQLiteStore) FinishRun(ctx context.Context, r *Run) error {
	now := time.Now().UTC()
	r.FinishedAt = &now
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, total = ?, succeeded = ?, failed = ?, skipped = ?, finished_at = ?
		WHERE id = ?
	`, r.Status, r.Total, r.Succeeded, r.Failed, r.Skipped, now.Format(time.RFC3339), r.ID)
	return err
}

const runColumns = `id, mode, input_dir, output_dir, status, total, succeeded, failed, skipped, started_at, finished_at`

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var startedAt string
	var finishedAt sql.NullString
	err := row.Scan(&r.ID, &r.Mode, &r.InputDir, &r.OutputDir, &r.Status,
		&r.Total, &r.Succeeded, &r.Failed, &r.Skipped, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339, finishedAt.String); err == nil {
			r.FinishedAt = &t
		}
	}
	return &r, nil
}

func (s *SQLiteStore) CreateRender(ctx context.Context, r *Render) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = RenderStatusPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO renders (id, run_id, source_path, project_name, output_dir, job_id, status, stage, error, elapsed_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.RunID, r.SourcePath, nullString(r.ProjectName), nullString(r.OutputDir), nullString(r.JobID),
		r.Status, nullString(r.Stage), nullString(r.Error), r.ElapsedMs,
		r.CreatedAt.Format(time.RFC3339), r.UpdatedAt.Format(time.RFC3339))
	return err
}

func (s *SQLiteStore) UpdateRender(ctx context.Context, r *Render) error {
	r.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE renders SET project_name = ?, output_dir = ?, job_id = ?, status = ?, stage = ?, error = ?, elapsed_ms = ?, updated_at = ?
		WHERE id = ?
	`, nullString(r.ProjectName), nullString(r.OutputDir), nullString(r.JobID), r.Status,
		nullString(r.Stage), nullString(r.Error), r.ElapsedMs, r.UpdatedAt.Format(time.RFC3339), r.ID)
	return err
}

const renderColumns = `id, run_id, source_path, project_name, output_dir, job_id, status, stage, error, elapsed_ms, created_at, updated_at`

func (s *SQLiteStore) GetRender(ctx context.Context, id string) (*Render, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+renderColumns+` FROM renders WHERE id = ?`, id)
	r, err := scanRender(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteStore) ListRenders(ctx context.Context, runID string) ([]*Render, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+renderColumns+` FROM renders WHERE run_id = ? ORDER BY created_at ASC, rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var renders []*Render
	for rows.Next() {
		r, err := scanRender(rows)
		if err != nil {
			return nil, err
		}
		renders = append(renders, r)
	}
	return renders, rows.Err()
}

func scanRender(row scanner) (*Render, error) {
	var r Render
	var project, outDir, jobID, stage, errMsg sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.RunID, &r.SourcePath, &project, &outDir, &jobID,
		&r.Status, &stage, &errMsg, &r.ElapsedMs, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.ProjectName = project.String
	r.OutputDir = outDir.String
	r.JobID = jobID.String
	r.Stage = stage.String
	r.Error = errMsg.String
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &r, nil
}

func (s *SQLiteStore) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
