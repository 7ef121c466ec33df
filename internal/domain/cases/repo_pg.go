package cases

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const caseCols = `id, title, patient_name, patient_age, clinical_notes, transcript, audio_url, status, created_at`

const insightCols = `id, case_id, summary, blind_spots, questions, original_language, created_at`

func scanCase(row pgx.Row) (*Case, error) {
	var cs Case
	err := row.Scan(&cs.ID, &cs.Title, &cs.PatientName, &cs.PatientAge, &cs.ClinicalNotes,
		&cs.Transcript, &cs.AudioURL, &cs.Status, &cs.CreatedAt)
	return &cs, err
}

func scanInsight(row pgx.Row) (*Insight, error) {
	var ins Insight
	err := row.Scan(&ins.ID, &ins.CaseID, &ins.Summary, &ins.BlindSpots, &ins.Questions,
		&ins.OriginalLanguage, &ins.CreatedAt)
	return &ins, err
}

func (r *repoPG) CreateCase(ctx context.Context, cs *Case) error {
	cs.ID = uuid.New()
	cs.Status = StatusPending
	cs.CreatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO cases (id, title, patient_name, patient_age, clinical_notes, transcript, audio_url, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		cs.ID, cs.Title, cs.PatientName, cs.PatientAge, cs.ClinicalNotes,
		cs.Transcript, cs.AudioURL, cs.Status, cs.CreatedAt)
	return err
}

func (r *repoPG) GetCase(ctx context.Context, id uuid.UUID) (*CaseWithInsight, error) {
	cs, err := scanCase(r.pool.QueryRow(ctx, `SELECT `+caseCols+` FROM cases WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}

	out := &CaseWithInsight{Case: *cs}
	ins, err := r.GetInsightByCaseID(ctx, id)
	if err != nil {
		return nil, err
	}
	out.Insight = ins
	return out, nil
}

func (r *repoPG) ListCases(ctx context.Context) ([]*Case, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+caseCols+` FROM cases ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*Case{}
	for rows.Next() {
		cs, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, cs)
	}
	return items, rows.Err()
}

func (r *repoPG) UpdateCaseStatus(ctx context.Context, id uuid.UUID, status Status) (*Case, error) {
	cs, err := scanCase(r.pool.QueryRow(ctx, `
		UPDATE cases SET status = $2 WHERE id = $1
		RETURNING `+caseCols, id, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return cs, nil
}

func (r *repoPG) DeleteCase(ctx context.Context, id uuid.UUID) error {
	// The insights row, if any, goes with it via ON DELETE CASCADE.
	tag, err := r.pool.Exec(ctx, `DELETE FROM cases WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCaseNotFound
	}
	return nil
}

func (r *repoPG) CreateInsight(ctx context.Context, ins *Insight) error {
	ins.ID = uuid.New()
	ins.CreatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO insights (id, case_id, summary, blind_spots, questions, original_language, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		ins.ID, ins.CaseID, ins.Summary, ins.BlindSpots, ins.Questions, ins.OriginalLanguage, ins.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation on case_id
			return ErrInsightExists
		case "23503": // foreign_key_violation: case deleted mid-analysis
			return ErrCaseNotFound
		}
	}
	return err
}

func (r *repoPG) GetInsightByCaseID(ctx context.Context, caseID uuid.UUID) (*Insight, error) {
	ins, err := scanInsight(r.pool.QueryRow(ctx, `SELECT `+insightCols+` FROM insights WHERE case_id = $1`, caseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ins, nil
}
