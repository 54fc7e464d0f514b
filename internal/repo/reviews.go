package repo

import (
	"context"
	"database/sql"
	"strings"

	"briefline/internal/domain"
)

const reviewCols = `id,deliverable_id,stage,outcome,confidences_json,failed_json,enrichments_json,style,actor_id,created_at`

func (r Repo) InsertReviewRecord(ctx context.Context, tx *sql.Tx, rec domain.ReviewRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO review_records(id,deliverable_id,stage,outcome,confidences_json,failed_json,enrichments_json,style,actor_id,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.DeliverableID, rec.Stage, rec.Outcome,
		nullableStringPtr(rec.ConfidencesJSON), nullableStringPtr(rec.FailedJSON), nullableStringPtr(rec.EnrichmentsJSON),
		nullable(rec.Style), rec.ActorID, rec.CreatedAt)
	return err
}

func scanReviewRecord(scan func(dest ...any) error) (domain.ReviewRecord, error) {
	var rec domain.ReviewRecord
	var confidences, failed, enrichments, style sql.NullString
	err := scan(&rec.ID, &rec.DeliverableID, &rec.Stage, &rec.Outcome, &confidences, &failed, &enrichments, &style, &rec.ActorID, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	if confidences.Valid {
		rec.ConfidencesJSON = &confidences.String
	}
	if failed.Valid {
		rec.FailedJSON = &failed.String
	}
	if enrichments.Valid {
		rec.EnrichmentsJSON = &enrichments.String
	}
	if style.Valid {
		rec.Style = style.String
	}
	return rec, nil
}

func (r Repo) GetReviewRecord(ctx context.Context, id string) (domain.ReviewRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+reviewCols+` FROM review_records WHERE id=?`, id)
	return scanReviewRecord(row.Scan)
}

type ReviewFilters struct {
	DeliverableID string
	Stage         string
	Limit         int
}

func (r Repo) ListReviewRecords(ctx context.Context, f ReviewFilters) ([]domain.ReviewRecord, error) {
	var clauses []string
	var args []any
	if f.DeliverableID != "" {
		clauses = append(clauses, "deliverable_id=?")
		args = append(args, f.DeliverableID)
	}
	if f.Stage != "" {
		clauses = append(clauses, "stage=?")
		args = append(args, f.Stage)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + reviewCols + ` FROM review_records ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ReviewRecord
	for rows.Next() {
		rec, err := scanReviewRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
