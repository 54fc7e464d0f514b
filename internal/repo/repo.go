package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"briefline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const missionCols = `id,title,client,status,progress,domains_json,roles_json,created_at,updated_at,archived_at`

func scanMission(scan func(dest ...any) error) (domain.Mission, error) {
	var m domain.Mission
	var domainsJSON, rolesJSON, archivedAt sql.NullString
	err := scan(&m.ID, &m.Title, &m.Client, &m.Status, &m.Progress, &domainsJSON, &rolesJSON, &m.CreatedAt, &m.UpdatedAt, &archivedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if domainsJSON.Valid {
		m.Domains = decodeStringSlice(domainsJSON.String)
	}
	if rolesJSON.Valid {
		m.Roles = decodeStringSlice(rolesJSON.String)
	}
	if archivedAt.Valid {
		m.ArchivedAt = &archivedAt.String
	}
	return m, nil
}

func (r Repo) InsertMission(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO missions(id,title,client,status,progress,domains_json,roles_json,created_at,updated_at,archived_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.Title, m.Client, m.Status, m.Progress, encodeStringSlice(m.Domains), encodeStringSlice(m.Roles),
		m.CreatedAt, m.UpdatedAt, nullableStringPtr(m.ArchivedAt))
	return err
}

func (r Repo) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+missionCols+` FROM missions WHERE id=?`, id)
	return scanMission(row.Scan)
}

func (r Repo) GetMissionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Mission, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+missionCols+` FROM missions WHERE id=?`, id)
	return scanMission(row.Scan)
}

func (r Repo) UpdateMission(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	res, err := tx.ExecContext(ctx, `UPDATE missions SET title=?, client=?, status=?, progress=?, domains_json=?, roles_json=?, updated_at=?, archived_at=? WHERE id=?`,
		m.Title, m.Client, m.Status, m.Progress, encodeStringSlice(m.Domains), encodeStringSlice(m.Roles),
		m.UpdatedAt, nullableStringPtr(m.ArchivedAt), m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type MissionFilters struct {
	Status          string
	Domain          string
	IncludeArchived bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListMissions(ctx context.Context, f MissionFilters) ([]domain.Mission, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if !f.IncludeArchived {
		clauses = append(clauses, "archived_at IS NULL")
	}
	if f.Domain != "" {
		// Domain tags live in a JSON column; filter in SQL so LIMIT and
		// the pagination cursor count matching rows, not scanned rows.
		clauses = append(clauses, "domains_json IS NOT NULL AND EXISTS (SELECT 1 FROM json_each(missions.domains_json) WHERE json_each.value = ?)")
		args = append(args, f.Domain)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + missionCols + ` FROM missions ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

const deliverableCols = `id,mission_id,title,type,content,review_state,export_formats_json,created_at,updated_at,published_at`

func scanDeliverable(scan func(dest ...any) error) (domain.Deliverable, error) {
	var d domain.Deliverable
	var formatsJSON, publishedAt sql.NullString
	err := scan(&d.ID, &d.MissionID, &d.Title, &d.Type, &d.Content, &d.ReviewState, &formatsJSON, &d.CreatedAt, &d.UpdatedAt, &publishedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if formatsJSON.Valid {
		d.ExportFormats = decodeStringSlice(formatsJSON.String)
	}
	if publishedAt.Valid {
		d.PublishedAt = &publishedAt.String
	}
	return d, nil
}

func (r Repo) InsertDeliverable(ctx context.Context, tx *sql.Tx, d domain.Deliverable) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO deliverables(id,mission_id,title,type,content,review_state,export_formats_json,created_at,updated_at,published_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.MissionID, d.Title, d.Type, d.Content, d.ReviewState, encodeStringSlice(d.ExportFormats),
		d.CreatedAt, d.UpdatedAt, nullableStringPtr(d.PublishedAt))
	return err
}

func (r Repo) GetDeliverable(ctx context.Context, id string) (domain.Deliverable, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+deliverableCols+` FROM deliverables WHERE id=?`, id)
	return scanDeliverable(row.Scan)
}

func (r Repo) GetDeliverableTx(ctx context.Context, tx *sql.Tx, id string) (domain.Deliverable, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+deliverableCols+` FROM deliverables WHERE id=?`, id)
	return scanDeliverable(row.Scan)
}

func (r Repo) UpdateDeliverable(ctx context.Context, tx *sql.Tx, d domain.Deliverable) error {
	res, err := tx.ExecContext(ctx, `UPDATE deliverables SET title=?, type=?, content=?, review_state=?, export_formats_json=?, updated_at=?, published_at=? WHERE id=?`,
		d.Title, d.Type, d.Content, d.ReviewState, encodeStringSlice(d.ExportFormats),
		d.UpdatedAt, nullableStringPtr(d.PublishedAt), d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type DeliverableFilters struct {
	MissionID       string
	ReviewState     string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListDeliverables(ctx context.Context, f DeliverableFilters) ([]domain.Deliverable, error) {
	var clauses []string
	var args []any
	if f.MissionID != "" {
		clauses = append(clauses, "mission_id=?")
		args = append(args, f.MissionID)
	}
	if f.ReviewState != "" {
		clauses = append(clauses, "review_state=?")
		args = append(args, f.ReviewState)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + deliverableCols + ` FROM deliverables ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Deliverable
	for rows.Next() {
		d, err := scanDeliverable(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) CountDeliverablesByState(ctx context.Context, missionID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT review_state, count(*) FROM deliverables WHERE mission_id=? GROUP BY review_state`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		res[state] = count
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, missionID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, missionID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, missionID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if missionID != "" {
		clauses = append(clauses, "mission_id=?")
		args = append(args, missionID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,mission_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, missionID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if missionID != "" {
		clauses = append(clauses, "mission_id=?")
		args = append(args, missionID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,mission_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var missionID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &missionID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if missionID.Valid {
			e.MissionID = missionID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID for a mission, or
// across all missions when missionID is empty.
func (r Repo) LatestEventID(ctx context.Context, missionID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if missionID != "" {
		query += ` WHERE mission_id=?`
		args = append(args, missionID)
	}
	row := r.DB.QueryRowContext(ctx, query, args...)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func encodeStringSlice(in []string) any {
	if len(in) == 0 {
		return nil
	}
	b, _ := json.Marshal(in)
	return string(b)
}

func decodeStringSlice(raw string) []string {
	if raw == "" {
		return nil
	}
	var arr []string
	if err := json.Unmarshal([]byte(raw), &arr); err != nil {
		return nil
	}
	return arr
}
