package engine

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"briefline/internal/config"
	"briefline/internal/domain"
	"briefline/internal/events"
	"briefline/internal/export"
	"briefline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
	// Score computes a fact-check confidence for one category of a
	// deliverable's content. Deterministic per (category, content).
	Score func(category, content string) float64
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		Score:  defaultConfidence,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// eventWriter returns the event writer with its clock following the
// engine's Now hook, so event timestamps match mutation timestamps.
func (e Engine) eventWriter() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.Now
	}
	return w
}

// MissionCreateOptions are parameters for creating a mission.
type MissionCreateOptions struct {
	ID      string
	Title   string
	Client  string
	Domains []string
	Roles   []string
	ActorID string
}

func (e Engine) CreateMission(ctx context.Context, opts MissionCreateOptions) (domain.Mission, error) {
	if e.Config == nil {
		return domain.Mission{}, errors.New("config not loaded")
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Mission{}, validationf("title is required")
	}
	if strings.TrimSpace(opts.Client) == "" {
		return domain.Mission{}, validationf("client is required")
	}
	for _, role := range opts.Roles {
		if strings.TrimSpace(role) == "" {
			return domain.Mission{}, validationf("assigned role is empty")
		}
		if !e.Config.KnownRole(role) {
			return domain.Mission{}, validationf("role %s not in catalog", role)
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.Client+"|"+opts.Title+"|"+now)).String()
	}
	m := domain.Mission{
		ID:        id,
		Title:     opts.Title,
		Client:    opts.Client,
		Status:    domain.MissionPlanned,
		Progress:  0,
		Domains:   dedupe(opts.Domains),
		Roles:     opts.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertMission(ctx, tx, m); err != nil {
		return domain.Mission{}, err
	}
	if err := e.eventWriter().Append(ctx, tx, "mission.created", m.ID, "mission", m.ID, opts.ActorID, events.EventPayload{
		"title":  m.Title,
		"client": m.Client,
		"status": m.Status,
	}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	return m, nil
}

// UpdateProgress advances a mission's progress. Progress never decreases;
// a lower value is rejected without mutation. Updating a planned mission
// moves it to in_progress.
func (e Engine) UpdateProgress(ctx context.Context, missionID string, progress int, actorID string) (domain.Mission, error) {
	if progress < 0 || progress > 100 {
		return domain.Mission{}, validationf("progress must be between 0 and 100")
	}
	m, err := e.Repo.GetMission(ctx, missionID)
	if err != nil {
		return m, err
	}
	if m.Archived() {
		return m, InvalidTransitionError{Entity: "mission", From: "archived", To: "progress update"}
	}
	if m.Status == domain.MissionCompleted {
		return m, InvalidTransitionError{Entity: "mission", From: m.Status, To: "progress update"}
	}
	if progress < m.Progress {
		return m, InvalidTransitionError{Entity: "mission progress", From: itoa(m.Progress), To: itoa(progress)}
	}
	from := m.Progress
	m.Progress = progress
	if m.Status == domain.MissionPlanned && progress > 0 {
		m.Status = domain.MissionInProgress
	}
	m.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return m, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateMission(ctx, tx, m); err != nil {
		return m, err
	}
	if err := e.eventWriter().Append(ctx, tx, "mission.progress", m.ID, "mission", m.ID, actorID, events.EventPayload{
		"from":   from,
		"to":     progress,
		"status": m.Status,
	}); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

func ensureMissionTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case domain.MissionPlanned:
		if newStatus == domain.MissionInProgress {
			return nil
		}
	case domain.MissionInProgress:
		if newStatus == domain.MissionCompleted {
			return nil
		}
	}
	return InvalidTransitionError{Entity: "mission", From: oldStatus, To: newStatus}
}

// SetMissionStatus moves a mission along planned -> in_progress -> completed.
// Completing pins progress to 100.
func (e Engine) SetMissionStatus(ctx context.Context, missionID, status, actorID string) (domain.Mission, error) {
	m, err := e.Repo.GetMission(ctx, missionID)
	if err != nil {
		return m, err
	}
	if m.Archived() {
		return m, InvalidTransitionError{Entity: "mission", From: "archived", To: status}
	}
	if status == m.Status {
		return m, nil
	}
	if err := ensureMissionTransition(m.Status, status); err != nil {
		return m, err
	}
	from := m.Status
	m.Status = status
	if status == domain.MissionCompleted {
		m.Progress = 100
	}
	m.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return m, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateMission(ctx, tx, m); err != nil {
		return m, err
	}
	if err := e.eventWriter().Append(ctx, tx, "mission.updated", m.ID, "mission", m.ID, actorID, events.EventPayload{
		"from_status": from,
		"to_status":   status,
	}); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

// ArchiveMission soft-deletes a mission. Idempotent.
func (e Engine) ArchiveMission(ctx context.Context, missionID, actorID string) (domain.Mission, error) {
	m, err := e.Repo.GetMission(ctx, missionID)
	if err != nil {
		return m, err
	}
	if m.Archived() {
		return m, nil
	}
	now := e.now().UTC().Format(time.RFC3339)
	m.ArchivedAt = &now
	m.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return m, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateMission(ctx, tx, m); err != nil {
		return m, err
	}
	if err := e.eventWriter().Append(ctx, tx, "mission.archived", m.ID, "mission", m.ID, actorID, nil); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

const missionPageSize = 100

// Missions returns a lazy, restartable sequence over missions matching the
// filters, paging through the repo under the hood. Ranging again restarts
// from the top.
func (e Engine) Missions(ctx context.Context, f repo.MissionFilters) iter.Seq2[domain.Mission, error] {
	size := f.Limit
	if size <= 0 || size > missionPageSize {
		size = missionPageSize
	}
	return func(yield func(domain.Mission, error) bool) {
		page := f
		page.Limit = size
		page.CursorCreatedAt = ""
		page.CursorID = ""
		for {
			items, err := e.Repo.ListMissions(ctx, page)
			if err != nil {
				yield(domain.Mission{}, err)
				return
			}
			for _, m := range items {
				if !yield(m, nil) {
					return
				}
			}
			if len(items) < size {
				return
			}
			last := items[len(items)-1]
			page.CursorCreatedAt = last.CreatedAt
			page.CursorID = last.ID
		}
	}
}

// DeliverableAttachOptions are parameters for attaching a deliverable.
type DeliverableAttachOptions struct {
	ID        string
	MissionID string
	Title     string
	Type      string
	Content   string
	Formats   []string
	ActorID   string
}

func (e Engine) AttachDeliverable(ctx context.Context, opts DeliverableAttachOptions) (domain.Deliverable, error) {
	if e.Config == nil {
		return domain.Deliverable{}, errors.New("config not loaded")
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Deliverable{}, validationf("title is required")
	}
	if opts.Type == "" {
		opts.Type = "document"
	}
	m, err := e.Repo.GetMission(ctx, opts.MissionID)
	if err != nil {
		return domain.Deliverable{}, err
	}
	if m.Archived() {
		return domain.Deliverable{}, InvalidTransitionError{Entity: "mission", From: "archived", To: "attach deliverable"}
	}
	formats := opts.Formats
	if len(formats) == 0 {
		formats = e.Config.Export.DefaultFormats
	}
	if len(formats) == 0 {
		formats = export.Names()
	}
	for _, f := range formats {
		if !export.Known(f) {
			return domain.Deliverable{}, UnsupportedFormatError{Format: f}
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	d := domain.Deliverable{
		ID:            id,
		MissionID:     m.ID,
		Title:         opts.Title,
		Type:          opts.Type,
		Content:       opts.Content,
		ReviewState:   domain.ReviewDraft,
		ExportFormats: formats,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDeliverable(ctx, tx, d); err != nil {
		return d, err
	}
	if err := e.eventWriter().Append(ctx, tx, "deliverable.attached", m.ID, "deliverable", d.ID, opts.ActorID, events.EventPayload{
		"title":        d.Title,
		"type":         d.Type,
		"review_state": d.ReviewState,
	}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}

// ExportResult carries rendered deliverable content with its format.
type ExportResult struct {
	Deliverable domain.Deliverable
	Format      export.Format
	Data        []byte
}

// ExportDeliverable renders a deliverable in one of its registered formats.
// When export gating is enabled (the default), only published deliverables
// can be exported.
func (e Engine) ExportDeliverable(ctx context.Context, deliverableID, format, actorID string) (ExportResult, error) {
	if e.Config == nil {
		return ExportResult{}, errors.New("config not loaded")
	}
	d, err := e.Repo.GetDeliverable(ctx, deliverableID)
	if err != nil {
		return ExportResult{}, err
	}
	f, err := export.Lookup(format)
	if err != nil {
		return ExportResult{}, UnsupportedFormatError{Format: format}
	}
	if !containsFold(d.ExportFormats, f.Name) {
		return ExportResult{}, UnsupportedFormatError{Format: format}
	}
	if e.Config.RequirePublished() && d.ReviewState != domain.ReviewPublished {
		return ExportResult{}, NotReadyError{State: d.ReviewState}
	}
	data, err := f.Render(d)
	if err != nil {
		return ExportResult{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ExportResult{}, err
	}
	defer tx.Rollback()
	if err := e.eventWriter().Append(ctx, tx, "deliverable.exported", d.MissionID, "deliverable", d.ID, actorID, events.EventPayload{
		"format": f.Name,
		"bytes":  len(data),
	}); err != nil {
		return ExportResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ExportResult{}, err
	}
	return ExportResult{Deliverable: d, Format: f, Data: data}, nil
}

// --- helpers ---

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func containsFold(in []string, v string) bool {
	for _, s := range in {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
