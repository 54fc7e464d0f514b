package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"briefline/internal/config"
	"briefline/internal/db"
	"briefline/internal/domain"
	"briefline/internal/engine"
	"briefline/internal/migrate"
	"briefline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	if _, err := db.EnsureWorkspace(dir); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func mustMission(t *testing.T, env testEnv, title, client string) domain.Mission {
	t.Helper()
	m, err := env.Engine.CreateMission(env.Ctx, engine.MissionCreateOptions{
		Title:   title,
		Client:  client,
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}
	return m
}

func TestCreateMissionDefaults(t *testing.T) {
	env := newTestEnv(t)
	m := mustMission(t, env, "Market entry study", "Vision Bull")
	if m.Status != domain.MissionPlanned {
		t.Fatalf("status = %q, want planned", m.Status)
	}
	if m.Progress != 0 {
		t.Fatalf("progress = %d, want 0", m.Progress)
	}
	if m.ID == "" {
		t.Fatalf("expected generated id")
	}
}

func TestCreateMissionDeterministicID(t *testing.T) {
	env := newTestEnv(t)
	a := mustMission(t, env, "Pricing review", "Bull")
	env2 := newTestEnv(t)
	b := mustMission(t, env2, "Pricing review", "Bull")
	if a.ID != b.ID {
		t.Fatalf("same client/title/time produced different ids: %s vs %s", a.ID, b.ID)
	}
}

func TestCreateMissionValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateMission(env.Ctx, engine.MissionCreateOptions{Client: "Bull", ActorID: "tester"})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("missing title: got %v, want ValidationError", err)
	}
	_, err = env.Engine.CreateMission(env.Ctx, engine.MissionCreateOptions{Title: "X", ActorID: "tester"})
	if !errors.As(err, &ve) {
		t.Fatalf("missing client: got %v, want ValidationError", err)
	}
}

func TestCreateMissionRejectsUnknownRole(t *testing.T) {
	env := newTestEnv(t)
	cfg := config.Default()
	cfg.Roles.Catalog = map[string]config.RoleConfig{
		"strategy-lead": {Description: "Leads the engagement"},
	}
	env.Engine.Config = cfg
	_, err := env.Engine.CreateMission(env.Ctx, engine.MissionCreateOptions{
		Title:   "Ops review",
		Client:  "Bull",
		Roles:   []string{"strategy-lead", "astrologer"},
		ActorID: "tester",
	})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("unknown role: got %v, want ValidationError", err)
	}
}

func TestProgressMonotonic(t *testing.T) {
	env := newTestEnv(t)
	m := mustMission(t, env, "Cost program", "Bull")

	m, err := env.Engine.UpdateProgress(env.Ctx, m.ID, 40, "tester")
	if err != nil {
		t.Fatalf("progress to 40: %v", err)
	}
	if m.Status != domain.MissionInProgress {
		t.Fatalf("status = %q, want in_progress after progress > 0", m.Status)
	}
	if _, err := env.Engine.UpdateProgress(env.Ctx, m.ID, 25, "tester"); err == nil {
		t.Fatalf("expected error lowering progress")
	} else {
		var te engine.InvalidTransitionError
		if !errors.As(err, &te) {
			t.Fatalf("lowering progress: got %v, want InvalidTransitionError", err)
		}
	}
	// same value is a no-op
	if _, err := env.Engine.UpdateProgress(env.Ctx, m.ID, 40, "tester"); err != nil {
		t.Fatalf("same progress: %v", err)
	}
}

func TestProgressRange(t *testing.T) {
	env := newTestEnv(t)
	m := mustMission(t, env, "Range check", "Bull")
	var ve engine.ValidationError
	if _, err := env.Engine.UpdateProgress(env.Ctx, m.ID, -1, "tester"); !errors.As(err, &ve) {
		t.Fatalf("progress -1: got %v, want ValidationError", err)
	}
	if _, err := env.Engine.UpdateProgress(env.Ctx, m.ID, 101, "tester"); !errors.As(err, &ve) {
		t.Fatalf("progress 101: got %v, want ValidationError", err)
	}
}

func TestMissionStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	m := mustMission(t, env, "Transitions", "Bull")

	m, err := env.Engine.SetMissionStatus(env.Ctx, m.ID, domain.MissionInProgress, "tester")
	if err != nil || m.Status != domain.MissionInProgress {
		t.Fatalf("to in_progress: %v", err)
	}
	m, err = env.Engine.SetMissionStatus(env.Ctx, m.ID, domain.MissionCompleted, "tester")
	if err != nil || m.Status != domain.MissionCompleted {
		t.Fatalf("to completed: %v", err)
	}
	if m.Progress != 100 {
		t.Fatalf("completed mission progress = %d, want 100", m.Progress)
	}
	// completed is terminal
	_, err = env.Engine.SetMissionStatus(env.Ctx, m.ID, domain.MissionPlanned, "tester")
	var te engine.InvalidTransitionError
	if !errors.As(err, &te) {
		t.Fatalf("completed -> planned: got %v, want InvalidTransitionError", err)
	}
	// progress updates on a completed mission are rejected
	if _, err := env.Engine.UpdateProgress(env.Ctx, m.ID, 50, "tester"); !errors.As(err, &te) {
		t.Fatalf("progress on completed: got %v, want InvalidTransitionError", err)
	}
}

func TestMissionStatusSkipRejected(t *testing.T) {
	env := newTestEnv(t)
	m := mustMission(t, env, "No skipping", "Bull")
	_, err := env.Engine.SetMissionStatus(env.Ctx, m.ID, domain.MissionCompleted, "tester")
	var te engine.InvalidTransitionError
	if !errors.As(err, &te) {
		t.Fatalf("planned -> completed: got %v, want InvalidTransitionError", err)
	}
}

func TestArchiveMission(t *testing.T) {
	env := newTestEnv(t)
	m := mustMission(t, env, "To archive", "Bull")
	m, err := env.Engine.ArchiveMission(env.Ctx, m.ID, "tester")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !m.Archived() {
		t.Fatalf("expected archived_at to be set")
	}
	// idempotent
	again, err := env.Engine.ArchiveMission(env.Ctx, m.ID, "tester")
	if err != nil {
		t.Fatalf("archive twice: %v", err)
	}
	if again.ArchivedAt == nil || *again.ArchivedAt != *m.ArchivedAt {
		t.Fatalf("second archive changed archived_at")
	}
	// mutations on archived missions are rejected
	var te engine.InvalidTransitionError
	if _, err := env.Engine.UpdateProgress(env.Ctx, m.ID, 10, "tester"); !errors.As(err, &te) {
		t.Fatalf("progress on archived: got %v, want InvalidTransitionError", err)
	}
	// archived missions are hidden from default listings
	items, err := env.Engine.Repo.ListMissions(env.Ctx, repo.MissionFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, it := range items {
		if it.ID == m.ID {
			t.Fatalf("archived mission in default listing")
		}
	}
	items, err = env.Engine.Repo.ListMissions(env.Ctx, repo.MissionFilters{IncludeArchived: true})
	if err != nil {
		t.Fatalf("list archived: %v", err)
	}
	found := false
	for _, it := range items {
		if it.ID == m.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("archived mission missing from include_archived listing")
	}
}

func TestMissionsIterator(t *testing.T) {
	env := newTestEnv(t)
	ids := map[string]bool{}
	for i := 0; i < 5; i++ {
		m, err := env.Engine.CreateMission(env.Ctx, engine.MissionCreateOptions{
			ID:      []string{"m-a", "m-b", "m-c", "m-d", "m-e"}[i],
			Title:   "Mission",
			Client:  "Bull",
			ActorID: "tester",
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids[m.ID] = false
	}
	seen := 0
	for m, err := range env.Engine.Missions(env.Ctx, repo.MissionFilters{Limit: 2}) {
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}
		if _, ok := ids[m.ID]; !ok {
			t.Fatalf("unexpected mission %s", m.ID)
		}
		if ids[m.ID] {
			t.Fatalf("mission %s yielded twice", m.ID)
		}
		ids[m.ID] = true
		seen++
	}
	if seen != 5 {
		t.Fatalf("iterated %d missions, want 5", seen)
	}
	// early break must not panic or leak
	for range env.Engine.Missions(env.Ctx, repo.MissionFilters{}) {
		break
	}
}

func TestMissionsIteratorDomainFilter(t *testing.T) {
	env := newTestEnv(t)
	domains := map[string][]string{
		"m-1": {"strategy"},
		"m-2": {"finance"},
		"m-3": {"strategy", "finance"},
		"m-4": {"finance"},
	}
	for _, id := range []string{"m-1", "m-2", "m-3", "m-4"} {
		_, err := env.Engine.CreateMission(env.Ctx, engine.MissionCreateOptions{
			ID:      id,
			Title:   "Mission " + id,
			Client:  "Bull",
			Domains: domains[id],
			ActorID: "tester",
		})
		if err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	// Page size 1 forces every page boundary; pages whose newest rows
	// carry other domain tags must not end the sequence early.
	seen := map[string]bool{}
	for m, err := range env.Engine.Missions(env.Ctx, repo.MissionFilters{Domain: "strategy", Limit: 1}) {
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}
		seen[m.ID] = true
	}
	if len(seen) != 2 || !seen["m-1"] || !seen["m-3"] {
		t.Fatalf("domain filter yielded %v, want m-1 and m-3", seen)
	}
	for m, err := range env.Engine.Missions(env.Ctx, repo.MissionFilters{Domain: "legal"}) {
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}
		t.Fatalf("unexpected mission %s for unmatched domain", m.ID)
	}
}

func TestAttachDeliverable(t *testing.T) {
	env := newTestEnv(t)
	m := mustMission(t, env, "Attach", "Bull")
	d, err := env.Engine.AttachDeliverable(env.Ctx, engine.DeliverableAttachOptions{
		MissionID: m.ID,
		Title:     "Findings report",
		Content:   "## Summary\nAll good.",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if d.ReviewState != domain.ReviewDraft {
		t.Fatalf("review state = %q, want draft", d.ReviewState)
	}
	if d.Type != "document" {
		t.Fatalf("type = %q, want document default", d.Type)
	}
	if len(d.ExportFormats) == 0 {
		t.Fatalf("expected default export formats")
	}
}

func TestAttachDeliverableErrors(t *testing.T) {
	env := newTestEnv(t)
	m := mustMission(t, env, "Attach errors", "Bull")

	var ve engine.ValidationError
	_, err := env.Engine.AttachDeliverable(env.Ctx, engine.DeliverableAttachOptions{
		MissionID: m.ID, Content: "x", ActorID: "tester",
	})
	if !errors.As(err, &ve) {
		t.Fatalf("missing title: got %v, want ValidationError", err)
	}

	_, err = env.Engine.AttachDeliverable(env.Ctx, engine.DeliverableAttachOptions{
		MissionID: "nope", Title: "T", Content: "x", ActorID: "tester",
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown mission: got %v, want ErrNotFound", err)
	}

	var fe engine.UnsupportedFormatError
	_, err = env.Engine.AttachDeliverable(env.Ctx, engine.DeliverableAttachOptions{
		MissionID: m.ID, Title: "T", Content: "x", Formats: []string{"pdf"}, ActorID: "tester",
	})
	if !errors.As(err, &fe) {
		t.Fatalf("bad format: got %v, want UnsupportedFormatError", err)
	}

	if _, err := env.Engine.ArchiveMission(env.Ctx, m.ID, "tester"); err != nil {
		t.Fatalf("archive: %v", err)
	}
	var te engine.InvalidTransitionError
	_, err = env.Engine.AttachDeliverable(env.Ctx, engine.DeliverableAttachOptions{
		MissionID: m.ID, Title: "T", Content: "x", ActorID: "tester",
	})
	if !errors.As(err, &te) {
		t.Fatalf("attach to archived: got %v, want InvalidTransitionError", err)
	}
}

func TestExportGating(t *testing.T) {
	env := newTestEnv(t)
	m := mustMission(t, env, "Export", "Bull")
	d, err := env.Engine.AttachDeliverable(env.Ctx, engine.DeliverableAttachOptions{
		MissionID: m.ID,
		Title:     "Draft report",
		Content:   "body",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	var ne engine.NotReadyError
	if _, err := env.Engine.ExportDeliverable(env.Ctx, d.ID, "text", "tester"); !errors.As(err, &ne) {
		t.Fatalf("export draft: got %v, want NotReadyError", err)
	}

	// gating off allows draft export
	relaxed := config.Default()
	off := false
	relaxed.Export.RequirePublished = &off
	env.Engine.Config = relaxed
	res, err := env.Engine.ExportDeliverable(env.Ctx, d.ID, "text", "tester")
	if err != nil {
		t.Fatalf("export with gating off: %v", err)
	}
	if len(res.Data) == 0 {
		t.Fatalf("empty export")
	}
}

func TestExportUnknownFormat(t *testing.T) {
	env := newTestEnv(t)
	m := mustMission(t, env, "Formats", "Bull")
	d, err := env.Engine.AttachDeliverable(env.Ctx, engine.DeliverableAttachOptions{
		MissionID: m.ID,
		Title:     "Report",
		Content:   "body",
		Formats:   []string{"text"},
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	var fe engine.UnsupportedFormatError
	if _, err := env.Engine.ExportDeliverable(env.Ctx, d.ID, "docx", "tester"); !errors.As(err, &fe) {
		t.Fatalf("unknown format: got %v, want UnsupportedFormatError", err)
	}
	// registered format not allowed for this deliverable
	if _, err := env.Engine.ExportDeliverable(env.Ctx, d.ID, "slides", "tester"); !errors.As(err, &fe) {
		t.Fatalf("unlisted format: got %v, want UnsupportedFormatError", err)
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	m := mustMission(t, env, "Events", "Bull")
	if _, err := env.Engine.UpdateProgress(env.Ctx, m.ID, 10, "tester"); err != nil {
		t.Fatalf("progress: %v", err)
	}
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, m.ID, "", "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	types := map[string]bool{}
	for _, evt := range events {
		types[evt.Type] = true
	}
	if !types["mission.created"] || !types["mission.progress"] {
		t.Fatalf("missing events, got %v", types)
	}
}

func TestEventTimestampsFollowEngineClock(t *testing.T) {
	env := newTestEnv(t)
	m := mustMission(t, env, "Clock", "Bull")
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 1, m.ID, "mission.created", "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if want := "2025-06-01T00:00:00Z"; events[0].TS != want {
		t.Fatalf("event ts = %q, want %q", events[0].TS, want)
	}
}
