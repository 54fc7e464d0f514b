package engine

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"briefline/internal/domain"
	"briefline/internal/events"
)

// FactCheckResult is the outcome of one fact-check pass.
type FactCheckResult struct {
	Record      domain.ReviewRecord
	Deliverable domain.Deliverable
	Confidences map[string]float64
	Failed      []string
	Passed      bool
}

// defaultConfidence derives a stable pseudo-confidence in [0.82, 1.0) from
// the category and content. Identical content always scores identically.
func defaultConfidence(category, content string) float64 {
	sum := sha256.Sum256([]byte(category + "\x00" + content))
	v := binary.BigEndian.Uint64(sum[:8])
	return 0.82 + float64(v%1800)/10000.0
}

func (e Engine) score(category, content string) float64 {
	if e.Score != nil {
		return e.Score(category, content)
	}
	return defaultConfidence(category, content)
}

// RunFactCheck scores the deliverable's content per fact category and, if
// every category clears the acceptance threshold, moves draft to
// fact_checked. Below-threshold categories yield a needs_revision outcome
// and the state stays draft. Re-running on a fact_checked deliverable with
// unchanged content repeats the same scores.
func (e Engine) RunFactCheck(ctx context.Context, deliverableID, actorID string) (FactCheckResult, error) {
	if e.Config == nil {
		return FactCheckResult{}, validationf("config not loaded")
	}
	d, err := e.Repo.GetDeliverable(ctx, deliverableID)
	if err != nil {
		return FactCheckResult{}, err
	}
	if d.ReviewState != domain.ReviewDraft && d.ReviewState != domain.ReviewFactChecked {
		return FactCheckResult{}, InvalidTransitionError{Entity: "deliverable", From: d.ReviewState, To: domain.ReviewFactChecked}
	}
	threshold := e.Config.Threshold()
	confidences := make(map[string]float64, len(domain.FactCategories))
	var failed []string
	for _, cat := range domain.FactCategories {
		score := e.score(cat, d.Content)
		confidences[cat] = score
		if score < threshold {
			failed = append(failed, cat)
		}
	}
	sort.Strings(failed)
	passed := len(failed) == 0

	now := e.now().UTC().Format(time.RFC3339)
	rec := domain.ReviewRecord{
		ID:            uuid.New().String(),
		DeliverableID: d.ID,
		Stage:         domain.StageFactCheck,
		Outcome:       domain.OutcomeNeedsRevision,
		ActorID:       actorID,
		CreatedAt:     now,
	}
	if passed {
		rec.Outcome = domain.OutcomePassed
	}
	confJSON, err := marshalJSONString(confidences)
	if err != nil {
		return FactCheckResult{}, err
	}
	rec.ConfidencesJSON = confJSON
	if len(failed) > 0 {
		failedJSON, err := marshalJSONString(failed)
		if err != nil {
			return FactCheckResult{}, err
		}
		rec.FailedJSON = failedJSON
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return FactCheckResult{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertReviewRecord(ctx, tx, rec); err != nil {
		return FactCheckResult{}, err
	}
	if passed && d.ReviewState == domain.ReviewDraft {
		d.ReviewState = domain.ReviewFactChecked
		d.UpdatedAt = now
		if err := e.Repo.UpdateDeliverable(ctx, tx, d); err != nil {
			return FactCheckResult{}, err
		}
	}
	evtType := "deliverable.fact_checked"
	if !passed {
		evtType = "review.needs_revision"
	}
	if err := e.eventWriter().Append(ctx, tx, evtType, d.MissionID, "deliverable", d.ID, actorID, events.EventPayload{
		"outcome":     rec.Outcome,
		"threshold":   threshold,
		"confidences": confidences,
		"failed":      failed,
	}); err != nil {
		return FactCheckResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return FactCheckResult{}, err
	}
	return FactCheckResult{
		Record:      rec,
		Deliverable: d,
		Confidences: confidences,
		Failed:      failed,
		Passed:      passed,
	}, nil
}

// EnrichmentOptions select which visual enrichments to apply and in what
// style.
type EnrichmentOptions struct {
	Kinds   []string
	Style   string
	ActorID string
}

// EnrichmentResult is the outcome of a visual enrichment pass.
type EnrichmentResult struct {
	Record      domain.ReviewRecord
	Deliverable domain.Deliverable
}

// RunVisualEnrichment applies visual enrichments to a fact-checked
// deliverable, moving it to enriched.
func (e Engine) RunVisualEnrichment(ctx context.Context, deliverableID string, opts EnrichmentOptions) (EnrichmentResult, error) {
	if len(opts.Kinds) == 0 {
		return EnrichmentResult{}, validationf("at least one enrichment kind is required")
	}
	kinds := make([]string, 0, len(opts.Kinds))
	for _, k := range opts.Kinds {
		k = strings.ToLower(strings.TrimSpace(k))
		if !domain.EnrichmentKinds[k] {
			return EnrichmentResult{}, validationf("unknown enrichment kind %s", k)
		}
		kinds = append(kinds, k)
	}
	style := strings.ToLower(strings.TrimSpace(opts.Style))
	if style == "" {
		style = "professional"
	}
	if !domain.EnrichmentStyles[style] {
		return EnrichmentResult{}, validationf("unknown enrichment style %s", style)
	}
	d, err := e.Repo.GetDeliverable(ctx, deliverableID)
	if err != nil {
		return EnrichmentResult{}, err
	}
	if d.ReviewState != domain.ReviewFactChecked {
		return EnrichmentResult{}, InvalidTransitionError{Entity: "deliverable", From: d.ReviewState, To: domain.ReviewEnriched}
	}
	now := e.now().UTC().Format(time.RFC3339)
	kindsJSON, err := marshalJSONString(kinds)
	if err != nil {
		return EnrichmentResult{}, err
	}
	rec := domain.ReviewRecord{
		ID:              uuid.New().String(),
		DeliverableID:   d.ID,
		Stage:           domain.StageEnrichment,
		Outcome:         domain.OutcomeApplied,
		EnrichmentsJSON: kindsJSON,
		Style:           style,
		ActorID:         opts.ActorID,
		CreatedAt:       now,
	}
	d.ReviewState = domain.ReviewEnriched
	d.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return EnrichmentResult{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertReviewRecord(ctx, tx, rec); err != nil {
		return EnrichmentResult{}, err
	}
	if err := e.Repo.UpdateDeliverable(ctx, tx, d); err != nil {
		return EnrichmentResult{}, err
	}
	if err := e.eventWriter().Append(ctx, tx, "deliverable.enriched", d.MissionID, "deliverable", d.ID, opts.ActorID, events.EventPayload{
		"kinds": kinds,
		"style": style,
	}); err != nil {
		return EnrichmentResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return EnrichmentResult{}, err
	}
	return EnrichmentResult{Record: rec, Deliverable: d}, nil
}

// Publish moves a fact-checked or enriched deliverable to published.
// Publishing an already published deliverable is a no-op.
func (e Engine) Publish(ctx context.Context, deliverableID, actorID string) (domain.Deliverable, error) {
	d, err := e.Repo.GetDeliverable(ctx, deliverableID)
	if err != nil {
		return d, err
	}
	switch d.ReviewState {
	case domain.ReviewPublished:
		return d, nil
	case domain.ReviewFactChecked, domain.ReviewEnriched:
	default:
		return d, InvalidTransitionError{Entity: "deliverable", From: d.ReviewState, To: domain.ReviewPublished}
	}
	now := e.now().UTC().Format(time.RFC3339)
	d.ReviewState = domain.ReviewPublished
	d.PublishedAt = &now
	d.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateDeliverable(ctx, tx, d); err != nil {
		return d, err
	}
	if err := e.eventWriter().Append(ctx, tx, "deliverable.published", d.MissionID, "deliverable", d.ID, actorID, events.EventPayload{
		"title": d.Title,
	}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}

func marshalJSONString(v any) (*string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}
