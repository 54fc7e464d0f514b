package server

import (
	"encoding/json"

	"briefline/internal/domain"
)

// Request payloads

type CreateMissionRequest struct {
	ID      *string  `json:"id,omitempty"`
	Title   string   `json:"title"`
	Client  string   `json:"client"`
	Domains []string `json:"domains,omitempty"`
	Roles   []string `json:"roles,omitempty"`
}

type UpdateMissionRequest struct {
	Status   *string `json:"status,omitempty" enum:"planned,in_progress,completed"`
	Progress *int    `json:"progress,omitempty" minimum:"0" maximum:"100"`
}

type AttachDeliverableRequest struct {
	ID      *string  `json:"id,omitempty"`
	Title   string   `json:"title"`
	Type    string   `json:"type,omitempty"`
	Content string   `json:"content"`
	Formats []string `json:"formats,omitempty"`
}

type EnrichmentRequest struct {
	Kinds []string `json:"kinds"`
	Style string   `json:"style,omitempty" enum:"professional,modern,minimalist,corporate"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

// Response payloads

type MissionResponse struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Client     string   `json:"client"`
	Status     string   `json:"status" enum:"planned,in_progress,completed"`
	Progress   int      `json:"progress"`
	Domains    []string `json:"domains"`
	Roles      []string `json:"roles"`
	CreatedAt  string   `json:"created_at" format:"date-time"`
	UpdatedAt  string   `json:"updated_at" format:"date-time"`
	ArchivedAt *string  `json:"archived_at,omitempty" format:"date-time"`
}

type DeliverableResponse struct {
	ID            string   `json:"id"`
	MissionID     string   `json:"mission_id"`
	Title         string   `json:"title"`
	Type          string   `json:"type"`
	Content       string   `json:"content"`
	ReviewState   string   `json:"review_state" enum:"draft,fact_checked,enriched,published"`
	ExportFormats []string `json:"export_formats"`
	CreatedAt     string   `json:"created_at" format:"date-time"`
	UpdatedAt     string   `json:"updated_at" format:"date-time"`
	PublishedAt   *string  `json:"published_at,omitempty" format:"date-time"`
}

type ReviewRecordResponse struct {
	ID            string             `json:"id"`
	DeliverableID string             `json:"deliverable_id"`
	Stage         string             `json:"stage" enum:"fact_check,enrichment"`
	Outcome       string             `json:"outcome" enum:"passed,needs_revision,applied"`
	Confidences   map[string]float64 `json:"confidences,omitempty"`
	Failed        []string           `json:"failed,omitempty"`
	Enrichments   []string           `json:"enrichments,omitempty"`
	Style         string             `json:"style,omitempty"`
	ActorID       string             `json:"actor_id"`
	CreatedAt     string             `json:"created_at" format:"date-time"`
}

type FactCheckResponse struct {
	Record      ReviewRecordResponse `json:"record"`
	Deliverable DeliverableResponse  `json:"deliverable"`
	Outcome     string               `json:"outcome" enum:"passed,needs_revision"`
	Failed      []string             `json:"failed"`
}

type MissionStatusResponse struct {
	MissionID         string         `json:"mission_id"`
	Status            string         `json:"status"`
	Progress          int            `json:"progress"`
	DeliverableCounts map[string]int `json:"deliverable_counts"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	MissionID  string         `json:"mission_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is only present on creation; the server stores a hash.
	Key string `json:"key,omitempty"`
}

type paginatedMissions struct {
	Items      []MissionResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type paginatedDeliverables struct {
	Items      []DeliverableResponse `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func missionResponse(m domain.Mission) MissionResponse {
	return MissionResponse{
		ID:         m.ID,
		Title:      m.Title,
		Client:     m.Client,
		Status:     m.Status,
		Progress:   m.Progress,
		Domains:    nonNilSlice(m.Domains),
		Roles:      nonNilSlice(m.Roles),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
		ArchivedAt: m.ArchivedAt,
	}
}

func deliverableResponse(d domain.Deliverable) DeliverableResponse {
	return DeliverableResponse{
		ID:            d.ID,
		MissionID:     d.MissionID,
		Title:         d.Title,
		Type:          d.Type,
		Content:       d.Content,
		ReviewState:   d.ReviewState,
		ExportFormats: nonNilSlice(d.ExportFormats),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		PublishedAt:   d.PublishedAt,
	}
}

func reviewRecordResponse(rec domain.ReviewRecord) ReviewRecordResponse {
	return ReviewRecordResponse{
		ID:            rec.ID,
		DeliverableID: rec.DeliverableID,
		Stage:         rec.Stage,
		Outcome:       rec.Outcome,
		Confidences:   decodeFloatMap(rec.ConfidencesJSON),
		Failed:        decodeStringSlice(rec.FailedJSON),
		Enrichments:   decodeStringSlice(rec.EnrichmentsJSON),
		Style:         rec.Style,
		ActorID:       rec.ActorID,
		CreatedAt:     rec.CreatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		MissionID:  e.MissionID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func mapMissions(items []domain.Mission) []MissionResponse {
	res := make([]MissionResponse, 0, len(items))
	for _, m := range items {
		res = append(res, missionResponse(m))
	}
	return res
}

func mapDeliverables(items []domain.Deliverable) []DeliverableResponse {
	res := make([]DeliverableResponse, 0, len(items))
	for _, d := range items {
		res = append(res, deliverableResponse(d))
	}
	return res
}

func mapReviewRecords(items []domain.ReviewRecord) []ReviewRecordResponse {
	res := make([]ReviewRecordResponse, 0, len(items))
	for _, rec := range items {
		res = append(res, reviewRecordResponse(rec))
	}
	return res
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func decodeStringSlice(raw *string) []string {
	if raw == nil || *raw == "" {
		return nil
	}
	var arr []string
	if err := json.Unmarshal([]byte(*raw), &arr); err != nil {
		return nil
	}
	return arr
}

func decodeFloatMap(raw *string) map[string]float64 {
	if raw == nil || *raw == "" {
		return nil
	}
	var m map[string]float64
	if err := json.Unmarshal([]byte(*raw), &m); err != nil {
		return nil
	}
	return m
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
