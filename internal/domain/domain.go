package domain

// Mission statuses.
const (
	MissionPlanned    = "planned"
	MissionInProgress = "in_progress"
	MissionCompleted  = "completed"
)

// Deliverable review states.
const (
	ReviewDraft       = "draft"
	ReviewFactChecked = "fact_checked"
	ReviewEnriched    = "enriched"
	ReviewPublished   = "published"
)

// Review record stages and outcomes.
const (
	StageFactCheck  = "fact_check"
	StageEnrichment = "enrichment"

	OutcomePassed        = "passed"
	OutcomeNeedsRevision = "needs_revision"
	OutcomeApplied       = "applied"
)

// FactCategories are the categories a fact check scores, in report order.
var FactCategories = []string{"figures", "dates", "names", "sources"}

// EnrichmentKinds are the visual enrichments a deliverable can receive.
var EnrichmentKinds = map[string]bool{
	"chart":       true,
	"infographic": true,
	"diagram":     true,
	"timeline":    true,
}

// EnrichmentStyles are the accepted enrichment style presets.
var EnrichmentStyles = map[string]bool{
	"professional": true,
	"modern":       true,
	"minimalist":   true,
	"corporate":    true,
}

type Mission struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Client     string   `json:"client"`
	Status     string   `json:"status" enum:"planned,in_progress,completed"`
	Progress   int      `json:"progress" minimum:"0" maximum:"100"`
	Domains    []string `json:"domains,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	CreatedAt  string   `json:"created_at" format:"date-time"`
	UpdatedAt  string   `json:"updated_at" format:"date-time"`
	ArchivedAt *string  `json:"archived_at,omitempty" format:"date-time"`
}

func (m Mission) Archived() bool { return m.ArchivedAt != nil }

type Deliverable struct {
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

// ReviewRecord is one pass of the review pipeline over a deliverable.
type ReviewRecord struct {
	ID              string  `json:"id"`
	DeliverableID   string  `json:"deliverable_id"`
	Stage           string  `json:"stage" enum:"fact_check,enrichment"`
	Outcome         string  `json:"outcome" enum:"passed,needs_revision,applied"`
	ConfidencesJSON *string `json:"confidences_json,omitempty"`
	FailedJSON      *string `json:"failed_json,omitempty"`
	EnrichmentsJSON *string `json:"enrichments_json,omitempty"`
	Style           string  `json:"style,omitempty"`
	ActorID         string  `json:"actor_id"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	MissionID  string `json:"mission_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
