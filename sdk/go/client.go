package brieflinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Briefline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Mission represents the API mission model.
type Mission struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Client   string   `json:"client"`
	Status   string   `json:"status"`
	Progress int      `json:"progress"`
	Domains  []string `json:"domains"`
	Roles    []string `json:"roles"`
}

// Deliverable represents the API deliverable model.
type Deliverable struct {
	ID            string   `json:"id"`
	MissionID     string   `json:"mission_id"`
	Title         string   `json:"title"`
	Type          string   `json:"type"`
	Content       string   `json:"content"`
	ReviewState   string   `json:"review_state"`
	ExportFormats []string `json:"export_formats"`
	PublishedAt   *string  `json:"published_at,omitempty"`
}

// ReviewRecord represents one fact-check or enrichment run.
type ReviewRecord struct {
	ID            string             `json:"id"`
	DeliverableID string             `json:"deliverable_id"`
	Stage         string             `json:"stage"`
	Outcome       string             `json:"outcome"`
	Confidences   map[string]float64 `json:"confidences,omitempty"`
	Failed        []string           `json:"failed,omitempty"`
	Enrichments   []string           `json:"enrichments,omitempty"`
	Style         string             `json:"style,omitempty"`
	CreatedAt     string             `json:"created_at"`
}

// FactCheckResult is the response of a fact-check run.
type FactCheckResult struct {
	Record      ReviewRecord `json:"record"`
	Deliverable Deliverable  `json:"deliverable"`
	Outcome     string       `json:"outcome"`
	Failed      []string     `json:"failed"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	MissionID  string         `json:"mission_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedMissions wraps mission listings with cursors.
type PaginatedMissions struct {
	Items      []Mission `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateMission creates a mission.
func (c *Client) CreateMission(ctx context.Context, title, client string, domains, roles []string) (Mission, error) {
	body := map[string]any{
		"title":  title,
		"client": client,
	}
	if len(domains) > 0 {
		body["domains"] = domains
	}
	if len(roles) > 0 {
		body["roles"] = roles
	}
	var resp Mission
	err := c.do(ctx, http.MethodPost, "v0/missions", body, &resp)
	return resp, err
}

// GetMission fetches a mission by id.
func (c *Client) GetMission(ctx context.Context, id string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodGet, "v0/missions/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// MissionsPage returns a paginated mission listing.
func (c *Client) MissionsPage(ctx context.Context, limit int, cursor string) (PaginatedMissions, error) {
	endpoint := "v0/missions"
	endpoint = appendQuery(endpoint, limit, cursor)
	var resp PaginatedMissions
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UpdateProgress sets a mission's progress percentage.
func (c *Client) UpdateProgress(ctx context.Context, missionID string, progress int) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPatch, "v0/missions/"+url.PathEscape(missionID), map[string]any{"progress": progress}, &resp)
	return resp, err
}

// AttachDeliverable attaches a deliverable to a mission.
func (c *Client) AttachDeliverable(ctx context.Context, missionID, title, dtype, content string) (Deliverable, error) {
	body := map[string]any{
		"title":   title,
		"type":    dtype,
		"content": content,
	}
	var resp Deliverable
	endpoint := fmt.Sprintf("v0/missions/%s/deliverables", url.PathEscape(missionID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// FactCheck runs the fact-check stage on a deliverable.
func (c *Client) FactCheck(ctx context.Context, deliverableID string) (FactCheckResult, error) {
	var resp FactCheckResult
	endpoint := fmt.Sprintf("v0/deliverables/%s/fact-check", url.PathEscape(deliverableID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Publish publishes a deliverable.
func (c *Client) Publish(ctx context.Context, deliverableID string) (Deliverable, error) {
	var resp Deliverable
	endpoint := fmt.Sprintf("v0/deliverables/%s/publish", url.PathEscape(deliverableID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Export renders a deliverable and returns the raw bytes plus content type.
func (c *Client) Export(ctx context.Context, deliverableID, format string) ([]byte, string, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	endpoint := fmt.Sprintf("%s/v0/deliverables/%s/export?format=%s",
		c.base(), url.PathEscape(deliverableID), url.QueryEscape(format))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", err
	}
	c.setAuth(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode >= 300 {
		return nil, "", &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := appendQuery("v0/events", limit, cursor)
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func appendQuery(endpoint string, limit int, cursor string) string {
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	return endpoint
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
