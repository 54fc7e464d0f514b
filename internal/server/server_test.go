package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"briefline/internal/config"
	"briefline/internal/db"
	"briefline/internal/engine"
	"briefline/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	e.Score = func(category, content string) float64 { return 0.95 }
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createMission(t *testing.T, srv *testServer, title, client string) MissionResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions", map[string]any{
		"title":  title,
		"client": client,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create mission status = %d: %s", res.StatusCode, data)
	}
	var m MissionResponse
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode mission: %v", err)
	}
	return m
}

func attachDeliverable(t *testing.T, srv *testServer, missionID, content string) DeliverableResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions/"+missionID+"/deliverables", map[string]any{
		"title":   "Findings",
		"type":    "report",
		"content": content,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("attach status = %d: %s", res.StatusCode, data)
	}
	var d DeliverableResponse
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("decode deliverable: %v", err)
	}
	return d
}

func TestHealthUnauthenticated(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d: %s", res.StatusCode, data)
	}
}

func TestMissionLifecycleHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	m := createMission(t, srv, "Pricing study", "Vision Bull")
	if m.Status != "planned" {
		t.Fatalf("status = %q", m.Status)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/missions/"+m.ID, map[string]any{
		"progress": 30,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d: %s", res.StatusCode, data)
	}
	var updated MissionResponse
	if err := json.Unmarshal(data, &updated); err != nil {
		t.Fatal(err)
	}
	if updated.Progress != 30 || updated.Status != "in_progress" {
		t.Fatalf("progress/status = %d/%s", updated.Progress, updated.Status)
	}

	// lowering progress maps to 409 invalid_transition
	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/missions/"+m.ID, map[string]any{
		"progress": 10,
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("lower progress status = %d: %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("error code = %q", envelope.Error.Code)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions/"+m.ID+"/archive", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("archive status = %d", res.StatusCode)
	}
}

func TestMissionNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/missions/nope", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d: %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("error code = %q", envelope.Error.Code)
	}
}

func TestMissionValidationHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions", map[string]any{
		"client": "Bull",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", res.StatusCode, data)
	}
}

func TestMissionListPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	for _, id := range []string{"m-1", "m-2", "m-3"} {
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions", map[string]any{
			"id":     id,
			"title":  "Mission " + id,
			"client": "Bull",
		}, nil)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %s: %d %s", id, res.StatusCode, data)
		}
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/missions?limit=2", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d: %s", res.StatusCode, data)
	}
	var page paginatedMissions
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("items = %d, cursor = %q", len(page.Items), page.NextCursor)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/missions?limit=2&cursor="+page.NextCursor, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second page status = %d: %s", res.StatusCode, data)
	}
	var second paginatedMissions
	if err := json.Unmarshal(data, &second); err != nil {
		t.Fatal(err)
	}
	if len(second.Items) != 1 {
		t.Fatalf("second page items = %d, want 1", len(second.Items))
	}
}

func TestMissionListDomainFilterPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	domains := map[string][]string{
		"m-1": {"strategy"},
		"m-2": {"finance"},
		"m-3": {"strategy"},
	}
	for _, id := range []string{"m-1", "m-2", "m-3"} {
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions", map[string]any{
			"id":      id,
			"title":   "Mission " + id,
			"client":  "Bull",
			"domains": domains[id],
		}, nil)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %s: %d %s", id, res.StatusCode, data)
		}
	}
	// limit=1 puts the finance mission between the two matches; its page
	// must still report a cursor leading to the older strategy mission.
	seen := map[string]bool{}
	url := srv.URL + "/v0/missions?domain=strategy&limit=1"
	for url != "" {
		res, data := doJSON(t, srv.Client(), http.MethodGet, url, nil, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("list status = %d: %s", res.StatusCode, data)
		}
		var page paginatedMissions
		if err := json.Unmarshal(data, &page); err != nil {
			t.Fatal(err)
		}
		for _, m := range page.Items {
			seen[m.ID] = true
		}
		url = ""
		if page.NextCursor != "" {
			url = srv.URL + "/v0/missions?domain=strategy&limit=1&cursor=" + page.NextCursor
		}
	}
	if len(seen) != 2 || !seen["m-1"] || !seen["m-3"] {
		t.Fatalf("domain pages yielded %v, want m-1 and m-3", seen)
	}
}

func TestReviewPipelineHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	m := createMission(t, srv, "Pipeline", "Bull")
	d := attachDeliverable(t, srv, m.ID, "## Summary\nLooks solid.")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/deliverables/"+d.ID+"/fact-check", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("fact-check status = %d: %s", res.StatusCode, data)
	}
	var fc FactCheckResponse
	if err := json.Unmarshal(data, &fc); err != nil {
		t.Fatal(err)
	}
	if fc.Outcome != "passed" || fc.Deliverable.ReviewState != "fact_checked" {
		t.Fatalf("outcome = %s, state = %s", fc.Outcome, fc.Deliverable.ReviewState)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/deliverables/"+d.ID+"/enrich", map[string]any{
		"kinds": []string{"chart"},
		"style": "modern",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("enrich status = %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/deliverables/"+d.ID+"/publish", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("publish status = %d: %s", res.StatusCode, data)
	}
	var pub DeliverableResponse
	if err := json.Unmarshal(data, &pub); err != nil {
		t.Fatal(err)
	}
	if pub.ReviewState != "published" || pub.PublishedAt == nil {
		t.Fatalf("publish state = %s", pub.ReviewState)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/deliverables/"+d.ID+"/reviews", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reviews status = %d: %s", res.StatusCode, data)
	}
	var recs []ReviewRecordResponse
	if err := json.Unmarshal(data, &recs); err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want fact_check + enrichment", len(recs))
	}
}

func TestExportHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	m := createMission(t, srv, "Export", "Bull")
	d := attachDeliverable(t, srv, m.ID, "## One\nalpha\n\n## Two\nbeta")

	// draft export refused while gating is on
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/deliverables/"+d.ID+"/export?format=text", nil, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("draft export status = %d: %s", res.StatusCode, data)
	}

	doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/deliverables/"+d.ID+"/fact-check", nil, nil)
	doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/deliverables/"+d.ID+"/publish", nil, nil)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/deliverables/"+d.ID+"/export?format=markdown", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d: %s", res.StatusCode, data)
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(string(data), "# Findings") {
		t.Fatalf("export body missing title: %s", data)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/deliverables/"+d.ID+"/export?format=docx", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown format status = %d: %s", res.StatusCode, data)
	}
}

func TestEventsHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	m := createMission(t, srv, "Events", "Bull")
	attachDeliverable(t, srv, m.ID, "x")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?mission_id="+m.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status = %d: %s", res.StatusCode, data)
	}
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Items) < 2 {
		t.Fatalf("events = %d, want at least created + attached", len(page.Items))
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/api-keys", map[string]any{
		"actor_id": "consultant-7",
		"name":     "ci",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status = %d: %s", res.StatusCode, data)
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatal(err)
	}
	if key.Key == "" {
		t.Fatalf("raw key absent from creation response")
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions", map[string]any{
		"title":  "Keyed mission",
		"client": "Bull",
	}, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create with key status = %d: %s", res.StatusCode, data)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions", map[string]any{
		"title":  "Bad key",
		"client": "Bull",
	}, map[string]string{"X-Api-Key": "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad key status = %d", res.StatusCode)
	}
}

func TestDashboardMetricsHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/dashboard/metrics?samples=4", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d: %s", res.StatusCode, data)
	}
	var series []struct {
		Name      string `json:"name"`
		Synthetic bool   `json:"synthetic"`
		Samples   []any  `json:"samples"`
	}
	if err := json.Unmarshal(data, &series); err != nil {
		t.Fatal(err)
	}
	if len(series) == 0 {
		t.Fatalf("no series")
	}
	for _, s := range series {
		if !s.Synthetic {
			t.Fatalf("series %s not flagged synthetic", s.Name)
		}
		if len(s.Samples) != 4 {
			t.Fatalf("series %s samples = %d", s.Name, len(s.Samples))
		}
	}
}
