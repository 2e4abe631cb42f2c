package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"shiftpost/internal/config"
	"shiftpost/internal/db"
	"shiftpost/internal/engine"
	"shiftpost/internal/migrate"
)

type testServer struct {
	URL    string
	eng    *engine.Engine
	now    *time.Time
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	e := engine.New(conn, config.Default())
	e.Now = func() time.Time { return now }
	e.Events.Now = e.Now
	handler, err := New(Config{Engine: e, BasePath: "/v1"})
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
		eng:    &e,
		now:    &now,
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

var (
	agencyHeaders  = map[string]string{"X-Actor-Id": "agency-1", "X-Role": "agency"}
	officerHeaders = map[string]string{"X-Actor-Id": "officer-7", "X-Role": "officer"}
	adminHeaders   = map[string]string{"X-Actor-Id": "admin-1", "X-Role": "admin"}
)

func postJobPayload() map[string]any {
	return map[string]any{
		"site":       "Marina Bay Tower",
		"date":       "2024-03-05",
		"rank":       "SO",
		"start_time": "08:00",
		"end_time":   "16:00",
		"urgency":    "Normal",
		"offer_pay":  120,
	}
}

func TestJobRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs", postJobPayload(), agencyHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create job: %d %s", res.StatusCode, string(data))
	}
	var created JobResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}
	if created.Status != "Open" || created.SuggestedPay != 100 {
		t.Fatalf("created job: %+v", created)
	}
	jobURL := srv.URL + "/v1/jobs/" + jsonID(created.ID)

	res, data = doJSON(t, client, http.MethodPost, jobURL+"/commit", nil, officerHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("commit: %d %s", res.StatusCode, string(data))
	}
	var committed JobResponse
	_ = json.Unmarshal(data, &committed)
	if committed.Status != "Pending" || committed.CommittedBy == nil || *committed.CommittedBy != "officer-7" {
		t.Fatalf("committed job: %+v", committed)
	}
	if committed.CancellableAt == nil {
		t.Fatal("pending job should expose cancellable_at")
	}

	res, data = doJSON(t, client, http.MethodPost, jobURL+"/accept", nil, agencyHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, jobURL+"/complete", nil, agencyHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, jobURL+"/reviews/agency", map[string]any{
		"rating": 5,
		"traits": []string{"Punctual"},
	}, agencyHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("agency review: %d %s", res.StatusCode, string(data))
	}
	var reviewed JobResponse
	_ = json.Unmarshal(data, &reviewed)
	if reviewed.AgencyReview == nil || reviewed.AgencyReview.Rating != 5 {
		t.Fatalf("reviewed job: %+v", reviewed)
	}

	res, data = doJSON(t, client, http.MethodPost, jobURL+"/reviews/agency", map[string]any{
		"rating": 4,
	}, agencyHeaders)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate review: %d %s", res.StatusCode, string(data))
	}
}

func TestCreateJobBelowFloorRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	payload := postJobPayload()
	payload["offer_pay"] = 90
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs", payload, agencyHeaders)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "validation_failed" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}
	if envelope.Error.Details["minimum_offer"] != float64(100) {
		t.Fatalf("details = %+v", envelope.Error.Details)
	}
}

func TestRoleGates(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	// Officers cannot post jobs.
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs", postJobPayload(), officerHeaders)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("officer posting job: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs", postJobPayload(), agencyHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create job: %d %s", res.StatusCode, string(data))
	}
	var created JobResponse
	_ = json.Unmarshal(data, &created)
	jobURL := srv.URL + "/v1/jobs/" + jsonID(created.ID)

	// Agencies cannot commit.
	res, data = doJSON(t, client, http.MethodPost, jobURL+"/commit", nil, agencyHeaders)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("agency committing: %d %s", res.StatusCode, string(data))
	}

	// Only admins reset.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs/reset", nil, agencyHeaders)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("agency reset: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs/reset", nil, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin reset: %d %s", res.StatusCode, string(data))
	}
}

func TestCancelWindowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs", postJobPayload(), agencyHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create job: %d %s", res.StatusCode, string(data))
	}
	var created JobResponse
	_ = json.Unmarshal(data, &created)
	jobURL := srv.URL + "/v1/jobs/" + jsonID(created.ID)

	res, data = doJSON(t, client, http.MethodPost, jobURL+"/commit", nil, officerHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("commit: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, jobURL+"/cancel", nil, officerHeaders)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("early cancel: %d %s", res.StatusCode, string(data))
	}

	*srv.now = srv.now.Add(31 * time.Minute)
	res, data = doJSON(t, client, http.MethodPost, jobURL+"/cancel", nil, officerHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("late cancel: %d %s", res.StatusCode, string(data))
	}
	var cancelled JobResponse
	_ = json.Unmarshal(data, &cancelled)
	if cancelled.Status != "Open" || cancelled.CommitTime != nil {
		t.Fatalf("cancelled job: %+v", cancelled)
	}
}

func TestAccountFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/accounts", map[string]any{
		"kind": "agency",
		"name": "Sentinel Security",
	}, agencyHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register: %d %s", res.StatusCode, string(data))
	}
	var account AccountResponse
	_ = json.Unmarshal(data, &account)
	if account.Status != "pending" {
		t.Fatalf("account: %+v", account)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/accounts/"+account.ID+"/validate", nil, agencyHeaders)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin validate: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/accounts/"+account.ID+"/validate", nil, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate: %d %s", res.StatusCode, string(data))
	}
	var validated AccountResponse
	_ = json.Unmarshal(data, &validated)
	if validated.Status != "verified" || validated.ValidatedAt == nil {
		t.Fatalf("validated account: %+v", validated)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/accounts/"+account.ID, nil, adminHeaders)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("reject verified account: %d %s", res.StatusCode, string(data))
	}
}

func TestEventsAndStatus(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs", postJobPayload(), agencyHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create job: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?entity_kind=job", nil, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, string(data))
	}
	var events []EventResponse
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(events) != 1 || events[0].Type != "job.created" {
		t.Fatalf("events: %+v", events)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/status", nil, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status: %d %s", res.StatusCode, string(data))
	}
	var status map[string]any
	_ = json.Unmarshal(data, &status)
	counts, _ := status["job_counts"].(map[string]any)
	if counts["Open"] != float64(1) {
		t.Fatalf("status: %+v", status)
	}
}

func TestQuoteEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet,
		srv.URL+"/v1/pay/quote?rank=CSO&start_time=20:00&end_time=04:00&urgency=Rush", nil, officerHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("quote: %d %s", res.StatusCode, string(data))
	}
	var quote QuoteResponse
	if err := json.Unmarshal(data, &quote); err != nil {
		t.Fatalf("unmarshal quote: %v", err)
	}
	if quote.Hours != 8 || quote.Suggested != 172.80 || quote.Minimum != 144 {
		t.Fatalf("quote: %+v", quote)
	}
}

func jsonID(id int64) string {
	return strconv.FormatInt(id, 10)
}
