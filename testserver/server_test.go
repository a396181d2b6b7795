package testserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const twoRecords = `{"records":[
	{"event_id":"e1","event_type":"page_view","properties":{"page_url":"/"}},
	{"event_id":"e2","event_type":"purchase","properties":{"total_amount":129.90}}
]}`

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url+"/events", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /events failed: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("response is not JSON: %q", data)
	}
	return resp, out
}

func TestEventsEndpoint_Accepts(t *testing.T) {
	server := NewServer()
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, out := post(t, ts.URL, twoRecords)

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", resp.StatusCode)
	}
	if out["status"] != "accepted" || out["processed"] != float64(2) {
		t.Errorf("unexpected response: %v", out)
	}
	if server.TotalEvents() != 2 {
		t.Errorf("TotalEvents = %d, want 2", server.TotalEvents())
	}
	if got := server.Revenue().StringFixed(2); got != "129.90" {
		t.Errorf("Revenue = %s, want 129.90", got)
	}
	if server.CountByType("purchase") != 1 {
		t.Errorf("purchase count = %d", server.CountByType("purchase"))
	}
	accepted := server.Accepted()
	if accepted["e1"] != 1 || accepted["e2"] != 1 {
		t.Errorf("unexpected accepted ids: %v", accepted)
	}
}

func TestEventsEndpoint_BadBody(t *testing.T) {
	server := NewServer()
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"invalid json", "{records:"},
		{"records not array", `{"records":{"event_id":"e1"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := post(t, ts.URL, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
			if out["error"] == nil {
				t.Errorf("expected error message, got %v", out)
			}
		})
	}

	if server.Batches() != 0 || server.TotalEvents() != 0 {
		t.Error("bad bodies must not be counted")
	}
}

func TestEventsEndpoint_MissingRecordsIsEmptyBatch(t *testing.T) {
	server := NewServer()
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, out := post(t, ts.URL, `{"other":1}`)

	if resp.StatusCode != http.StatusAccepted || out["processed"] != float64(0) {
		t.Errorf("expected empty accepted batch, got %d %v", resp.StatusCode, out)
	}
}

func TestEventsEndpoint_RejectFirst(t *testing.T) {
	server := NewServer(WithRejectFirst(2))
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	wantCodes := []int{503, 503, 202, 202}
	for i, want := range wantCodes {
		resp, _ := post(t, ts.URL, twoRecords)
		if resp.StatusCode != want {
			t.Errorf("batch %d: expected %d, got %d", i, want, resp.StatusCode)
		}
	}

	if server.Rejected() != 2 || server.Batches() != 4 {
		t.Errorf("rejected=%d batches=%d", server.Rejected(), server.Batches())
	}
	if server.TotalEvents() != 4 {
		t.Errorf("rejected batches must not be stored, total=%d", server.TotalEvents())
	}
	if server.Accepted()["e1"] != 2 {
		t.Errorf("e1 accepted %d times, want 2", server.Accepted()["e1"])
	}
}

func TestEventsEndpoint_FailRate(t *testing.T) {
	tests := []struct {
		rate    float64
		wantMin int64
		wantMax int64
	}{
		{0, 0, 0},
		{1, 20, 20},
		{0.5, 2, 18},
	}

	for _, tt := range tests {
		server := NewServer(WithFailRate(tt.rate, 7))
		ts := httptest.NewServer(server.Handler())

		for i := 0; i < 20; i++ {
			post(t, ts.URL, twoRecords)
		}
		ts.Close()

		if got := server.Rejected(); got < tt.wantMin || got > tt.wantMax {
			t.Errorf("rate %.1f: %d failures, want %d..%d", tt.rate, got, tt.wantMin, tt.wantMax)
		}
	}
}

func TestStatsEndpoint(t *testing.T) {
	server := NewServer()
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	for i := 0; i < 4; i++ {
		post(t, ts.URL, twoRecords)
	}

	resp, err := http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats failed: %v", err)
	}
	defer resp.Body.Close()

	var stats statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}

	if stats.TotalEvents != 8 {
		t.Errorf("total_events = %d, want 8", stats.TotalEvents)
	}
	if stats.EventsByType["page_view"] != 4 || stats.EventsByType["purchase"] != 4 {
		t.Errorf("unexpected events_by_type: %v", stats.EventsByType)
	}
	if len(stats.RecentEvents) != 5 {
		t.Errorf("expected 5 recent events, got %d", len(stats.RecentEvents))
	}
	if stats.Revenue != "519.60" {
		t.Errorf("revenue = %s, want 519.60", stats.Revenue)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := NewServer()
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	var result map[string]string
	json.NewDecoder(resp.Body).Decode(&result)
	if result["status"] != "ok" {
		t.Errorf("expected status ok, got %v", result)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server := NewServer()
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/events")
	if err != nil {
		t.Fatalf("GET /events failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}
