package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/codec"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/model"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/queue"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/state"
)

type nullSink struct{}

func (nullSink) Accept(*model.Record) {}

func newTestServer(t *testing.T, latest LatestStore) *Server {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	cdc := &codec.StructZlib{MaxPayload: codec.DefaultMaxPayload}
	ingest := queue.NewIngestQueue(cdc, nullSink{}, 5*time.Second, nil, logger)
	outbound := queue.NewOutboundQueue(nil, 5*time.Second, 5*time.Second, time.Minute, 100, nil, logger)
	return NewServer(ingest, outbound, latest, 4096, logger)
}

func TestIngestEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/container-data", bytes.NewReader([]byte{0x78, 0xda, 0x01}))
	req.Header.Set("Content-Type", "application/octet-stream")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	var resp map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response: %v", err)
	}
	if resp["queued"] != 1 {
		t.Errorf("queued: got %d, want 1", resp["queued"])
	}
}

func TestIngestRejectsEmptyBody(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/container-data", nil)
	req.Header.Set("Content-Type", "application/octet-stream")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", w.Code)
	}
}

func TestIngestRejectsWrongContentType(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/container-data", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status: got %d, want 415", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/container-data", bytes.NewReader([]byte{0x01}))
	req.Header.Set("Content-Type", "application/octet-stream")
	s.Router().ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	var resp struct {
		Ingestion queue.IngestStats   `json:"ingestion"`
		Outbound  queue.OutboundStats `json:"outbound"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response: %v", err)
	}
	if resp.Ingestion.Depth != 1 {
		t.Errorf("ingestion depth: got %d, want 1", resp.Ingestion.Depth)
	}
}

type fakeLatest struct {
	fields map[string]string
}

func (f *fakeLatest) Get(_ context.Context, iso string) (map[string]string, error) {
	if f.fields == nil {
		return nil, state.ErrNotFound
	}
	return f.fields, nil
}

func TestLatestEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeLatest{fields: map[string]string{"iso6346": "LMCU0954822"}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/containers/LMCU0954822/latest", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}

	var fields map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &fields); err != nil {
		t.Fatalf("response: %v", err)
	}
	if fields["iso6346"] != "LMCU0954822" {
		t.Errorf("iso6346: got %q", fields["iso6346"])
	}
}

func TestLatestEndpointNotFound(t *testing.T) {
	s := newTestServer(t, &fakeLatest{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/containers/LMCU0000000/latest", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", w.Code)
	}
}

func TestLatestEndpointDisabled(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/containers/LMCU0000000/latest", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", w.Code)
	}
}
