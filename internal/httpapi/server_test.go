package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/tgewatch/internal/db"
	"horse.fit/tgewatch/internal/monitor"
)

type fakeRunner struct {
	sessionUUID string
	startErr    error
	running     bool
	aborted     []string
	abortOK     bool
}

func (f *fakeRunner) StartCycle(context.Context) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.sessionUUID, nil
}

func (f *fakeRunner) Abort(sessionUUID string) bool {
	f.aborted = append(f.aborted, sessionUUID)
	return f.abortOK
}

func (f *fakeRunner) Running() bool { return f.running }

func newTestServer(runner CycleRunner) *Server {
	return NewServer(&db.Pool{}, runner, zerolog.Nop(), Options{})
}

func doRequest(t *testing.T, s *Server, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.buildEcho().ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, body
}

func TestHandleStartSession_Accepted(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{sessionUUID: "abc-123"}
	rec, body := doRequest(t, newTestServer(runner), http.MethodPost, "/api/v1/sessions")

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	data := body["data"].(map[string]any)
	if data["session_uuid"] != "abc-123" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestHandleStartSession_ConflictWhenRunning(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{startErr: monitor.ErrCycleInProgress}
	rec, body := doRequest(t, newTestServer(runner), http.MethodPost, "/api/v1/sessions")

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["status"] != "fail" {
		t.Fatalf("expected jsend fail, got %v", body)
	}
}

func TestHandleAbortSession(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{abortOK: true}
	rec, _ := doRequest(t, newTestServer(runner), http.MethodDelete, "/api/v1/sessions/abc-123")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(runner.aborted) != 1 || runner.aborted[0] != "abc-123" {
		t.Fatalf("expected abort call for abc-123, got %v", runner.aborted)
	}

	runner = &fakeRunner{abortOK: false}
	rec, _ = doRequest(t, newTestServer(runner), http.MethodDelete, "/api/v1/sessions/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rec.Code)
	}
}

func TestHandleAlerts_RejectsBadFilters(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeRunner{})

	rec, _ := doRequest(t, s, http.MethodGet, "/api/v1/alerts?band=critical")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown band, got %d", rec.Code)
	}

	rec, _ = doRequest(t, s, http.MethodGet, "/api/v1/alerts?since=yesterday")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad since, got %d", rec.Code)
	}

	rec, _ = doRequest(t, s, http.MethodGet, "/api/v1/alerts?limit=0")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}
