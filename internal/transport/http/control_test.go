package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"ropequiz/internal/domain"
	"ropequiz/internal/host"
	"ropequiz/internal/infra/memory"
	"ropequiz/internal/metrics"
	controlhttp "ropequiz/internal/transport/http"
)

func newTestControl(t *testing.T, storage *memory.Storage) *controlhttp.Control {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := host.New(storage, memory.NewStateStore(), metrics.New(), log, nil, 0, time.Hour)
	return controlhttp.NewControl(h, log)
}

func TestInitThenGetStateRoundTrip(t *testing.T) {
	storage := memory.NewStorage()
	storage.SeedQuestion(domain.Question{ID: "q1", Text: "2+2?", Answers: []domain.Answer{{ID: "a1", Text: "4"}}, CorrectAnswer: "a1", TimeLimitMs: 10000, BasePoints: 5})
	storage.SeedRoster("session-1", nil, nil)
	control := newTestControl(t, storage)

	body, _ := json.Marshal(map[string]interface{}{
		"sessionId":   "session-1",
		"tenantId":    "tenant-1",
		"questionIds": []string{"q1"},
	})
	req := httptest.NewRequest("POST", "/sessions/init", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	control.Init(rec, req)
	if rec.Code != 200 {
		t.Fatalf("init: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest("GET", "/sessions/session-1/state", nil)
	rec = httptest.NewRecorder()
	control.GetState(rec, req, "session-1")
	if rec.Code != 200 {
		t.Fatalf("get_state: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var state domain.GameState
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Phase != domain.PhaseReady {
		t.Fatalf("expected phase %s after init, got %s", domain.PhaseReady, state.Phase)
	}
}

func TestGetStateOnUnknownSessionIsNotFound(t *testing.T) {
	control := newTestControl(t, memory.NewStorage())

	req := httptest.NewRequest("GET", "/sessions/ghost/state", nil)
	rec := httptest.NewRecorder()
	control.GetState(rec, req, "ghost")
	if rec.Code != 404 {
		t.Fatalf("expected 404 for an uninitialized session, got %d", rec.Code)
	}
}
