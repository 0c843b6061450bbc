// Package http implements the Control API (spec §4.8): a small JSON-over-
// HTTP surface teacher-side tooling (LMS integrations, admin dashboards)
// uses to drive a session without holding a WebSocket open. Grounded on
// the teacher's internal/transport/http package layout (one handler type
// per surface, sharing the app-layer service), generalized from elsa's
// REST CRUD handlers to the command/query pair a stateful session needs.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"ropequiz/internal/domain"
	"ropequiz/internal/host"
)

// Control exposes init/end/get_state/kick over HTTP for server-side callers
// authenticated separately from the per-connection WebSocket join token
// (spec §4.8 "Control API requests are authenticated as the owning
// teacher/service, not via the join-token flow").
type Control struct {
	host *host.Host
	log  *slog.Logger
}

func NewControl(h *host.Host, log *slog.Logger) *Control {
	return &Control{host: h, log: log}
}

type initRequest struct {
	SessionID   string   `json:"sessionId"`
	TenantID    string   `json:"tenantId"`
	QuestionIDs []string `json:"questionIds"`
	RulesetID   string   `json:"rulesetId"`
}

// Init handles POST /sessions/init; the session id is read from the body.
func (c *Control) Init(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if !decode(w, r, &req) {
		return
	}
	eng, _, _, err := c.host.Get(r.Context(), req.SessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, domain.CodeInternalError, err)
		return
	}
	if err := eng.Init(r.Context(), req.TenantID, req.QuestionIDs, req.RulesetID); err != nil {
		writeError(w, statusFor(err), domain.CodeForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// End handles POST /sessions/{id}/end.
func (c *Control) End(w http.ResponseWriter, r *http.Request, sessionID string) {
	eng, _, _, err := c.host.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, domain.CodeSessionNotFound, err)
		return
	}
	if err := eng.TeacherEndGame(r.Context()); err != nil {
		writeError(w, statusFor(err), domain.CodeForError(err), err)
		return
	}
	c.host.Stop(r.Context(), sessionID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// GetState handles GET /sessions/{id}/state.
func (c *Control) GetState(w http.ResponseWriter, r *http.Request, sessionID string) {
	eng, _, _, err := c.host.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, domain.CodeSessionNotFound, err)
		return
	}
	state, err := eng.GetState(r.Context(), domain.RoleTeacher)
	if err != nil {
		writeError(w, statusFor(err), domain.CodeForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type kickRequest struct {
	StudentID string `json:"studentId"`
	Reason    string `json:"reason"`
}

// Kick handles POST /sessions/{id}/kick.
func (c *Control) Kick(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req kickRequest
	if !decode(w, r, &req) {
		return
	}
	eng, reg, bc, err := c.host.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, domain.CodeSessionNotFound, err)
		return
	}
	kicked, err := eng.KickPlayer(r.Context(), req.StudentID, req.Reason)
	if err != nil {
		writeError(w, statusFor(err), domain.CodeForError(err), err)
		return
	}
	if conn, ok := reg.Get(kicked.ID); ok {
		bc.Send(conn, domain.OutboundMessage{
			Type:    domain.MsgPlayerKicked,
			Payload: domain.PlayerKickedPayload{StudentID: kicked.ID, Reason: req.Reason},
		})
		_ = conn.Close(domain.ClosePolicyViolation, "kicked")
	}
	writeJSON(w, http.StatusOK, kicked)
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidMessage, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code domain.ErrorCode, err error) {
	writeJSON(w, status, domain.ErrorPayload{Code: code, Message: err.Error()})
}

func statusFor(err error) int {
	switch domain.CodeForError(err) {
	case domain.CodeSessionNotFound:
		return http.StatusNotFound
	case domain.CodeNotAuthorized, domain.CodeInvalidToken:
		return http.StatusForbidden
	case domain.CodeInvalidMessage, domain.CodeInvalidAnswer:
		return http.StatusBadRequest
	case domain.CodeSessionEnded, domain.CodeAlreadyAnswered, domain.CodeQuestionExpired:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
