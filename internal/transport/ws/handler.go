package ws

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ropequiz/internal/auth"
	"ropequiz/internal/domain"
	"ropequiz/internal/host"
	"ropequiz/internal/metrics"
	"ropequiz/internal/ratelimit"
	"ropequiz/internal/router"
)

// Handler upgrades HTTP requests to WebSocket connections and drives the
// HELLO handshake, grounded on the teacher's WSHandler.ServeWS
// (internal/transport/http/ws_handler.go): upgrade, then a single request
// goroutine reading frames in a loop, with writes owned by the connection's
// own writer goroutine.
type Handler struct {
	host     *host.Host
	verifier auth.TokenVerifier
	limiter  *ratelimit.Limiter
	metrics  *metrics.Collector
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(h *host.Host, verifier auth.TokenVerifier, limiter *ratelimit.Limiter, mx *metrics.Collector, log *slog.Logger) *Handler {
	return &Handler{
		host:     h,
		verifier: verifier,
		limiter:  limiter,
		metrics:  mx,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection, verifies the HELLO frame, and then
// drives the read loop until the socket closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()

	var env domain.InboundEnvelope
	if err := conn.ReadJSON(&env); err != nil || env.Type != domain.MsgHello {
		_ = conn.WriteJSON(domain.OutboundMessage{
			Type:    domain.MsgError,
			Payload: domain.ErrorPayload{Code: domain.CodeInvalidMessage, Message: "expected HELLO"},
		})
		return
	}

	identity, err := h.verifier.Verify(env.Token)
	if err != nil {
		_ = conn.WriteJSON(domain.OutboundMessage{
			Type:    domain.MsgError,
			Payload: domain.ErrorPayload{Code: domain.CodeInvalidToken, Message: "invalid or expired token"},
		})
		return
	}

	eng, reg, bc, err := h.host.Get(ctx, identity.SessionID)
	if err != nil {
		_ = conn.WriteJSON(domain.OutboundMessage{
			Type:    domain.MsgError,
			Payload: domain.ErrorPayload{Code: domain.CodeSessionNotFound, Message: err.Error()},
		})
		return
	}

	wsConn := NewConnection(conn, uuid.NewString(), identity.UserID, identity.Role, identity.TeamID)
	reg.Register(wsConn)
	if h.metrics != nil {
		h.metrics.ConnectionOpened()
	}
	defer func() {
		reg.Unregister(wsConn)
		if h.metrics != nil {
			h.metrics.ConnectionClosed()
		}
	}()

	if identity.Role == domain.RoleStudent {
		if err := eng.MarkConnected(ctx, identity.UserID); err != nil {
			h.log.Warn("mark connected failed", "user_id", identity.UserID, "err", err)
		}
	}

	welcome, err := eng.Welcome(ctx, identity.UserID, identity.Role, identity.TeamID)
	if err != nil {
		_ = wsConn.Close(domain.CloseInternalError, "welcome failed")
		return
	}
	bc.Send(wsConn, domain.OutboundMessage{Type: domain.MsgWelcome, Payload: welcome})

	snapshot, err := eng.StateSnapshot(ctx, identity.Role)
	if err != nil {
		_ = wsConn.Close(domain.CloseInternalError, "state snapshot failed")
		return
	}
	bc.Send(wsConn, domain.OutboundMessage{Type: domain.MsgStateSnapshot, Payload: snapshot})

	rt := router.New(h.limiter, reg, bc, h.log)
	for {
		raw, err := wsConn.ReadMessage()
		if err != nil {
			break
		}
		if out := rt.Dispatch(ctx, eng, wsConn, raw); out != nil {
			_ = wsConn.Send(*out)
		}
	}

	h.limiter.Forget(wsConn.ConnectionID())
	if err := eng.MarkDisconnected(context.Background(), identity.UserID); err != nil {
		h.log.Warn("mark disconnected failed", "user_id", identity.UserID, "err", err)
	}
}
