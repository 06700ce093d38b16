// Package realtime owns the websocket surface: accepting connections,
// authenticating them, decoding inbound frames and fanning outbound
// events to connections and room groups.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"gomoku-server/internal/metrics"
	"gomoku-server/internal/obslog"
	"gomoku-server/internal/presence"
)

// TokenVerifier authenticates the handshake credential.
type TokenVerifier interface {
	VerifyAccess(ctx context.Context, token string) (int64, error)
}

// EventHandler receives decoded client events. The hub guarantees the
// connection is authenticated before any call.
type EventHandler interface {
	HandleConnect(ctx context.Context, connID presence.ConnID, userID int64)
	HandleJoin(ctx context.Context, connID presence.ConnID, userID, roomID int64)
	HandleMove(ctx context.Context, connID presence.ConnID, userID int64, mv MakeMovePayload)
	HandleLeave(ctx context.Context, connID presence.ConnID, userID, roomID int64)
	HandleChat(ctx context.Context, connID presence.ConnID, userID int64, msg SendMessagePayload)
	HandleDisconnect(ctx context.Context, connID presence.ConnID)
}

// Hub accepts websockets and routes frames between the wire and the
// EventHandler. It also serves as the outbound transport: events are
// addressed to a connection or to every member of a room group.
type Hub struct {
	verifier TokenVerifier
	registry *presence.Registry
	handler  EventHandler
	origins  []string

	mu    sync.RWMutex
	conns map[presence.ConnID]*Conn
}

func NewHub(verifier TokenVerifier, registry *presence.Registry, origins []string) *Hub {
	return &Hub{
		verifier: verifier,
		registry: registry,
		origins:  origins,
		conns:    make(map[presence.ConnID]*Conn),
	}
}

// AttachHandler wires the event handler after construction. The handler
// and the hub reference each other, so one side attaches late.
func (h *Hub) AttachHandler(handler EventHandler) { h.handler = handler }

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := handshakeToken(r)
	if token == "" {
		metrics.AuthFailures.WithLabelValues("ws").Inc()
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	userID, err := h.verifier.VerifyAccess(r.Context(), token)
	if err != nil {
		metrics.AuthFailures.WithLabelValues("ws").Inc()
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		OriginPatterns:  h.origins,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}

	conn := &Conn{
		id:     presence.ConnID(uuid.NewString()),
		userID: userID,
		sock:   sock,
	}
	h.mu.Lock()
	h.conns[conn.id] = conn
	h.mu.Unlock()

	metrics.TotalConnections.Inc()
	metrics.ActiveConnections.Inc()
	obslog.L().Info("ws_connected",
		zap.String("conn_id", string(conn.id)),
		zap.Int64("user_id", userID))

	h.handler.HandleConnect(r.Context(), conn.id, userID)
	h.readLoop(conn)
}

// handshakeToken pulls the access token from the query string or the
// Authorization header. Browsers cannot set headers on websocket
// upgrades, so the query form is the common path.
func handshakeToken(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

func (h *Hub) readLoop(conn *Conn) {
	ctx := context.Background()
	defer h.drop(ctx, conn)

	for {
		var env Envelope
		if err := wsjson.Read(ctx, conn.sock, &env); err != nil {
			return
		}
		h.dispatch(ctx, conn, env)
	}
}

func (h *Hub) dispatch(ctx context.Context, conn *Conn, env Envelope) {
	switch env.Event {
	case EventJoinRoom:
		var p JoinRoomPayload
		if !h.decode(ctx, conn, env.Data, &p) {
			return
		}
		h.handler.HandleJoin(ctx, conn.id, conn.userID, p.RoomID)
	case EventMakeMove:
		var p MakeMovePayload
		if !h.decode(ctx, conn, env.Data, &p) {
			return
		}
		h.handler.HandleMove(ctx, conn.id, conn.userID, p)
	case EventLeaveRoom:
		var p LeaveRoomPayload
		if !h.decode(ctx, conn, env.Data, &p) {
			return
		}
		h.handler.HandleLeave(ctx, conn.id, conn.userID, p.RoomID)
	case EventSendMessage:
		var p SendMessagePayload
		if !h.decode(ctx, conn, env.Data, &p) {
			return
		}
		h.handler.HandleChat(ctx, conn.id, conn.userID, p)
	default:
		obslog.L().Debug("ws_unknown_event",
			zap.String("event", env.Event),
			zap.String("conn_id", string(conn.id)))
		_ = conn.write(ctx, NewEnvelope(EventError, ErrorPayload{Message: "unknown event"}))
	}
}

func (h *Hub) decode(ctx context.Context, conn *Conn, raw json.RawMessage, out any) bool {
	if err := json.Unmarshal(raw, out); err != nil {
		_ = conn.write(ctx, NewEnvelope(EventError, ErrorPayload{Message: "malformed payload"}))
		return false
	}
	return true
}

func (h *Hub) drop(ctx context.Context, conn *Conn) {
	h.mu.Lock()
	delete(h.conns, conn.id)
	h.mu.Unlock()

	metrics.ActiveConnections.Dec()
	obslog.L().Info("ws_disconnected",
		zap.String("conn_id", string(conn.id)),
		zap.Int64("user_id", conn.userID))

	h.handler.HandleDisconnect(ctx, conn.id)
	conn.close(websocket.StatusNormalClosure, "bye")
}

// ToConn sends one event to a single connection. Unknown connection ids
// are ignored; the target may have dropped between resolve and send.
func (h *Hub) ToConn(ctx context.Context, connID presence.ConnID, env Envelope) {
	h.mu.RLock()
	conn, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := conn.write(ctx, env); err != nil {
		obslog.L().Debug("ws_write_failed",
			zap.String("conn_id", string(connID)),
			zap.String("event", env.Event),
			zap.Error(err))
	}
}

// ToRoom sends one event to every connection in the room group.
func (h *Hub) ToRoom(ctx context.Context, roomID int64, env Envelope) {
	for _, id := range h.registry.RoomConns(roomID) {
		h.ToConn(ctx, id, env)
	}
}

// Shutdown closes every open connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[presence.ConnID]*Conn)
	h.mu.Unlock()

	for _, c := range conns {
		c.close(websocket.StatusGoingAway, "server shutting down")
	}
}
