// Package coordinator applies the room lifecycle and game rules to
// events coming off the websocket hub. All state transitions for a room
// happen under that room's lock, so two sockets can never interleave
// moves or race a forfeit against a reconnect.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"gomoku-server/internal/forfeit"
	"gomoku-server/internal/game"
	"gomoku-server/internal/metrics"
	"gomoku-server/internal/msgcat"
	"gomoku-server/internal/obslog"
	"gomoku-server/internal/presence"
	"gomoku-server/internal/rating"
	"gomoku-server/internal/realtime"
	"gomoku-server/internal/session"
	"gomoku-server/internal/store"
)

// Transport delivers events to connections and room groups. The hub
// implements it; tests substitute a recorder.
type Transport interface {
	ToConn(ctx context.Context, connID presence.ConnID, env realtime.Envelope)
	ToRoom(ctx context.Context, roomID int64, env realtime.Envelope)
}

// RoomStore is the slice of the rooms repository the coordinator needs.
type RoomStore interface {
	GetByID(ctx context.Context, id int64) (*store.Room, error)
	ClearPlayer2(ctx context.Context, roomID int64) error
	Delete(ctx context.Context, roomID int64) error
}

// UserStore resolves player accounts for names and ratings.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*store.User, error)
}

// MatchStore commits finished matches.
type MatchStore interface {
	Finalize(ctx context.Context, p store.Finalization) error
}

type Coordinator struct {
	registry *presence.Registry
	sessions *session.Store
	forfeits *forfeit.Scheduler
	rooms    RoomStore
	users    UserStore
	matches  MatchStore
	cat      *msgcat.Catalog

	transport Transport

	mu      sync.Mutex
	roomMus map[int64]*sync.Mutex
}

func New(registry *presence.Registry, sessions *session.Store, forfeits *forfeit.Scheduler,
	rooms RoomStore, users UserStore, matches MatchStore, cat *msgcat.Catalog) *Coordinator {
	return &Coordinator{
		registry: registry,
		sessions: sessions,
		forfeits: forfeits,
		rooms:    rooms,
		users:    users,
		matches:  matches,
		cat:      cat,
		roomMus:  make(map[int64]*sync.Mutex),
	}
}

// AttachTransport wires the outbound side after construction; the hub and
// the coordinator reference each other.
func (c *Coordinator) AttachTransport(t Transport) { c.transport = t }

// roomLock returns the mutex serializing all transitions for one room.
// Locks are never freed; the map grows with the set of rooms ever touched
// by this process, which is bounded by room churn between restarts.
func (c *Coordinator) roomLock(roomID int64) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.roomMus[roomID]
	if !ok {
		m = &sync.Mutex{}
		c.roomMus[roomID] = m
	}
	return m
}

func (c *Coordinator) HandleConnect(ctx context.Context, connID presence.ConnID, userID int64) {
	c.registry.RegisterConnection(userID, connID)
}

func (c *Coordinator) HandleJoin(ctx context.Context, connID presence.ConnID, userID, roomID int64) {
	lock := c.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := c.rooms.GetByID(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		c.sendError(ctx, connID, "error.room_not_found")
		return
	}
	if err != nil {
		obslog.L().Error("room_lookup_failed", zap.Int64("room_id", roomID), zap.Error(err))
		c.sendError(ctx, connID, "error.system")
		return
	}

	isHost, seated := room.Seat(userID)
	if !seated {
		c.sendError(ctx, connID, "error.not_in_room")
		return
	}

	c.registry.JoinRoomGroup(roomID, connID)
	c.forfeits.Cancel(roomID)

	symbol, role := game.SymbolO, "second"
	if isHost {
		symbol, role = game.SymbolX, "host"
	}
	joined := realtime.JoinedRoomPayload{
		RoomID:    roomID,
		RoomName:  room.Name,
		Role:      role,
		Symbol:    string(symbol),
		BoardSize: room.BoardSize,
		Status:    string(room.Status),
	}
	st, live := c.sessions.Get(roomID)
	if live {
		joined.MatchID = st.MatchID
		joined.Board = boardStrings(st.Board.Cells())
		joined.Turn = string(st.Turn)
	}
	c.transport.ToConn(ctx, connID, realtime.NewEnvelope(realtime.EventJoinedRoom, joined))

	if live {
		// Reconnect into a live game: this socket alone gets the state.
		c.transport.ToConn(ctx, connID, realtime.NewEnvelope(realtime.EventSyncState,
			realtime.SyncStatePayload{
				RoomID:    roomID,
				MatchID:   st.MatchID,
				Board:     boardStrings(st.Board.Cells()),
				BoardSize: st.BoardSize,
				Turn:      string(st.Turn),
				Symbol:    string(symbol),
			}))
		return
	}

	if !room.Player2ID.Valid {
		// Host waiting alone; the game starts when the second seat fills.
		return
	}

	st, created, err := c.sessions.Create(ctx, roomID, room.HostID, room.Player2ID.Int64, room.BoardSize)
	if err != nil {
		obslog.L().Error("game_create_failed", zap.Int64("room_id", roomID), zap.Error(err))
		c.sendError(ctx, connID, "error.system")
		return
	}
	if !created {
		return
	}
	metrics.ActiveGames.Inc()

	if u, err := c.users.GetByID(ctx, userID); err == nil {
		c.transport.ToRoom(ctx, roomID, realtime.NewEnvelope(realtime.EventPlayerJoined,
			realtime.PlayerJoinedPayload{RoomID: roomID, UserID: userID, Username: u.Username, PlayerCount: 2}))
	}
	c.transport.ToRoom(ctx, roomID, realtime.NewEnvelope(realtime.EventGameStart,
		realtime.GameStartPayload{
			RoomID:    roomID,
			MatchID:   st.MatchID,
			BoardSize: st.BoardSize,
			Turn:      string(st.Turn),
			PlayerX:   st.PlayerX,
			PlayerO:   st.PlayerO,
		}))
	obslog.L().Info("game_started",
		zap.Int64("room_id", roomID),
		zap.Int64("match_id", st.MatchID),
		zap.Int64("player_x", st.PlayerX),
		zap.Int64("player_o", st.PlayerO))
}

func (c *Coordinator) HandleMove(ctx context.Context, connID presence.ConnID, userID int64, mv realtime.MakeMovePayload) {
	lock := c.roomLock(mv.RoomID)
	lock.Lock()
	defer lock.Unlock()

	st, ok := c.sessions.Get(mv.RoomID)
	if !ok {
		c.sendError(ctx, connID, "error.game_not_started")
		return
	}
	// The match id is optional; only an explicit mismatch marks a stale client.
	if mv.MatchID != 0 && mv.MatchID != st.MatchID {
		c.sendError(ctx, connID, "error.stale_match")
		return
	}
	sym := st.SymbolOf(userID)
	if sym == game.SymbolNone {
		c.sendError(ctx, connID, "error.not_in_room")
		return
	}
	if st.Turn != sym {
		c.sendError(ctx, connID, "error.not_your_turn")
		return
	}
	if !st.Board.ValidateMove(mv.Row, mv.Col) {
		c.sendError(ctx, connID, "error.invalid_move")
		return
	}

	st.Board.ApplyMove(mv.Row, mv.Col, sym)
	metrics.MovesTotal.Inc()

	won := game.CheckWinner(st.Board, mv.Row, mv.Col, sym)
	drawn := !won && st.Board.IsFull()

	nextTurn := game.SymbolNone
	if !won && !drawn {
		nextTurn = sym.Opponent()
		st.Turn = nextTurn
	}
	c.transport.ToRoom(ctx, mv.RoomID, realtime.NewEnvelope(realtime.EventMoveMade,
		realtime.MoveMadePayload{
			RoomID:  mv.RoomID,
			MatchID: st.MatchID,
			Row:     mv.Row,
			Col:     mv.Col,
			Symbol:  string(sym),
			Turn:    string(nextTurn),
		}))
	obslog.L().Info("move_made",
		zap.Int64("room_id", mv.RoomID),
		zap.Int64("match_id", st.MatchID),
		zap.Int64("user_id", userID),
		zap.Int("row", mv.Row),
		zap.Int("col", mv.Col))

	switch {
	case won:
		c.finalize(ctx, mv.RoomID, st, "win", sym)
	case drawn:
		c.finalize(ctx, mv.RoomID, st, "draw", game.SymbolNone)
	}
}

func (c *Coordinator) HandleLeave(ctx context.Context, connID presence.ConnID, userID, roomID int64) {
	lock := c.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	defer c.registry.LeaveRoomGroup(roomID, connID)

	if st, ok := c.sessions.Get(roomID); ok {
		sym := st.SymbolOf(userID)
		if sym == game.SymbolNone {
			return
		}
		// Leaving a live game is an immediate forfeit, no grace window.
		c.forfeits.Cancel(roomID)
		metrics.ForfeitsTotal.Inc()
		c.notifyLeft(ctx, roomID, userID, "info.opponent_left")
		c.finalize(ctx, roomID, st, "forfeit", sym.Opponent())
		return
	}

	room, err := c.rooms.GetByID(ctx, roomID)
	if err != nil {
		return
	}
	isHost, seated := room.Seat(userID)
	if !seated {
		return
	}
	if isHost {
		c.transport.ToRoom(ctx, roomID, realtime.NewEnvelope(realtime.EventRoomClosed,
			realtime.RoomClosedPayload{RoomID: roomID, Message: c.cat.Text("info.room_closed")}))
		if err := c.rooms.Delete(ctx, roomID); err != nil {
			obslog.L().Error("room_delete_failed", zap.Int64("room_id", roomID), zap.Error(err))
		}
		for _, id := range c.registry.RoomConns(roomID) {
			c.registry.LeaveRoomGroup(roomID, id)
		}
		return
	}
	if err := c.rooms.ClearPlayer2(ctx, roomID); err != nil {
		obslog.L().Error("room_reopen_failed", zap.Int64("room_id", roomID), zap.Error(err))
	}
	c.notifyLeft(ctx, roomID, userID, "info.opponent_left")
}

func (c *Coordinator) HandleChat(ctx context.Context, connID presence.ConnID, userID int64, msg realtime.SendMessagePayload) {
	if rid, ok := c.registry.ResolveRoom(connID); !ok || rid != msg.RoomID {
		c.sendError(ctx, connID, "error.not_in_room")
		return
	}
	u, err := c.users.GetByID(ctx, userID)
	if err != nil {
		c.sendError(ctx, connID, "error.system")
		return
	}
	c.transport.ToRoom(ctx, msg.RoomID, realtime.NewEnvelope(realtime.EventNewMessage,
		realtime.NewMessagePayload{
			RoomID:   msg.RoomID,
			UserID:   userID,
			Username: u.Username,
			Text:     msg.Text,
			SentAt:   time.Now().UTC().Format(time.RFC3339),
		}))
}

func (c *Coordinator) HandleDisconnect(ctx context.Context, connID presence.ConnID) {
	userID, roomID, ok := c.registry.Unregister(connID)
	if !ok || roomID == 0 {
		return
	}

	lock := c.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	st, live := c.sessions.Get(roomID)
	if !live || st.SymbolOf(userID) == game.SymbolNone {
		return
	}

	grace := int(c.forfeits.Grace().Seconds())
	if u, err := c.users.GetByID(ctx, userID); err == nil {
		text, rerr := c.cat.Render("info.opponent_disconnected",
			map[string]any{"Username": u.Username, "Grace": grace})
		if rerr != nil {
			text = c.cat.Text("info.opponent_left")
		}
		c.transport.ToRoom(ctx, roomID, realtime.NewEnvelope(realtime.EventPlayerLeft,
			realtime.PlayerLeftPayload{RoomID: roomID, UserID: userID, Message: text}))
	}

	matchID := st.MatchID
	c.forfeits.Arm(roomID, func() {
		c.forfeitExpired(roomID, userID, matchID)
	})
	obslog.L().Info("forfeit_armed",
		zap.Int64("room_id", roomID),
		zap.Int64("user_id", userID),
		zap.Int("grace_sec", grace))
}

// forfeitExpired runs on the timer goroutine when the grace window closes
// without a reconnect.
func (c *Coordinator) forfeitExpired(roomID, userID, matchID int64) {
	ctx := context.Background()
	lock := c.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	st, ok := c.sessions.Get(roomID)
	if !ok || st.MatchID != matchID {
		// Game ended some other way while the timer was pending.
		return
	}
	// A rejoin cancels the timer in HandleJoin; a bare reconnect that never
	// rejoined the room does not save the game.
	sym := st.SymbolOf(userID)
	if sym == game.SymbolNone {
		return
	}
	metrics.ForfeitsTotal.Inc()
	obslog.L().Info("forfeit_expired",
		zap.Int64("room_id", roomID),
		zap.Int64("user_id", userID),
		zap.Int64("match_id", matchID))
	c.finalize(ctx, roomID, st, "forfeit", sym.Opponent())
}

// finalize commits the terminal match state. winnerSym is SymbolNone for
// a draw. If the write fails the live game is left intact and no
// game_over is emitted; a later move retries the terminal transition.
func (c *Coordinator) finalize(ctx context.Context, roomID int64, st *session.GameState, result string, winnerSym game.Symbol) {
	ux, errX := c.users.GetByID(ctx, st.PlayerX)
	uo, errO := c.users.GetByID(ctx, st.PlayerO)
	if errX != nil || errO != nil {
		obslog.L().Error("finalize_user_lookup_failed",
			zap.Int64("room_id", roomID), zap.NamedError("player_x", errX), zap.NamedError("player_o", errO))
		c.broadcastError(ctx, roomID, "error.system")
		return
	}

	var changeX, changeO rating.Change
	var winnerID *int64
	switch winnerSym {
	case game.SymbolX:
		changeX, changeO = rating.ApplyWinLoss(ux.Elo, uo.Elo)
		winnerID = &st.PlayerX
	case game.SymbolO:
		changeO, changeX = rating.ApplyWinLoss(uo.Elo, ux.Elo)
		winnerID = &st.PlayerO
	default:
		changeX, changeO = rating.ApplyDraw(ux.Elo, uo.Elo)
	}

	fin := store.Finalization{
		MatchID:    st.MatchID,
		WinnerID:   winnerID,
		Board:      st.Board.Cells(),
		EndTime:    time.Now().UTC(),
		RoomID:     roomID,
		RoomStatus: store.RoomFull,
		PlayerX:    store.PlayerResult{UserID: st.PlayerX, NewElo: changeX.New, Outcome: outcomeFor(winnerSym, game.SymbolX)},
		PlayerO:    store.PlayerResult{UserID: st.PlayerO, NewElo: changeO.New, Outcome: outcomeFor(winnerSym, game.SymbolO)},
	}
	if err := c.matches.Finalize(ctx, fin); err != nil {
		obslog.L().Error("finalize_failed",
			zap.Int64("room_id", roomID),
			zap.Int64("match_id", st.MatchID),
			zap.Error(err))
		c.broadcastError(ctx, roomID, "error.system")
		return
	}

	c.sessions.Remove(roomID)
	metrics.ActiveGames.Dec()
	metrics.GamesFinished.WithLabelValues(result).Inc()

	c.transport.ToRoom(ctx, roomID, realtime.NewEnvelope(realtime.EventGameOver,
		realtime.GameOverPayload{
			RoomID:  roomID,
			MatchID: st.MatchID,
			Result:  result,
			Winner:  string(winnerSym),
			Ratings: map[string]realtime.RatingChange{
				string(game.SymbolX): {OldElo: changeX.Old, NewElo: changeX.New, Change: changeX.Delta},
				string(game.SymbolO): {OldElo: changeO.Old, NewElo: changeO.New, Change: changeO.Delta},
			},
		}))
	obslog.L().Info("game_over",
		zap.Int64("room_id", roomID),
		zap.Int64("match_id", st.MatchID),
		zap.String("result", result),
		zap.String("winner", string(winnerSym)))
}

func outcomeFor(winnerSym, seat game.Symbol) string {
	switch winnerSym {
	case game.SymbolNone:
		return "draw"
	case seat:
		return "win"
	default:
		return "loss"
	}
}

func (c *Coordinator) notifyLeft(ctx context.Context, roomID, userID int64, key string) {
	msg := c.cat.Text(key)
	if u, err := c.users.GetByID(ctx, userID); err == nil {
		if text, rerr := c.cat.Render(key, map[string]any{"Username": u.Username}); rerr == nil {
			msg = text
		}
	}
	c.transport.ToRoom(ctx, roomID, realtime.NewEnvelope(realtime.EventPlayerLeft,
		realtime.PlayerLeftPayload{RoomID: roomID, UserID: userID, Message: msg}))
}

func (c *Coordinator) sendError(ctx context.Context, connID presence.ConnID, key string) {
	c.transport.ToConn(ctx, connID, realtime.NewEnvelope(realtime.EventError,
		realtime.ErrorPayload{Message: c.cat.Text(key)}))
}

func (c *Coordinator) broadcastError(ctx context.Context, roomID int64, key string) {
	c.transport.ToRoom(ctx, roomID, realtime.NewEnvelope(realtime.EventError,
		realtime.ErrorPayload{Message: c.cat.Text(key)}))
}

func boardStrings(cells [][]game.Symbol) [][]string {
	out := make([][]string, len(cells))
	for i, row := range cells {
		out[i] = make([]string, len(row))
		for j, s := range row {
			out[i][j] = string(s)
		}
	}
	return out
}
