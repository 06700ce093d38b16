package coordinator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gomoku-server/internal/forfeit"
	"gomoku-server/internal/game"
	"gomoku-server/internal/msgcat"
	"gomoku-server/internal/presence"
	"gomoku-server/internal/realtime"
	"gomoku-server/internal/session"
	"gomoku-server/internal/store"
)

type sentEvent struct {
	target string // "conn:<id>" or "room:<id>"
	env    realtime.Envelope
}

type fakeTransport struct {
	mu     sync.Mutex
	events []sentEvent
}

func (f *fakeTransport) ToConn(_ context.Context, connID presence.ConnID, env realtime.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{target: "conn:" + string(connID), env: env})
}

func (f *fakeTransport) ToRoom(_ context.Context, roomID int64, env realtime.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{target: fmt.Sprintf("room:%d", roomID), env: env})
}

func (f *fakeTransport) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.env.Event == event {
			n++
		}
	}
	return n
}

func (f *fakeTransport) last(event string) (realtime.Envelope, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].env.Event == event {
			return f.events[i].env, true
		}
	}
	return realtime.Envelope{}, false
}

type fakeRooms struct {
	mu    sync.Mutex
	rooms map[int64]*store.Room
}

func (f *fakeRooms) GetByID(_ context.Context, id int64) (*store.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRooms) ClearPlayer2(_ context.Context, roomID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rooms[roomID]; ok {
		r.Player2ID = sql.NullInt64{}
		r.Status = store.RoomWaiting
	}
	return nil
}

func (f *fakeRooms) Delete(_ context.Context, roomID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, roomID)
	return nil
}

func (f *fakeRooms) seatGuest(roomID, userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.rooms[roomID]
	r.Player2ID = sql.NullInt64{Int64: userID, Valid: true}
	r.Status = store.RoomPlaying
}

type fakeUsers struct {
	users map[int64]*store.User
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*store.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

type fakeMatches struct {
	mu        sync.Mutex
	nextID    int64
	finalized []store.Finalization
	failOnce  bool
}

func (f *fakeMatches) Create(_ context.Context, playerX, playerO, roomID int64, boardSize int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID, nil
}

func (f *fakeMatches) Finalize(_ context.Context, p store.Finalization) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnce {
		f.failOnce = false
		return errors.New("storage down")
	}
	f.finalized = append(f.finalized, p)
	return nil
}

type fixture struct {
	coord    *Coordinator
	tr       *fakeTransport
	rooms    *fakeRooms
	users    *fakeUsers
	matches  *fakeMatches
	sessions *session.Store
	registry *presence.Registry
	forfeits *forfeit.Scheduler
}

func newFixture(t *testing.T, grace time.Duration) *fixture {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	f := &fixture{
		tr: &fakeTransport{},
		rooms: &fakeRooms{rooms: map[int64]*store.Room{
			1: {ID: 1, Name: "test", HostID: 10, BoardSize: 15, Status: store.RoomWaiting},
		}},
		users: &fakeUsers{users: map[int64]*store.User{
			10: {ID: 10, Username: "host", Elo: 1000},
			20: {ID: 20, Username: "guest", Elo: 1000},
		}},
		matches:  &fakeMatches{},
		registry: presence.NewRegistry(),
		forfeits: forfeit.NewScheduler(grace),
	}
	f.sessions = session.NewStore(f.matches)
	f.coord = New(f.registry, f.sessions, f.forfeits, f.rooms, f.users, f.matches, cat)
	f.coord.AttachTransport(f.tr)
	t.Cleanup(f.forfeits.Stop)
	return f
}

// startGame walks both players through connect and join, leaving a live
// game with X (host, user 10) to move.
func (f *fixture) startGame(t *testing.T) (hostConn, guestConn presence.ConnID) {
	t.Helper()
	ctx := context.Background()
	hostConn, guestConn = presence.ConnID("c-host"), presence.ConnID("c-guest")

	f.coord.HandleConnect(ctx, hostConn, 10)
	f.coord.HandleJoin(ctx, hostConn, 10, 1)
	f.rooms.seatGuest(1, 20)
	f.coord.HandleConnect(ctx, guestConn, 20)
	f.coord.HandleJoin(ctx, guestConn, 20, 1)

	if _, ok := f.sessions.Get(1); !ok {
		t.Fatalf("game did not start after both players joined")
	}
	if f.tr.count(realtime.EventGameStart) != 1 {
		t.Fatalf("game_start sent %d times, want 1", f.tr.count(realtime.EventGameStart))
	}
	return hostConn, guestConn
}

func (f *fixture) move(t *testing.T, conn presence.ConnID, userID int64, row, col int) {
	t.Helper()
	st, ok := f.sessions.Get(1)
	if !ok {
		t.Fatalf("no live game for move (%d,%d)", row, col)
	}
	f.coord.HandleMove(context.Background(), conn, userID,
		realtime.MakeMovePayload{RoomID: 1, MatchID: st.MatchID, Row: row, Col: col})
}

func TestFullGameToHorizontalWin(t *testing.T) {
	f := newFixture(t, time.Minute)
	hc, gc := f.startGame(t)

	// X builds row 7, O answers on row 8.
	plays := []struct {
		conn presence.ConnID
		user int64
		row  int
		col  int
	}{
		{hc, 10, 7, 7}, {gc, 20, 8, 7},
		{hc, 10, 7, 8}, {gc, 20, 8, 8},
		{hc, 10, 7, 9}, {gc, 20, 8, 9},
		{hc, 10, 7, 10}, {gc, 20, 8, 10},
		{hc, 10, 7, 11},
	}
	for _, p := range plays {
		f.move(t, p.conn, p.user, p.row, p.col)
	}

	if got := f.tr.count(realtime.EventMoveMade); got != 9 {
		t.Fatalf("move_made sent %d times, want 9", got)
	}
	env, ok := f.tr.last(realtime.EventGameOver)
	if !ok {
		t.Fatalf("no game_over after winning move")
	}
	var over realtime.GameOverPayload
	if err := json.Unmarshal(env.Data, &over); err != nil {
		t.Fatalf("decode game_over: %v", err)
	}
	if over.Result != "win" || over.Winner != "X" {
		t.Fatalf("game_over = %q/%q, want win/X", over.Result, over.Winner)
	}
	if over.Ratings["X"].Change != 16 || over.Ratings["O"].Change != -16 {
		t.Fatalf("rating changes = %+v", over.Ratings)
	}

	if len(f.matches.finalized) != 1 {
		t.Fatalf("finalized %d times, want 1", len(f.matches.finalized))
	}
	fin := f.matches.finalized[0]
	if fin.WinnerID == nil || *fin.WinnerID != 10 {
		t.Fatalf("winner id = %v, want 10", fin.WinnerID)
	}
	if fin.PlayerX.Outcome != "win" || fin.PlayerO.Outcome != "loss" {
		t.Fatalf("outcomes = %s/%s", fin.PlayerX.Outcome, fin.PlayerO.Outcome)
	}
	if fin.RoomStatus != store.RoomFull {
		t.Fatalf("room status = %s, want FULL", fin.RoomStatus)
	}
	if _, live := f.sessions.Get(1); live {
		t.Fatalf("game still live after game_over")
	}
}

func TestMoveRejections(t *testing.T) {
	f := newFixture(t, time.Minute)
	hc, gc := f.startGame(t)

	// O before X
	f.move(t, gc, 20, 7, 7)
	if f.tr.count(realtime.EventMoveMade) != 0 {
		t.Fatalf("out-of-turn move was applied")
	}
	if f.tr.count(realtime.EventError) != 1 {
		t.Fatalf("expected one error event, got %d", f.tr.count(realtime.EventError))
	}

	// stale match id
	f.coord.HandleMove(context.Background(), hc, 10,
		realtime.MakeMovePayload{RoomID: 1, MatchID: 9999, Row: 0, Col: 0})
	if f.tr.count(realtime.EventMoveMade) != 0 {
		t.Fatalf("stale move was applied")
	}

	// occupied cell
	f.move(t, hc, 10, 7, 7)
	f.move(t, gc, 20, 7, 7)
	if got := f.tr.count(realtime.EventMoveMade); got != 1 {
		t.Fatalf("move_made = %d, want 1", got)
	}

	// outsider
	f.coord.HandleConnect(context.Background(), "c-out", 30)
	st, _ := f.sessions.Get(1)
	f.coord.HandleMove(context.Background(), "c-out", 30,
		realtime.MakeMovePayload{RoomID: 1, MatchID: st.MatchID, Row: 1, Col: 1})
	if got := f.tr.count(realtime.EventMoveMade); got != 1 {
		t.Fatalf("outsider move was applied")
	}
}

func TestMoveWithoutMatchIDAccepted(t *testing.T) {
	f := newFixture(t, time.Minute)
	hc, _ := f.startGame(t)

	// Clients may omit the match id entirely; only a mismatch is stale.
	f.coord.HandleMove(context.Background(), hc, 10,
		realtime.MakeMovePayload{RoomID: 1, Row: 7, Col: 7})

	if got := f.tr.count(realtime.EventMoveMade); got != 1 {
		t.Fatalf("move_made = %d, want 1", got)
	}
	if got := f.tr.count(realtime.EventError); got != 0 {
		t.Fatalf("error events = %d, want 0", got)
	}
	st, _ := f.sessions.Get(1)
	if st.Board.At(7, 7) != game.SymbolX {
		t.Fatalf("board not updated by id-less move")
	}
}

func TestJoinedRoomCarriesSnapshotOnRejoin(t *testing.T) {
	f := newFixture(t, time.Minute)
	hc, _ := f.startGame(t)
	f.move(t, hc, 10, 7, 7)

	f.coord.HandleDisconnect(context.Background(), hc)
	f.coord.HandleConnect(context.Background(), "c-host-2", 10)
	f.coord.HandleJoin(context.Background(), "c-host-2", 10, 1)

	env, ok := f.tr.last(realtime.EventJoinedRoom)
	if !ok {
		t.Fatalf("no joined_room on rejoin")
	}
	var joined realtime.JoinedRoomPayload
	if err := json.Unmarshal(env.Data, &joined); err != nil {
		t.Fatalf("decode joined_room: %v", err)
	}
	st, _ := f.sessions.Get(1)
	if joined.MatchID != st.MatchID {
		t.Fatalf("joined_room match id = %d, want %d", joined.MatchID, st.MatchID)
	}
	if joined.Turn != "O" {
		t.Fatalf("joined_room turn = %q, want O", joined.Turn)
	}
	if len(joined.Board) != 15 || joined.Board[7][7] != "X" {
		t.Fatalf("joined_room board snapshot missing the played stone")
	}
}

func TestReconnectWithinGraceCancelsForfeit(t *testing.T) {
	f := newFixture(t, 60*time.Millisecond)
	_, gc := f.startGame(t)

	f.coord.HandleDisconnect(context.Background(), gc)
	if !f.forfeits.Armed(1) {
		t.Fatalf("forfeit timer not armed after disconnect")
	}

	// Reconnect with a fresh socket before the window closes.
	f.coord.HandleConnect(context.Background(), "c-guest-2", 20)
	f.coord.HandleJoin(context.Background(), "c-guest-2", 20, 1)
	if f.forfeits.Armed(1) {
		t.Fatalf("forfeit timer survived reconnect")
	}

	time.Sleep(150 * time.Millisecond)
	if len(f.matches.finalized) != 0 {
		t.Fatalf("game was finalized despite reconnect")
	}
	if _, live := f.sessions.Get(1); !live {
		t.Fatalf("game ended despite reconnect")
	}
	if env, ok := f.tr.last(realtime.EventSyncState); ok {
		var sync realtime.SyncStatePayload
		if err := json.Unmarshal(env.Data, &sync); err != nil {
			t.Fatalf("decode sync_state: %v", err)
		}
		if sync.Symbol != "O" || sync.Turn != "X" {
			t.Fatalf("sync_state = %+v", sync)
		}
	} else {
		t.Fatalf("reconnect got no sync_state")
	}
}

func TestForfeitAfterGraceExpires(t *testing.T) {
	f := newFixture(t, 40*time.Millisecond)
	f.startGame(t)

	f.coord.HandleDisconnect(context.Background(), "c-guest")
	time.Sleep(150 * time.Millisecond)

	if got := f.tr.count(realtime.EventGameOver); got != 1 {
		t.Fatalf("game_over sent %d times, want 1", got)
	}
	env, _ := f.tr.last(realtime.EventGameOver)
	var over realtime.GameOverPayload
	if err := json.Unmarshal(env.Data, &over); err != nil {
		t.Fatalf("decode game_over: %v", err)
	}
	if over.Result != "forfeit" || over.Winner != "X" {
		t.Fatalf("game_over = %q/%q, want forfeit/X", over.Result, over.Winner)
	}
	if len(f.matches.finalized) != 1 {
		t.Fatalf("finalized %d times, want 1", len(f.matches.finalized))
	}
	if f.matches.finalized[0].PlayerO.Outcome != "loss" {
		t.Fatalf("disconnected player outcome = %s, want loss", f.matches.finalized[0].PlayerO.Outcome)
	}
}

func TestForfeitFiresWhenReconnectSkipsRejoin(t *testing.T) {
	f := newFixture(t, 40*time.Millisecond)
	f.startGame(t)

	f.coord.HandleDisconnect(context.Background(), "c-guest")
	// A fresh socket that never rejoins the room must not save the game.
	f.coord.HandleConnect(context.Background(), "c-guest-2", 20)
	time.Sleep(150 * time.Millisecond)

	if got := f.tr.count(realtime.EventGameOver); got != 1 {
		t.Fatalf("game_over sent %d times, want 1", got)
	}
	env, _ := f.tr.last(realtime.EventGameOver)
	var over realtime.GameOverPayload
	if err := json.Unmarshal(env.Data, &over); err != nil {
		t.Fatalf("decode game_over: %v", err)
	}
	if over.Result != "forfeit" || over.Winner != "X" {
		t.Fatalf("game_over = %q/%q, want forfeit/X", over.Result, over.Winner)
	}
	if _, live := f.sessions.Get(1); live {
		t.Fatalf("game still live after forfeit fired")
	}
	if len(f.matches.finalized) != 1 {
		t.Fatalf("finalized %d times, want 1", len(f.matches.finalized))
	}
}

func TestVoluntaryLeaveForfeitsImmediately(t *testing.T) {
	f := newFixture(t, time.Minute)
	_, gc := f.startGame(t)

	f.coord.HandleLeave(context.Background(), gc, 20, 1)

	env, ok := f.tr.last(realtime.EventGameOver)
	if !ok {
		t.Fatalf("no game_over after leave")
	}
	var over realtime.GameOverPayload
	if err := json.Unmarshal(env.Data, &over); err != nil {
		t.Fatalf("decode game_over: %v", err)
	}
	if over.Result != "forfeit" || over.Winner != "X" {
		t.Fatalf("game_over = %q/%q, want forfeit/X", over.Result, over.Winner)
	}
	if f.forfeits.Armed(1) {
		t.Fatalf("grace timer armed on voluntary leave")
	}
}

func TestDrawOnFullBoard(t *testing.T) {
	f := newFixture(t, time.Minute)
	hc, _ := f.startGame(t)

	// Fill all but (0,0) with a pattern whose longest run is four, then
	// let X complete the board.
	st, _ := f.sessions.Get(1)
	n := st.Board.Size()
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			if r == 0 && c == 0 {
				continue
			}
			sym := game.SymbolO
			if (c+r/2)%4 < 2 {
				sym = game.SymbolX
			}
			st.Board.ApplyMove(r, c, sym)
		}
	}
	st.Turn = game.SymbolX

	f.move(t, hc, 10, 0, 0)

	env, ok := f.tr.last(realtime.EventGameOver)
	if !ok {
		t.Fatalf("no game_over on full board")
	}
	var over realtime.GameOverPayload
	if err := json.Unmarshal(env.Data, &over); err != nil {
		t.Fatalf("decode game_over: %v", err)
	}
	if over.Result != "draw" || over.Winner != "" {
		t.Fatalf("game_over = %q/%q, want draw/empty", over.Result, over.Winner)
	}
	if over.Ratings["X"].Change != 0 || over.Ratings["O"].Change != 0 {
		t.Fatalf("equal-rated draw changed ratings: %+v", over.Ratings)
	}
	if f.matches.finalized[0].WinnerID != nil {
		t.Fatalf("draw recorded a winner")
	}
	if f.matches.finalized[0].PlayerX.Outcome != "draw" || f.matches.finalized[0].PlayerO.Outcome != "draw" {
		t.Fatalf("draw outcomes = %+v", f.matches.finalized[0])
	}
}

func TestFinalizeFailureKeepsGameLive(t *testing.T) {
	f := newFixture(t, time.Minute)
	hc, gc := f.startGame(t)
	f.matches.failOnce = true

	plays := []struct {
		conn presence.ConnID
		user int64
		row  int
		col  int
	}{
		{hc, 10, 7, 7}, {gc, 20, 8, 7},
		{hc, 10, 7, 8}, {gc, 20, 8, 8},
		{hc, 10, 7, 9}, {gc, 20, 8, 9},
		{hc, 10, 7, 10}, {gc, 20, 8, 10},
		{hc, 10, 7, 11},
	}
	for _, p := range plays {
		f.move(t, p.conn, p.user, p.row, p.col)
	}

	if f.tr.count(realtime.EventGameOver) != 0 {
		t.Fatalf("game_over emitted despite failed persistence")
	}
	if _, live := f.sessions.Get(1); !live {
		t.Fatalf("game dropped despite failed persistence")
	}
}

func TestHostLeavingWaitingRoomClosesIt(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	f.coord.HandleConnect(ctx, "c-host", 10)
	f.coord.HandleJoin(ctx, "c-host", 10, 1)

	f.coord.HandleLeave(ctx, "c-host", 10, 1)

	if f.tr.count(realtime.EventRoomClosed) != 1 {
		t.Fatalf("room_closed sent %d times, want 1", f.tr.count(realtime.EventRoomClosed))
	}
	if _, err := f.rooms.GetByID(ctx, 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("room still exists after host left")
	}
}

func TestChatBroadcast(t *testing.T) {
	f := newFixture(t, time.Minute)
	_, gc := f.startGame(t)

	f.coord.HandleChat(context.Background(), gc, 20,
		realtime.SendMessagePayload{RoomID: 1, Text: "gg"})

	env, ok := f.tr.last(realtime.EventNewMessage)
	if !ok {
		t.Fatalf("chat message not broadcast")
	}
	var msg realtime.NewMessagePayload
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		t.Fatalf("decode new_message: %v", err)
	}
	if msg.Username != "guest" || msg.Text != "gg" {
		t.Fatalf("new_message = %+v", msg)
	}
}
