package realtime

import "encoding/json"

// Envelope is the wire frame for every websocket message in both
// directions. Data holds the event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client-to-server events.
const (
	EventJoinRoom    = "join_room"
	EventMakeMove    = "make_move"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
)

// Server-to-client events.
const (
	EventJoinedRoom   = "joined_room"
	EventPlayerJoined = "player_joined"
	EventGameStart    = "game_start"
	EventSyncState    = "sync_state"
	EventMoveMade     = "move_made"
	EventGameOver     = "game_over"
	EventPlayerLeft   = "player_left"
	EventRoomClosed   = "room_closed"
	EventNewMessage   = "new_message"
	EventError        = "error"
)

type JoinRoomPayload struct {
	RoomID int64 `json:"room_id"`
}

type MakeMovePayload struct {
	RoomID  int64 `json:"room_id"`
	MatchID int64 `json:"match_id"`
	Row     int   `json:"row"`
	Col     int   `json:"col"`
}

type LeaveRoomPayload struct {
	RoomID int64 `json:"room_id"`
}

type SendMessagePayload struct {
	RoomID int64  `json:"room_id"`
	Text   string `json:"text"`
}

type JoinedRoomPayload struct {
	RoomID    int64  `json:"room_id"`
	RoomName  string `json:"room_name"`
	Role      string `json:"role"` // host or second
	Symbol    string `json:"symbol"`
	BoardSize int    `json:"board_size"`
	Status    string `json:"status"`

	// Snapshot of the live game, present only when one is in progress.
	MatchID int64      `json:"match_id,omitempty"`
	Board   [][]string `json:"board,omitempty"`
	Turn    string     `json:"turn,omitempty"`
}

type PlayerJoinedPayload struct {
	RoomID      int64  `json:"room_id"`
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	PlayerCount int    `json:"player_count"`
}

type GameStartPayload struct {
	RoomID    int64  `json:"room_id"`
	MatchID   int64  `json:"match_id"`
	BoardSize int    `json:"board_size"`
	Turn      string `json:"turn"`
	PlayerX   int64  `json:"player_x"`
	PlayerO   int64  `json:"player_o"`
}

type SyncStatePayload struct {
	RoomID    int64      `json:"room_id"`
	MatchID   int64      `json:"match_id"`
	Board     [][]string `json:"board"`
	BoardSize int        `json:"board_size"`
	Turn      string     `json:"turn"`
	Symbol    string     `json:"symbol"`
}

type MoveMadePayload struct {
	RoomID  int64  `json:"room_id"`
	MatchID int64  `json:"match_id"`
	Row     int    `json:"row"`
	Col     int    `json:"col"`
	Symbol  string `json:"symbol"`
	Turn    string `json:"turn"`
}

// RatingChange mirrors the persisted ELO adjustment for one player.
type RatingChange struct {
	OldElo int `json:"old_elo"`
	NewElo int `json:"new_elo"`
	Change int `json:"change"`
}

type GameOverPayload struct {
	RoomID  int64  `json:"room_id"`
	MatchID int64  `json:"match_id"`
	Result  string `json:"result"` // win, draw or forfeit
	Winner  string `json:"winner"` // winning symbol, empty on draw

	Ratings map[string]RatingChange `json:"ratings"` // keyed by symbol
}

type PlayerLeftPayload struct {
	RoomID  int64  `json:"room_id"`
	UserID  int64  `json:"user_id"`
	Message string `json:"message,omitempty"`
}

type RoomClosedPayload struct {
	RoomID  int64  `json:"room_id"`
	Message string `json:"message,omitempty"`
}

type NewMessagePayload struct {
	RoomID   int64  `json:"room_id"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Text     string `json:"text"`
	SentAt   string `json:"sent_at"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// NewEnvelope marshals payload into an Envelope. Marshal failures are
// programming errors and surface as an error event with no data.
func NewEnvelope(event string, payload any) Envelope {
	if payload == nil {
		return Envelope{Event: event}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{Event: EventError}
	}
	return Envelope{Event: event, Data: b}
}
