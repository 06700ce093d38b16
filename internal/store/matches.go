package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gomoku-server/internal/game"
)

type Match struct {
	ID         int64
	PlayerXID  int64
	PlayerOID  int64
	WinnerID   sql.NullInt64
	RoomID     sql.NullInt64
	BoardSize  int
	BoardState [][]game.Symbol
	StartTime  time.Time
	EndTime    sql.NullTime
}

// HistoryEntry is one row of a user's match history, with the result
// computed relative to that user.
type HistoryEntry struct {
	MatchID  int64
	Opponent string
	Result   string // win | loss | draw | ongoing
	Time     time.Time
}

type MatchRepo struct {
	db *sql.DB
}

// Create inserts the durable match record at game start.
func (r *MatchRepo) Create(ctx context.Context, playerX, playerO, roomID int64, boardSize int) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO matches (player_x_id, player_o_id, room_id, board_size)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		playerX, playerO, roomID, boardSize).Scan(&id)
	return id, err
}

func (r *MatchRepo) GetByID(ctx context.Context, id int64) (*Match, error) {
	var m Match
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, player_x_id, player_o_id, winner_id, room_id, board_size, board_state, start_time, end_time
		 FROM matches WHERE id = $1`, id).
		Scan(&m.ID, &m.PlayerXID, &m.PlayerOID, &m.WinnerID, &m.RoomID, &m.BoardSize, &raw, &m.StartTime, &m.EndTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m.BoardState); err != nil {
			return nil, fmt.Errorf("decode board state: %w", err)
		}
	}
	return &m, nil
}

// PlayerResult carries one player's post-game rating and which counter to
// bump inside the finalization transaction.
type PlayerResult struct {
	UserID  int64
	NewElo  int
	Outcome string // win | loss | draw
}

// Finalization is everything committed when a match ends. The write is a
// single transaction: board, end time, both rating rows and the room
// status land together or not at all.
type Finalization struct {
	MatchID    int64
	WinnerID   *int64
	Board      [][]game.Symbol
	EndTime    time.Time
	RoomID     int64
	RoomStatus RoomStatus
	PlayerX    PlayerResult
	PlayerO    PlayerResult
}

func (r *MatchRepo) Finalize(ctx context.Context, p Finalization) error {
	raw, err := json.Marshal(p.Board)
	if err != nil {
		return fmt.Errorf("encode board state: %w", err)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var winner sql.NullInt64
	if p.WinnerID != nil {
		winner = sql.NullInt64{Int64: *p.WinnerID, Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE matches SET winner_id = $2, board_state = $3, end_time = $4
		 WHERE id = $1 AND end_time IS NULL`,
		p.MatchID, winner, raw, p.EndTime)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("match %d already finalized or missing: %w", p.MatchID, ErrNotFound)
	}
	for _, pr := range []PlayerResult{p.PlayerX, p.PlayerO} {
		if err := applyResult(ctx, tx, pr); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE rooms SET status = $2 WHERE id = $1`, p.RoomID, p.RoomStatus); err != nil {
		return err
	}
	return tx.Commit()
}

func applyResult(ctx context.Context, tx *sql.Tx, pr PlayerResult) error {
	var counter string
	switch pr.Outcome {
	case "win":
		counter = "wins"
	case "loss":
		counter = "losses"
	case "draw":
		counter = "draws"
	default:
		return fmt.Errorf("unknown outcome %q", pr.Outcome)
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET elo = $2, `+counter+` = `+counter+` + 1 WHERE id = $1`,
		pr.UserID, pr.NewElo)
	return err
}

// HistoryByUser lists a user's matches, most recent first.
func (r *MatchRepo) HistoryByUser(ctx context.Context, userID int64) ([]*HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.winner_id, m.start_time, m.end_time,
		        m.player_x_id, x.username, o.username
		 FROM matches m
		 JOIN users x ON x.id = m.player_x_id
		 JOIN users o ON o.id = m.player_o_id
		 WHERE m.player_x_id = $1 OR m.player_o_id = $1
		 ORDER BY m.end_time DESC NULLS FIRST, m.start_time DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*HistoryEntry
	for rows.Next() {
		var (
			e          HistoryEntry
			winner     sql.NullInt64
			start      time.Time
			end        sql.NullTime
			playerXID  int64
			xName      string
			oName      string
		)
		if err := rows.Scan(&e.MatchID, &winner, &start, &end, &playerXID, &xName, &oName); err != nil {
			return nil, err
		}
		if playerXID == userID {
			e.Opponent = oName
		} else {
			e.Opponent = xName
		}
		switch {
		case !end.Valid:
			e.Result = "ongoing"
		case !winner.Valid:
			e.Result = "draw"
		case winner.Int64 == userID:
			e.Result = "win"
		default:
			e.Result = "loss"
		}
		if end.Valid {
			e.Time = end.Time
		} else {
			e.Time = start
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
