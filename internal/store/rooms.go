package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// RoomStatus is the room lifecycle state.
type RoomStatus string

const (
	RoomWaiting RoomStatus = "WAITING" // host only, open for a second player
	RoomPlaying RoomStatus = "PLAYING" // both seats filled, match live
	RoomFull    RoomStatus = "FULL"    // match ended, room kept as a terminal record
)

type Room struct {
	ID           int64
	Name         string
	HostID       int64
	Player2ID    sql.NullInt64
	PasswordHash sql.NullString
	BoardSize    int
	Status       RoomStatus
	CreatedAt    time.Time
}

// HasPassword reports whether entry requires a password.
func (r *Room) HasPassword() bool { return r.PasswordHash.Valid && r.PasswordHash.String != "" }

// Seat returns the symbol side for userID, or false when not seated.
func (r *Room) Seat(userID int64) (isHost bool, seated bool) {
	if r.HostID == userID {
		return true, true
	}
	if r.Player2ID.Valid && r.Player2ID.Int64 == userID {
		return false, true
	}
	return false, false
}

type RoomRepo struct {
	db *sql.DB
}

const roomCols = `id, room_name, host_id, player2_id, password_hash, board_size, status, created_at`

func scanRoom(row *sql.Row) (*Room, error) {
	var r Room
	err := row.Scan(&r.ID, &r.Name, &r.HostID, &r.Player2ID, &r.PasswordHash,
		&r.BoardSize, &r.Status, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *RoomRepo) Create(ctx context.Context, name string, hostID int64, passwordHash string, boardSize int) (*Room, error) {
	var pw sql.NullString
	if passwordHash != "" {
		pw = sql.NullString{String: passwordHash, Valid: true}
	}
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO rooms (room_name, host_id, password_hash, board_size, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+roomCols,
		name, hostID, pw, boardSize, RoomWaiting)
	return scanRoom(row)
}

func (r *RoomRepo) GetByID(ctx context.Context, id int64) (*Room, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+roomCols+` FROM rooms WHERE id = $1`, id)
	return scanRoom(row)
}

// RoomListing is a room row joined with player names for the lobby list.
type RoomListing struct {
	Room
	HostName    string
	Player2Name sql.NullString
}

// ListWaiting returns open rooms, newest first.
func (r *RoomRepo) ListWaiting(ctx context.Context) ([]*RoomListing, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.id, r.room_name, r.host_id, r.player2_id, r.password_hash,
		        r.board_size, r.status, r.created_at, h.username, p.username
		 FROM rooms r
		 JOIN users h ON h.id = r.host_id
		 LEFT JOIN users p ON p.id = r.player2_id
		 WHERE r.status = $1
		 ORDER BY r.created_at DESC`, RoomWaiting)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*RoomListing
	for rows.Next() {
		var l RoomListing
		if err := rows.Scan(&l.ID, &l.Name, &l.HostID, &l.Player2ID, &l.PasswordHash,
			&l.BoardSize, &l.Status, &l.CreatedAt, &l.HostName, &l.Player2Name); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

// SetPlayer2 seats the second player and moves the room to PLAYING. It
// only succeeds while the room is still WAITING with an empty seat, so a
// racing second join loses cleanly.
func (r *RoomRepo) SetPlayer2(ctx context.Context, roomID, userID int64) (*Room, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE rooms SET player2_id = $2, status = $3
		 WHERE id = $1 AND status = $4 AND player2_id IS NULL
		 RETURNING `+roomCols,
		roomID, userID, RoomPlaying, RoomWaiting)
	return scanRoom(row)
}

// ClearPlayer2 empties the second seat and reopens the room.
func (r *RoomRepo) ClearPlayer2(ctx context.Context, roomID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET player2_id = NULL, status = $2 WHERE id = $1`, roomID, RoomWaiting)
	return err
}

func (r *RoomRepo) UpdateStatus(ctx context.Context, roomID int64, status RoomStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE rooms SET status = $2 WHERE id = $1`, roomID, status)
	return err
}

func (r *RoomRepo) Delete(ctx context.Context, roomID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, roomID)
	return err
}

// PruneStale deletes rooms still WAITING with no second player that are
// older than maxAge. Returns the number of rooms removed.
func (r *RoomRepo) PruneStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM rooms
		 WHERE status = $1 AND player2_id IS NULL AND created_at < now() - ($2 * interval '1 second')`,
		RoomWaiting, int64(maxAge.Seconds()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
