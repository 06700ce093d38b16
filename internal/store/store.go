// Package store holds the Postgres repositories for users, rooms and
// matches. All queries are plain SQL over database/sql with lib/pq.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Store bundles the repositories over one connection pool.
type Store struct {
	db *sql.DB

	Users   *UserRepo
	Rooms   *RoomRepo
	Matches *MatchRepo
}

func Open(databaseURL string) (*Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	s := &Store{db: db}
	s.Users = &UserRepo{db: db}
	s.Rooms = &RoomRepo{db: db}
	s.Matches = &MatchRepo{db: db}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate creates the schema when it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            BIGSERIAL PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL UNIQUE,
			full_name     TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			elo           INTEGER NOT NULL DEFAULT 1000,
			wins          INTEGER NOT NULL DEFAULT 0,
			losses        INTEGER NOT NULL DEFAULT 0,
			draws         INTEGER NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS rooms (
			id            BIGSERIAL PRIMARY KEY,
			room_name     TEXT NOT NULL,
			host_id       BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			player2_id    BIGINT REFERENCES users(id) ON DELETE SET NULL,
			password_hash TEXT,
			board_size    INTEGER NOT NULL DEFAULT 15,
			status        TEXT NOT NULL DEFAULT 'WAITING',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS matches (
			id          BIGSERIAL PRIMARY KEY,
			player_x_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			player_o_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			winner_id   BIGINT REFERENCES users(id) ON DELETE SET NULL,
			room_id     BIGINT REFERENCES rooms(id) ON DELETE SET NULL,
			board_size  INTEGER NOT NULL,
			board_state JSONB NOT NULL DEFAULT '[]',
			start_time  TIMESTAMPTZ NOT NULL DEFAULT now(),
			end_time    TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rooms_status ON rooms(status, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_players ON matches(player_x_id, player_o_id)`,
		`CREATE INDEX IF NOT EXISTS idx_users_elo ON users(elo DESC, wins DESC)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
