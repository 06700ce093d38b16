package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// User is the durable account record. Rating fields are only mutated by
// the match finalization transaction.
type User struct {
	ID           int64
	Username     string
	Email        string
	FullName     string
	PasswordHash string
	Elo          int
	Wins         int
	Losses       int
	Draws        int
	CreatedAt    time.Time
}

type UserRepo struct {
	db *sql.DB
}

const userCols = `id, username, email, full_name, password_hash, elo, wins, losses, draws, created_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash,
		&u.Elo, &u.Wins, &u.Losses, &u.Draws, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, username, email, fullName, passwordHash string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO users (username, email, full_name, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+userCols,
		username, email, fullName, passwordHash)
	return scanUser(row)
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id int64, username, fullName string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE users SET username = $2, full_name = $3 WHERE id = $1 RETURNING `+userCols,
		id, username, fullName)
	return scanUser(row)
}

// Leaderboard returns the top players ordered by rating, wins breaking ties.
func (r *UserRepo) Leaderboard(ctx context.Context, limit int) ([]*User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userCols+` FROM users ORDER BY elo DESC, wins DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash,
			&u.Elo, &u.Wins, &u.Losses, &u.Draws, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}
