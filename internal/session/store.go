// Package session owns the live GameState table: the single source of
// truth for a match while it is in progress.
package session

import (
	"context"
	"sync"

	"gomoku-server/internal/game"
)

// GameState is the ephemeral board/turn/match tuple for one active room.
// Exactly one exists per room while a match runs; it is removed the
// instant the match ends and never recreated without a fresh join.
type GameState struct {
	Board     *game.Board
	Turn      game.Symbol
	MatchID   int64
	BoardSize int
	PlayerX   int64
	PlayerO   int64
}

// SymbolOf maps a seated player to their symbol, SymbolNone otherwise.
func (g *GameState) SymbolOf(userID int64) game.Symbol {
	switch userID {
	case g.PlayerX:
		return game.SymbolX
	case g.PlayerO:
		return game.SymbolO
	default:
		return game.SymbolNone
	}
}

// MatchCreator allocates the durable match record backing a new game.
type MatchCreator interface {
	Create(ctx context.Context, playerX, playerO, roomID int64, boardSize int) (int64, error)
}

// Store keys live games by room id. Mutating the contained GameState is
// the coordinator's job and happens under its per-room lock; the Store's
// own lock only guards the table.
type Store struct {
	mu      sync.RWMutex
	games   map[int64]*GameState
	matches MatchCreator
}

func NewStore(matches MatchCreator) *Store {
	return &Store{games: make(map[int64]*GameState), matches: matches}
}

// Create allocates a fresh empty board and its durable match record, with
// the first turn fixed to X. If a GameState already exists for the room
// the call is a no-op returning the existing state, so a racing second
// join cannot double-initialize.
func (s *Store) Create(ctx context.Context, roomID, playerX, playerO int64, boardSize int) (*GameState, bool, error) {
	s.mu.RLock()
	if st, ok := s.games[roomID]; ok {
		s.mu.RUnlock()
		return st, false, nil
	}
	s.mu.RUnlock()

	matchID, err := s.matches.Create(ctx, playerX, playerO, roomID, boardSize)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.games[roomID]; ok {
		return st, false, nil
	}
	st := &GameState{
		Board:     game.NewBoard(boardSize),
		Turn:      game.SymbolX,
		MatchID:   matchID,
		BoardSize: boardSize,
		PlayerX:   playerX,
		PlayerO:   playerO,
	}
	s.games[roomID] = st
	return st, true, nil
}

// Get returns the live game for a room, if any.
func (s *Store) Get(roomID int64) (*GameState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.games[roomID]
	return st, ok
}

// Remove deletes the room's game. Idempotent.
func (s *Store) Remove(roomID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, roomID)
}

// Len reports how many games are live, for metrics.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.games)
}
