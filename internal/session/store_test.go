package session

import (
	"context"
	"sync/atomic"
	"testing"

	"gomoku-server/internal/game"
)

type fakeMatches struct {
	next    atomic.Int64
	created atomic.Int32
}

func (f *fakeMatches) Create(ctx context.Context, playerX, playerO, roomID int64, boardSize int) (int64, error) {
	f.created.Add(1)
	return f.next.Add(1), nil
}

func TestCreateAllocatesFreshGame(t *testing.T) {
	fm := &fakeMatches{}
	s := NewStore(fm)

	st, created, err := s.Create(context.Background(), 1, 10, 20, 15)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created {
		t.Fatalf("expected a new game")
	}
	if st.Turn != game.SymbolX {
		t.Fatalf("first turn = %q, want X", st.Turn)
	}
	if st.MatchID != 1 || st.BoardSize != 15 || st.Board.Size() != 15 {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestCreateIsNoOpWhenGameExists(t *testing.T) {
	fm := &fakeMatches{}
	s := NewStore(fm)

	first, _, err := s.Create(context.Background(), 1, 10, 20, 15)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, created, err := s.Create(context.Background(), 1, 10, 20, 15)
	if err != nil {
		t.Fatalf("Create#2: %v", err)
	}
	if created {
		t.Fatalf("second create must be a no-op")
	}
	if first != second {
		t.Fatalf("second create returned a different state")
	}
	if fm.created.Load() != 1 {
		t.Fatalf("match records created = %d, want 1", fm.created.Load())
	}
}

func TestGetAndRemove(t *testing.T) {
	s := NewStore(&fakeMatches{})
	if _, ok := s.Get(9); ok {
		t.Fatalf("unexpected game for untouched room")
	}
	if _, _, err := s.Create(context.Background(), 9, 1, 2, 19); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := s.Get(9); !ok {
		t.Fatalf("created game not found")
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
	s.Remove(9)
	s.Remove(9) // idempotent
	if _, ok := s.Get(9); ok {
		t.Fatalf("removed game still present")
	}
}
