package game

import "testing"

func TestValidateMoveBounds(t *testing.T) {
	b := NewBoard(15)
	cases := []struct {
		row, col int
		want     bool
	}{
		{0, 0, true},
		{14, 14, true},
		{7, 7, true},
		{-1, 0, false},
		{0, -1, false},
		{15, 0, false},
		{0, 15, false},
	}
	for _, c := range cases {
		if got := b.ValidateMove(c.row, c.col); got != c.want {
			t.Errorf("ValidateMove(%d,%d) = %v, want %v", c.row, c.col, got, c.want)
		}
	}
}

func TestValidateMoveOccupied(t *testing.T) {
	b := NewBoard(15)
	b.ApplyMove(7, 7, SymbolX)
	if b.ValidateMove(7, 7) {
		t.Fatalf("expected occupied cell to be rejected")
	}
	if !b.ValidateMove(7, 8) {
		t.Fatalf("expected neighbouring empty cell to be accepted")
	}
}

func TestIsFull(t *testing.T) {
	b := NewBoard(3)
	if b.IsFull() {
		t.Fatalf("empty board reported full")
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			b.ApplyMove(r, c, SymbolX)
		}
	}
	if !b.IsFull() {
		t.Fatalf("filled board not reported full")
	}
}

func TestCellsIsACopy(t *testing.T) {
	b := NewBoard(15)
	b.ApplyMove(0, 0, SymbolX)
	snap := b.Cells()
	snap[0][0] = SymbolO
	if b.At(0, 0) != SymbolX {
		t.Fatalf("mutating snapshot changed the live board")
	}
}

func TestOpponent(t *testing.T) {
	if SymbolX.Opponent() != SymbolO || SymbolO.Opponent() != SymbolX {
		t.Fatalf("opponent mapping broken")
	}
	if SymbolNone.Opponent() != SymbolNone {
		t.Fatalf("empty symbol should have no opponent")
	}
}
