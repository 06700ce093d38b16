package game

// Symbol marks the owner of a cell. The zero value is an empty cell.
type Symbol string

const (
	SymbolNone Symbol = ""
	SymbolX    Symbol = "X"
	SymbolO    Symbol = "O"
)

// Opponent returns the other seat's symbol. SymbolNone maps to itself.
func (s Symbol) Opponent() Symbol {
	switch s {
	case SymbolX:
		return SymbolO
	case SymbolO:
		return SymbolX
	default:
		return SymbolNone
	}
}

// Board is one match's mutable grid. Methods do not lock; the coordinator
// serializes all access per room.
type Board struct {
	size  int
	cells [][]Symbol
}

func NewBoard(size int) *Board {
	cells := make([][]Symbol, size)
	for i := range cells {
		cells[i] = make([]Symbol, size)
	}
	return &Board{size: size, cells: cells}
}

func (b *Board) Size() int { return b.size }

// At returns the symbol at (row, col). Out-of-range access is a caller
// contract violation, same as ApplyMove.
func (b *Board) At(row, col int) Symbol { return b.cells[row][col] }

// ValidateMove reports whether (row, col) is on the board and empty.
// It never mutates.
func (b *Board) ValidateMove(row, col int) bool {
	if row < 0 || row >= b.size || col < 0 || col >= b.size {
		return false
	}
	return b.cells[row][col] == SymbolNone
}

// ApplyMove writes sym at (row, col). The caller must have validated the
// move first; there is no internal guard.
func (b *Board) ApplyMove(row, col int, sym Symbol) {
	b.cells[row][col] = sym
}

// IsFull reports whether no empty cell remains.
func (b *Board) IsFull() bool {
	for _, row := range b.cells {
		for _, c := range row {
			if c == SymbolNone {
				return false
			}
		}
	}
	return true
}

// Cells returns a deep copy of the grid for snapshots and persistence.
func (b *Board) Cells() [][]Symbol {
	out := make([][]Symbol, b.size)
	for i, row := range b.cells {
		out[i] = make([]Symbol, b.size)
		copy(out[i], row)
	}
	return out
}
