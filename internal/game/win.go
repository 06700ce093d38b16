package game

// winLength is the minimum contiguous run that wins. Overlines (six or
// more in a row) also count; there is no strict-five exclusion rule.
const winLength = 5

var directions = [4][2]int{
	{0, 1},  // horizontal
	{1, 0},  // vertical
	{1, 1},  // main diagonal
	{1, -1}, // anti diagonal
}

// CheckWinner reports whether the move just played at (row, col) by sym
// completed a run of five or more. It scans each axis outward from the
// played cell in both directions, so cost is bounded by 4x the board size.
func CheckWinner(b *Board, row, col int, sym Symbol) bool {
	for _, d := range directions {
		count := 1 // the played cell

		r, c := row+d[0], col+d[1]
		for r >= 0 && r < b.size && c >= 0 && c < b.size && b.cells[r][c] == sym {
			count++
			r += d[0]
			c += d[1]
		}

		r, c = row-d[0], col-d[1]
		for r >= 0 && r < b.size && c >= 0 && c < b.size && b.cells[r][c] == sym {
			count++
			r -= d[0]
			c -= d[1]
		}

		if count >= winLength {
			return true
		}
	}
	return false
}
