// Package rating computes ELO adjustments for finished matches.
package rating

import "math"

// KFactor is fixed for all players regardless of rating or game count.
const KFactor = 32

// Change is one player's rating adjustment.
type Change struct {
	Old   int `json:"old_elo"`
	New   int `json:"new_elo"`
	Delta int `json:"change"`
}

// ExpectedScore returns the probability that a beats b under the ELO model.
func ExpectedScore(a, b int) float64 {
	return 1 / (1 + math.Pow(10, float64(b-a)/400))
}

// Decisive returns the deltas for a decisive result. The winner delta is
// >= 0, the loser delta <= 0.
func Decisive(winnerElo, loserElo int) (winnerDelta, loserDelta int) {
	winnerDelta = int(math.Round(KFactor * (1 - ExpectedScore(winnerElo, loserElo))))
	loserDelta = int(math.Round(KFactor * (0 - ExpectedScore(loserElo, winnerElo))))
	return winnerDelta, loserDelta
}

// Draw returns the deltas for a drawn result, computed symmetrically.
func Draw(elo1, elo2 int) (delta1, delta2 int) {
	delta1 = int(math.Round(KFactor * (0.5 - ExpectedScore(elo1, elo2))))
	delta2 = int(math.Round(KFactor * (0.5 - ExpectedScore(elo2, elo1))))
	return delta1, delta2
}

// ApplyWinLoss computes both players' post-game ratings. The loser is
// clamped at a floor of 0 so a rating never goes negative.
func ApplyWinLoss(winnerElo, loserElo int) (winner, loser Change) {
	wd, ld := Decisive(winnerElo, loserElo)
	winner = Change{Old: winnerElo, New: winnerElo + wd, Delta: wd}
	loser = Change{Old: loserElo, New: clampFloor(loserElo + ld), Delta: ld}
	return winner, loser
}

// ApplyDraw computes both players' post-game ratings for a draw. Draw
// deltas are applied without the zero floor; only losses are clamped.
func ApplyDraw(elo1, elo2 int) (p1, p2 Change) {
	d1, d2 := Draw(elo1, elo2)
	p1 = Change{Old: elo1, New: elo1 + d1, Delta: d1}
	p2 = Change{Old: elo2, New: elo2 + d2, Delta: d2}
	return p1, p2
}

func clampFloor(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
