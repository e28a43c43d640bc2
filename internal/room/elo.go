package room

import "math"

// Rating defaults used when a player has no profile yet.
const (
	DefaultElo = 1200
	DefaultK   = 32
)

// ExpectedScore is the probability that a player rated ra beats one rated rb.
func ExpectedScore(ra, rb int) float64 {
	return 1 / (1 + math.Pow(10, float64(rb-ra)/400))
}

// EloUpdate returns both new ratings after a game. scoreA is 1 for a win by A,
// 0 for a loss and 0.5 for a draw.
func EloUpdate(ra, rb int, scoreA float64, k int) (int, int) {
	if k <= 0 {
		k = DefaultK
	}
	ea := ExpectedScore(ra, rb)
	na := float64(ra) + float64(k)*(scoreA-ea)
	nb := float64(rb) + float64(k)*((1-scoreA)-(1-ea))
	return int(math.Round(na)), int(math.Round(nb))
}
