package xiangqi

// Turn tracks the side to move. The zero value is RedToMove.
type Turn struct {
	side Side
}

func (t *Turn) Side() Side { return t.side }

// Flip passes the move to the other side. Called once per applied or undone ply.
func (t *Turn) Flip() { t.side = t.side.Opponent() }

func (t *Turn) Reset() { t.side = Red }

// Set forces the side to move, for positions loaded from FEN.
func (t *Turn) Set(s Side) { t.side = s }

// Allows reports whether side may move now.
func (t *Turn) Allows(side Side) bool { return t.side == side }
