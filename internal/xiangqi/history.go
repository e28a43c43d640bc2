package xiangqi

// History is the ordered log of applied moves. It only grows at the end and
// only shrinks from the end.
type History struct {
	moves []Move
}

func (h *History) Record(mv Move) { h.moves = append(h.moves, mv) }

// PopLast removes and returns the most recent move.
func (h *History) PopLast() (Move, error) {
	if len(h.moves) == 0 {
		return Move{}, ErrHistoryEmpty
	}
	mv := h.moves[len(h.moves)-1]
	h.moves = h.moves[:len(h.moves)-1]
	return mv, nil
}

// Last returns the most recent move without removing it.
func (h *History) Last() (Move, bool) {
	if len(h.moves) == 0 {
		return Move{}, false
	}
	return h.moves[len(h.moves)-1], true
}

func (h *History) Clear() { h.moves = nil }

func (h *History) Len() int { return len(h.moves) }

// Moves returns a copy of the log, oldest first.
func (h *History) Moves() []Move {
	return append([]Move(nil), h.moves...)
}

// Notation returns the log in ICCS coordinates.
func (h *History) Notation() []string {
	out := make([]string, 0, len(h.moves))
	for _, mv := range h.moves {
		out = append(out, mv.String())
	}
	return out
}
