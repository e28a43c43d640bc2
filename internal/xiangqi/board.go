package xiangqi

import "fmt"

// Board is a 9x10 grid. A zero Piece (Kind 0) marks an empty square.
// The zero Board is empty; use NewBoard for the standard setup.
type Board struct {
	cells [Ranks][Files]Piece
}

var backRank = [Files]Kind{Chariot, Horse, Elephant, Advisor, General, Advisor, Elephant, Horse, Chariot}

// NewBoard returns the standard opening position.
func NewBoard() *Board {
	b := &Board{}
	for f, k := range backRank {
		b.cells[0][f] = Piece{Kind: k, Side: Red}
		b.cells[9][f] = Piece{Kind: k, Side: Blue}
	}
	for _, f := range []int{1, 7} {
		b.cells[2][f] = Piece{Kind: Cannon, Side: Red}
		b.cells[7][f] = Piece{Kind: Cannon, Side: Blue}
	}
	for f := 0; f < Files; f += 2 {
		b.cells[3][f] = Piece{Kind: Soldier, Side: Red}
		b.cells[6][f] = Piece{Kind: Soldier, Side: Blue}
	}
	return b
}

// At returns the piece on p, if any.
func (b *Board) At(p Pos) (Piece, bool) {
	if !p.Valid() {
		return Piece{}, false
	}
	pc := b.cells[p.Rank][p.File]
	return pc, pc.Kind != 0
}

// Put places pc on p, replacing whatever was there. Used to build custom positions.
func (b *Board) Put(p Pos, pc Piece) {
	if p.Valid() {
		b.cells[p.Rank][p.File] = pc
	}
}

// Remove clears p.
func (b *Board) Remove(p Pos) {
	if p.Valid() {
		b.cells[p.Rank][p.File] = Piece{}
	}
}

func (b *Board) Clone() *Board {
	c := *b
	return &c
}

func (b *Board) Equal(o *Board) bool {
	if b == nil || o == nil {
		return b == o
	}
	return b.cells == o.cells
}

// Apply validates mv against the rules for the piece standing on mv.From and,
// when legal, moves it. The returned Move carries the captured piece.
// On error the board is unchanged.
func (b *Board) Apply(mv Move) (Move, error) {
	mv.Captured = nil
	if !mv.From.Valid() || !mv.To.Valid() {
		return mv, illegal(mv, "square off the board")
	}
	if mv.From == mv.To {
		return mv, illegal(mv, "null move")
	}
	pc, ok := b.At(mv.From)
	if !ok {
		return mv, illegal(mv, "no piece on %s", mv.From)
	}
	if dst, ok := b.At(mv.To); ok && dst.Side == pc.Side {
		return mv, illegal(mv, "%s is occupied by own %s", mv.To, dst.Kind)
	}
	if !b.canReach(mv.From, mv.To, pc) {
		return mv, illegal(mv, "%s cannot move from %s to %s", pc.Kind, mv.From, mv.To)
	}

	applied := b.move(mv)
	if b.InCheck(pc.Side) {
		b.unmove(applied)
		return mv, illegal(mv, "leaves the %s general exposed", pc.Side)
	}
	return applied, nil
}

// Undo reverses a move previously returned by Apply.
func (b *Board) Undo(mv Move) error {
	if !mv.From.Valid() || !mv.To.Valid() {
		return fmt.Errorf("undo %s: square off the board", mv)
	}
	if _, ok := b.At(mv.To); !ok {
		return fmt.Errorf("undo %s: no piece on %s", mv, mv.To)
	}
	if _, ok := b.At(mv.From); ok {
		return fmt.Errorf("undo %s: %s is occupied", mv, mv.From)
	}
	b.unmove(mv)
	return nil
}

func (b *Board) move(mv Move) Move {
	if dst, ok := b.At(mv.To); ok {
		captured := dst
		mv.Captured = &captured
	}
	b.cells[mv.To.Rank][mv.To.File] = b.cells[mv.From.Rank][mv.From.File]
	b.cells[mv.From.Rank][mv.From.File] = Piece{}
	return mv
}

func (b *Board) unmove(mv Move) {
	b.cells[mv.From.Rank][mv.From.File] = b.cells[mv.To.Rank][mv.To.File]
	if mv.Captured != nil {
		b.cells[mv.To.Rank][mv.To.File] = *mv.Captured
	} else {
		b.cells[mv.To.Rank][mv.To.File] = Piece{}
	}
}

// general returns the square of side's general.
func (b *Board) general(side Side) (Pos, bool) {
	lo, hi := palaceRanks(side)
	for r := lo; r <= hi; r++ {
		for f := 3; f <= 5; f++ {
			if pc := b.cells[r][f]; pc.Kind == General && pc.Side == side {
				return Pos{File: f, Rank: r}, true
			}
		}
	}
	return Pos{}, false
}

// InCheck reports whether side's general is attacked or faces the other
// general on an open file. A side without a general counts as in check.
func (b *Board) InCheck(side Side) bool {
	g, ok := b.general(side)
	if !ok {
		return true
	}
	if og, ok := b.general(side.Opponent()); ok && og.File == g.File && b.between(g, og) == 0 {
		return true
	}
	for r := 0; r < Ranks; r++ {
		for f := 0; f < Files; f++ {
			pc := b.cells[r][f]
			if pc.Kind == 0 || pc.Side == side {
				continue
			}
			if b.canReach(Pos{File: f, Rank: r}, g, pc) {
				return true
			}
		}
	}
	return false
}

// LegalMoves lists every legal move for side.
func (b *Board) LegalMoves(side Side) []Move {
	var out []Move
	b.eachLegal(side, func(mv Move) bool {
		out = append(out, mv)
		return true
	})
	return out
}

// HasLegalMove is LegalMoves without the allocation.
func (b *Board) HasLegalMove(side Side) bool {
	found := false
	b.eachLegal(side, func(Move) bool {
		found = true
		return false
	})
	return found
}

func (b *Board) eachLegal(side Side, yield func(Move) bool) {
	for r := 0; r < Ranks; r++ {
		for f := 0; f < Files; f++ {
			pc := b.cells[r][f]
			if pc.Kind == 0 || pc.Side != side {
				continue
			}
			from := Pos{File: f, Rank: r}
			for _, to := range b.targets(from, pc) {
				if dst, ok := b.At(to); ok && dst.Side == side {
					continue
				}
				applied := b.move(Move{From: from, To: to})
				safe := !b.InCheck(side)
				b.unmove(applied)
				if safe && !yield(Move{From: from, To: to}) {
					return
				}
			}
		}
	}
}

// Verdict evaluates the position with toMove to play. A side without a general
// has lost; a side with no legal move has lost, whether checkmated or stalemated.
func (b *Board) Verdict(toMove Side) Verdict {
	if _, ok := b.general(Red); !ok {
		return BlueWins
	}
	if _, ok := b.general(Blue); !ok {
		return RedWins
	}
	if !b.HasLegalMove(toMove) {
		return winsFor(toMove.Opponent())
	}
	return Ongoing
}

// Pieces counts the pieces of side still on the board.
func (b *Board) Pieces(side Side) int {
	n := 0
	for r := 0; r < Ranks; r++ {
		for f := 0; f < Files; f++ {
			if pc := b.cells[r][f]; pc.Kind != 0 && pc.Side == side {
				n++
			}
		}
	}
	return n
}
