package xiangqi

var (
	orthogonal    = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	diagonal      = [][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	elephantJumps = [][2]int{{2, 2}, {2, -2}, {-2, 2}, {-2, -2}}
	horseJumps    = [][2]int{{1, 2}, {1, -2}, {-1, 2}, {-1, -2}, {2, 1}, {2, -1}, {-2, 1}, {-2, -1}}
)

func palaceRanks(side Side) (lo, hi int) {
	if side == Red {
		return 0, 2
	}
	return 7, 9
}

func inPalace(side Side, p Pos) bool {
	lo, hi := palaceRanks(side)
	return p.File >= 3 && p.File <= 5 && p.Rank >= lo && p.Rank <= hi
}

// ownHalf reports whether p is on side's bank of the river.
func ownHalf(side Side, p Pos) bool {
	if side == Red {
		return p.Rank <= 4
	}
	return p.Rank >= 5
}

func forward(side Side) int {
	if side == Red {
		return 1
	}
	return -1
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}

// between counts pieces strictly between a and b, which must share a file or rank.
// It returns -1 when they do not.
func (b *Board) between(a, c Pos) int {
	if a.File != c.File && a.Rank != c.Rank {
		return -1
	}
	df, dr := sign(c.File-a.File), sign(c.Rank-a.Rank)
	n := 0
	for p := a.add(df, dr); p != c; p = p.add(df, dr) {
		if _, ok := b.At(p); ok {
			n++
		}
	}
	return n
}

func (b *Board) empty(p Pos) bool {
	_, ok := b.At(p)
	return !ok
}

// canReach is the movement rule for pc standing on from, ignoring whether the
// mover's own general ends up exposed. The destination must not hold a piece of
// the mover's side; callers check that.
func (b *Board) canReach(from, to Pos, pc Piece) bool {
	df, dr := to.File-from.File, to.Rank-from.Rank
	switch pc.Kind {
	case General:
		return inPalace(pc.Side, to) && abs(df)+abs(dr) == 1
	case Advisor:
		return inPalace(pc.Side, to) && abs(df) == 1 && abs(dr) == 1
	case Elephant:
		if abs(df) != 2 || abs(dr) != 2 || !ownHalf(pc.Side, to) {
			return false
		}
		return b.empty(from.add(df/2, dr/2))
	case Horse:
		switch {
		case abs(df) == 1 && abs(dr) == 2:
			return b.empty(from.add(0, dr/2))
		case abs(df) == 2 && abs(dr) == 1:
			return b.empty(from.add(df/2, 0))
		}
		return false
	case Chariot:
		return b.between(from, to) == 0
	case Cannon:
		n := b.between(from, to)
		if b.empty(to) {
			return n == 0
		}
		return n == 1
	case Soldier:
		if df == 0 && dr == forward(pc.Side) {
			return true
		}
		return dr == 0 && abs(df) == 1 && !ownHalf(pc.Side, from)
	}
	return false
}

// targets lists on-board squares pc could move to from from, by its movement rule.
func (b *Board) targets(from Pos, pc Piece) []Pos {
	var cand []Pos
	addSteps := func(steps [][2]int) {
		for _, s := range steps {
			cand = append(cand, from.add(s[0], s[1]))
		}
	}
	switch pc.Kind {
	case General:
		addSteps(orthogonal)
	case Advisor:
		addSteps(diagonal)
	case Elephant:
		addSteps(elephantJumps)
	case Horse:
		addSteps(horseJumps)
	case Soldier:
		cand = append(cand, from.add(0, forward(pc.Side)), from.add(1, 0), from.add(-1, 0))
	case Chariot, Cannon:
		for f := 0; f < Files; f++ {
			if f != from.File {
				cand = append(cand, Pos{File: f, Rank: from.Rank})
			}
		}
		for r := 0; r < Ranks; r++ {
			if r != from.Rank {
				cand = append(cand, Pos{File: from.File, Rank: r})
			}
		}
	}
	out := cand[:0]
	for _, to := range cand {
		if to.Valid() && b.canReach(from, to, pc) {
			out = append(out, to)
		}
	}
	return out
}
