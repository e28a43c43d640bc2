package xiangqi

import (
	"fmt"
	"strconv"
	"strings"
)

// String renders the move in ICCS coordinates, e.g. "h2e2".
func (m Move) String() string { return m.From.String() + m.To.String() }

// ParsePos reads a square such as "e0".
func ParsePos(s string) (Pos, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 {
		return Pos{}, fmt.Errorf("%w: square %q", ErrBadNotation, s)
	}
	p := Pos{File: int(s[0] - 'a'), Rank: int(s[1] - '0')}
	if !p.Valid() {
		return Pos{}, fmt.Errorf("%w: square %q", ErrBadNotation, s)
	}
	return p, nil
}

// ParseMove reads an ICCS move. "h2e2", "H2-E2" and "h2 e2" are accepted.
func ParseMove(s string) (Move, error) {
	raw := strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(s))
	if len(raw) != 4 {
		return Move{}, fmt.Errorf("%w: %q", ErrBadNotation, s)
	}
	from, err := ParsePos(raw[:2])
	if err != nil {
		return Move{}, err
	}
	to, err := ParsePos(raw[2:])
	if err != nil {
		return Move{}, err
	}
	return Move{From: from, To: to}, nil
}

var fenLetters = map[Kind]byte{
	General:  'k',
	Advisor:  'a',
	Elephant: 'b',
	Horse:    'n',
	Chariot:  'r',
	Cannon:   'c',
	Soldier:  'p',
}

var fenKinds = map[byte]Kind{
	'k': General,
	'a': Advisor,
	'b': Elephant,
	'e': Elephant,
	'n': Horse,
	'h': Horse,
	'r': Chariot,
	'c': Cannon,
	'p': Soldier,
}

// Letter is the FEN letter for p: upper case for Red, lower case for Blue.
func (p Piece) Letter() byte {
	c := fenLetters[p.Kind]
	if p.Side == Red {
		c -= 'a' - 'A'
	}
	return c
}

// FEN encodes the placement and side to move. Red is "w" as in WXF notation.
func (b *Board) FEN(toMove Side) string {
	var sb strings.Builder
	for r := Ranks - 1; r >= 0; r-- {
		gap := 0
		for f := 0; f < Files; f++ {
			pc := b.cells[r][f]
			if pc.Kind == 0 {
				gap++
				continue
			}
			if gap > 0 {
				sb.WriteString(strconv.Itoa(gap))
				gap = 0
			}
			sb.WriteByte(pc.Letter())
		}
		if gap > 0 {
			sb.WriteString(strconv.Itoa(gap))
		}
		if r > 0 {
			sb.WriteByte('/')
		}
	}
	if toMove == Red {
		sb.WriteString(" w")
	} else {
		sb.WriteString(" b")
	}
	return sb.String()
}

// ParseFEN decodes a position written by FEN. A missing side field means Red to move.
// Extra fields (move counters) are ignored.
func ParseFEN(s string) (*Board, Side, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, Red, fmt.Errorf("%w: empty", ErrBadFEN)
	}
	rows := strings.Split(fields[0], "/")
	if len(rows) != Ranks {
		return nil, Red, fmt.Errorf("%w: want %d ranks, got %d", ErrBadFEN, Ranks, len(rows))
	}
	b := &Board{}
	generals := map[Side]int{}
	for i, row := range rows {
		r := Ranks - 1 - i
		f := 0
		for j := 0; j < len(row); j++ {
			c := row[j]
			if c >= '1' && c <= '9' {
				f += int(c - '0')
				continue
			}
			side := Blue
			lc := c
			if c >= 'A' && c <= 'Z' {
				side = Red
				lc = c + ('a' - 'A')
			}
			k, ok := fenKinds[lc]
			if !ok {
				return nil, Red, fmt.Errorf("%w: unknown piece %q", ErrBadFEN, c)
			}
			if f >= Files {
				return nil, Red, fmt.Errorf("%w: rank %d too long", ErrBadFEN, r)
			}
			p := Pos{File: f, Rank: r}
			if k == General {
				if !inPalace(side, p) {
					return nil, Red, fmt.Errorf("%w: %s general outside palace", ErrBadFEN, side)
				}
				generals[side]++
			}
			b.cells[r][f] = Piece{Kind: k, Side: side}
			f++
		}
		if f != Files {
			return nil, Red, fmt.Errorf("%w: rank %d has %d files", ErrBadFEN, r, f)
		}
	}
	if generals[Red] > 1 || generals[Blue] > 1 {
		return nil, Red, fmt.Errorf("%w: more than one general per side", ErrBadFEN)
	}
	toMove := Red
	if len(fields) > 1 {
		switch strings.ToLower(fields[1]) {
		case "w", "r":
		case "b":
			toMove = Blue
		default:
			return nil, Red, fmt.Errorf("%w: side %q", ErrBadFEN, fields[1])
		}
	}
	return b, toMove, nil
}

// StartFEN is the standard opening position.
const StartFEN = "rnbakabnr/9/1c5c1/p1p1p1p1p/9/9/P1P1P1P1P/1C5C1/9/RNBAKABNR w"

// Replay applies ICCS moves from the opening position, alternating sides from Red.
func Replay(moves []string) (*Board, Side, []Move, error) {
	b := NewBoard()
	side := Red
	applied := make([]Move, 0, len(moves))
	for i, s := range moves {
		mv, err := ParseMove(s)
		if err != nil {
			return nil, side, nil, fmt.Errorf("ply %d: %w", i+1, err)
		}
		if pc, ok := b.At(mv.From); ok && pc.Side != side {
			return nil, side, nil, fmt.Errorf("ply %d: %w", i+1, illegal(mv, "%s to move", side))
		}
		done, err := b.Apply(mv)
		if err != nil {
			return nil, side, nil, fmt.Errorf("ply %d: %w", i+1, err)
		}
		applied = append(applied, done)
		side = side.Opponent()
	}
	return b, side, applied, nil
}

// String draws the board for terminals, Blue at the top.
func (b *Board) String() string {
	var sb strings.Builder
	for r := Ranks - 1; r >= 0; r-- {
		fmt.Fprintf(&sb, "%d ", r)
		for f := 0; f < Files; f++ {
			pc := b.cells[r][f]
			if pc.Kind == 0 {
				sb.WriteByte('.')
			} else {
				sb.WriteByte(pc.Letter())
			}
			if f < Files-1 {
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\n')
		if r == 5 {
			sb.WriteString("  ~~~~~~~~~~~~~~~~~\n")
		}
	}
	sb.WriteString("  a b c d e f g h i\n")
	return sb.String()
}
