package xiangqi

import "fmt"

// Side identifies a player. Red moves first.
type Side int8

const (
	Red Side = iota
	Blue
)

func (s Side) Opponent() Side {
	if s == Red {
		return Blue
	}
	return Red
}

func (s Side) String() string {
	if s == Red {
		return "Red"
	}
	return "Blue"
}

// Kind is the piece type.
type Kind int8

const (
	General Kind = iota + 1
	Advisor
	Elephant
	Horse
	Chariot
	Cannon
	Soldier
)

var kindNames = map[Kind]string{
	General:  "General",
	Advisor:  "Advisor",
	Elephant: "Elephant",
	Horse:    "Horse",
	Chariot:  "Chariot",
	Cannon:   "Cannon",
	Soldier:  "Soldier",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int8(k))
}

// Piece has a fixed identity; its position is the square that holds it.
type Piece struct {
	Kind Kind `json:"kind"`
	Side Side `json:"side"`
}

func (p Piece) String() string { return p.Side.String() + " " + p.Kind.String() }

const (
	Files = 9
	Ranks = 10
)

// Pos is a board square. File 0 is the a-file, rank 0 is Red's back rank.
type Pos struct {
	File int `json:"file"`
	Rank int `json:"rank"`
}

func (p Pos) Valid() bool {
	return p.File >= 0 && p.File < Files && p.Rank >= 0 && p.Rank < Ranks
}

func (p Pos) add(df, dr int) Pos { return Pos{File: p.File + df, Rank: p.Rank + dr} }

func (p Pos) String() string {
	if !p.Valid() {
		return "??"
	}
	return fmt.Sprintf("%c%d", 'a'+p.File, p.Rank)
}

// Move is one ply. Captured is filled in when the move is applied and
// stays with the move so it can be reversed.
type Move struct {
	From     Pos    `json:"from"`
	To       Pos    `json:"to"`
	Captured *Piece `json:"captured,omitempty"`
}

// Verdict is the terminal state of a position.
type Verdict int8

const (
	Ongoing Verdict = iota
	RedWins
	BlueWins
)

func (v Verdict) String() string {
	switch v {
	case RedWins:
		return "RedWins"
	case BlueWins:
		return "BlueWins"
	default:
		return "Ongoing"
	}
}

// Winner reports the winning side for a decided verdict.
func (v Verdict) Winner() (Side, bool) {
	switch v {
	case RedWins:
		return Red, true
	case BlueWins:
		return Blue, true
	default:
		return Red, false
	}
}

func winsFor(s Side) Verdict {
	if s == Red {
		return RedWins
	}
	return BlueWins
}
