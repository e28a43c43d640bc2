// Package session is the Game Session: the single owner of a board, its turn
// and its move history. Local input and relayed moves both go through it.
package session

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/park285/cheese-xiangqi/internal/obslog"
	"github.com/park285/cheese-xiangqi/internal/xiangqi"
	"go.uber.org/zap"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

var (
	ErrNotYourTurn error = staticErr("not your turn")
	ErrGameOver    error = staticErr("game is over")
)

// Session serializes every mutation behind one lock. Reads that enumerate legal
// moves also take it, because the board is probed in place.
type Session struct {
	mu      sync.Mutex
	board   *xiangqi.Board
	turn    xiangqi.Turn
	history xiangqi.History
	verdict xiangqi.Verdict
}

// Outcome describes the state right after a move was accepted.
type Outcome struct {
	Move    xiangqi.Move
	Side    xiangqi.Side
	Ply     int
	FEN     string
	Verdict xiangqi.Verdict
}

func New() *Session {
	return &Session{board: xiangqi.NewBoard()}
}

// FromMoves rebuilds a session by replaying ICCS moves from the opening.
func FromMoves(moves []string) (*Session, error) {
	s := New()
	for i, m := range moves {
		if _, err := s.Play(m); err != nil {
			return nil, fmt.Errorf("replay ply %d: %w", i+1, err)
		}
	}
	return s, nil
}

// MakeMove plays mv for the side to move. The piece on mv.From decides the
// mover: moving the other side's piece fails with ErrNotYourTurn.
func (s *Session) MakeMove(mv xiangqi.Move) (xiangqi.Move, error) {
	out, err := s.apply(nil, mv)
	return out.Move, err
}

// MakeMoveAs plays mv only if side is the side to move.
func (s *Session) MakeMoveAs(side xiangqi.Side, mv xiangqi.Move) (Outcome, error) {
	return s.apply(&side, mv)
}

// Play parses an ICCS move and plays it for the side to move.
func (s *Session) Play(iccs string) (Outcome, error) {
	mv, err := xiangqi.ParseMove(iccs)
	if err != nil {
		return Outcome{}, err
	}
	return s.apply(nil, mv)
}

// PlayAs parses an ICCS move and plays it for side.
func (s *Session) PlayAs(side xiangqi.Side, iccs string) (Outcome, error) {
	mv, err := xiangqi.ParseMove(iccs)
	if err != nil {
		return Outcome{}, err
	}
	return s.apply(&side, mv)
}

func (s *Session) apply(as *xiangqi.Side, mv xiangqi.Move) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.verdict != xiangqi.Ongoing {
		return Outcome{}, ErrGameOver
	}
	toMove := s.turn.Side()
	if as != nil && *as != toMove {
		return Outcome{}, ErrNotYourTurn
	}
	if pc, ok := s.board.At(mv.From); ok && pc.Side != toMove {
		return Outcome{}, ErrNotYourTurn
	}
	applied, err := s.board.Apply(mv)
	if err != nil {
		return Outcome{}, err
	}
	s.history.Record(applied)
	s.turn.Flip()
	s.verdict = s.board.Verdict(s.turn.Side())

	out := Outcome{
		Move:    applied,
		Side:    toMove,
		Ply:     s.history.Len(),
		FEN:     s.board.FEN(s.turn.Side()),
		Verdict: s.verdict,
	}
	obslog.L().Debug("session_move",
		zap.String("side", toMove.String()),
		zap.String("move", applied.String()),
		zap.Int("ply", out.Ply),
		zap.String("verdict", s.verdict.String()),
	)
	return out, nil
}

// Undo takes back the last move and reports whether there was one. A finished
// game becomes playable again.
func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	mv, err := s.history.PopLast()
	if err != nil {
		return false
	}
	if err := s.board.Undo(mv); err != nil {
		// history and board disagree; put the move back and leave state alone
		s.history.Record(mv)
		obslog.L().Error("session_undo_error", zap.String("move", mv.String()), zap.Error(err))
		return false
	}
	s.turn.Flip()
	s.verdict = s.board.Verdict(s.turn.Side())
	return true
}

// ResetGame returns to the opening position. Calling it twice is the same as once.
func (s *Session) ResetGame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board = xiangqi.NewBoard()
	s.turn.Reset()
	s.history.Clear()
	s.verdict = xiangqi.Ongoing
}

func (s *Session) IsOver() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verdict != xiangqi.Ongoing
}

func (s *Session) Turn() xiangqi.Side {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn.Side()
}

func (s *Session) Verdict() xiangqi.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verdict
}

// Winner is the side that won, once the game is over.
func (s *Session) Winner() (xiangqi.Side, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verdict.Winner()
}

func (s *Session) LegalMoves() []xiangqi.Move {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verdict != xiangqi.Ongoing {
		return nil
	}
	return s.board.LegalMoves(s.turn.Side())
}

func (s *Session) Ply() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Len()
}

// Moves returns the history in ICCS notation, oldest first.
func (s *Session) Moves() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Notation()
}

// LastMove returns the most recent move, if any.
func (s *Session) LastMove() (xiangqi.Move, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Last()
}

func (s *Session) FEN() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.FEN(s.turn.Side())
}

// Fingerprint hashes the position and side to move. Two sessions with equal
// fingerprints hold the same position.
func (s *Session) Fingerprint() uint64 {
	return xxhash.Sum64String(s.FEN())
}

// Board returns a copy of the current board.
func (s *Session) Board() *xiangqi.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Clone()
}

// NewFromFEN starts a session from an arbitrary position. ResetGame still
// returns to the standard opening.
func NewFromFEN(fen string) (*Session, error) {
	b, side, err := xiangqi.ParseFEN(fen)
	if err != nil {
		return nil, err
	}
	s := &Session{board: b}
	s.turn.Set(side)
	s.verdict = b.Verdict(side)
	return s, nil
}
