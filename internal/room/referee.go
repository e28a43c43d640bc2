package room

import (
	"context"
	"fmt"

	"github.com/park285/cheese-xiangqi/internal/obslog"
	"github.com/park285/cheese-xiangqi/internal/xiangqi"
	"go.uber.org/zap"
)

// referee re-validates every relayed move against the authoritative session.
// Anything it cannot reconcile closes the room.
func (m *Manager) referee(ctx context.Context, code string, t *table, sub <-chan Envelope) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub:
			if !ok {
				return
			}
			if m.judge(ctx, code, t, env) {
				m.drop(code)
				return
			}
		}
	}
}

// judge handles one envelope and reports whether the referee is done.
func (m *Manager) judge(ctx context.Context, code string, t *table, env Envelope) bool {
	switch env.Type {
	case EnvMove:
		return m.judgeMove(ctx, code, t, env)
	case EnvLeave:
		if env.From != t.red.ID && env.From != t.blue.ID {
			return false
		}
		if _, err := m.Leave(ctx, code, env.From); err != nil {
			obslog.L().Warn("room_leave_error", zap.String("code", code), zap.String("player_id", env.From), zap.Error(err))
		}
		return true
	case EnvDesync:
		obslog.L().Warn("relay_desync", zap.String("code", code), zap.String("from", env.From), zap.Int("ply", env.Ply), zap.String("reason", env.Reason))
		m.closeQuietly(ctx, code, ReasonDesync)
		return true
	case EnvClosed:
		return true
	}
	return false
}

func (m *Manager) judgeMove(ctx context.Context, code string, t *table, env Envelope) bool {
	side, ok := sideOfTable(t, env.From)
	if !ok {
		obslog.L().Warn("relay_foreign_move", zap.String("code", code), zap.String("from", env.From))
		return false
	}

	t.mu.Lock()
	moves := t.sess.Moves()
	if env.Ply >= 1 && env.Ply <= len(moves) {
		same := moves[env.Ply-1] == env.Move
		t.mu.Unlock()
		if same {
			// already applied through SubmitMove
			return false
		}
		m.desync(ctx, code, &DesyncError{Code: code, Ply: env.Ply, Want: env.Move, Got: moves[env.Ply-1]})
		return true
	}
	if env.Ply != len(moves)+1 {
		t.mu.Unlock()
		m.desync(ctx, code, &DesyncError{Code: code, Ply: env.Ply, Want: env.Move, Got: fmt.Sprintf("ply %d", len(moves))})
		return true
	}
	out, err := t.sess.PlayAs(side, env.Move)
	t.mu.Unlock()
	if err != nil {
		obslog.L().Warn("relay_illegal", zap.String("code", code), zap.String("from", env.From), zap.String("move", env.Move), zap.Error(err))
		m.closeQuietly(ctx, code, ReasonIllegal)
		return true
	}
	if env.FEN != "" && env.FEN != out.FEN {
		m.desync(ctx, code, &DesyncError{Code: code, Ply: env.Ply, Want: env.FEN, Got: out.FEN})
		return true
	}
	obslog.L().Debug("relay_apply", zap.String("code", code), zap.String("move", env.Move), zap.Int("ply", out.Ply))
	m.afterMove(ctx, code, t, out)
	return out.Verdict != xiangqi.Ongoing
}

func (m *Manager) desync(ctx context.Context, code string, d *DesyncError) {
	obslog.L().Warn("relay_desync", zap.String("code", code), zap.Int("ply", d.Ply), zap.String("want", d.Want), zap.String("got", d.Got))
	m.closeQuietly(ctx, code, ReasonDesync)
}

func (m *Manager) closeQuietly(ctx context.Context, code, reason string) {
	if _, err := m.Close(ctx, code, reason); err != nil {
		obslog.L().Warn("room_close_error", zap.String("code", code), zap.String("reason", reason), zap.Error(err))
	}
}

func sideOfTable(t *table, id string) (xiangqi.Side, bool) {
	switch id {
	case "":
		return xiangqi.Red, false
	case t.red.ID:
		return xiangqi.Red, true
	case t.blue.ID:
		return xiangqi.Blue, true
	}
	return xiangqi.Red, false
}
