package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/cheese-xiangqi/internal/obslog"
	"github.com/park285/cheese-xiangqi/internal/session"
	"github.com/park285/cheese-xiangqi/internal/xiangqi"
	"go.uber.org/zap"
)

type PeerOptions struct {
	SendTimeout time.Duration
	Buffer      int
}

// EventKind tags what a Peer reports to its UI.
type EventKind int

const (
	EventOpponentMove EventKind = iota + 1
	EventAck
	EventClosed
)

type Event struct {
	Kind    EventKind
	Outcome session.Outcome
	Ply     int
	Err     error
}

// Peer is one player's end of a room. It owns a local session, pushes local
// moves through an outbox without waiting for delivery, and applies the
// opponent's moves from the relay after re-validating them.
type Peer struct {
	code  string
	self  Identity
	side  xiangqi.Side
	sess  *session.Session
	relay Transport
	opts  PeerOptions

	outbox chan Envelope
	events chan Event
	acked  atomic.Int64

	mu  sync.Mutex
	err error

	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewPeer joins the relay of r as self. The local session replays r.Moves, so
// a player can reconnect mid-game.
func NewPeer(ctx context.Context, relay Transport, r *Room, self Identity, opts PeerOptions) (*Peer, error) {
	self = self.normalized()
	side, ok := r.SideOf(self.ID)
	if !ok {
		return nil, ErrNotParticipant
	}
	if r.Status == StatusClosed {
		return nil, ErrRoomClosed
	}
	sess, err := session.FromMoves(r.Moves)
	if err != nil {
		return nil, err
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	pctx, cancel := context.WithCancel(ctx)
	in, err := relay.Receive(pctx, r.Code)
	if err != nil {
		cancel()
		return nil, err
	}
	p := &Peer{
		code:   r.Code,
		self:   self,
		side:   side,
		sess:   sess,
		relay:  relay,
		opts:   opts,
		outbox: make(chan Envelope, opts.Buffer),
		events: make(chan Event, opts.Buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.wg.Add(2)
	go p.flush(pctx)
	go p.pump(pctx, in)
	return p, nil
}

func (p *Peer) Code() string { return p.code }
func (p *Peer) Side() xiangqi.Side { return p.side }
func (p *Peer) Session() *session.Session { return p.sess }
func (p *Peer) Events() <-chan Event { return p.events }
func (p *Peer) Done() <-chan struct{} { return p.done }

// Acked is the highest own ply the opponent has confirmed.
func (p *Peer) Acked() int { return int(p.acked.Load()) }

// Err is why the peer stopped, or nil while it runs.
func (p *Peer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Peer) fail(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()
}

// Play validates and applies a local move, then queues it for the opponent.
// It returns once the move is queued, not when it is delivered.
func (p *Peer) Play(iccs string) (session.Outcome, error) {
	if err := p.Err(); err != nil {
		return session.Outcome{}, err
	}
	out, err := p.sess.PlayAs(p.side, iccs)
	if err != nil {
		return session.Outcome{}, err
	}
	env := Envelope{
		Type:   EnvMove,
		Code:   p.code,
		From:   p.self.ID,
		Ply:    out.Ply,
		Move:   out.Move.String(),
		FEN:    out.FEN,
		SentAt: time.Now(),
	}
	select {
	case p.outbox <- env:
	case <-p.done:
		return out, p.Err()
	}
	return out, nil
}

// Leave tells the room this player is leaving, then stops the peer.
func (p *Peer) Leave(ctx context.Context) error {
	env := Envelope{Type: EnvLeave, Code: p.code, From: p.self.ID, SentAt: time.Now()}
	sctx, cancel := context.WithTimeout(ctx, p.opts.SendTimeout)
	err := p.relay.Send(sctx, p.code, env)
	cancel()
	p.fail(fmt.Errorf("%w: %s", ErrRoomClosed, ReasonLeave))
	p.Close()
	return err
}

// Close stops both goroutines and waits for them.
func (p *Peer) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *Peer) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		obslog.L().Debug("peer_event_dropped", zap.String("code", p.code), zap.Int("kind", int(ev.Kind)))
	}
}

func (p *Peer) flush(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-p.outbox:
			sctx, cancel := context.WithTimeout(ctx, p.opts.SendTimeout)
			err := p.relay.Send(sctx, p.code, env)
			cancel()
			if err != nil && ctx.Err() == nil {
				obslog.L().Warn("relay_send_error", zap.String("code", p.code), zap.String("type", string(env.Type)), zap.Int("ply", env.Ply), zap.Error(err))
				p.fail(fmt.Errorf("relay send: %w", err))
				p.emit(Event{Kind: EventClosed, Err: p.Err()})
				p.cancel()
				return
			}
		}
	}
}

func (p *Peer) pump(ctx context.Context, in <-chan Envelope) {
	defer p.wg.Done()
	defer close(p.done)
	defer p.cancel()
	for {
		select {
		case <-ctx.Done():
			p.fail(ctx.Err())
			return
		case env, ok := <-in:
			if !ok {
				p.fail(fmt.Errorf("%w: relay ended", ErrRoomClosed))
				return
			}
			if p.handle(ctx, env) {
				return
			}
		}
	}
}

// handle applies one envelope and reports whether the peer is finished.
func (p *Peer) handle(ctx context.Context, env Envelope) bool {
	if env.From != "" && env.From == p.self.ID {
		return false
	}
	switch env.Type {
	case EnvMove:
		return p.applyRemote(ctx, env)
	case EnvAck:
		if int64(env.Ply) > p.acked.Load() {
			p.acked.Store(int64(env.Ply))
			p.emit(Event{Kind: EventAck, Ply: env.Ply})
		}
	case EnvDesync:
		p.fail(&DesyncError{Code: p.code, Ply: env.Ply, Want: env.Reason, Got: p.sess.FEN()})
		p.emit(Event{Kind: EventClosed, Err: p.Err()})
		return true
	case EnvClosed:
		p.fail(fmt.Errorf("%w: %s", ErrRoomClosed, env.Reason))
		p.emit(Event{Kind: EventClosed, Err: p.Err()})
		return true
	}
	return false
}

func (p *Peer) applyRemote(ctx context.Context, env Envelope) bool {
	moves := p.sess.Moves()
	if env.Ply >= 1 && env.Ply <= len(moves) {
		if moves[env.Ply-1] == env.Move {
			return false
		}
		return p.desync(ctx, &DesyncError{Code: p.code, Ply: env.Ply, Want: env.Move, Got: moves[env.Ply-1]})
	}
	if env.Ply != len(moves)+1 {
		return p.desync(ctx, &DesyncError{Code: p.code, Ply: env.Ply, Want: env.Move, Got: fmt.Sprintf("ply %d", len(moves))})
	}
	out, err := p.sess.PlayAs(p.side.Opponent(), env.Move)
	if err != nil {
		return p.desync(ctx, &DesyncError{Code: p.code, Ply: env.Ply, Want: env.Move, Got: err.Error()})
	}
	if env.FEN != "" && env.FEN != out.FEN {
		return p.desync(ctx, &DesyncError{Code: p.code, Ply: env.Ply, Want: env.FEN, Got: out.FEN})
	}
	obslog.L().Debug("relay_apply", zap.String("code", p.code), zap.String("player_id", p.self.ID), zap.String("move", env.Move), zap.Int("ply", out.Ply))
	ack := Envelope{Type: EnvAck, Code: p.code, From: p.self.ID, Ply: out.Ply, SentAt: time.Now()}
	select {
	case p.outbox <- ack:
	case <-ctx.Done():
		return true
	}
	p.emit(Event{Kind: EventOpponentMove, Outcome: out, Ply: out.Ply})
	return false
}

// desync records the error, tells the room and stops the peer.
func (p *Peer) desync(ctx context.Context, d *DesyncError) bool {
	obslog.L().Warn("relay_desync", zap.String("code", p.code), zap.String("player_id", p.self.ID), zap.Int("ply", d.Ply), zap.String("want", d.Want), zap.String("got", d.Got))
	p.fail(d)
	env := Envelope{Type: EnvDesync, Code: p.code, From: p.self.ID, Ply: d.Ply, Reason: d.Error(), SentAt: time.Now()}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.SendTimeout)
	if err := p.relay.Send(sctx, p.code, env); err != nil {
		obslog.L().Warn("relay_send_error", zap.String("code", p.code), zap.String("type", string(EnvDesync)), zap.Error(err))
	}
	cancel()
	p.emit(Event{Kind: EventClosed, Err: d})
	return true
}

// IsDesync reports whether err came from a desynchronized room.
func IsDesync(err error) bool { return errors.Is(err, ErrDesync) }
