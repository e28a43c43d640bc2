package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-xiangqi/internal/obslog"
	"github.com/park285/cheese-xiangqi/internal/session"
	"github.com/park285/cheese-xiangqi/internal/xiangqi"
	"go.uber.org/zap"
)

type Options struct {
	CodeLength  int
	SendTimeout time.Duration
}

// Manager owns the room lifecycle. For every active room it keeps the
// authoritative Game Session and a referee goroutine listening on the relay.
type Manager struct {
	store Store
	relay Transport
	repo  *Repository
	opts  Options

	mu     sync.Mutex
	tables map[string]*table

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// table is the server side of an active room.
type table struct {
	mu      sync.Mutex // serializes relayed and submitted moves
	sess    *session.Session
	red     Identity
	blue    Identity
	started time.Time
	stop    context.CancelFunc
}

func NewManager(store Store, relay Transport, opts Options) *Manager {
	if opts.CodeLength <= 0 {
		opts.CodeLength = 6
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:  store,
		relay:  relay,
		opts:   opts,
		tables: make(map[string]*table),
		ctx:    ctx,
		cancel: cancel,
	}
}

// AttachRepository wires the archive for finished games and ratings.
func (m *Manager) AttachRepository(r *Repository) {
	if m != nil {
		m.repo = r
	}
}

func (m *Manager) Repository() *Repository { return m.repo }

// Stop ends every referee and waits for them.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

// CreateRoom claims a fresh code for host. The room waits for a guest.
func (m *Manager) CreateRoom(ctx context.Context, host Identity) (*Room, error) {
	host = host.normalized()
	if host.ID == "" {
		return nil, ErrInvalidArgs
	}
	for i := 0; i < 5; i++ {
		code, err := codeGen(m.opts.CodeLength)
		if err != nil {
			return nil, err
		}
		now := time.Now()
		r := &Room{
			Code:      code,
			Status:    StatusWaiting,
			HostID:    host.ID,
			HostName:  host.Name,
			HostSeat:  uuid.NewString(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		ok, err := m.store.Claim(ctx, r)
		if err != nil {
			return nil, err
		}
		if ok {
			obslog.L().Info("room_create", zap.String("code", code), zap.String("host_id", host.ID))
			return r, nil
		}
	}
	return nil, fmt.Errorf("failed to allocate room code")
}

// JoinRoom seats guest as Blue and starts the game. Joining again as the same
// guest returns the active room.
func (m *Manager) JoinRoom(ctx context.Context, code string, guest Identity) (*Room, error) {
	return m.join(ctx, code, guest, "", false)
}

// JoinSeat is JoinRoom for callers that cannot vouch for guest's identity:
// joining again as the seated guest must present that guest's seat token.
func (m *Manager) JoinSeat(ctx context.Context, code string, guest Identity, seat string) (*Room, error) {
	return m.join(ctx, code, guest, seat, true)
}

func (m *Manager) join(ctx context.Context, code string, guest Identity, seat string, checkSeat bool) (*Room, error) {
	code = NormalizeCode(code)
	guest = guest.normalized()
	if code == "" || guest.ID == "" {
		return nil, ErrInvalidArgs
	}
	r, err := m.store.Update(ctx, code, func(r *Room) error {
		switch {
		case r.Status == StatusClosed:
			return ErrRoomClosed
		case r.HostID == guest.ID:
			return ErrSelfJoin
		case r.Status == StatusActive && r.GuestID == guest.ID:
			if checkSeat && !r.Seated(guest.ID, seat) {
				return ErrBadSeat
			}
			return nil
		case r.Status == StatusActive:
			return ErrRoomFull
		}
		r.GuestID, r.GuestName = guest.ID, guest.Name
		r.GuestSeat = uuid.NewString()
		r.Status = StatusActive
		r.GameID = uuid.NewString()
		r.StartedAt = time.Now()
		return nil
	})
	if err != nil {
		obslog.L().Warn("room_join_error", zap.String("code", code), zap.String("guest_id", guest.ID), zap.Error(err))
		return nil, err
	}
	if _, err := m.ensureTable(r); err != nil {
		_, _ = m.Close(ctx, code, ReasonClosed)
		return nil, err
	}
	obslog.L().Info("room_join",
		zap.String("code", code),
		zap.String("game_id", r.GameID),
		zap.String("red_id", r.HostID),
		zap.String("blue_id", r.GuestID),
	)
	return r, nil
}

func (m *Manager) Get(ctx context.Context, code string) (*Room, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidArgs
	}
	return m.store.Load(ctx, code)
}

func (m *Manager) ListWaiting(ctx context.Context) ([]*Room, error) {
	return m.store.ListWaiting(ctx)
}

// Session returns the authoritative session of an active room, rebuilding it
// from the stored moves when this process has not seen the room yet.
func (m *Manager) Session(ctx context.Context, code string) (*session.Session, error) {
	code = NormalizeCode(code)
	m.mu.Lock()
	t, ok := m.tables[code]
	m.mu.Unlock()
	if ok {
		return t.sess, nil
	}
	r, err := m.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	t, err = m.tableFor(r)
	if err != nil {
		return nil, err
	}
	return t.sess, nil
}

func (m *Manager) tableFor(r *Room) (*table, error) {
	switch r.Status {
	case StatusWaiting:
		return nil, ErrNotStarted
	case StatusClosed:
		return nil, ErrRoomClosed
	}
	return m.ensureTable(r)
}

func (m *Manager) ensureTable(r *Room) (*table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[r.Code]; ok {
		return t, nil
	}
	sess, err := session.FromMoves(r.Moves)
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", r.Code, err)
	}
	rctx, cancel := context.WithCancel(m.ctx)
	sub, err := m.relay.Receive(rctx, r.Code)
	if err != nil {
		cancel()
		return nil, err
	}
	started := r.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	t := &table{sess: sess, red: r.Host(), blue: r.Guest(), started: started, stop: cancel}
	m.tables[r.Code] = t
	m.wg.Add(1)
	go m.referee(rctx, r.Code, t, sub)
	return t, nil
}

// drop forgets the table and stops its referee without waiting for it.
func (m *Manager) drop(code string) {
	m.mu.Lock()
	t, ok := m.tables[code]
	delete(m.tables, code)
	m.mu.Unlock()
	if ok {
		t.stop()
	}
}

// SubmitMove plays a move on the server for playerID and relays it to the room.
func (m *Manager) SubmitMove(ctx context.Context, code, playerID, iccs string) (session.Outcome, error) {
	r, err := m.Get(ctx, code)
	if err != nil {
		return session.Outcome{}, err
	}
	side, ok := r.SideOf(playerID)
	if !ok {
		return session.Outcome{}, ErrNotParticipant
	}
	t, err := m.tableFor(r)
	if err != nil {
		return session.Outcome{}, err
	}
	t.mu.Lock()
	out, err := t.sess.PlayAs(side, iccs)
	t.mu.Unlock()
	if err != nil {
		return session.Outcome{}, err
	}
	env := Envelope{
		Type:   EnvMove,
		Code:   r.Code,
		From:   strings.TrimSpace(playerID),
		Ply:    out.Ply,
		Move:   out.Move.String(),
		FEN:    out.FEN,
		SentAt: time.Now(),
	}
	if err := m.send(ctx, r.Code, env); err != nil {
		obslog.L().Warn("relay_send_error", zap.String("code", r.Code), zap.Int("ply", out.Ply), zap.Error(err))
	}
	m.afterMove(ctx, r.Code, t, out)
	return out, nil
}

// Leave removes playerID from the game. Leaving an active game forfeits it.
func (m *Manager) Leave(ctx context.Context, code, playerID string) (*Room, error) {
	r, err := m.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	side, ok := r.SideOf(playerID)
	if !ok {
		return nil, ErrNotParticipant
	}
	switch r.Status {
	case StatusClosed:
		return r, nil
	case StatusWaiting:
		return m.Close(ctx, r.Code, ReasonLeave)
	}
	t, err := m.tableFor(r)
	if err != nil {
		return nil, err
	}
	if t.sess.IsOver() {
		return m.Close(ctx, r.Code, ReasonLeave)
	}
	winner := side.Opponent()
	obslog.L().Info("room_leave", zap.String("code", r.Code), zap.String("player_id", playerID), zap.String("winner", winner.String()))
	return m.finish(ctx, r.Code, t, &winner, "forfeit", ReasonLeave)
}

// Close ends the room without a result. Closing a closed room returns it unchanged.
func (m *Manager) Close(ctx context.Context, code, reason string) (*Room, error) {
	code = NormalizeCode(code)
	r, err := m.store.Close(ctx, code, reason)
	if err != nil {
		return nil, err
	}
	m.announceClosed(ctx, r)
	m.drop(code)
	return r, nil
}

func (m *Manager) announceClosed(ctx context.Context, r *Room) {
	obslog.L().Info("room_close", zap.String("code", r.Code), zap.String("reason", r.Reason), zap.String("winner", r.Winner))
	env := Envelope{Type: EnvClosed, Code: r.Code, Reason: r.Reason, SentAt: time.Now()}
	if err := m.send(ctx, r.Code, env); err != nil {
		obslog.L().Warn("relay_send_error", zap.String("code", r.Code), zap.String("type", string(EnvClosed)), zap.Error(err))
	}
}

// send outlives a cancelled caller context so close notices still go out.
func (m *Manager) send(ctx context.Context, code string, env Envelope) error {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.SendTimeout)
	defer cancel()
	return m.relay.Send(sctx, code, env)
}

// afterMove persists the move list and settles a decided game.
func (m *Manager) afterMove(ctx context.Context, code string, t *table, out session.Outcome) {
	moves := t.sess.Moves()
	_, err := m.store.Update(ctx, code, func(r *Room) error {
		if len(moves) > len(r.Moves) {
			r.Moves = moves
		}
		return nil
	})
	if err != nil {
		obslog.L().Warn("room_moves_persist_error", zap.String("code", code), zap.Int("ply", out.Ply), zap.Error(err))
	}
	winner, decided := out.Verdict.Winner()
	if !decided {
		return
	}
	method := "stalemate"
	if t.sess.Board().InCheck(winner.Opponent()) {
		method = "checkmate"
	}
	if _, err := m.finish(ctx, code, t, &winner, method, ReasonFinished); err != nil && !errors.Is(err, ErrRoomClosed) {
		obslog.L().Error("room_finish_error", zap.String("code", code), zap.Error(err))
	}
}

// finish closes the room with a winner and archives it. Only the first caller
// for a room gets past the status check, so a game is archived once.
func (m *Manager) finish(ctx context.Context, code string, t *table, winner *xiangqi.Side, method, reason string) (*Room, error) {
	moves := t.sess.Moves()
	r, err := m.store.Update(ctx, code, func(r *Room) error {
		if r.Status == StatusClosed {
			return ErrRoomClosed
		}
		r.Status = StatusClosed
		r.Reason = reason
		r.Moves = moves
		if winner != nil {
			r.Winner = r.PlayerOf(*winner).ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.archive(ctx, r, t, winner, method)
	m.announceClosed(ctx, r)
	m.drop(r.Code)
	return r, nil
}

func (m *Manager) archive(ctx context.Context, r *Room, t *table, winner *xiangqi.Side, method string) {
	if m.repo == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	res := &Result{
		GameID:    r.GameID,
		RoomCode:  r.Code,
		Red:       t.red,
		Blue:      t.blue,
		Method:    method,
		Moves:     r.Moves,
		StartedAt: t.started,
		EndedAt:   time.Now(),
	}
	if winner != nil {
		res.Winner = strings.ToLower(winner.String())
	}
	if err := m.repo.SaveResult(ctx, res); err != nil {
		obslog.L().Error("archive_persist_error", zap.String("game_id", r.GameID), zap.Error(err))
		return
	}
	obslog.L().Info("archive_persist", zap.String("game_id", r.GameID), zap.String("result", res.Winner), zap.String("method", method))
	dr, db, err := m.repo.ApplyResult(ctx, t.red, t.blue, winner)
	if err != nil {
		obslog.L().Error("rating_update_error", zap.String("game_id", r.GameID), zap.Error(err))
		return
	}
	obslog.L().Info("rating_update",
		zap.String("game_id", r.GameID),
		zap.String("red_id", t.red.ID), zap.Int("red_delta", dr),
		zap.String("blue_id", t.blue.ID), zap.Int("blue_delta", db),
	)
}
