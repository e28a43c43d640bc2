package room

import (
	"context"
	"crypto/rand"
	"sort"
	"sync"
	"time"
)

// Store persists room metadata. Update is an atomic read-modify-write: fn sees
// the current room and its changes are saved only if fn returns nil.
type Store interface {
	Claim(ctx context.Context, r *Room) (bool, error)
	Load(ctx context.Context, code string) (*Room, error)
	Update(ctx context.Context, code string, fn func(*Room) error) (*Room, error)
	Close(ctx context.Context, code, reason string) (*Room, error)
	ListWaiting(ctx context.Context) ([]*Room, error)
}

// StoreOptions sets key lifetimes. Closed rooms linger for ClosedTTL so late
// readers see why the room ended.
type StoreOptions struct {
	TTL       time.Duration
	ClosedTTL time.Duration
}

func (o StoreOptions) withDefaults() StoreOptions {
	if o.TTL <= 0 {
		o.TTL = 24 * time.Hour
	}
	if o.ClosedTTL <= 0 {
		o.ClosedTTL = 10 * time.Minute
	}
	return o
}

func (o StoreOptions) ttlFor(r *Room) time.Duration {
	if r.Status == StatusClosed {
		return o.ClosedTTL
	}
	return o.TTL
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// codeGen returns n characters from an alphabet without 0/O and 1/I.
func codeGen(n int) (string, error) {
	if n <= 0 {
		n = 6
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}

// closeFn marks a room closed, keeping the first reason if it already was.
func closeFn(reason string) func(*Room) error {
	return func(r *Room) error {
		if r.Status == StatusClosed {
			return nil
		}
		r.Status = StatusClosed
		r.Reason = reason
		return nil
	}
}

func sortByCreated(rooms []*Room) {
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.Before(rooms[j].CreatedAt) })
}

type memEntry struct {
	room    *Room
	expires time.Time
}

// MemoryStore keeps rooms in process. It backs single-instance servers and tests.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string]memEntry
	opts  StoreOptions
	now   func() time.Time
}

func NewMemoryStore(opts StoreOptions) *MemoryStore {
	return &MemoryStore{rooms: make(map[string]memEntry), opts: opts.withDefaults(), now: time.Now}
}

// get returns the live entry for code, dropping it if expired. Caller holds mu.
func (s *MemoryStore) get(code string) (*Room, bool) {
	e, ok := s.rooms[code]
	if !ok {
		return nil, false
	}
	if !s.now().Before(e.expires) {
		delete(s.rooms, code)
		return nil, false
	}
	return e.room, true
}

func (s *MemoryStore) put(r *Room) {
	s.rooms[r.Code] = memEntry{room: r.Clone(), expires: s.now().Add(s.opts.ttlFor(r))}
}

func (s *MemoryStore) Claim(_ context.Context, r *Room) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.get(r.Code); ok {
		return false, nil
	}
	s.put(r)
	return true, nil
}

func (s *MemoryStore) Load(_ context.Context, code string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.get(NormalizeCode(code))
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, code string, fn func(*Room) error) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.get(NormalizeCode(code))
	if !ok {
		return nil, ErrRoomNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now()
	s.put(next)
	return next.Clone(), nil
}

func (s *MemoryStore) Close(ctx context.Context, code, reason string) (*Room, error) {
	return s.Update(ctx, code, closeFn(reason))
}

func (s *MemoryStore) ListWaiting(_ context.Context) ([]*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Room
	for code := range s.rooms {
		r, ok := s.get(code)
		if ok && r.Status == StatusWaiting {
			out = append(out, r.Clone())
		}
	}
	sortByCreated(out)
	return out, nil
}
