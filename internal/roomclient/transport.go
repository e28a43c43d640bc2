package roomclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-xiangqi/internal/obslog"
	"github.com/park285/cheese-xiangqi/internal/room"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// WSTransport is a room.Transport over the server's relay websocket. It keeps
// one connection per room for the player it was created for.
type WSTransport struct {
	wsBase string
	player string
	seats  SeatBook

	dialTimeout  time.Duration
	pingInterval time.Duration

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

// SeatBook looks up the seat token issued to a player in a room. *Client is one.
type SeatBook interface {
	Seat(code, playerID string) string
}

type TransportOption func(*WSTransport)

// WithSeats sets where the transport finds its seat token for each room.
func WithSeats(b SeatBook) TransportOption {
	return func(t *WSTransport) { t.seats = b }
}

// NewWSTransport derives the websocket endpoint from the server's HTTP base URL.
func NewWSTransport(baseURL, playerID string, opts ...TransportOption) (*WSTransport, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	t := &WSTransport{
		wsBase:       u.String(),
		player:       strings.TrimSpace(playerID),
		dialTimeout:  10 * time.Second,
		pingInterval: 30 * time.Second,
		conns:        make(map[string]*websocket.Conn),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *WSTransport) endpoint(code string) string {
	q := url.Values{"player": {t.player}}
	if t.seats != nil {
		q.Set("seat", t.seats.Seat(code, t.player))
	}
	return t.wsBase + "/api/rooms/" + url.PathEscape(code) + "/ws?" + q.Encode()
}

func (t *WSTransport) dial(ctx context.Context, code string) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, t.dialTimeout)
	defer cancel()
	conn, resp, err := websocket.Dial(dctx, t.endpoint(code), &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			var body []byte
			if resp.Body != nil {
				body, _ = io.ReadAll(resp.Body)
			}
			return nil, fmt.Errorf("dial relay %s: %w", code, decodeError(resp.StatusCode, body))
		}
		return nil, fmt.Errorf("dial relay %s: %w", code, err)
	}
	return conn, nil
}

// Receive opens the room's socket. The server subscribes before it completes
// the handshake, so nothing sent after Receive returns is missed.
func (t *WSTransport) Receive(ctx context.Context, code string) (<-chan room.Envelope, error) {
	code = room.NormalizeCode(code)
	conn, err := t.dial(ctx, code)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	if old, ok := t.conns[code]; ok {
		_ = old.Close(websocket.StatusGoingAway, "replaced")
	}
	t.conns[code] = conn
	t.mu.Unlock()

	out := make(chan room.Envelope)
	go t.pingLoop(ctx, code, conn)
	go func() {
		defer close(out)
		defer t.forget(code, conn)
		for {
			var env room.Envelope
			if err := wsjson.Read(ctx, conn, &env); err != nil {
				if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					obslog.L().Warn("ws_relay_read_error", zap.String("code", code), zap.String("player_id", t.player), zap.Error(err))
				}
				return
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Send writes env on the room's socket, dialing a send-only one if Receive
// was never called for the room.
func (t *WSTransport) Send(ctx context.Context, code string, env room.Envelope) error {
	code = room.NormalizeCode(code)
	t.mu.Lock()
	conn, ok := t.conns[code]
	t.mu.Unlock()
	if !ok {
		c, err := t.dial(ctx, code)
		if err != nil {
			return err
		}
		c.CloseRead(context.Background())
		t.mu.Lock()
		if existing, ok := t.conns[code]; ok {
			t.mu.Unlock()
			_ = c.Close(websocket.StatusNormalClosure, "")
			c = existing
		} else {
			t.conns[code] = c
			t.mu.Unlock()
		}
		conn = c
	}
	if env.From == "" {
		env.From = t.player
	}
	env.Code = code
	if err := wsjson.Write(ctx, conn, env); err != nil {
		return fmt.Errorf("relay write %s: %w", code, err)
	}
	return nil
}

func (t *WSTransport) forget(code string, conn *websocket.Conn) {
	t.mu.Lock()
	if t.conns[code] == conn {
		delete(t.conns, code)
	}
	t.mu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (t *WSTransport) pingLoop(ctx context.Context, code string, conn *websocket.Conn) {
	tk := time.NewTicker(t.pingInterval)
	defer tk.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			if errors.Is(err, context.Canceled) {
				return
			}
			failures++
			if failures >= 2 {
				obslog.L().Warn("ws_relay_ping_failed", zap.String("code", code), zap.String("player_id", t.player), zap.Error(err))
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

// Close drops every open socket.
func (t *WSTransport) Close() {
	t.mu.Lock()
	conns := t.conns
	t.conns = make(map[string]*websocket.Conn)
	t.mu.Unlock()
	for _, c := range conns {
		_ = c.Close(websocket.StatusNormalClosure, "")
	}
}

var _ room.Transport = (*WSTransport)(nil)
