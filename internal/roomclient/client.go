// Package roomclient talks to a remote xiangqi server: REST calls for the
// lobby and a websocket Transport so a room.Peer can run against it.
package roomclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-xiangqi/internal/room"
	"github.com/park285/cheese-xiangqi/pkg/xiangqidto"
	"github.com/valyala/fasthttp"
)

type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int

	mu    sync.Mutex
	seats map[string]string
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
		seats:          make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// Seat returns the seat token the server issued to playerID in room code
// through this client, or "" when there is none.
func (c *Client) Seat(code, playerID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seats[seatKey(code, playerID)]
}

func (c *Client) remember(code, playerID, seat string) {
	if seat == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seats[seatKey(code, playerID)] = seat
}

func seatKey(code, playerID string) string {
	return room.NormalizeCode(code) + "/" + strings.TrimSpace(playerID)
}

func (c *Client) CreateRoom(ctx context.Context, host room.Identity) (*room.Room, error) {
	var out xiangqidto.Room
	req := xiangqidto.PlayerRequest{PlayerID: host.ID, Name: host.Name}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/rooms", req, &out, false); err != nil {
		return nil, err
	}
	r := FromDTO(out)
	r.HostSeat = out.SeatToken
	c.remember(r.Code, r.HostID, out.SeatToken)
	return r, nil
}

// JoinRoom is retried: joining again as the same guest is harmless once the
// first join's seat token has been recorded.
func (c *Client) JoinRoom(ctx context.Context, code string, guest room.Identity) (*room.Room, error) {
	var out xiangqidto.Room
	req := xiangqidto.PlayerRequest{PlayerID: guest.ID, Name: guest.Name, SeatToken: c.Seat(code, guest.ID)}
	if err := c.doJSON(ctx, fasthttp.MethodPost, roomPath(code, "/join"), req, &out, true); err != nil {
		return nil, err
	}
	r := FromDTO(out)
	r.GuestSeat = out.SeatToken
	c.remember(r.Code, r.GuestID, out.SeatToken)
	return r, nil
}

func (c *Client) GetRoom(ctx context.Context, code string) (*room.Room, error) {
	var out xiangqidto.Room
	if err := c.doJSON(ctx, fasthttp.MethodGet, roomPath(code, ""), nil, &out, true); err != nil {
		return nil, err
	}
	return FromDTO(out), nil
}

func (c *Client) ListRooms(ctx context.Context) ([]*room.Room, error) {
	var out xiangqidto.RoomList
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/rooms", nil, &out, true); err != nil {
		return nil, err
	}
	rooms := make([]*room.Room, 0, len(out.Rooms))
	for _, r := range out.Rooms {
		rooms = append(rooms, FromDTO(r))
	}
	return rooms, nil
}

func (c *Client) Leave(ctx context.Context, code, playerID string) (*room.Room, error) {
	var out xiangqidto.Room
	req := xiangqidto.PlayerRequest{PlayerID: playerID, SeatToken: c.Seat(code, playerID)}
	if err := c.doJSON(ctx, fasthttp.MethodPost, roomPath(code, "/leave"), req, &out, true); err != nil {
		return nil, err
	}
	return FromDTO(out), nil
}

func (c *Client) SubmitMove(ctx context.Context, code, playerID, move string) (*xiangqidto.MoveResponse, error) {
	var out xiangqidto.MoveResponse
	req := xiangqidto.MoveRequest{PlayerID: playerID, SeatToken: c.Seat(code, playerID), Move: move}
	if err := c.doJSON(ctx, fasthttp.MethodPost, roomPath(code, "/moves"), req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) State(ctx context.Context, code string) (*xiangqidto.State, error) {
	var out xiangqidto.State
	if err := c.doJSON(ctx, fasthttp.MethodGet, roomPath(code, "/state"), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Profile(ctx context.Context, playerID string) (*xiangqidto.Profile, error) {
	var out xiangqidto.Profile
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/profiles/"+url.PathEscape(playerID), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Game(ctx context.Context, gameID string) (*xiangqidto.Game, error) {
	var out xiangqidto.Game
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/games/"+url.PathEscape(gameID), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func roomPath(code, suffix string) string {
	return "/api/rooms/" + url.PathEscape(room.NormalizeCode(code)) + suffix
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			lastErr = decodeError(status, resp.Body())
			if attempt == attempts || !shouldRetryStatus(status) {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// FromDTO converts a wire room to the domain type.
func FromDTO(d xiangqidto.Room) *room.Room {
	return &room.Room{
		Code:      d.Code,
		Status:    room.Status(d.Status),
		HostID:    d.HostID,
		HostName:  d.HostName,
		GuestID:   d.GuestID,
		GuestName: d.GuestName,
		GameID:    d.GameID,
		Moves:     d.Moves,
		Winner:    d.Winner,
		Reason:    d.Reason,
		CreatedAt: d.CreatedAt,
		StartedAt: d.StartedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
