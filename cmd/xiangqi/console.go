package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-xiangqi/internal/config"
	"github.com/park285/cheese-xiangqi/internal/msgcat"
	"github.com/park285/cheese-xiangqi/internal/obslog"
	"github.com/park285/cheese-xiangqi/internal/panel"
	"github.com/park285/cheese-xiangqi/internal/room"
	"github.com/park285/cheese-xiangqi/internal/roomclient"
	"github.com/park285/cheese-xiangqi/internal/session"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const helpText = `Moves use ICCS coordinates, e.g. h2e2 (files a-i, ranks 0-9, Red at the bottom).
Commands: undo, reset, help, quit`

type consoleEnv struct {
	cfg    *config.AppConfig
	cat    *msgcat.Catalog
	server string
}

// loadConsoleEnv reads config for the interactive commands. Logging stays off
// unless --log is given so it does not interleave with the board.
func loadConsoleEnv(c *cli.Command) (*consoleEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if c.Bool("log") {
		if err := obslog.InitFromEnv(); err != nil {
			return nil, fmt.Errorf("logger init: %w", err)
		}
	}
	cat, err := msgcat.New(cfg.MsgcatDir)
	if err != nil {
		return nil, fmt.Errorf("message catalog: %w", err)
	}
	server := strings.TrimRight(strings.TrimSpace(c.String("server")), "/")
	if server == "" {
		server = cfg.ServerURL
	}
	return &consoleEnv{cfg: cfg, cat: cat, server: server}, nil
}

func render(out io.Writer, game *session.Session, p *panel.Panel) {
	fmt.Fprintln(out)
	fmt.Fprint(out, game.Board().String())
	for _, line := range p.Status() {
		fmt.Fprintln(out, line)
	}
}

// runLocal is a hot-seat game: both sides type moves in turn.
func runLocal(ctx context.Context, in io.Reader, out io.Writer, cat *msgcat.Catalog, name string) error {
	if strings.TrimSpace(name) == "" {
		name = "player"
	}
	sess := session.New()
	p := panel.New(sess, nil, panel.UserInfo{ID: "local", Username: name, Elo: room.DefaultElo}, cat)

	fmt.Fprintln(out, helpText)
	render(out, sess, p)
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		var res panel.Result
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			return nil
		case "help":
			fmt.Fprintln(out, helpText)
			continue
		case "undo":
			res, _ = p.Run(ctx, panel.CmdUndo, "")
		case "reset":
			res, _ = p.Run(ctx, panel.CmdReset, "")
		default:
			res, _ = p.Play(line)
		}
		fmt.Fprintln(out, res.Text)
		render(out, sess, p)
	}
	return sc.Err()
}

type onlineOpts struct {
	server string
	id     string
	name   string
	code   string // empty hosts a new room
	poll   time.Duration
	peer   room.PeerOptions
}

func online(ctx context.Context, c *cli.Command, code string) error {
	env, err := loadConsoleEnv(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	opts := onlineOpts{
		server: env.server,
		id:     strings.TrimSpace(c.String("id")),
		name:   strings.TrimSpace(c.String("name")),
		code:   code,
		poll:   time.Second,
		peer:   room.PeerOptions{SendTimeout: env.cfg.RelaySendTimeout, Buffer: env.cfg.RelayBuffer},
	}
	return runOnline(ctx, os.Stdin, os.Stdout, env.cat, opts)
}

// runOnline hosts or joins a room on a server and plays it through a relay peer.
func runOnline(ctx context.Context, in io.Reader, out io.Writer, cat *msgcat.Catalog, opts onlineOpts) error {
	if opts.id == "" {
		opts.id = uuid.NewString()
	}
	if opts.name == "" {
		opts.name = opts.id
	}
	if opts.poll <= 0 {
		opts.poll = time.Second
	}
	client := roomclient.NewClient(opts.server)
	user := panel.UserInfo{ID: opts.id, Username: opts.name, Elo: room.DefaultElo}
	if prof, err := client.Profile(ctx, opts.id); err == nil {
		user.Elo = prof.Rating
	}
	p := panel.New(nil, client, user, cat)

	var (
		res panel.Result
		err error
	)
	if opts.code == "" {
		res, err = p.Run(ctx, panel.CmdNewRoom, "")
	} else {
		res, err = p.Run(ctx, panel.CmdJoinRoom, opts.code)
	}
	fmt.Fprintln(out, res.Text)
	if err != nil {
		return err
	}

	r := res.Room
	if r.Status == room.StatusWaiting {
		if r, err = waitForGuest(ctx, client, r.Code, opts.poll); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s joined\n", displayName(r.Guest()))
	}

	tr, err := roomclient.NewWSTransport(opts.server, opts.id, roomclient.WithSeats(client))
	if err != nil {
		return err
	}
	defer tr.Close()
	peer, err := room.NewPeer(ctx, tr, r, room.Identity{ID: opts.id, Name: opts.name}, opts.peer)
	if err != nil {
		fmt.Fprintln(out, p.ErrorText(err, r.Code))
		return err
	}
	defer peer.Close()
	p.Attach(peer.Session(), peer)
	fmt.Fprintf(out, "You play %s\n", peer.Side())

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-peer.Done():
				return
			}
		}
	}()

	leave := func() error {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := peer.Leave(lctx); err != nil {
			obslog.L().Warn("console_leave_error", zap.String("code", r.Code), zap.Error(err))
		}
		fmt.Fprintln(out, "Left the room")
		return nil
	}

	render(out, peer.Session(), p)
	for {
		select {
		case <-ctx.Done():
			return leave()
		case ev := <-peer.Events():
			if stop, err := peerEvent(out, p, peer.Session(), r.Code, ev); stop {
				return err
			}
		case <-peer.Done():
			if stop, err := drainEvents(out, p, peer.Session(), r.Code, peer.Events()); stop {
				return err
			}
			return closed(out, p, r.Code, peer.Err())
		case line, ok := <-lines:
			if !ok {
				return leave()
			}
			var res panel.Result
			switch strings.ToLower(line) {
			case "":
				continue
			case "quit", "exit":
				return leave()
			case "help":
				fmt.Fprintln(out, helpText)
				continue
			case "undo":
				res, _ = p.Run(ctx, panel.CmdUndo, "")
			case "reset":
				res, _ = p.Run(ctx, panel.CmdReset, "")
			default:
				res, _ = p.Play(line)
			}
			fmt.Fprintln(out, res.Text)
			render(out, peer.Session(), p)
		}
	}
}

// peerEvent shows one peer event. stop is set once the room is gone.
func peerEvent(out io.Writer, p *panel.Panel, game *session.Session, code string, ev room.Event) (stop bool, err error) {
	switch ev.Kind {
	case room.EventOpponentMove:
		fmt.Fprintf(out, "%s played %s\n", ev.Outcome.Side, ev.Outcome.Move)
		render(out, game, p)
	case room.EventClosed:
		return true, closed(out, p, code, ev.Err)
	}
	return false, nil
}

// drainEvents shows whatever the peer queued before it stopped.
func drainEvents(out io.Writer, p *panel.Panel, game *session.Session, code string, events <-chan room.Event) (stop bool, err error) {
	for {
		select {
		case ev := <-events:
			if stop, err := peerEvent(out, p, game, code, ev); stop {
				return true, err
			}
		default:
			return false, nil
		}
	}
}

func closed(out io.Writer, p *panel.Panel, code string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	fmt.Fprintln(out, p.ErrorText(err, code))
	if room.IsDesync(err) {
		return err
	}
	return nil
}

func waitForGuest(ctx context.Context, client *roomclient.Client, code string, every time.Duration) (*room.Room, error) {
	tk := time.NewTicker(every)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tk.C:
			r, err := client.GetRoom(ctx, code)
			if err != nil {
				return nil, err
			}
			switch r.Status {
			case room.StatusActive:
				return r, nil
			case room.StatusClosed:
				return nil, fmt.Errorf("%w: %s", room.ErrRoomClosed, r.Reason)
			}
		}
	}
}

func displayName(id room.Identity) string {
	if id.Name != "" {
		return id.Name
	}
	return id.ID
}

func listRooms(ctx context.Context, out io.Writer, server string) error {
	rooms, err := roomclient.NewClient(server).ListRooms(ctx)
	if err != nil {
		return err
	}
	if len(rooms) == 0 {
		fmt.Fprintln(out, "No rooms are waiting")
		return nil
	}
	for _, r := range rooms {
		fmt.Fprintf(out, "%s  %-16s  %s\n", r.Code, displayName(r.Host()), r.CreatedAt.Local().Format(time.Kitchen))
	}
	return nil
}
