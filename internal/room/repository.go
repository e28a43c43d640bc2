package room

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-xiangqi/internal/xiangqi"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Result is a finished game as archived.
type Result struct {
	GameID    string
	RoomCode  string
	Red       Identity
	Blue      Identity
	Winner    string // "red", "blue" or "" for an undecided game
	Method    string // checkmate, stalemate, forfeit
	Moves     []string
	StartedAt time.Time
	EndedAt   time.Time
}

// Profile is a player's rating card.
type Profile struct {
	PlayerID    string    `json:"player_id"`
	Name        string    `json:"name"`
	Rating      int       `json:"rating"`
	GamesPlayed int       `json:"games_played"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	Draws       int       `json:"draws"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type RatingOptions struct {
	DefaultElo int
	K          int
}

// Repository archives finished games and keeps ratings, on Postgres or SQLite.
type Repository struct {
	db     *sql.DB
	driver string
	rating RatingOptions
}

// OpenRepository picks the driver from dsn: postgres:// and postgresql:// use
// lib/pq; "sqlite:<path>", a bare path or ":memory:" use SQLite.
func OpenRepository(dsn string, rating RatingOptions) (*Repository, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if rating.DefaultElo <= 0 {
		rating.DefaultElo = DefaultElo
	}
	if rating.K <= 0 {
		rating.K = DefaultK
	}

	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "postgres"
	} else {
		dsn = strings.TrimPrefix(dsn, "sqlite:")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if driver == "postgres" {
		db.SetMaxOpenConns(16)
		db.SetMaxIdleConns(8)
		db.SetConnMaxLifetime(30 * time.Minute)
	} else {
		// a :memory: database lives on one connection; files serialize writers anyway
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	r := &Repository{db: db, driver: driver, rating: rating}
	if driver == "sqlite" && dsn != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL: %w", err)
		}
	}
	if err := r.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS xiangqi_games (
			game_id       TEXT PRIMARY KEY,
			room_code     TEXT NOT NULL,
			red_id        TEXT NOT NULL,
			red_name      TEXT NOT NULL,
			blue_id       TEXT NOT NULL,
			blue_name     TEXT NOT NULL,
			result        TEXT NOT NULL,
			result_method TEXT NOT NULL,
			moves         TEXT NOT NULL,
			started_at    TIMESTAMP NOT NULL,
			ended_at      TIMESTAMP NOT NULL,
			duration_ms   BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS xiangqi_profiles (
			player_id    TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			rating       INTEGER NOT NULL,
			games_played INTEGER NOT NULL,
			wins         INTEGER NOT NULL,
			losses       INTEGER NOT NULL,
			draws        INTEGER NOT NULL,
			updated_at   TIMESTAMP NOT NULL
		)`,
	}
	for _, q := range stmts {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (r *Repository) rebind(q string) string {
	if r.driver != "postgres" {
		return q
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// SaveResult upserts a finished game.
func (r *Repository) SaveResult(ctx context.Context, res *Result) error {
	if r == nil || r.db == nil || res == nil {
		return nil
	}
	moves, err := json.Marshal(res.Moves)
	if err != nil {
		return fmt.Errorf("marshal moves: %w", err)
	}
	duration := res.EndedAt.Sub(res.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}
	result := strings.ToLower(strings.TrimSpace(res.Winner))
	if result == "" {
		result = "none"
	}

	q := r.rebind(`INSERT INTO xiangqi_games (
		game_id, room_code, red_id, red_name, blue_id, blue_name,
		result, result_method, moves, started_at, ended_at, duration_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (game_id) DO UPDATE SET
		room_code = excluded.room_code,
		red_id = excluded.red_id,
		red_name = excluded.red_name,
		blue_id = excluded.blue_id,
		blue_name = excluded.blue_name,
		result = excluded.result,
		result_method = excluded.result_method,
		moves = excluded.moves,
		started_at = excluded.started_at,
		ended_at = excluded.ended_at,
		duration_ms = excluded.duration_ms`)
	_, err = r.db.ExecContext(ctx, q,
		res.GameID, res.RoomCode,
		res.Red.ID, res.Red.Name,
		res.Blue.ID, res.Blue.Name,
		result, strings.TrimSpace(res.Method), string(moves),
		res.StartedAt.UTC(), res.EndedAt.UTC(), duration,
	)
	if err != nil {
		return fmt.Errorf("upsert game %s: %w", res.GameID, err)
	}
	return nil
}

// GameMoves returns the archived ICCS moves and result of a game.
func (r *Repository) GameMoves(ctx context.Context, gameID string) ([]string, string, error) {
	var raw, result string
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT moves, result FROM xiangqi_games WHERE game_id = ?`), gameID).Scan(&raw, &result)
	if err != nil {
		return nil, "", err
	}
	var moves []string
	if err := json.Unmarshal([]byte(raw), &moves); err != nil {
		return nil, "", fmt.Errorf("decode moves: %w", err)
	}
	return moves, result, nil
}

// ArchivedGame is a stored game replayed to its final position.
type ArchivedGame struct {
	GameID string
	Result string
	Moves  []string
	FEN    string
}

// Game loads an archived game and replays it from the opening.
func (r *Repository) Game(ctx context.Context, gameID string) (*ArchivedGame, error) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return nil, ErrInvalidArgs
	}
	moves, result, err := r.GameMoves(ctx, gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	if err != nil {
		return nil, err
	}
	b, side, _, err := xiangqi.Replay(moves)
	if err != nil {
		return nil, fmt.Errorf("replay game %s: %w", gameID, err)
	}
	return &ArchivedGame{GameID: gameID, Result: result, Moves: moves, FEN: b.FEN(side)}, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repository) loadProfile(ctx context.Context, q queryer, id string) (*Profile, error) {
	var p Profile
	err := q.QueryRowContext(ctx, r.rebind(`SELECT player_id, name, rating, games_played, wins, losses, draws, updated_at
		FROM xiangqi_profiles WHERE player_id = ?`), id).Scan(
		&p.PlayerID, &p.Name, &p.Rating, &p.GamesPlayed, &p.Wins, &p.Losses, &p.Draws, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	return &p, nil
}

// Profile returns the stored profile, or a fresh one at the default rating.
func (r *Repository) Profile(ctx context.Context, id string) (*Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidArgs
	}
	p, err := r.loadProfile(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &Profile{PlayerID: id, Name: id, Rating: r.rating.DefaultElo}
	}
	return p, nil
}

// ApplyResult updates both players' ratings and tallies in one transaction and
// returns the rating changes. winner is nil for a draw.
func (r *Repository) ApplyResult(ctx context.Context, red, blue Identity, winner *xiangqi.Side) (redDelta, blueDelta int, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	rp, err := r.loadOrNew(ctx, tx, red)
	if err != nil {
		return 0, 0, err
	}
	bp, err := r.loadOrNew(ctx, tx, blue)
	if err != nil {
		return 0, 0, err
	}

	score := 0.5
	switch {
	case winner == nil:
		rp.Draws++
		bp.Draws++
	case *winner == xiangqi.Red:
		score = 1
		rp.Wins++
		bp.Losses++
	default:
		score = 0
		rp.Losses++
		bp.Wins++
	}
	nr, nb := EloUpdate(rp.Rating, bp.Rating, score, r.rating.K)
	redDelta, blueDelta = nr-rp.Rating, nb-bp.Rating
	rp.Rating, bp.Rating = nr, nb

	for _, p := range []*Profile{rp, bp} {
		p.GamesPlayed++
		p.UpdatedAt = now
		if err = r.upsertProfile(ctx, tx, p); err != nil {
			return 0, 0, err
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, 0, err
	}
	return redDelta, blueDelta, nil
}

func (r *Repository) loadOrNew(ctx context.Context, tx *sql.Tx, id Identity) (*Profile, error) {
	p, err := r.loadProfile(ctx, tx, id.ID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &Profile{PlayerID: id.ID, Rating: r.rating.DefaultElo}
	}
	if id.Name != "" {
		p.Name = id.Name
	}
	if p.Name == "" {
		p.Name = id.ID
	}
	return p, nil
}

func (r *Repository) upsertProfile(ctx context.Context, tx *sql.Tx, p *Profile) error {
	q := r.rebind(`INSERT INTO xiangqi_profiles (
		player_id, name, rating, games_played, wins, losses, draws, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (player_id) DO UPDATE SET
		name = excluded.name,
		rating = excluded.rating,
		games_played = excluded.games_played,
		wins = excluded.wins,
		losses = excluded.losses,
		draws = excluded.draws,
		updated_at = excluded.updated_at`)
	_, err := tx.ExecContext(ctx, q, p.PlayerID, p.Name, p.Rating, p.GamesPlayed, p.Wins, p.Losses, p.Draws, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", p.PlayerID, err)
	}
	return nil
}
