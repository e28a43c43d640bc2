package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	HTTPAddr  string
	ServerURL string

	RedisURL    string
	DatabaseURL string

	RoomCodeLength int
	RoomTTL        time.Duration
	ClosedRoomTTL  time.Duration

	RelayBuffer      int
	RelaySendTimeout time.Duration

	MsgcatDir string

	DefaultElo int
	EloK       int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:         ":8080",
		ServerURL:        "http://127.0.0.1:8080",
		RoomCodeLength:   6,
		RoomTTL:          24 * time.Hour,
		ClosedRoomTTL:    10 * time.Minute,
		RelayBuffer:      64,
		RelaySendTimeout: 5 * time.Second,
		DefaultElo:       1200,
		EloK:             32,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("SERVER_URL")); v != "" {
		cfg.ServerURL = strings.TrimRight(v, "/")
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MsgcatDir = strings.TrimSpace(os.Getenv("MSGCAT_DIR"))

	ints := []struct {
		key string
		dst *int
		lo  int
	}{
		{"ROOM_CODE_LENGTH", &cfg.RoomCodeLength, 4},
		{"RELAY_BUFFER", &cfg.RelayBuffer, 1},
		{"DEFAULT_ELO", &cfg.DefaultElo, 100},
		{"ELO_K", &cfg.EloK, 1},
	}
	for _, it := range ints {
		if err := positiveInt(it.key, it.lo, it.dst); err != nil {
			return nil, err
		}
	}

	secs := []struct {
		key  string
		dst  *time.Duration
		unit time.Duration
	}{
		{"ROOM_TTL_SEC", &cfg.RoomTTL, time.Second},
		{"CLOSED_ROOM_TTL_SEC", &cfg.ClosedRoomTTL, time.Second},
		{"RELAY_SEND_TIMEOUT_MS", &cfg.RelaySendTimeout, time.Millisecond},
	}
	for _, it := range secs {
		var n int
		if err := positiveInt(it.key, 1, &n); err != nil {
			return nil, err
		}
		if n > 0 {
			*it.dst = time.Duration(n) * it.unit
		}
	}

	if cfg.RoomCodeLength > 16 {
		return nil, fmt.Errorf("ROOM_CODE_LENGTH must be at most 16, got %d", cfg.RoomCodeLength)
	}
	if !strings.HasPrefix(cfg.ServerURL, "http://") && !strings.HasPrefix(cfg.ServerURL, "https://") {
		return nil, fmt.Errorf("SERVER_URL must be an http(s) URL, got %q", cfg.ServerURL)
	}
	return cfg, nil
}

// positiveInt overwrites *dst with the variable's value when it is set. Unset leaves *dst alone.
func positiveInt(key string, lo int, dst *int) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if n < lo {
		return fmt.Errorf("%s must be >= %d, got %d", key, lo, n)
	}
	*dst = n
	return nil
}
