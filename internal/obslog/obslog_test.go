package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitFromEnvWritesFile(t *testing.T) {
	prev := L()
	defer Set(prev)

	path := filepath.Join(t.TempDir(), "nested", "xiangqi.log")
	t.Setenv("LOG_TO_CONSOLE", "false")
	t.Setenv("LOG_TO_FILE", "true")
	t.Setenv("LOG_FILE", path)
	t.Setenv("LOG_FORMAT", "json")
	if err := InitFromEnv(); err != nil {
		t.Fatalf("InitFromEnv: %v", err)
	}
	L().Info("room_create", zap.String("code", "ABC123"))
	Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), `"msg":"room_create"`) || !strings.Contains(string(raw), `"code":"ABC123"`) {
		t.Fatalf("unexpected log contents: %s", raw)
	}
}

func TestSetObserver(t *testing.T) {
	prev := L()
	defer Set(prev)

	core, logs := observer.New(zapcore.InfoLevel)
	Set(zap.New(core))
	L().Debug("hidden")
	L().Info("relay_apply", zap.Int("ply", 3))
	if logs.Len() != 1 || logs.All()[0].Message != "relay_apply" {
		t.Fatalf("unexpected entries: %+v", logs.All())
	}
	Set(nil)
	L().Info("dropped")
}

func TestParseLevel(t *testing.T) {
	if parseLevel("WARNING") != zapcore.WarnLevel || parseLevel("bogus") != zapcore.InfoLevel {
		t.Fatalf("parseLevel mismatch")
	}
}
