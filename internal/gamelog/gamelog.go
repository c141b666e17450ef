// Package gamelog creates the per-match log sink: one append-only file per
// game holding the raw event trace and a human-readable line per new ply.
package gamelog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Filename derives a stable per-game log name from the session start time,
// the opponent and the game id, e.g. game_20260115T093000Z_maia1_abcd1234.log.
func Filename(gameID, opponent string, start time.Time) string {
	ts := start.UTC().Format("20060102T150405Z")
	opp := strings.TrimSpace(opponent)
	if opp == "" {
		opp = "unknown"
	}
	opp = strings.NewReplacer("/", "_", " ", "_").Replace(opp)
	return fmt.Sprintf("game_%s_%s_%s.log", ts, opp, gameID)
}

// Open creates the game log file under dir and returns a logger bound to it
// together with a closer that flushes and closes the file.
func Open(dir, gameID, opponent string, start time.Time) (*zap.Logger, func() error, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create game log dir: %w", err)
	}
	path := filepath.Join(dir, Filename(gameID, opponent, start))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open game log: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.ConsoleSeparator = " | "
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(f), zapcore.InfoLevel)

	logger := zap.New(core).With(zap.String("game_id", gameID))
	closer := func() error {
		_ = logger.Sync()
		return f.Close()
	}
	return logger, closer, nil
}
