package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Token       string
	BotUsername string
	BaseURL     string

	AcceptSpeeds   []string
	AcceptVariants []string
	IdleSeconds    int
	IdleCandidates []string
	BotDailyLimit  int

	StockfishPath string
	EngineDepth   int
	MaxHashMB     int

	StatsFile  string
	GameLogDir string
}

// fileConfig mirrors the optional YAML config file pointed to by
// BOT_CONFIG_FILE. Zero values mean "not set"; env vars take precedence.
type fileConfig struct {
	Token          string `yaml:"token"`
	Username       string `yaml:"username"`
	BaseURL        string `yaml:"base_url"`
	AcceptSpeeds   string `yaml:"accept_speeds"`
	AcceptVariants string `yaml:"accept_variants"`
	IdleSeconds    int    `yaml:"idle_seconds"`
	IdleCandidates string `yaml:"idle_candidates"`
	BotDailyLimit  int    `yaml:"bot_daily_limit"`
	StockfishPath  string `yaml:"stockfish_path"`
	EngineDepth    int    `yaml:"engine_depth"`
	MaxHashMB      int    `yaml:"max_hash_mb"`
	StatsFile      string `yaml:"stats_file"`
	GameLogDir     string `yaml:"game_log_dir"`
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		BaseURL:        "https://lichess.org",
		AcceptSpeeds:   []string{"rapid", "blitz", "classical"},
		AcceptVariants: []string{"standard"},
		IdleSeconds:    60,
		BotDailyLimit:  100,
		EngineDepth:    15,
		MaxHashMB:      256,
		StatsFile:      "stats.json",
		GameLogDir:     "games",
	}

	if path := strings.TrimSpace(os.Getenv("BOT_CONFIG_FILE")); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("LICHESS_TOKEN")); v != "" {
		cfg.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("BOT_USERNAME")); v != "" {
		cfg.BotUsername = v
	}
	if v := strings.TrimSpace(os.Getenv("LICHESS_BASE_URL")); v != "" {
		cfg.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ACCEPT_SPEEDS")); v != "" {
		cfg.AcceptSpeeds = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("ACCEPT_VARIANTS")); v != "" {
		cfg.AcceptVariants = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("IDLE_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.IdleSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("IDLE_CANDIDATES")); v != "" {
		cfg.IdleCandidates = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("BOT_DAILY_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.BotDailyLimit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("STOCKFISH_PATH")); v != "" {
		cfg.StockfishPath = v
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_DEPTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EngineDepth = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_HASH_MB")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxHashMB = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("STATS_FILE")); v != "" {
		cfg.StatsFile = v
	}
	if v := strings.TrimSpace(os.Getenv("GAME_LOG_DIR")); v != "" {
		cfg.GameLogDir = v
	}

	if cfg.Token == "" {
		return nil, errors.New("LICHESS_TOKEN is required")
	}
	if cfg.BotUsername == "" {
		return nil, errors.New("BOT_USERNAME is required")
	}
	if cfg.StockfishPath == "" {
		return nil, errors.New("STOCKFISH_PATH is required")
	}

	return cfg, nil
}

func applyFile(cfg *AppConfig, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if fc.Token != "" {
		cfg.Token = strings.TrimSpace(fc.Token)
	}
	if fc.Username != "" {
		cfg.BotUsername = strings.TrimSpace(fc.Username)
	}
	if fc.BaseURL != "" {
		cfg.BaseURL = strings.TrimSpace(fc.BaseURL)
	}
	if fc.AcceptSpeeds != "" {
		cfg.AcceptSpeeds = splitList(fc.AcceptSpeeds)
	}
	if fc.AcceptVariants != "" {
		cfg.AcceptVariants = splitList(fc.AcceptVariants)
	}
	if fc.IdleSeconds > 0 {
		cfg.IdleSeconds = fc.IdleSeconds
	}
	if fc.IdleCandidates != "" {
		cfg.IdleCandidates = splitList(fc.IdleCandidates)
	}
	if fc.BotDailyLimit > 0 {
		cfg.BotDailyLimit = fc.BotDailyLimit
	}
	if fc.StockfishPath != "" {
		cfg.StockfishPath = strings.TrimSpace(fc.StockfishPath)
	}
	if fc.EngineDepth > 0 {
		cfg.EngineDepth = fc.EngineDepth
	}
	if fc.MaxHashMB > 0 {
		cfg.MaxHashMB = fc.MaxHashMB
	}
	if fc.StatsFile != "" {
		cfg.StatsFile = strings.TrimSpace(fc.StatsFile)
	}
	if fc.GameLogDir != "" {
		cfg.GameLogDir = strings.TrimSpace(fc.GameLogDir)
	}
	return nil
}

// splitList parses a comma-separated list, lowercasing entries so allow-set
// membership checks stay case-insensitive.
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.ToLower(strings.TrimSpace(p))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
