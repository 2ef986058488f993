// Package config loads server settings from defaults, an optional YAML
// file, FOOKIKI_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"fookiki/internal/board"
	"fookiki/internal/matchmaking"
	"fookiki/internal/room"
)

const envPrefix = "FOOKIKI"

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Log         LogConfig         `mapstructure:"log"`
	Matchmaking MatchmakingConfig `mapstructure:"matchmaking"`
	Game        GameConfig        `mapstructure:"game"`
	Rooms       RoomsConfig       `mapstructure:"rooms"`
}

type ServerConfig struct {
	Addr   string `mapstructure:"addr"`
	WebDir string `mapstructure:"web_dir"`
}

type StorageConfig struct {
	DBPath        string `mapstructure:"db_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type MatchmakingConfig struct {
	ScanLimit           int `mapstructure:"scan_limit"`
	StalenessWindowMs   int `mapstructure:"staleness_window_ms"`
	MatchCleanupDelayMs int `mapstructure:"match_cleanup_delay_ms"`
	ClaimAttempts       int `mapstructure:"claim_attempts"`
}

// GameConfig holds the room defaults. Durations are in seconds.
type GameConfig struct {
	Mode                 string `mapstructure:"mode"`
	Duration             int    `mapstructure:"duration"`
	GoalTarget           int    `mapstructure:"goal_target"`
	GoalGap              int    `mapstructure:"goal_gap"`
	Formation            string `mapstructure:"formation"`
	WinningScore         int    `mapstructure:"winning_score"`
	TurnSeconds          int    `mapstructure:"turn_seconds"`
	ExtraTimeSeconds     int    `mapstructure:"extra_time_seconds"`
	ExtraTimeTurnSeconds int    `mapstructure:"extra_time_turn_seconds"`
	CelebrationSeconds   int    `mapstructure:"celebration_seconds"`
}

type RoomsConfig struct {
	CleanupIntervalSeconds int `mapstructure:"cleanup_interval_seconds"`
	MaxAgeSeconds          int `mapstructure:"max_age_seconds"`
}

var defaults = map[string]any{
	"server.addr":    ":8080",
	"server.web_dir": "web",

	"storage.db_path":        "fookiki.db",
	"storage.redis_addr":     "",
	"storage.redis_password": "",
	"storage.redis_db":       0,

	"log.level":  "info",
	"log.pretty": false,

	"matchmaking.scan_limit":             10,
	"matchmaking.staleness_window_ms":    30000,
	"matchmaking.match_cleanup_delay_ms": 5000,
	"matchmaking.claim_attempts":         3,

	"game.mode":                    "timed",
	"game.duration":                300,
	"game.goal_target":             5,
	"game.goal_gap":                2,
	"game.formation":               "classic",
	"game.winning_score":           3,
	"game.turn_seconds":            10,
	"game.extra_time_seconds":      300,
	"game.extra_time_turn_seconds": 10,
	"game.celebration_seconds":     3,

	"rooms.cleanup_interval_seconds": 60,
	"rooms.max_age_seconds":          3600,
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"addr":      "server.addr",
	"db":        "storage.db_path",
	"redis":     "storage.redis_addr",
	"log-level": "log.level",
}

// RegisterFlags adds the config flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.String("addr", ":8080", "listen address")
	fs.String("db", "fookiki.db", "SQLite database path")
	fs.String("redis", "", "Redis address; empty keeps the queue in SQLite")
	fs.String("log-level", "info", "debug, info, warn or error")
}

// Load reads the configuration. path may be empty; flags may be nil. Only
// flags set on the command line override other sources.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, eris.Wrapf(err, "bind flag %s", name)
				}
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, eris.Wrapf(err, "read config %s", path)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, eris.Wrap(err, "decode config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return eris.Wrapf(err, "log.level %q", c.Log.Level)
	}
	m := c.Matchmaking
	if m.ScanLimit <= 0 || m.StalenessWindowMs <= 0 || m.MatchCleanupDelayMs <= 0 || m.ClaimAttempts <= 0 {
		return eris.New("matchmaking limits must be positive")
	}
	if c.Rooms.CleanupIntervalSeconds <= 0 || c.Rooms.MaxAgeSeconds <= 0 {
		return eris.New("rooms cleanup settings must be positive")
	}
	if _, ok := board.Builtin().Get(c.Game.Formation); !ok {
		return eris.Errorf("game.formation %q is not a known formation", c.Game.Formation)
	}
	if err := c.RoomDefaults().Validate(); err != nil {
		return eris.Wrap(err, "game")
	}
	return nil
}

// RoomDefaults returns the settings rooms fall back to.
func (c *Config) RoomDefaults() room.Settings {
	g := c.Game
	return room.Settings{
		Mode:                 room.Mode(g.Mode),
		Duration:             g.Duration,
		GoalTarget:           g.GoalTarget,
		GoalGap:              g.GoalGap,
		Formation:            g.Formation,
		WinningScore:         g.WinningScore,
		TurnSeconds:          g.TurnSeconds,
		ExtraTimeSeconds:     g.ExtraTimeSeconds,
		ExtraTimeTurnSeconds: g.ExtraTimeTurnSeconds,
		CelebrationSeconds:   g.CelebrationSeconds,
	}
}

// MatchmakingConfig returns the resolver limits.
func (c *Config) MatchmakingConfig() matchmaking.Config {
	m := c.Matchmaking
	return matchmaking.Config{
		ScanLimit:       m.ScanLimit,
		StalenessWindow: time.Duration(m.StalenessWindowMs) * time.Millisecond,
		CleanupDelay:    time.Duration(m.MatchCleanupDelayMs) * time.Millisecond,
		ClaimAttempts:   m.ClaimAttempts,
		Defaults:        c.RoomDefaults(),
	}
}

// CleanupInterval and MaxRoomAge drive the room cleanup loop.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Rooms.CleanupIntervalSeconds) * time.Second
}

func (c *Config) MaxRoomAge() time.Duration {
	return time.Duration(c.Rooms.MaxAgeSeconds) * time.Second
}
