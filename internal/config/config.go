package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds runtime configuration for the pool session server.
type Config struct {
	Port           int        `mapstructure:"port"`
	Debug          bool       `mapstructure:"debug"`
	AllowedOrigins []string   `mapstructure:"allowedOrigins"`
	Log            LogConf    `mapstructure:"log"`
	Game           GameConf   `mapstructure:"game"`
	Limits         LimitsConf `mapstructure:"limits"`
}

type LogConf struct {
	Level string `mapstructure:"level"`
}

// GameConf carries the timing constants of a match.
type GameConf struct {
	StartDelay     time.Duration `mapstructure:"startDelay"`
	RespawnDelay   time.Duration `mapstructure:"respawnDelay"`
	SnapshotWindow time.Duration `mapstructure:"snapshotWindow"`
	HoleThreshold  float64       `mapstructure:"holeThreshold"`
}

type LimitsConf struct {
	MessagesPerSecond int `mapstructure:"messagesPerSecond"`
	OutboxSize        int `mapstructure:"outboxSize"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"port":      "port",
	"log-level": "log.level",
	"debug":     "debug",
}

func Default() Config {
	return Config{
		Port:           3000,
		AllowedOrigins: []string{"*"},
		Log:            LogConf{Level: "info"},
		Game: GameConf{
			StartDelay:     3 * time.Second,
			RespawnDelay:   2 * time.Second,
			SnapshotWindow: 50 * time.Millisecond,
			HoleThreshold:  3.7,
		},
		Limits: LimitsConf{
			MessagesPerSecond: 120,
			OutboxSize:        64,
		},
	}
}

// Load resolves configuration from defaults, an optional YAML file, POOL_*
// environment variables and any bound command line flags, in increasing
// order of precedence. file and flags may be empty/nil.
func Load(file string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("POOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// PORT is what most hosting platforms inject.
	if err := v.BindEnv("port", "POOL_PORT", "PORT"); err != nil {
		return Config{}, fmt.Errorf("failed to bind port env: %w", err)
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("port", d.Port)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("allowedOrigins", d.AllowedOrigins)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("game.startDelay", d.Game.StartDelay)
	v.SetDefault("game.respawnDelay", d.Game.RespawnDelay)
	v.SetDefault("game.snapshotWindow", d.Game.SnapshotWindow)
	v.SetDefault("game.holeThreshold", d.Game.HoleThreshold)
	v.SetDefault("limits.messagesPerSecond", d.Limits.MessagesPerSecond)
	v.SetDefault("limits.outboxSize", d.Limits.OutboxSize)
}

func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Game.StartDelay <= 0 {
		errs = append(errs, errors.New("game.startDelay must be positive"))
	}
	if c.Game.RespawnDelay <= 0 {
		errs = append(errs, errors.New("game.respawnDelay must be positive"))
	}
	if c.Game.SnapshotWindow <= 0 {
		errs = append(errs, errors.New("game.snapshotWindow must be positive"))
	}
	if c.Limits.MessagesPerSecond <= 0 {
		errs = append(errs, errors.New("limits.messagesPerSecond must be positive"))
	}
	if c.Limits.OutboxSize <= 0 {
		errs = append(errs, errors.New("limits.outboxSize must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}
