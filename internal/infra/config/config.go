// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Resolution ResolutionConfig `yaml:"resolution"`
	Engine     EngineConfig     `yaml:"engine"`
	PlayLog    PlayLogConfig    `yaml:"playlog"`
	Spotify    SpotifyConfig    `yaml:"spotify"`
}

// ServerConfig represents control API server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Token string      `yaml:"token"` // Empty disables authentication
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents shell commands run around the server lifetime.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// StorageConfig represents the content directory configuration.
type StorageConfig struct {
	Dir       string `yaml:"dir" default:"data/music" validate:"required"`
	Extension string `yaml:"extension" default:"mp3" validate:"alphanum"`
	Watch     *bool  `yaml:"watch" default:"true"`
}

// WatchEnabled reports whether vanished content files are detected.
func (s StorageConfig) WatchEnabled() bool {
	return s.Watch != nil && *s.Watch
}

// PlaybackConfig represents queue coordinator configuration.
type PlaybackConfig struct {
	Repeat             string `yaml:"repeat" default:"loop" validate:"oneof=loop stop"`
	HistorySize        int    `yaml:"history_size" default:"50" validate:"gte=1,lte=10000"`
	RestartThresholdMs int    `yaml:"restart_threshold_ms" default:"5000" validate:"gte=0"`
	CommandBuffer      int    `yaml:"command_buffer" default:"32" validate:"gte=1"`
	EventBuffer        int    `yaml:"event_buffer" default:"64" validate:"gte=1"`
}

// ResolutionConfig represents resolution pool configuration.
type ResolutionConfig struct {
	Workers         int              `yaml:"workers" default:"2" validate:"gte=1,lte=16"`
	QueueSize       int              `yaml:"queue_size" default:"64" validate:"gte=1"`
	TimeoutMs       int              `yaml:"timeout_ms" default:"120000" validate:"gte=1000"`
	PrefetchDelayMs int              `yaml:"prefetch_delay_ms" default:"1500" validate:"gte=0"`
	Resolvers       []ResolverConfig `yaml:"resolvers" validate:"required,min=1,dive"`
}

// ResolverConfig represents a single content resolver configuration.
type ResolverConfig struct {
	Type        string         `yaml:"type" validate:"required"`
	DisplayName string         `yaml:"display_name"`
	Settings    map[string]any `yaml:"settings"`
}

// EngineConfig represents playback engine configuration.
type EngineConfig struct {
	Type               string    `yaml:"type" default:"mpd" validate:"oneof=mpd beep"`
	PositionIntervalMs int       `yaml:"position_interval_ms" default:"1000" validate:"gte=100"`
	MPD                MPDConfig `yaml:"mpd"`
}

// MPDConfig represents MPD connection configuration.
type MPDConfig struct {
	Network  string `yaml:"network" default:"tcp" validate:"oneof=tcp unix"`
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6600" validate:"gte=1,lte=65535"`
	Socket   string `yaml:"socket"`
	Password string `yaml:"password"`
	MusicDir string `yaml:"music_dir"` // MPD's music_directory; files below it are added by relative URI
}

// PlayLogConfig represents the persistent play log configuration.
type PlayLogConfig struct {
	Enabled *bool  `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"data/playlog.db"`
}

// IsEnabled reports whether plays are persisted.
func (p PlayLogConfig) IsEnabled() bool {
	return p.Enabled != nil && *p.Enabled && p.Path != ""
}

// SpotifyConfig represents Spotify API configuration.
// The catalog is disabled when credentials are missing.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret" validate:"required_with=ClientID"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// Enabled reports whether catalog credentials are configured.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("TRAKIFY_API_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("TRAKIFY_STORAGE_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("MPD_PASSWORD"); v != "" {
		c.Engine.MPD.Password = v
	}
	if v := os.Getenv("MPD_HOST"); v != "" {
		c.Engine.MPD.Host = v
	}
	if v := os.Getenv("MPD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Engine.MPD.Port = port
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Engine.Type == "mpd" && c.Engine.MPD.Network == "unix" && c.Engine.MPD.Socket == "" {
		return errors.New("engine.mpd.socket is required for the unix network")
	}

	return nil
}

// MPDAddr returns the address to dial for MPD.
func (c *Config) MPDAddr() string {
	if c.Engine.MPD.Network == "unix" {
		return c.Engine.MPD.Socket
	}
	return c.Engine.MPD.Host + ":" + strconv.Itoa(c.Engine.MPD.Port)
}

// ResolutionTimeout returns the per-job resolver deadline.
func (c *Config) ResolutionTimeout() time.Duration {
	return time.Duration(c.Resolution.TimeoutMs) * time.Millisecond
}

// PrefetchDelay returns the pause between bulk prefetch submissions.
func (c *Config) PrefetchDelay() time.Duration {
	return time.Duration(c.Resolution.PrefetchDelayMs) * time.Millisecond
}

// RestartThreshold returns the position beyond which "previous" restarts the track.
func (c *Config) RestartThreshold() time.Duration {
	return time.Duration(c.Playback.RestartThresholdMs) * time.Millisecond
}

// PositionInterval returns how often the engine reports the position.
func (c *Config) PositionInterval() time.Duration {
	return time.Duration(c.Engine.PositionIntervalMs) * time.Millisecond
}
