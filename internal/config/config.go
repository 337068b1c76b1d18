// Package config provides configuration management for repcoach.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DataDir   string          `mapstructure:"data_dir"`
	Log       LogConfig       `mapstructure:"log"`
	Camera    CameraConfig    `mapstructure:"camera"`
	Driver    DriverConfig    `mapstructure:"driver"`
	Pose      PoseConfig      `mapstructure:"pose"`
	Exercises ExercisesConfig `mapstructure:"exercises"`
	Feedback  FeedbackConfig  `mapstructure:"feedback"`
	Tray      TrayConfig      `mapstructure:"tray"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	StaticDir string `mapstructure:"static_dir"`
}

// LogConfig configures zerolog output
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// CameraConfig configures capture devices
type CameraConfig struct {
	Device int `mapstructure:"device"`
	FPS    int `mapstructure:"fps"`
}

// DriverConfig configures the frame pump
type DriverConfig struct {
	RefreshHz int `mapstructure:"refresh_hz"`
}

// PoseConfig configures the pose landmark subprocess
type PoseConfig struct {
	Python          string        `mapstructure:"python"`
	Script          string        `mapstructure:"script"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ResponseTimeout time.Duration `mapstructure:"response_timeout"`
}

// ExercisesConfig points at an optional exercise table override
type ExercisesConfig struct {
	File string `mapstructure:"file"`
}

// FeedbackConfig configures cue plugins
type FeedbackConfig struct {
	PluginDir string        `mapstructure:"plugin_dir"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// TrayConfig configures the desktop tray
type TrayConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	DefaultExercise string `mapstructure:"default_exercise"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	dataDir := ".repcoach"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".repcoach")
	}

	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		DataDir: dataDir,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Camera: CameraConfig{
			Device: 0,
			FPS:    30,
		},
		Driver: DriverConfig{
			RefreshHz: 30,
		},
		Pose: PoseConfig{
			IdleTimeout:     30 * time.Second,
			ResponseTimeout: 5 * time.Second,
		},
		Feedback: FeedbackConfig{
			PluginDir: filepath.Join(dataDir, "plugins"),
			Timeout:   5 * time.Second,
		},
		Tray: TrayConfig{
			Enabled:         false,
			DefaultExercise: "lateral-raise",
		},
	}
}

// Load reads configuration from path (or ~/.repcoach/config.yaml and ./config.yaml when
// path is empty) and applies REPCOACH_* environment overrides. A missing config file is
// not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".repcoach"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("REPCOACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.static_dir", d.Server.StaticDir)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("camera.device", d.Camera.Device)
	v.SetDefault("camera.fps", d.Camera.FPS)
	v.SetDefault("driver.refresh_hz", d.Driver.RefreshHz)
	v.SetDefault("pose.python", d.Pose.Python)
	v.SetDefault("pose.script", d.Pose.Script)
	v.SetDefault("pose.idle_timeout", d.Pose.IdleTimeout)
	v.SetDefault("pose.response_timeout", d.Pose.ResponseTimeout)
	v.SetDefault("exercises.file", d.Exercises.File)
	v.SetDefault("feedback.plugin_dir", d.Feedback.PluginDir)
	v.SetDefault("feedback.timeout", d.Feedback.Timeout)
	v.SetDefault("tray.enabled", d.Tray.Enabled)
	v.SetDefault("tray.default_exercise", d.Tray.DefaultExercise)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Camera.Device < 0 {
		return fmt.Errorf("camera.device must be >= 0, got %d", c.Camera.Device)
	}
	if c.Camera.FPS <= 0 || c.Camera.FPS > 120 {
		return fmt.Errorf("camera.fps must be in (0, 120], got %d", c.Camera.FPS)
	}
	if c.Driver.RefreshHz <= 0 || c.Driver.RefreshHz > 240 {
		return fmt.Errorf("driver.refresh_hz must be in (0, 240], got %d", c.Driver.RefreshHz)
	}
	if c.Feedback.Timeout <= 0 {
		return fmt.Errorf("feedback.timeout must be positive")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// RefreshInterval is the frame pump period derived from driver.refresh_hz.
func (c *Config) RefreshInterval() time.Duration {
	return time.Second / time.Duration(c.Driver.RefreshHz)
}

// DBPath is the sqlite database location inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "repcoach.db")
}
