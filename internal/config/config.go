package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Duration time.Duration

func (d Duration) ToDuration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		*d = 0
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}

	// allow: "5s", "2m", or integer seconds
	switch value.Tag {
	case "!!int":
		i, err := strconv.ParseInt(value.Value, 10, 64)
		if err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	case "!!str":
		if value.Value == "" {
			*d = 0
			return nil
		}
		if dur, err := time.ParseDuration(value.Value); err == nil {
			*d = Duration(dur)
			return nil
		}
		if i, err := strconv.ParseInt(value.Value, 10, 64); err == nil {
			*d = Duration(time.Duration(i) * time.Second)
			return nil
		}
		return fmt.Errorf("invalid duration: %q", value.Value)
	default:
		if dur, err := time.ParseDuration(value.Value); err == nil {
			*d = Duration(dur)
			return nil
		}
		return fmt.Errorf("invalid duration: %q", value.Value)
	}
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Endpoint EndpointConfig `yaml:"endpoint"`
	Capture  CaptureConfig  `yaml:"capture"`
	Playback PlaybackConfig `yaml:"playback"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
}

// ServerConfig is the local control page. Disabled means no trigger surface:
// the client runs a single session and exits.
type ServerConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Bind              string   `yaml:"bind"`
	Port              int      `yaml:"port"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
}

type EndpointConfig struct {
	BaseURL   string   `yaml:"base_url"` // base origin, also used for relative audio paths
	Path      string   `yaml:"path"`
	FieldName string   `yaml:"field_name"`
	APIKeyEnv string   `yaml:"api_key_env"` // optional bearer token
	Timeout   Duration `yaml:"timeout"`
}

type CaptureConfig struct {
	Duration        Duration `yaml:"duration"`
	SampleRate      int      `yaml:"sample_rate"`
	Channels        int      `yaml:"channels"`
	FramesPerBuffer int      `yaml:"frames_per_buffer"`
	ContentType     string   `yaml:"content_type"`
	Filename        string   `yaml:"filename"`
}

type PlaybackConfig struct {
	Timeout         Duration `yaml:"timeout"`
	FramesPerBuffer int      `yaml:"frames_per_buffer"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Enabled:           true,
			Bind:              "127.0.0.1",
			Port:              9000,
			ReadHeaderTimeout: Duration(5 * time.Second),
		},
		Endpoint: EndpointConfig{
			BaseURL:   "http://127.0.0.1:8000/",
			Path:      "/process-audio",
			FieldName: "audio",
			Timeout:   Duration(60 * time.Second),
		},
		Capture: CaptureConfig{
			Duration:        Duration(5 * time.Second),
			SampleRate:      16000,
			Channels:        1,
			FramesPerBuffer: 1024,
			ContentType:     "audio/wav",
			Filename:        "recording.wav",
		},
		Playback: PlaybackConfig{
			Timeout:         Duration(2 * time.Minute),
			FramesPerBuffer: 1024,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load reads path over Default(). A missing file is not an error: the
// defaults are returned together with fs.ErrNotExist wrapped in a
// *MissingFileError so the caller can warn and continue.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, &MissingFileError{Path: path, Err: err}
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.backfill()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

type MissingFileError struct {
	Path string
	Err  error
}

func (e *MissingFileError) Error() string { return "config file not found: " + e.Path }
func (e *MissingFileError) Unwrap() error { return e.Err }

func (cfg *Config) backfill() {
	def := Default()

	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = def.Server.Bind
	}
	if cfg.Server.ReadHeaderTimeout.ToDuration() <= 0 {
		cfg.Server.ReadHeaderTimeout = def.Server.ReadHeaderTimeout
	}

	if cfg.Endpoint.BaseURL == "" {
		cfg.Endpoint.BaseURL = def.Endpoint.BaseURL
	}
	if !strings.HasSuffix(cfg.Endpoint.BaseURL, "/") {
		cfg.Endpoint.BaseURL += "/"
	}
	if cfg.Endpoint.Path == "" {
		cfg.Endpoint.Path = def.Endpoint.Path
	}
	if cfg.Endpoint.FieldName == "" {
		cfg.Endpoint.FieldName = def.Endpoint.FieldName
	}
	if cfg.Endpoint.Timeout.ToDuration() <= 0 {
		cfg.Endpoint.Timeout = def.Endpoint.Timeout
	}

	if cfg.Capture.Duration.ToDuration() <= 0 {
		cfg.Capture.Duration = def.Capture.Duration
	}
	if cfg.Capture.SampleRate <= 0 {
		cfg.Capture.SampleRate = def.Capture.SampleRate
	}
	if cfg.Capture.Channels <= 0 {
		cfg.Capture.Channels = def.Capture.Channels
	}
	if cfg.Capture.FramesPerBuffer <= 0 {
		cfg.Capture.FramesPerBuffer = def.Capture.FramesPerBuffer
	}
	if cfg.Capture.ContentType == "" {
		cfg.Capture.ContentType = def.Capture.ContentType
	}
	if cfg.Capture.Filename == "" {
		cfg.Capture.Filename = def.Capture.Filename
	}

	if cfg.Playback.Timeout.ToDuration() <= 0 {
		cfg.Playback.Timeout = def.Playback.Timeout
	}
	if cfg.Playback.FramesPerBuffer <= 0 {
		cfg.Playback.FramesPerBuffer = def.Playback.FramesPerBuffer
	}
}

func (cfg *Config) Validate() error {
	u, err := url.Parse(cfg.Endpoint.BaseURL)
	if err != nil {
		return fmt.Errorf("endpoint.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint.base_url must be http or https, got %q", cfg.Endpoint.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint.base_url has no host: %q", cfg.Endpoint.BaseURL)
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if cfg.Capture.Channels > 2 {
		return fmt.Errorf("capture.channels must be 1 or 2, got %d", cfg.Capture.Channels)
	}

	switch cfg.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be 'json' or 'console', got %q", cfg.Log.Format)
	}
	return nil
}

// EndpointURL is the upload target: base origin joined with the path.
func (e EndpointConfig) EndpointURL() string {
	return e.BaseURL + strings.TrimPrefix(e.Path, "/")
}
