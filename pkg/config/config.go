package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/qlink/internal/session"
	"github.com/srg/qlink/internal/transport"
	"gopkg.in/yaml.v3"
)

// BaudRates are the baud rates offered to the operator.
var BaudRates = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}

// Config holds application configuration
type Config struct {
	LogLevel     logrus.Level  `yaml:"log_level"`
	Transport    string        `yaml:"transport" default:"serial"`
	BaudRate     int           `yaml:"baud_rate" default:"9600"`
	ScanTimeout  time.Duration `yaml:"scan_timeout" default:"5s"`
	OutputFormat string        `yaml:"output_format" default:"table"`
	// EOL is appended to lines sent from the terminal: none, lf, cr or crlf.
	EOL string `yaml:"eol" default:"crlf"`

	Connection ConnectionConfig `yaml:"connection"`
	Session    SessionConfig    `yaml:"session"`
	Plot       PlotConfig       `yaml:"plot"`

	SettingsFile string `yaml:"settings_file" default:"qlink-settings.yaml"`
}

// ConnectionConfig are the transport parameters other than the baud rate.
type ConnectionConfig struct {
	ReadTimeout    time.Duration `yaml:"read_timeout" default:"500ms"`
	WriteTimeout   time.Duration `yaml:"write_timeout" default:"500ms"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	Channel        uint8         `yaml:"channel" default:"1"`
	BufferSize     int           `yaml:"buffer_size" default:"65536"`
}

// SessionConfig tunes the session poll loop.
type SessionConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval" default:"50ms"`
	ErrorBackoff  time.Duration `yaml:"error_backoff" default:"1s"`
	Framing       string        `yaml:"framing" default:"chunks"`
	MaxLineLength int           `yaml:"max_line_length" default:"4096"`
}

// PlotConfig are chart output defaults.
type PlotConfig struct {
	Width  int `yaml:"width" default:"800"`
	Height int `yaml:"height" default:"600"`
	// Window keeps only the newest N points per live series; 0 keeps everything.
	Window int `yaml:"window" default:"0"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{LogLevel: logrus.InfoLevel}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML configuration file over the defaults. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values a file could have broken.
func (c *Config) Validate() error {
	var errs []error
	if _, err := transport.ParseKind(c.Transport); err != nil {
		errs = append(errs, err)
	}
	if _, err := session.ParseFraming(c.Session.Framing); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseEOL(c.EOL); err != nil {
		errs = append(errs, err)
	}
	if c.BaudRate < 0 {
		errs = append(errs, fmt.Errorf("baud_rate must be >= 0, got %d", c.BaudRate))
	}
	if c.Plot.Width <= 0 || c.Plot.Height <= 0 {
		errs = append(errs, fmt.Errorf("plot size must be positive, got %dx%d", c.Plot.Width, c.Plot.Height))
	}
	return errors.Join(errs...)
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// TransportKind returns the configured backend.
func (c *Config) TransportKind() (transport.Kind, error) {
	return transport.ParseKind(c.Transport)
}

// TransportParams returns connection parameters at the given baud rate.
func (c *Config) TransportParams(baudRate int) transport.Params {
	return transport.Params{
		BaudRate:       baudRate,
		ReadTimeout:    c.Connection.ReadTimeout,
		WriteTimeout:   c.Connection.WriteTimeout,
		ConnectTimeout: c.Connection.ConnectTimeout,
		Channel:        c.Connection.Channel,
		BufferSize:     c.Connection.BufferSize,
	}.Normalize()
}

// SessionOptions returns the session poll options.
func (c *Config) SessionOptions() (session.Options, error) {
	framing, err := session.ParseFraming(c.Session.Framing)
	if err != nil {
		return session.Options{}, err
	}
	return session.Options{
		PollInterval:  c.Session.PollInterval,
		ErrorBackoff:  c.Session.ErrorBackoff,
		Framing:       framing,
		MaxLineLength: c.Session.MaxLineLength,
	}, nil
}

// ParseEOL maps an end-of-line name to its bytes.
func ParseEOL(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "":
		return "", nil
	case "lf":
		return "\n", nil
	case "cr":
		return "\r", nil
	case "crlf":
		return "\r\n", nil
	default:
		return "", fmt.Errorf("unknown eol %q (must be none, lf, cr or crlf)", name)
	}
}

// IsStandardBaudRate reports whether rate is one of BaudRates.
func IsStandardBaudRate(rate int) bool {
	for _, r := range BaudRates {
		if r == rate {
			return true
		}
	}
	return false
}
