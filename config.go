package main

import (
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	Port              string
	Host              string
	BackendURL        string
	BackendUser       string
	BackendPass       string
	ChromePath        string
	Width             int
	Height            int
	NavigationTimeout time.Duration
	MaxConcurrent     int
	JournalPath       string
	LogFile           string
	Debug             bool
	ShutdownTimeout   time.Duration
	ReadTimeout       time.Duration
	IdleTimeout       time.Duration
}

const (
	envPort          = "GRAFANA_PDF_BIND_PORT"
	envHost          = "GRAFANA_PDF_BIND_HOST"
	envBackendURL    = "GRAFANA_PDF_BACKEND_URL"
	envBackendUser   = "GRAFANA_PDF_BACKEND_USER"
	envBackendPass   = "GRAFANA_PDF_BACKEND_PASS"
	envChromePath    = "GRAFANA_PDF_CHROME_PATH"
	envWidth         = "GRAFANA_PDF_WIDTH"
	envHeight        = "GRAFANA_PDF_HEIGHT"
	envNavTimeout    = "GRAFANA_PDF_NAV_TIMEOUT"
	envMaxConcurrent = "GRAFANA_PDF_MAX_CONCURRENT"
	envJournal       = "GRAFANA_PDF_JOURNAL"
	envLogFile       = "GRAFANA_PDF_LOG_FILE"
	envDebug         = "GRAFANA_PDF_DEBUG"
)

const defaultWidth = 1200

// defaultHeight keeps the A-series aspect ratio for the default width.
var defaultHeight = int(math.Floor(defaultWidth * math.Sqrt2))

var (
	ErrInvalidBackendURL = errors.New("invalid backend url")
	ErrInvalidViewport   = errors.New("invalid viewport")
	ErrInvalidConcurrent = errors.New("invalid max concurrent")
)

func DefaultConfig() Config {
	return Config{
		Port:              "8686",
		Host:              "::1",
		BackendURL:        "http://[::1]:3000",
		Width:             defaultWidth,
		Height:            defaultHeight,
		NavigationTimeout: 30 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		ReadTimeout:       5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// LoadConfig layers environment variables and then command-line flags over
// DefaultConfig. args excludes the program name.
func LoadConfig(args []string, getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}

	fs := pflag.NewFlagSet("grafana-pdf", pflag.ContinueOnError)
	fs.StringVar(&cfg.Port, "port", cfg.Port, "port to listen on")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "host to bind to")
	fs.StringVar(&cfg.BackendURL, "backend-url", cfg.BackendURL, "base URL of the dashboard server")
	fs.StringVar(&cfg.BackendUser, "backend-user", cfg.BackendUser, "basic auth user for the dashboard server")
	fs.StringVar(&cfg.BackendPass, "backend-pass", cfg.BackendPass, "basic auth password for the dashboard server")
	fs.StringVar(&cfg.ChromePath, "chrome-path", cfg.ChromePath, "browser executable (default: rod lookup)")
	fs.IntVar(&cfg.Width, "width", cfg.Width, "viewport and page width in pixels")
	fs.IntVar(&cfg.Height, "height", cfg.Height, "viewport and page height in pixels")
	fs.DurationVar(&cfg.NavigationTimeout, "nav-timeout", cfg.NavigationTimeout, "navigation timeout")
	fs.IntVar(&cfg.MaxConcurrent, "max-concurrent", cfg.MaxConcurrent, "max concurrent browsers (0 = unbounded)")
	fs.StringVar(&cfg.JournalPath, "journal", cfg.JournalPath, "sqlite render journal path (empty = disabled)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "also log to this rotated file")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.Port, envPort)
	setString(&c.Host, envHost)
	setString(&c.BackendURL, envBackendURL)
	setString(&c.BackendUser, envBackendUser)
	setString(&c.BackendPass, envBackendPass)
	setString(&c.ChromePath, envChromePath)
	setString(&c.JournalPath, envJournal)
	setString(&c.LogFile, envLogFile)

	for key, dst := range map[string]*int{
		envWidth:         &c.Width,
		envHeight:        &c.Height,
		envMaxConcurrent: &c.MaxConcurrent,
	} {
		v := getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	if v := getenv(envNavTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envNavTimeout, err)
		}
		c.NavigationTimeout = d
	}

	if v := getenv(envDebug); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envDebug, err)
		}
		c.Debug = b
	}
	return nil
}

func (c Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBackendURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBackendURL, c.BackendURL)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidViewport, c.Width, c.Height)
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidConcurrent, c.MaxConcurrent)
	}
	return nil
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Credentials returns nil unless both user and password are set.
func (c Config) Credentials() *Credentials {
	if c.BackendUser == "" || c.BackendPass == "" {
		return nil
	}
	return &Credentials{Username: c.BackendUser, Password: c.BackendPass}
}

func (c Config) Viewport() Viewport {
	return Viewport{Width: c.Width, Height: c.Height}
}
