// Package config loads agent and journal settings from an optional YAML
// file and the environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"fieldattend/internal/store"
)

// App holds the runtime configuration.
type App struct {
	Env      string `validate:"required"`
	HTTPPort string `validate:"required,numeric"`

	BackendURL     string        `validate:"required,url"`
	AttendancePath string        `validate:"required,startswith=/"`
	SubmitTimeout  time.Duration `validate:"gt=0"`

	CaptureMode        string        `validate:"oneof=camera upload"`
	PermissionStrategy string        `validate:"oneof=explicit_gate optimistic"`
	CameraDevice       string        `validate:"required"`
	CameraWidth        int           `validate:"gt=0"`
	CameraHeight       int           `validate:"gt=0"`
	CameraReadyTimeout time.Duration `validate:"gt=0"`

	Locator           string        `validate:"oneof=static http"`
	StaticLatitude    float64       `validate:"latitude"`
	StaticLongitude   float64       `validate:"longitude"`
	GeoServiceURL     string        `validate:"omitempty,url"`
	GeocoderURL       string        `validate:"omitempty,url"`
	GeocoderUserAgent string        `validate:"required"`
	GeoTimeout        time.Duration `validate:"gt=0"`

	ResetDelay  time.Duration `validate:"gt=0"`
	JPEGQuality int           `validate:"min=1,max=100"`
	TimeZone    string
	Location    *time.Location `validate:"-"`

	DeviceID        string `validate:"required"`
	RedisAddr       string
	RedisPassword   string
	RedisDB         int `validate:"min=0"`
	DatabaseURL     string
	QueueBackend    string `validate:"oneof=memory redis"`
	PermissionCache string `validate:"oneof=memory redis"`
	RateLimitPerMin int    `validate:"gt=0"`

	AllowedOrigins []string `validate:"dive,url"`
}

// Load reads .env when present, then the YAML file at path (optional),
// then the environment.
func Load(path string) (App, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Printf("failed to load .env: %v", err)
		}
	}

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return App{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	s := source{k: k}

	host, _ := os.Hostname()
	cfg := App{
		Env:      s.str("APP_ENV", "dev"),
		HTTPPort: s.str("HTTP_PORT", "8081"),

		BackendURL:     s.str("BACKEND_URL", "http://localhost:8080"),
		AttendancePath: s.str("ATTENDANCE_PATH", "/attendance"),
		SubmitTimeout:  s.duration("SUBMIT_TIMEOUT", 30*time.Second),

		CaptureMode:        strings.ToLower(s.str("CAPTURE_MODE", "camera")),
		PermissionStrategy: strings.ToLower(s.str("PERMISSION_STRATEGY", "optimistic")),
		CameraDevice:       s.str("CAMERA_DEVICE", "/dev/video0"),
		CameraWidth:        s.integer("CAMERA_WIDTH", 1280),
		CameraHeight:       s.integer("CAMERA_HEIGHT", 720),
		CameraReadyTimeout: s.duration("CAMERA_READY_TIMEOUT", 5*time.Second),

		Locator:           strings.ToLower(s.str("LOCATOR", "static")),
		StaticLatitude:    s.float("STATIC_LATITUDE", 0),
		StaticLongitude:   s.float("STATIC_LONGITUDE", 0),
		GeoServiceURL:     s.str("GEO_SERVICE_URL", ""),
		GeocoderURL:       s.str("GEOCODER_URL", ""),
		GeocoderUserAgent: s.str("GEOCODER_USER_AGENT", "fieldattend-agent/1.0"),
		GeoTimeout:        s.duration("GEO_TIMEOUT", 10*time.Second),

		ResetDelay:  s.duration("RESET_DELAY", 3*time.Second),
		JPEGQuality: s.integer("JPEG_QUALITY", 85),
		TimeZone:    s.str("TIME_ZONE", "Local"),

		DeviceID:        s.str("DEVICE_ID", host),
		RedisAddr:       s.str("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   s.str("REDIS_PASSWORD", ""),
		RedisDB:         s.integer("REDIS_DB", 0),
		DatabaseURL:     s.str("DATABASE_URL", ""),
		QueueBackend:    strings.ToLower(s.str("QUEUE_BACKEND", "memory")),
		PermissionCache: strings.ToLower(s.str("PERMISSION_CACHE", "memory")),
		RateLimitPerMin: s.integer("RATE_LIMIT_PER_MIN", 120),

		AllowedOrigins: s.list("ALLOWED_ORIGINS"),
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = "agent"
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return App{}, fmt.Errorf("invalid TIME_ZONE %q: %w", cfg.TimeZone, err)
	}
	cfg.Location = loc

	if err := cfg.Validate(); err != nil {
		return App{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field formats and the settings that depend on each other.
func (c App) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("config: %s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
		} else {
			errs = append(errs, err)
		}
	}
	if c.Locator == "http" && c.GeoServiceURL == "" {
		errs = append(errs, errors.New("config: GEO_SERVICE_URL is required when LOCATOR=http"))
	}
	if (c.QueueBackend == "redis" || c.PermissionCache == "redis") && c.RedisAddr == "" {
		errs = append(errs, errors.New("config: REDIS_ADDR is required for redis backends"))
	}
	return errors.Join(errs...)
}

// Redis returns the redis connection settings.
func (c App) Redis() store.RedisOptions {
	return store.RedisOptions{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// Production reports whether the agent runs in a production environment.
func (c App) Production() bool {
	return c.Env == "production" || c.Env == "prod"
}

// source resolves a key from the environment, then the config file. File
// keys are the lower-cased environment names.
type source struct {
	k *koanf.Koanf
}

func (s source) str(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if val := s.k.String(strings.ToLower(key)); val != "" {
		return val
	}
	return fallback
}

// list splits a comma-separated value, dropping empty items.
func (s source) list(key string) []string {
	var out []string
	for _, item := range strings.Split(s.str(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (s source) duration(key string, fallback time.Duration) time.Duration {
	if val := s.str(key, ""); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func (s source) integer(key string, fallback int) int {
	if val := s.str(key, ""); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Printf("invalid int for %s, using fallback %d", key, fallback)
			return fallback
		}
		return parsed
	}
	return fallback
}

func (s source) float(key string, fallback float64) float64 {
	if val := s.str(key, ""); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Printf("invalid float for %s, using fallback %v", key, fallback)
			return fallback
		}
		return parsed
	}
	return fallback
}

// NewLogger returns a JSON logger in production and a debug-level text
// logger otherwise.
func (c App) NewLogger() *slog.Logger {
	if c.Production() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
