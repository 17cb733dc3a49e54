// Package config loads the resume server configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirmark/resume/internal/export"
	"github.com/sirmark/resume/internal/reveal"
)

// Default configuration values.
const (
	defaultServiceName   = "resume"
	defaultPort          = 8080
	defaultDatabasePath  = "data/resume.db"
	defaultAdminUsername = "admin"
	defaultAdminPassword = "admin123"
	defaultLoggingLevel  = "info"
	defaultLoggingFormat = "json"

	defaultThreshold  = 0.1
	defaultRootMargin = "0px 0px -50px 0px"
	defaultViewTTL    = 30 * time.Minute
	defaultMaxViews   = 1024

	defaultExportMargin  = 0.5
	defaultExportQuality = 0.98
	defaultExportScale   = 2.0
	defaultExportFormat  = "letter"
	defaultExportOrient  = "portrait"
	defaultExportTimeout = 30 * time.Second
	defaultViewportWidth = 1280
)

// Config holds the application configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Resume   ResumeConfig   `yaml:"resume"`
	Reveal   RevealConfig   `yaml:"reveal"`
	Export   ExportConfig   `yaml:"export"`
	Database DatabaseConfig `yaml:"database"`
	Admin    AdminConfig    `yaml:"admin"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServiceConfig holds HTTP service settings.
type ServiceConfig struct {
	Name  string `yaml:"name"`
	Port  int    `env:"PORT"       yaml:"port"`
	Debug bool   `env:"APP_DEBUG"  yaml:"debug"`
	// PublicURL is the canonical page address used for sharing. When empty the
	// request's own URL is used.
	PublicURL string `env:"PUBLIC_URL" yaml:"public_url"`
}

// ResumeConfig points at the resume content file. Empty uses the built-in content.
type ResumeConfig struct {
	Path      string `env:"RESUME_PATH"  yaml:"path"`
	PhotoPath string `env:"RESUME_PHOTO" yaml:"photo_path"`
}

// RevealConfig tunes reveal tracking per page view.
type RevealConfig struct {
	Threshold  float64       `yaml:"threshold"`
	RootMargin string        `yaml:"root_margin"`
	ViewTTL    time.Duration `yaml:"view_ttl"`
	MaxViews   int           `yaml:"max_views"`
}

// Options converts the config into tracker options.
func (r RevealConfig) Options() (reveal.Options, error) {
	margin, err := reveal.ParseMargin(r.RootMargin)
	if err != nil {
		return reveal.Options{}, err
	}
	return reveal.Options{Threshold: r.Threshold, RootMargin: margin}, nil
}

// ExportConfig holds document export settings.
type ExportConfig struct {
	Enabled       bool          `env:"EXPORT_ENABLED"     yaml:"enabled"`
	Margin        float64       `yaml:"margin"`
	ImageQuality  float64       `yaml:"image_quality"`
	Scale         float64       `yaml:"scale"`
	Format        string        `yaml:"format"`
	Orientation   string        `yaml:"orientation"`
	// Filename overrides the resume content's export filename.
	Filename      string        `yaml:"filename"`
	BrowserURL    string        `env:"EXPORT_BROWSER_URL" yaml:"browser_url"`
	// RenderURL is where the browser loads the page from. Empty means this
	// server on localhost.
	RenderURL     string        `env:"EXPORT_RENDER_URL"  yaml:"render_url"`
	Timeout       time.Duration `yaml:"timeout"`
	ViewportWidth int           `yaml:"viewport_width"`
}

// Options converts the config into export options. filename is used when no
// filename is configured.
func (e ExportConfig) Options(filename string) export.Options {
	if e.Filename != "" {
		filename = e.Filename
	}
	return export.Options{
		Margin:        e.Margin,
		ImageQuality:  e.ImageQuality,
		Scale:         e.Scale,
		Format:        strings.ToLower(e.Format),
		Orientation:   strings.ToLower(e.Orientation),
		Filename:      filename,
		ViewportWidth: e.ViewportWidth,
	}
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `env:"DATABASE_PATH" yaml:"path"`
	// HashSalt salts visitor address hashes. Empty generates one per start,
	// so unique visitor counts only hold within a run.
	HashSalt string `env:"HASH_SALT" yaml:"hash_salt"`
}

// AdminConfig holds admin dashboard credentials.
type AdminConfig struct {
	Username string `env:"ADMIN_USERNAME" yaml:"username"`
	Password string `env:"ADMIN_PASSWORD" yaml:"password"`
}

// UsingDefaults reports whether the built-in development credentials are in use.
func (a AdminConfig) UsingDefaults() bool {
	return a.Username == defaultAdminUsername || a.Password == defaultAdminPassword
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// Load loads configuration from path. A missing file yields defaults plus
// environment overrides.
func Load(path string) (*Config, error) {
	return loadWithDefaults(path, presets(), setDefaults)
}

// presets seeds fields where zero is a meaningful setting, so only an absent
// key takes the default.
func presets() *Config {
	return &Config{
		Reveal: RevealConfig{Threshold: defaultThreshold},
		Export: ExportConfig{Margin: defaultExportMargin},
	}
}

func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setRevealDefaults(&cfg.Reveal)
	setExportDefaults(&cfg.Export)
	if cfg.Database.Path == "" {
		cfg.Database.Path = defaultDatabasePath
	}
	if cfg.Admin.Username == "" {
		cfg.Admin.Username = defaultAdminUsername
	}
	if cfg.Admin.Password == "" {
		cfg.Admin.Password = defaultAdminPassword
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaultLoggingFormat
	}
}

func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Port == 0 {
		svc.Port = defaultPort
	}
}

func setRevealDefaults(r *RevealConfig) {
	if r.RootMargin == "" {
		r.RootMargin = defaultRootMargin
	}
	if r.ViewTTL == 0 {
		r.ViewTTL = defaultViewTTL
	}
	if r.MaxViews == 0 {
		r.MaxViews = defaultMaxViews
	}
}

func setExportDefaults(e *ExportConfig) {
	if e.ImageQuality == 0 {
		e.ImageQuality = defaultExportQuality
	}
	if e.Scale == 0 {
		e.Scale = defaultExportScale
	}
	if e.Format == "" {
		e.Format = defaultExportFormat
	}
	if e.Orientation == "" {
		e.Orientation = defaultExportOrient
	}
	if e.Timeout == 0 {
		e.Timeout = defaultExportTimeout
	}
	if e.ViewportWidth == 0 {
		e.ViewportWidth = defaultViewportWidth
	}
}

// ValidationError describes an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Message)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return &ValidationError{Field: "service.port", Message: "must be between 1 and 65535"}
	}
	if c.Reveal.Threshold < 0 || c.Reveal.Threshold > 1 {
		return &ValidationError{Field: "reveal.threshold", Message: "must be between 0 and 1"}
	}
	if _, err := reveal.ParseMargin(c.Reveal.RootMargin); err != nil {
		return &ValidationError{Field: "reveal.root_margin", Message: err.Error()}
	}
	if c.Reveal.MaxViews < 1 {
		return &ValidationError{Field: "reveal.max_views", Message: "must be positive"}
	}
	if c.Export.ImageQuality <= 0 || c.Export.ImageQuality > 1 {
		return &ValidationError{Field: "export.image_quality", Message: "must be in (0,1]"}
	}
	if c.Export.Scale <= 0 {
		return &ValidationError{Field: "export.scale", Message: "must be positive"}
	}
	switch strings.ToLower(c.Export.Orientation) {
	case "portrait", "landscape":
	default:
		return &ValidationError{Field: "export.orientation", Message: "must be portrait or landscape"}
	}
	opts := c.Export.Options("")
	if !export.IsFormat(opts.Format) {
		return &ValidationError{Field: "export.format", Message: "must be letter, legal or a4"}
	}
	if opts.ViewportWidth <= 0 {
		return &ValidationError{Field: "export.viewport_width", Message: "must be positive"}
	}
	if err := opts.Validate(); err != nil {
		return &ValidationError{Field: "export.margin", Message: err.Error()}
	}
	return nil
}
