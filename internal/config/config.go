package config

import (
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vango-dev/domwire/internal/errors"
	"github.com/vango-dev/domwire/pkg/server"
)

// ConfigFileName is the name of the project configuration file.
const ConfigFileName = "domwire.json"

// Default values for configuration.
const (
	DefaultAddress     = ":8080"
	DefaultPagesDir    = "pages"
	DefaultMetricsPath = "/metrics"
	DefaultUploadAge   = "1h"
)

// Config represents the domwire.json configuration file.
type Config struct {
	// Name is the project name, shown in logs.
	Name string `json:"name,omitempty"`

	// Pages is the directory of .html files served as pages.
	Pages string `json:"pages,omitempty"`

	// Server configures the HTTP and websocket server.
	Server ServerConfig `json:"server"`

	// Connection configures per-connection limits and timeouts.
	Connection ConnectionConfig `json:"connection,omitempty"`

	// Uploads configures where files sent to browsers are stored.
	Uploads UploadsConfig `json:"uploads,omitempty"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics,omitempty"`

	// UserVars seeds the variables shared by every connection of a user.
	UserVars map[string]any `json:"userVars,omitempty"`

	configPath string
}

// ServerConfig contains server settings.
type ServerConfig struct {
	Address              string   `json:"address,omitempty"`
	DevMode              bool     `json:"devMode,omitempty"`
	MaxConnections       int      `json:"maxConnections,omitempty"`
	SecureCookies        bool     `json:"secureCookies,omitempty"`
	TrustClientUID       bool     `json:"trustClientUID,omitempty"`
	TrustedProxies       []string `json:"trustedProxies,omitempty"`
	AllowedRedirectHosts []string `json:"allowedRedirectHosts,omitempty"`

	// Durations use time.ParseDuration syntax, e.g. "30s".
	ShutdownTimeout string `json:"shutdownTimeout,omitempty"`
	UserIdleTTL     string `json:"userIdleTTL,omitempty"`
}

// ConnectionConfig contains per-connection settings.
type ConnectionConfig struct {
	ReadTimeout        string `json:"readTimeout,omitempty"`
	WriteTimeout       string `json:"writeTimeout,omitempty"`
	HeartbeatInterval  string `json:"heartbeatInterval,omitempty"`
	CallTimeout        string `json:"callTimeout,omitempty"`
	MaxMessageSize     int64  `json:"maxMessageSize,omitempty"`
	MaxEventQueue      int    `json:"maxEventQueue,omitempty"`
	MaxBufferedReplies int    `json:"maxBufferedReplies,omitempty"`
}

// UploadsConfig selects a download store. Dir and S3 are exclusive; with
// neither set, downloads are disabled.
type UploadsConfig struct {
	Dir     string    `json:"dir,omitempty"`
	S3      *S3Config `json:"s3,omitempty"`
	MaxSize int64     `json:"maxSize,omitempty"`

	// MaxAge is how long an unclaimed file is kept.
	MaxAge string `json:"maxAge,omitempty"`
}

// S3Config contains S3 bucket settings.
type S3Config struct {
	Bucket   string `json:"bucket"`
	Prefix   string `json:"prefix,omitempty"`
	Region   string `json:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Address serves metrics on a separate listener. Empty mounts the
	// endpoint on the main server.
	Address string `json:"address,omitempty"`
	Path    string `json:"path,omitempty"`
	Enabled bool   `json:"enabled,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Pages: DefaultPagesDir,
		Server: ServerConfig{
			Address:         DefaultAddress,
			ShutdownTimeout: "30s",
			UserIdleTTL:     "24h",
		},
		Uploads: UploadsConfig{
			MaxAge: DefaultUploadAge,
		},
		Metrics: MetricsConfig{
			Path: DefaultMetricsPath,
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for domwire.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E100").
				WithDetail("No " + ConfigFileName + " found in " + filepath.Dir(path)).
				WithSuggestion("Create " + ConfigFileName + " or run from a project directory")
		}
		return nil, errors.New("E101").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		e := errors.New("E101").
			WithDetail("Failed to parse " + ConfigFileName + ": " + err.Error()).
			WithSuggestion("Check that " + ConfigFileName + " is valid JSON")
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case stderrors.As(err, &syntaxErr):
			e = e.WithOffset(path, data, syntaxErr.Offset)
		case stderrors.As(err, &typeErr):
			e = e.WithOffset(path, data, typeErr.Offset)
		}
		return nil, e
	}

	cfg.configPath = path
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E103").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E103").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return "."
	}
	return filepath.Dir(c.configPath)
}

// PagesPath returns the pages directory resolved against the config file's
// directory.
func (c *Config) PagesPath() string {
	if filepath.IsAbs(c.Pages) {
		return c.Pages
	}
	return filepath.Join(c.Dir(), c.Pages)
}

// UploadsPath returns the disk upload directory resolved against the config
// file's directory, or "" when disk uploads are not configured.
func (c *Config) UploadsPath() string {
	if c.Uploads.Dir == "" {
		return ""
	}
	if filepath.IsAbs(c.Uploads.Dir) {
		return c.Uploads.Dir
	}
	return filepath.Join(c.Dir(), c.Uploads.Dir)
}

// applyDefaults fills in fields an explicit empty value cleared.
func (c *Config) applyDefaults() {
	if c.Pages == "" {
		c.Pages = DefaultPagesDir
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Uploads.MaxAge == "" {
		c.Uploads.MaxAge = DefaultUploadAge
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.Address != "" {
		c.Metrics.Enabled = true
	}
}

// Validate checks the configuration for values the server cannot use.
func (c *Config) Validate() error {
	durations := []struct {
		field string
		value string
	}{
		{"server.shutdownTimeout", c.Server.ShutdownTimeout},
		{"server.userIdleTTL", c.Server.UserIdleTTL},
		{"connection.readTimeout", c.Connection.ReadTimeout},
		{"connection.writeTimeout", c.Connection.WriteTimeout},
		{"connection.heartbeatInterval", c.Connection.HeartbeatInterval},
		{"connection.callTimeout", c.Connection.CallTimeout},
		{"uploads.maxAge", c.Uploads.MaxAge},
	}
	for _, d := range durations {
		if _, err := parseDuration(d.value); err != nil {
			return invalidValue(c, d.field, err.Error()).
				WithSuggestion(`Use a duration such as "30s", "5m" or "24h"`)
		}
	}

	counts := []struct {
		field string
		value int64
	}{
		{"server.maxConnections", int64(c.Server.MaxConnections)},
		{"connection.maxMessageSize", c.Connection.MaxMessageSize},
		{"connection.maxEventQueue", int64(c.Connection.MaxEventQueue)},
		{"connection.maxBufferedReplies", int64(c.Connection.MaxBufferedReplies)},
		{"uploads.maxSize", c.Uploads.MaxSize},
	}
	for _, n := range counts {
		if n.value < 0 {
			return invalidValue(c, n.field, "must not be negative, got "+strconv.FormatInt(n.value, 10))
		}
	}

	if c.Uploads.Dir != "" && c.Uploads.S3 != nil {
		return invalidValue(c, "uploads", "dir and s3 cannot both be set").
			WithSuggestion("Choose one download store")
	}
	if c.Uploads.S3 != nil && c.Uploads.S3.Bucket == "" {
		return invalidValue(c, "uploads.s3.bucket", "bucket is required")
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalidValue(c, "metrics.path", "must start with /, got "+strconv.Quote(c.Metrics.Path))
	}
	return nil
}

func invalidValue(c *Config, field, msg string) *errors.Error {
	detail := field + ": " + msg
	if c.configPath != "" {
		detail += " (in " + c.configPath + ")"
	}
	return errors.New("E102").WithDetail(detail)
}

// parseDuration accepts the empty string as zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, stderrors.New("must not be negative")
	}
	return d, nil
}

// ServerConfig converts the file's settings into a server configuration.
// Zero values are left for server.New to fill in. The download store is
// not set here; callers open it with the settings in c.Uploads.
func (c *Config) ServerConfig() *server.ServerConfig {
	cfg := server.DefaultServerConfig()
	cfg.Address = c.Server.Address
	cfg.DevMode = c.Server.DevMode
	cfg.MaxConnections = c.Server.MaxConnections
	cfg.SecureCookies = c.Server.SecureCookies
	cfg.TrustClientUID = c.Server.TrustClientUID
	cfg.TrustedProxies = append([]string(nil), c.Server.TrustedProxies...)
	cfg.AllowedRedirectHosts = append([]string(nil), c.Server.AllowedRedirectHosts...)
	if d, _ := parseDuration(c.Server.ShutdownTimeout); d > 0 {
		cfg.ShutdownTimeout = d
	}
	if d, _ := parseDuration(c.Server.UserIdleTTL); d > 0 {
		cfg.UserIdleTTL = d
	}
	if len(c.UserVars) > 0 {
		cfg.UserVars = make(map[string]any, len(c.UserVars))
		for k, v := range c.UserVars {
			cfg.UserVars[k] = v
		}
	}

	cc := cfg.ConnectionConfig
	if d, _ := parseDuration(c.Connection.ReadTimeout); d > 0 {
		cc.ReadTimeout = d
	}
	if d, _ := parseDuration(c.Connection.WriteTimeout); d > 0 {
		cc.WriteTimeout = d
	}
	if d, _ := parseDuration(c.Connection.HeartbeatInterval); d > 0 {
		cc.HeartbeatInterval = d
	}
	if d, _ := parseDuration(c.Connection.CallTimeout); d > 0 {
		cc.CallTimeout = d
	}
	if c.Connection.MaxMessageSize > 0 {
		cc.MaxMessageSize = c.Connection.MaxMessageSize
	}
	if c.Connection.MaxEventQueue > 0 {
		cc.MaxEventQueue = c.Connection.MaxEventQueue
	}
	if c.Connection.MaxBufferedReplies > 0 {
		cc.MaxBufferedReplies = c.Connection.MaxBufferedReplies
	}
	return cfg
}

// UploadMaxAge returns how long unclaimed downloads are kept.
func (c *Config) UploadMaxAge() time.Duration {
	d, _ := parseDuration(c.Uploads.MaxAge)
	return d
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing domwire.json, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E100").
				WithDetail("No " + ConfigFileName + " found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}
