package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/marco/cinematch/internal/retry"
)

// Config represents the application configuration
type Config struct {
	TMDB    TMDBConfig    `yaml:"tmdb"`
	Data    DataConfig    `yaml:"data"`
	Cache   CacheConfig   `yaml:"cache"`
	History HistoryConfig `yaml:"history"`
	Options OptionsConfig `yaml:"options"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// TMDBConfig holds TMDB API configuration
type TMDBConfig struct {
	APIKey       string `yaml:"api_key" validate:"required"`
	Language     string `yaml:"language"`
	BaseURL      string `yaml:"base_url" validate:"omitempty,url"`
	ImageBaseURL string `yaml:"image_base_url" validate:"omitempty,url"`
}

// DataConfig points at the similarity artifact
type DataConfig struct {
	Catalog string `yaml:"catalog" validate:"required"`
	Matrix  string `yaml:"matrix" validate:"required"`
	// AmbiguousTitles maps a bare title to the year token preferred when
	// several catalog entries share it.
	AmbiguousTitles map[string]string `yaml:"ambiguous_titles"`
}

// CacheConfig selects the metadata cache backend
type CacheConfig struct {
	Backend string `yaml:"backend" validate:"oneof=file sqlite badger memory"`
	Path    string `yaml:"path" validate:"required_unless=Backend memory"`
}

// HistoryConfig holds the user and search history database
type HistoryConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// OptionsConfig holds tuning options. The pointer fields accept an
// explicit 0; only an absent key takes the default.
type OptionsConfig struct {
	RateLimitDelay   *int   `yaml:"rate_limit_delay" validate:"omitempty,min=0"` // milliseconds, 0 disables spacing
	MaxAttempts      int    `yaml:"max_attempts" validate:"min=1,max=10"`
	RequestTimeout   int    `yaml:"request_timeout" validate:"min=1"` // seconds
	TransportRetries *int   `yaml:"transport_retries" validate:"omitempty,min=0,max=10"`
	InitialBackoff   *int   `yaml:"initial_backoff" validate:"omitempty,min=0"` // milliseconds
	Recommendations  int    `yaml:"recommendations" validate:"min=1,max=100"`
	DiscoverCount    int    `yaml:"discover_count" validate:"min=1,max=20"`
	BreakerFailures  uint32 `yaml:"breaker_failures"`
	BreakerTimeout   int    `yaml:"breaker_timeout"` // seconds
}

// ServerConfig holds HTTP server and background job settings
type ServerConfig struct {
	Addr          string   `yaml:"addr" validate:"required"`
	RateLimit     int      `yaml:"rate_limit" validate:"min=0"` // requests per minute per IP, 0 disables
	CORSOrigins   []string `yaml:"cors_origins"`
	WatchArtifact bool     `yaml:"watch_artifact"`
	WatchDebounce int      `yaml:"watch_debounce"`                 // milliseconds
	WarmInterval  int      `yaml:"warm_interval" validate:"min=0"` // minutes, 0 disables
	WarmBatch     int      `yaml:"warm_batch" validate:"min=0"`
	WarmWorkers   int      `yaml:"warm_workers" validate:"min=0,max=8"`
}

// LoggingConfig holds log settings
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal off disabled"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

// ErrMissingAPIKey is returned when no usable TMDB API key is configured.
var ErrMissingAPIKey = errors.New("TMDB API key is required. Get one from https://www.themoviedb.org/settings/api")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Load reads and parses the configuration file. A .env file next to it is
// loaded first so that ${VARS} in the YAML can come from it.
func Load(path string) (*Config, error) {
	// Expand ~ to home directory if present
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}

	// Existing environment variables win over .env entries.
	if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse([]byte(os.ExpandEnv(string(data))), filepath.Dir(path))
}

// Parse decodes YAML config, applies defaults and validates. Relative data,
// cache and history paths are resolved against baseDir.
func Parse(data []byte, baseDir string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.TMDB.APIKey == "" {
		cfg.TMDB.APIKey = os.Getenv("TMDB_API_KEY")
	}
	if cfg.TMDB.APIKey == "" || cfg.TMDB.APIKey == "your_api_key_here" {
		return nil, ErrMissingAPIKey
	}

	cfg.applyDefaults()
	cfg.resolvePaths(baseDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validatorInstance().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.TMDB.Language == "" {
		c.TMDB.Language = "en-US"
	}
	if c.Data.Catalog == "" {
		c.Data.Catalog = "data/catalog.json"
	}
	if c.Data.Matrix == "" {
		c.Data.Matrix = "data/similarity.gob"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "file"
	}
	if c.Cache.Path == "" && c.Cache.Backend != "memory" {
		switch c.Cache.Backend {
		case "sqlite":
			c.Cache.Path = "data/cache.db"
		case "badger":
			c.Cache.Path = "data/cache.badger"
		default:
			c.Cache.Path = "poster_cache.json"
		}
	}
	if c.History.Path == "" {
		c.History.Path = "data/history.db"
	}

	o := &c.Options
	if o.RateLimitDelay == nil {
		o.RateLimitDelay = intPtr(750)
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 3
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 10
	}
	if o.TransportRetries == nil {
		o.TransportRetries = intPtr(5)
	}
	if o.InitialBackoff == nil {
		o.InitialBackoff = intPtr(1000)
	}
	if o.Recommendations == 0 {
		o.Recommendations = 5
	}
	if o.DiscoverCount == 0 {
		o.DiscoverCount = 5
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = 5
	}
	if o.BreakerTimeout == 0 {
		o.BreakerTimeout = 60
	}

	s := &c.Server
	if s.Addr == "" {
		s.Addr = ":8080"
	}
	if s.WatchDebounce == 0 {
		s.WatchDebounce = 2000
	}
	if s.WarmBatch == 0 {
		s.WarmBatch = 50
	}
	if s.WarmWorkers == 0 {
		s.WarmWorkers = 1
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

func intPtr(v int) *int { return &v }

func (c *Config) resolvePaths(baseDir string) {
	if baseDir == "" {
		return
	}
	for _, p := range []*string{&c.Data.Catalog, &c.Data.Matrix, &c.Cache.Path, &c.History.Path} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}
}

// RetryPolicy builds the retry policy from the options section.
func (c *Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = c.Options.MaxAttempts
	p.Timeout = time.Duration(c.Options.RequestTimeout) * time.Second
	if c.Options.TransportRetries != nil {
		p.TransportRetries = *c.Options.TransportRetries
	}
	if c.Options.InitialBackoff != nil {
		p.InitialBackoff = time.Duration(*c.Options.InitialBackoff) * time.Millisecond
	}
	return p
}

// RateLimitDelay returns the minimum spacing between TMDB requests. A
// configured 0 is returned as -1, which the TMDB client reads as unlimited.
func (c *Config) RateLimitDelay() time.Duration {
	if c.Options.RateLimitDelay == nil {
		return 0
	}
	if *c.Options.RateLimitDelay == 0 {
		return -1
	}
	return time.Duration(*c.Options.RateLimitDelay) * time.Millisecond
}
