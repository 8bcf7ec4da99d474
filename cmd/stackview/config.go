package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/gogpu/stackview"
	"github.com/gogpu/stackview/cache"
	"github.com/gogpu/stackview/cache/leveldb"
	"github.com/gogpu/stackview/cache/redis"
	"github.com/gogpu/stackview/view"
)

// DefaultConfigFileName is the config file looked up without --config.
const DefaultConfigFileName = "stackview"

// Config holds the command configuration.
// Priority: flags > environment (STACKVIEW_*) > config file > defaults.
type Config struct {
	Cache   CacheConfig   `mapstructure:"cache"`
	Viewer  ViewerConfig  `mapstructure:"viewer"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// CacheConfig selects where image bytes are cached.
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"` // memory, leveldb, redis
	Path          string        `mapstructure:"path"`    // leveldb directory
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPrefix   string        `mapstructure:"redis_prefix"`
	Budget        string        `mapstructure:"budget"` // e.g. "50MB"
	MaxAge        time.Duration `mapstructure:"max_age"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ViewerConfig configures the viewer session.
type ViewerConfig struct {
	Width        int           `mapstructure:"width"`
	Height       int           `mapstructure:"height"`
	Profile      string        `mapstructure:"profile"` // desktop, touch
	PreloadRange int           `mapstructure:"preload_range"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables
}

// LoadConfig reads cfgFile, or stackview.yaml from the working directory
// when cfgFile is empty, into v and decodes the result.
func LoadConfig(v *viper.Viper, cfgFile string) (*Config, error) {
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix("STACKVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.path", "stackview-cache")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_prefix", "stackview")
	v.SetDefault("cache.budget", humanize.IBytes(uint64(cache.DefaultMaxBytes)))
	v.SetDefault("cache.max_age", cache.DefaultMaxAge)
	v.SetDefault("cache.sweep_interval", cache.DefaultSweepInterval)

	v.SetDefault("viewer.width", stackview.DefaultWidth)
	v.SetDefault("viewer.height", stackview.DefaultHeight)
	v.SetDefault("viewer.profile", view.Desktop.Name)
	v.SetDefault("viewer.preload_range", 2)
	v.SetDefault("viewer.timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// BudgetBytes parses the human-readable cache budget.
func (c CacheConfig) BudgetBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.Budget)
	if err != nil {
		return 0, fmt.Errorf("cache budget %q: %w", c.Budget, err)
	}
	return int64(n), nil
}

// OpenBackend opens the configured cache backend.
func (c CacheConfig) OpenBackend(ctx context.Context) (cache.Backend, error) {
	switch strings.ToLower(c.Backend) {
	case "", "memory":
		return cache.NewMemoryBackend(0), nil
	case "leveldb":
		return leveldb.Open(c.Path, 0)
	case "redis":
		return redis.Dial(ctx, c.RedisAddr, c.RedisPrefix, 0)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", c.Backend)
	}
}

// DeviceProfile returns the named zoom profile.
func (c ViewerConfig) DeviceProfile() (view.Profile, error) {
	switch strings.ToLower(c.Profile) {
	case "", view.Desktop.Name:
		return view.Desktop, nil
	case view.Touch.Name:
		return view.Touch, nil
	default:
		return view.Profile{}, fmt.Errorf("unknown profile %q", c.Profile)
	}
}

// NewLogger builds the logger described by c, writing to w.
func (c LoggingConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", c.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", c.Format)
	}
}

// viewerOptions translates the configuration into viewer options. The
// opened backend is handed to the viewer, which closes it.
func viewerOptions(ctx context.Context, cfg *Config) ([]stackview.Option, error) {
	budget, err := cfg.Cache.BudgetBytes()
	if err != nil {
		return nil, err
	}
	profile, err := cfg.Viewer.DeviceProfile()
	if err != nil {
		return nil, err
	}
	backend, err := cfg.Cache.OpenBackend(ctx)
	if err != nil {
		return nil, err
	}
	return []stackview.Option{
		stackview.WithBackend(backend),
		stackview.WithCacheBudget(budget),
		stackview.WithCacheMaxAge(cfg.Cache.MaxAge),
		stackview.WithSweepInterval(cfg.Cache.SweepInterval),
		stackview.WithProfile(profile),
		stackview.WithSize(cfg.Viewer.Width, cfg.Viewer.Height),
		stackview.WithPreloadRange(cfg.Viewer.PreloadRange),
		stackview.WithTimeout(cfg.Viewer.Timeout),
	}, nil
}
