// Package conf loads the collector configuration from file and
// environment.
package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/klangscribe/collector/internal/notify"
	"github.com/klangscribe/collector/internal/pkg/database"
	"github.com/klangscribe/collector/internal/pkg/logger"
	"github.com/klangscribe/collector/internal/pkg/minio"
	"github.com/klangscribe/collector/internal/server"
	"github.com/klangscribe/collector/internal/storage"
	"github.com/spf13/viper"
)

// PollerConfig controls directory discovery.
type PollerConfig struct {
	// Enabled gates the poll loop; the sweep loop runs regardless.
	Enabled bool `mapstructure:"enabled"`
	// Interval is the minimum time between poll ticks.
	Interval time.Duration `mapstructure:"interval"`
	// MaxPerTick caps new directories claimed per tick.
	MaxPerTick int `mapstructure:"maxpertick"`
	// Workers sizes the ingestion worker pool.
	Workers int `mapstructure:"workers"`
}

// SweepConfig controls stuck-claim recovery.
type SweepConfig struct {
	// Interval is the time between sweep passes.
	Interval time.Duration `mapstructure:"interval"`
	// StuckTimeout is how long a claim may sit in processing before
	// the sweep marks it failed.
	StuckTimeout time.Duration `mapstructure:"stucktimeout"`
}

// Config is the root configuration for the collector.
type Config struct {
	WatchRoot string            `mapstructure:"watchroot"`
	Poller    PollerConfig      `mapstructure:"poller"`
	Sweep     SweepConfig       `mapstructure:"sweep"`
	Database  database.Config   `mapstructure:"database"`
	MinIO     minio.Config      `mapstructure:"minio"`
	Storage   storage.Config    `mapstructure:"storage"`
	Log       logger.Config     `mapstructure:"log"`
	Server    server.Config     `mapstructure:"server"`
	Mail      notify.MailConfig `mapstructure:"mail"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("watchroot", "data/incoming")

	v.SetDefault("poller.enabled", false)
	v.SetDefault("poller.interval", "2s")
	v.SetDefault("poller.maxpertick", 20)
	v.SetDefault("poller.workers", 4)

	v.SetDefault("sweep.interval", "1h")
	v.SetDefault("sweep.stucktimeout", "24h")

	db := database.DefaultConfig()
	v.SetDefault("database.host", db.Host)
	v.SetDefault("database.port", db.Port)
	v.SetDefault("database.user", db.User)
	v.SetDefault("database.password", db.Password)
	v.SetDefault("database.dbname", db.DBName)
	v.SetDefault("database.sslmode", db.SSLMode)
	v.SetDefault("database.maxidleconns", db.MaxIdleConns)
	v.SetDefault("database.maxopenconns", db.MaxOpenConns)
	v.SetDefault("database.connmaxlifetime", db.ConnMaxLifetime)
	v.SetDefault("database.connmaxidletime", db.ConnMaxIdleTime)
	v.SetDefault("database.loglevel", db.LogLevel)
	v.SetDefault("database.slowthreshold", db.SlowThreshold)
	v.SetDefault("database.skipdefaulttx", db.SkipDefaultTx)
	v.SetDefault("database.preparestmt", db.PrepareStmt)
	v.SetDefault("database.timezone", db.Timezone)

	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.usessl", false)
	v.SetDefault("minio.connecttimeout", "10s")
	v.SetDefault("minio.requesttimeout", "30s")

	sc := storage.DefaultConfig()
	v.SetDefault("storage.bucket", sc.Bucket)

	lc := logger.DefaultConfig()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.format", lc.Format)
	v.SetDefault("log.output", lc.Output)
	v.SetDefault("log.enablecaller", lc.EnableCaller)
	v.SetDefault("log.enablestacktrace", lc.EnableStacktrace)
	v.SetDefault("log.file.filename", lc.File.Filename)
	v.SetDefault("log.file.maxsize", lc.File.MaxSize)
	v.SetDefault("log.file.maxage", lc.File.MaxAge)
	v.SetDefault("log.file.maxbackups", lc.File.MaxBackups)
	v.SetDefault("log.file.compress", lc.File.Compress)

	srv := server.DefaultConfig()
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", srv.Host)
	v.SetDefault("server.port", srv.Port)

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.port", 587)
}

// LoadConfig reads configuration from the given file, with environment
// overrides under the COLLECTOR_ prefix. A missing config file is fine;
// defaults and environment cover everything.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
			}
		}
	}

	v.SetEnvPrefix("COLLECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.WatchRoot == "" {
		return fmt.Errorf("watchroot is required")
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("poller interval must be positive")
	}
	if c.Poller.MaxPerTick <= 0 {
		return fmt.Errorf("poller maxpertick must be positive")
	}
	if c.Sweep.Interval <= 0 || c.Sweep.StuckTimeout <= 0 {
		return fmt.Errorf("sweep interval and stucktimeout must be positive")
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("invalid database config: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}
	return nil
}
