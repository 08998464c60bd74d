package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Reach    ReachConfig    `yaml:"reach" mapstructure:"reach"`
	NocoDB   NocoDBConfig   `yaml:"nocodb" mapstructure:"nocodb"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PipelineConfig configures directories and filtering of a cleaning run.
type PipelineConfig struct {
	UploadDir     string `yaml:"upload_dir" mapstructure:"upload_dir"`
	OutputDir     string `yaml:"output_dir" mapstructure:"output_dir"`
	CleanCSVDir   string `yaml:"clean_csv_dir" mapstructure:"clean_csv_dir"`
	RawCSVDir     string `yaml:"raw_csv_dir" mapstructure:"raw_csv_dir"`
	RunLog        string `yaml:"run_log" mapstructure:"run_log"`
	ReferencePath string `yaml:"reference_path" mapstructure:"reference_path"`
	Country       string `yaml:"country" mapstructure:"country"`
	RemoveInput   bool   `yaml:"remove_input" mapstructure:"remove_input"`
}

// ReachConfig configures the DNS reachability checks.
type ReachConfig struct {
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutMs   int     `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// NocoDBConfig holds NocoDB API settings.
type NocoDBConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Token       string `yaml:"token" mapstructure:"token"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StoreConfig configures the job status store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP job API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	QueueSize   int      `yaml:"queue_size" mapstructure:"queue_size"`
	Workers     int      `yaml:"workers" mapstructure:"workers"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// .env is optional; existing environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GREZZI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Deployments created for the web service keep the token in TOKEN.
	if err := v.BindEnv("nocodb.token", "GREZZI_NOCODB_TOKEN", "TOKEN"); err != nil {
		return nil, eris.Wrap(err, "config: bind env")
	}

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pipeline.upload_dir", "daPulire")
	v.SetDefault("pipeline.output_dir", "puliti")
	v.SetDefault("pipeline.clean_csv_dir", "output_csv")
	v.SetDefault("pipeline.raw_csv_dir", "output_raw_csv")
	v.SetDefault("pipeline.run_log", "file_log.txt")
	v.SetDefault("pipeline.reference_path", "gi_comuni_cap.csv")
	v.SetDefault("pipeline.country", "italy")
	v.SetDefault("pipeline.remove_input", false)
	v.SetDefault("reach.concurrency", 8)
	v.SetDefault("reach.timeout_ms", 0)
	v.SetDefault("reach.rate_per_sec", 0)
	v.SetDefault("nocodb.base_url", "http://nocodb:8080")
	v.SetDefault("nocodb.max_attempts", 3)
	v.SetDefault("nocodb.batch_size", 0)
	v.SetDefault("nocodb.timeout_secs", 30)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "grezzi.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.queue_size", 16)
	v.SetDefault("server.workers", 1)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "clean", "serve" and "nocodb".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "clean", "serve":
		if c.Pipeline.ReferencePath == "" {
			errs = append(errs, "pipeline.reference_path is required")
		}
		if c.Reach.Concurrency < 1 || c.Reach.Concurrency > 256 {
			errs = append(errs, "reach.concurrency must be between 1 and 256")
		}
		if c.Reach.TimeoutMs < 0 {
			errs = append(errs, "reach.timeout_ms must be >= 0")
		}
		if c.Reach.RatePerSec < 0 {
			errs = append(errs, "reach.rate_per_sec must be >= 0")
		}
		if c.NocoDB.BatchSize < 0 {
			errs = append(errs, "nocodb.batch_size must be >= 0")
		}
		if mode == "serve" {
			if c.Server.Port <= 0 {
				errs = append(errs, "server.port must be > 0")
			}
			if c.Server.Workers < 1 {
				errs = append(errs, "server.workers must be >= 1")
			}
			if c.Server.QueueSize < 1 {
				errs = append(errs, "server.queue_size must be >= 1")
			}
			switch c.Store.Driver {
			case "sqlite", "postgres":
			default:
				errs = append(errs, "store.driver must be sqlite or postgres")
			}
		}
	case "nocodb":
		if c.NocoDB.BaseURL == "" {
			errs = append(errs, "nocodb.base_url is required")
		}
		if c.NocoDB.Token == "" {
			errs = append(errs, "nocodb.token is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
