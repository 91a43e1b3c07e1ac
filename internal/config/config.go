package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Stats  StatsConfig  `yaml:"stats" mapstructure:"stats"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the event store backend.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite memory"`
	Path   string `yaml:"path" mapstructure:"path" validate:"required_if=Driver sqlite"`
}

// ServerConfig configures the results API.
type ServerConfig struct {
	Port  int    `yaml:"port" mapstructure:"port" validate:"min=1,max=65535"`
	Token string `yaml:"token" mapstructure:"token"`
}

// StatsConfig holds inference defaults used by the CLI and the API.
type StatsConfig struct {
	Confidence  float64 `yaml:"confidence" mapstructure:"confidence" validate:"gt=0,lt=1"`
	Power       float64 `yaml:"power" mapstructure:"power" validate:"gt=0,lt=1"`
	Simulations int     `yaml:"simulations" mapstructure:"simulations" validate:"min=1"`
	Workers     int     `yaml:"workers" mapstructure:"workers" validate:"min=1"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

var validate = validator.New()

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("funnelstat")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FUNNELSTAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "./funnelstat.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.token", "")
	v.SetDefault("stats.confidence", 0.95)
	v.SetDefault("stats.power", 0.8)
	v.SetDefault("stats.simulations", 10000)
	v.SetDefault("stats.workers", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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
	if err := validate.Struct(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: validate")
	}

	return &cfg, nil
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
