package switchboard

import (
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the YAML-backed server configuration. All fields have working
// defaults, so an empty file (or no file at all, via DefaultConfig) yields a
// usable server.
//
// Example:
//
//	port: "8080"
//	workers: 16
//	log_requests: 1
//	async:
//	  timeout: 10s
//	  stack_dump: true
//	log:
//	  level: info
//	  format: json
//	database:
//	  host: 10.0.0.3
//	  port: "5432"
type Config struct {
	Port        string                 `yaml:"port"`
	Workers     int32                  `yaml:"workers"`
	Silent      bool                   `yaml:"silent"`
	LogRequests int                    `yaml:"log_requests"`
	Cors        CorsConfig             `yaml:"cors"`
	Async       AsyncConfig            `yaml:"async"`
	Log         LogConfig              `yaml:"log"`
	Database    *DatabaseConfiguration `yaml:"database"`
}

// CorsConfig holds the three CORS header values applied to every response.
type CorsConfig struct {
	Origin  string `yaml:"origin"`
	Headers string `yaml:"headers"`
	Methods string `yaml:"methods"`
}

// AsyncConfig configures the async exchange: the default deadline for
// suspended responses and whether timeout errors embed a goroutine stack
// snapshot.
type AsyncConfig struct {
	Timeout   Duration `yaml:"timeout"`
	StackDump bool     `yaml:"stack_dump"`
}

// LogConfig selects the logger's verbosity and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration wraps time.Duration so YAML values can be written as "30s" or
// "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// DefaultConfig returns a Config with the same defaults NewApplication uses.
func DefaultConfig() *Config {
	return &Config{
		Port:    "8080",
		Workers: 10,
		Cors: CorsConfig{
			Origin:  "*",
			Headers: "*",
			Methods: "GET, PUT, POST, DELETE, HEAD, PATCH",
		},
		Async: AsyncConfig{
			Timeout: Duration(30 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads a YAML configuration file and overlays it on the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BuildLogger constructs a zap logger from the log block. An unrecognized
// level is an error; format "console" selects the human-readable encoder,
// everything else JSON.
func (c *LogConfig) BuildLogger() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, err
		}
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	if c.Format == "console" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return zcfg.Build()
}

// DatabaseConfiguration holds the connection parameters for the application's
// PostgreSQL pool. The pool itself is framework plumbing: it is built once at
// startup and handed to every route handler through RouteRequest.
type DatabaseConfiguration struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DatabaseFromEnvironmentWithFallback reads the DATABASE_* environment
// variables, filling any unset value from the provided fallbacks.
func DatabaseFromEnvironmentWithFallback(host string, port int, username string, password string, database string) DatabaseConfiguration {
	cfg := DatabaseConfiguration{
		Host:     os.Getenv("DATABASE_HOST"),
		Port:     os.Getenv("DATABASE_PORT"),
		Username: os.Getenv("DATABASE_USERNAME"),
		Password: os.Getenv("DATABASE_PASSWORD"),
		Database: os.Getenv("DATABASE_DATABASE"),
	}
	if cfg.Host == "" {
		cfg.Host = host
	}
	if cfg.Port == "" {
		cfg.Port = strconv.Itoa(port)
	}
	if cfg.Username == "" {
		cfg.Username = username
	}
	if cfg.Password == "" {
		cfg.Password = password
	}
	if cfg.Database == "" {
		cfg.Database = database
	}
	return cfg
}

// GetConnectionString assembles a postgres:// connection string for pgxpool.
func (self *DatabaseConfiguration) GetConnectionString() string {
	return "postgres://" + self.Username + ":" + self.Password + "@" + self.Host + ":" + self.Port + "/" + self.Database
}
