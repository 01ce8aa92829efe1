// config/config.go
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dalemusser/formcheck/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix is prepended to every key when reading environment variables,
// e.g. http_port → FORMCHECK_HTTP_PORT.
const EnvPrefix = "FORMCHECK"

// Check kinds understood by the CLI and the HTTP API.
const (
	KindEmail = "email"
	KindBlank = "blank"
)

// HTTPConfig groups the settings used when running with --serve.
type HTTPConfig struct {
	HTTPPort int `mapstructure:"http_port"`

	// Durations are parsed separately so plain seconds ("30") are accepted.
	ReadTimeout     time.Duration `mapstructure:"-"`
	WriteTimeout    time.Duration `mapstructure:"-"`
	ShutdownTimeout time.Duration `mapstructure:"-"`

	// Per-client limits on /v1 routes; RateLimitRPS 0 disables limiting.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy bool `mapstructure:"trust_proxy"`
}

// CheckConfig groups the settings that shape how values are checked.
type CheckConfig struct {
	Kind            string `mapstructure:"kind"`             // "email" | "blank"
	CaseInsensitive bool   `mapstructure:"case_insensitive"` // accept A-Z in email addresses
	MaxBatch        int    `mapstructure:"max_batch"`        // max checks per batch request
	MessagesFile    string `mapstructure:"messages_file"`    // optional YAML message overrides
}

// Config is the complete formcheck configuration.
type Config struct {
	// runtime
	Env      string `mapstructure:"env"`       // "dev" | "prod"
	LogLevel string `mapstructure:"log_level"` // debug, info, warn, error …
	Serve    bool   `mapstructure:"serve"`

	HTTP  HTTPConfig  `mapstructure:",squash"`
	Check CheckConfig `mapstructure:",squash"`

	MaxRequestBodyBytes int64 `mapstructure:"max_request_body_bytes"`

	// ShowVersion is set by --version only; it is not read from env or files.
	ShowVersion bool `mapstructure:"-"`
}

// Dump returns a pretty JSON string of the config for debugging.
func (c Config) Dump() string {
	b, _ := json.MarshalIndent(c, "", "  ")
	return string(b)
}

// Load merges defaults → config.* file(s) → env vars → explicit flags into one Config.
// Final precedence (highest wins): flags(explicit) > env > config > defaults.
//
// args are the command-line arguments without the program name. The
// positional (non-flag) arguments are returned alongside the config.
func Load(logger *zap.Logger, args []string) (*Config, []string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// 0) Optionally load .env (real env still wins over .env)
	if err := godotenv.Load(); err == nil {
		logger.Info("Loaded .env file")
	}

	// 1) Flags (only *explicitly set* flags will override)
	fs := NewFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	// 2) Viper + env
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, k := range allKeys() {
		_ = v.BindEnv(k)
	}

	// 3) Optional config.* files (yaml|yml|json|toml)
	for _, ext := range [...]string{"yaml", "yml", "json", "toml"} {
		file := "config." + ext
		if _, err := os.Stat(file); err != nil {
			continue
		}
		b, err := os.ReadFile(file)
		if err != nil {
			logger.Warn("cannot read config file", zap.String("file", file), zap.Error(err))
			continue
		}
		v.SetConfigType(ext)
		if err := v.MergeConfig(bytes.NewReader(b)); err != nil {
			logger.Warn("cannot decode config file", zap.String("file", file), zap.Error(err))
			continue
		}
		logger.Info("Loaded config file", zap.String("file", file))
	}

	// 4) Defaults (lowest precedence)
	setDefaults(v)

	// 5) Apply *explicit* flags (highest precedence)
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			_ = v.BindPFlag(f.Name, f)
		}
	})

	// 6) Build struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	cfg.Check.Kind = strings.ToLower(strings.TrimSpace(cfg.Check.Kind))

	// 7) Durations
	cfg.HTTP.ReadTimeout = durationKey(logger, v, "read_timeout", 15*time.Second)
	cfg.HTTP.WriteTimeout = durationKey(logger, v, "write_timeout", 15*time.Second)
	cfg.HTTP.ShutdownTimeout = durationKey(logger, v, "shutdown_timeout", 10*time.Second)

	cfg.ShowVersion, _ = fs.GetBool("version")

	// 8) Validate
	if err := validateConfig(cfg); err != nil {
		return nil, nil, err
	}

	return &cfg, fs.Args(), nil
}

// NewFlagSet defines every flag formcheck understands. Defaults shown in
// --help match setDefaults.
func NewFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("formcheck", pflag.ContinueOnError)

	fs.String("env", "dev", `Runtime environment "dev"|"prod"`)
	fs.String("log_level", "info", "Log level")

	fs.String("kind", KindEmail, `What to check: "email" or "blank"`)
	fs.Bool("case_insensitive", false, "Accept uppercase ASCII letters in email addresses")

	fs.Bool("serve", false, "Run the HTTP check API instead of checking arguments")
	fs.Int("http_port", 8080, "HTTP port")
	fs.String("read_timeout", "15s", `HTTP read timeout (e.g., "15s" or "15")`)
	fs.String("write_timeout", "15s", `HTTP write timeout (e.g., "15s" or "15")`)
	fs.String("shutdown_timeout", "10s", `Graceful shutdown timeout (e.g., "10s" or "10")`)
	fs.Float64("rate_limit_rps", 0, "Per-client requests per second on /v1 (0 disables)")
	fs.Int("rate_limit_burst", 20, "Per-client burst size on /v1")
	fs.Bool("trust_proxy", false, "Use X-Forwarded-For/X-Real-IP as the client address (only behind a proxy that sets them)")
	fs.Int("max_batch", 1000, "Max checks per batch request")
	fs.String("messages_file", "", "YAML file of validation messages by locale")
	fs.Int64("max_request_body_bytes", 1<<20, "Max HTTP request body size in bytes (0 = unlimited)")
	fs.Bool("version", false, "Print the version and exit")

	return fs
}

func allKeys() []string {
	return []string{
		"env", "log_level",
		"kind", "case_insensitive",
		"serve", "http_port",
		"read_timeout", "write_timeout", "shutdown_timeout",
		"rate_limit_rps", "rate_limit_burst", "trust_proxy",
		"max_batch", "messages_file", "max_request_body_bytes",
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")

	v.SetDefault("kind", KindEmail)
	v.SetDefault("case_insensitive", false)

	v.SetDefault("serve", false)
	v.SetDefault("http_port", 8080)
	v.SetDefault("read_timeout", "15s")
	v.SetDefault("write_timeout", "15s")
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("rate_limit_rps", 0.0)
	v.SetDefault("rate_limit_burst", 20)
	v.SetDefault("trust_proxy", false)
	v.SetDefault("max_batch", 1000)
	v.SetDefault("messages_file", "")
	v.SetDefault("max_request_body_bytes", int64(1<<20))
}

func durationKey(logger *zap.Logger, v *viper.Viper, key string, def time.Duration) time.Duration {
	d, err := parseDurationFlexible(v.Get(key), def)
	if err != nil {
		logger.Warn("invalid "+key+"; using default",
			zap.Any("value", v.Get(key)), zap.Duration("default", def), zap.Error(err))
	}
	return d
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Env != "dev" && cfg.Env != "prod" {
		invalid = append(invalid, `env must be "dev" or "prod"`)
	}
	if !logging.IsValidLogLevel(cfg.LogLevel) {
		invalid = append(invalid, "log_level must be one of "+strings.Join(logging.ValidLogLevels, ", "))
	}
	if cfg.Check.Kind != KindEmail && cfg.Check.Kind != KindBlank {
		invalid = append(invalid, `kind must be "email" or "blank"`)
	}
	if cfg.Check.MaxBatch <= 0 {
		invalid = append(invalid, "max_batch must be > 0")
	}
	if cfg.MaxRequestBodyBytes < 0 {
		invalid = append(invalid, "max_request_body_bytes must be >= 0")
	}

	// Server settings only matter when serving.
	if cfg.Serve {
		if cfg.HTTP.HTTPPort <= 0 || cfg.HTTP.HTTPPort > 65535 {
			invalid = append(invalid, "http_port must be in 1..65535")
		}
		if cfg.HTTP.ReadTimeout <= 0 || cfg.HTTP.WriteTimeout <= 0 || cfg.HTTP.ShutdownTimeout <= 0 {
			invalid = append(invalid, "read_timeout, write_timeout and shutdown_timeout must be > 0")
		}
		if cfg.HTTP.RateLimitRPS < 0 {
			invalid = append(invalid, "rate_limit_rps must be >= 0")
		}
		if cfg.HTTP.RateLimitRPS > 0 && cfg.HTTP.RateLimitBurst <= 0 {
			invalid = append(invalid, "rate_limit_burst must be > 0 when rate_limit_rps is set")
		}
	}

	if len(invalid) == 0 {
		return nil
	}
	return fmt.Errorf("configuration errors: invalid: %s", strings.Join(invalid, ", "))
}
