package config

import (
	"log/slog"
	"net"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// ProxyProtocolV2 is the only recognized value for proxy_protocol.
const ProxyProtocolV2 = "v2"

type TargetConfig struct {
	Name string `mapstructure:"name"`
	Addr string `mapstructure:"addr"`
}

type ProbingConfig struct {
	Count          int    `mapstructure:"count"`
	ConnectTimeout string `mapstructure:"connect_timeout"`
	ProbeDelay     string `mapstructure:"probe_delay"`
	FailurePenalty string `mapstructure:"failure_penalty"`
}

type ForwardConfig struct {
	DialTimeout string `mapstructure:"dial_timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type AdminConfig struct {
	Address string `mapstructure:"address"`
}

type Config struct {
	BindAddr       string         `mapstructure:"bind_addr"`
	Environment    string         `mapstructure:"environment"`
	Targets        []TargetConfig `mapstructure:"targets"`
	UpdateInterval int            `mapstructure:"update_interval"`
	ProxyProtocol  string         `mapstructure:"proxy_protocol"`
	Probing        ProbingConfig  `mapstructure:"probing"`
	Forward        ForwardConfig  `mapstructure:"forward"`
	Logging        LoggingConfig  `mapstructure:"logging"`
	Admin          AdminConfig    `mapstructure:"admin"`
}

func Load() (*Config, error) {
	viper.SetDefault("bind_addr", ":9000")
	viper.SetDefault("environment", EnvDev)
	viper.SetDefault("update_interval", 30)
	viper.SetDefault("probing.count", 10)
	viper.SetDefault("probing.connect_timeout", "1s")
	viper.SetDefault("probing.probe_delay", "10ms")
	viper.SetDefault("probing.failure_penalty", "300ms")
	viper.SetDefault("forward.dial_timeout", "0s")
	viper.SetDefault("logging.level", LogLevelInfo)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Error("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BindAddr,
			validation.Required,
			validation.By(validateHostPort),
		),
		validation.Field(&c.Environment,
			validation.Required,
			validation.In(EnvDev, EnvStaging, EnvProd),
		),
		validation.Field(&c.Targets,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateTargetConfig)),
		),
		validation.Field(&c.UpdateInterval,
			validation.Required,
			validation.Min(1),
		),
		validation.Field(&c.ProxyProtocol,
			validation.In(ProxyProtocolV2),
		),
		validation.Field(&c.Probing,
			validation.Required,
			validation.By(func(value interface{}) error {
				pc, ok := value.(ProbingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ProbingConfig")
				}
				return validation.ValidateStruct(&pc,
					validation.Field(&pc.Count,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&pc.ConnectTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&pc.ProbeDelay,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&pc.FailurePenalty,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Forward,
			validation.By(func(value interface{}) error {
				fc, ok := value.(ForwardConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ForwardConfig")
				}
				return validation.ValidateStruct(&fc,
					validation.Field(&fc.DialTimeout,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Admin,
			validation.By(func(value interface{}) error {
				ac, ok := value.(AdminConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an AdminConfig")
				}
				if ac.Address == "" {
					return nil
				}
				return validateHostPort(ac.Address)
			}),
		),
	)
}

// ConnectTimeoutDuration returns the parsed per-probe connect timeout.
func (p ProbingConfig) ConnectTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(p.ConnectTimeout)
	return d
}

// ProbeDelayDuration returns the parsed delay between probe attempts.
func (p ProbingConfig) ProbeDelayDuration() time.Duration {
	d, _ := time.ParseDuration(p.ProbeDelay)
	return d
}

// FailurePenaltyDuration returns the parsed latency-equivalent failure cost.
func (p ProbingConfig) FailurePenaltyDuration() time.Duration {
	d, _ := time.ParseDuration(p.FailurePenalty)
	return d
}

// DialTimeoutDuration returns the parsed outbound dial timeout.
// Zero means no timeout.
func (f ForwardConfig) DialTimeoutDuration() time.Duration {
	if f.DialTimeout == "" {
		return 0
	}
	d, _ := time.ParseDuration(f.DialTimeout)
	return d
}

// HeaderTagging reports whether forwarded connections should be prefixed
// with a PROXY protocol v2 header.
func (c *Config) HeaderTagging() bool {
	return c.ProxyProtocol == ProxyProtocolV2
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if durationStr == "" {
		return nil
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 10ms, 1s)")
	}

	return nil
}

func validateTargetConfig(value interface{}) error {
	target, ok := value.(TargetConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a TargetConfig")
	}

	if target.Name == "" {
		return validation.NewError("validation_empty_name", "target name cannot be empty")
	}

	if target.Addr == "" {
		return validation.NewError("validation_empty_addr", "target addr cannot be empty")
	}

	return validateHostPort(target.Addr)
}
