package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	Secret         string        `mapstructure:"secret"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	SlowConsumer   string        `mapstructure:"slow_consumer"`
	DrainTimeout   time.Duration `mapstructure:"drain_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
	LogLevel       string        `mapstructure:"log_level"`

	CallTimeout      time.Duration `mapstructure:"call_timeout"`
	RegionCheck      bool          `mapstructure:"region_check"`
	CallRateLimit    int           `mapstructure:"call_rate_limit"`
	CallRateInterval time.Duration `mapstructure:"call_rate_interval"`

	AdminFile   string        `mapstructure:"admin_file"`
	GeoEnabled  bool          `mapstructure:"geo_enabled"`
	GeoEndpoint string        `mapstructure:"geo_endpoint"`
	GeoTimeout  time.Duration `mapstructure:"geo_timeout"`
}

// DefaultSecret is the placeholder cookie key shipped in Default.
const DefaultSecret = "change-me"

// Default returns the built-in configuration, used as-is by tests.
func Default() *Config {
	return &Config{
		Mode:             "release",
		Port:             65535,
		MaxMessageSize:   50 << 20,
		PingPeriod:       54 * time.Second,
		Secret:           DefaultSecret,
		SendBuffer:       256,
		SlowConsumer:     "drop",
		DrainTimeout:     10 * time.Second,
		AllowedOrigins:   []string{"*"},
		LogLevel:         "info",
		CallTimeout:      60 * time.Second,
		RegionCheck:      true,
		CallRateLimit:    5,
		CallRateInterval: 10 * time.Second,
		AdminFile:        "config/admins.toml",
		GeoEnabled:       true,
		GeoEndpoint:      "http://ip-api.com/json/%s?fields=status,message,countryCode,lat,lon",
		GeoTimeout:       2 * time.Second,
	}
}

// Load merges defaults, config/config.<CONFIG_ENV>.yaml, environment and
// flags, lowest to highest precedence. PORT and MAX_MESSAGE_SIZE are read
// bare; every other key also answers to RELAY_<KEY>.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	d := Default()
	v.SetDefault("mode", d.Mode)
	v.SetDefault("port", d.Port)
	v.SetDefault("max_message_size", d.MaxMessageSize)
	v.SetDefault("ping_period", d.PingPeriod)
	v.SetDefault("secret", d.Secret)
	v.SetDefault("send_buffer", d.SendBuffer)
	v.SetDefault("slow_consumer", d.SlowConsumer)
	v.SetDefault("drain_timeout", d.DrainTimeout)
	v.SetDefault("allowed_origins", d.AllowedOrigins)
	v.SetDefault("trusted_proxies", d.TrustedProxies)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("call_timeout", d.CallTimeout)
	v.SetDefault("region_check", d.RegionCheck)
	v.SetDefault("call_rate_limit", d.CallRateLimit)
	v.SetDefault("call_rate_interval", d.CallRateInterval)
	v.SetDefault("admin_file", d.AdminFile)
	v.SetDefault("geo_enabled", d.GeoEnabled)
	v.SetDefault("geo_endpoint", d.GeoEndpoint)
	v.SetDefault("geo_timeout", d.GeoTimeout)

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("port", "PORT", "RELAY_PORT"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("max_message_size", "MAX_MESSAGE_SIZE", "RELAY_MAX_MESSAGE_SIZE"); err != nil {
		return nil, err
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Int64("max_message_size", cfg.MaxMessageSize).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("invalid max_message_size %d", c.MaxMessageSize)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("invalid send_buffer %d", c.SendBuffer)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("invalid call_timeout %s", c.CallTimeout)
	}
	switch c.SlowConsumer {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid slow_consumer %q", c.SlowConsumer)
	}
	if c.Secret == "" {
		return errors.New("secret must not be empty")
	}
	if c.InsecureSecret() {
		log.Warn().Str("module", "config").Msg("release mode with the default secret, session cookies are forgeable; set secret or RELAY_SECRET")
	}
	return nil
}

// InsecureSecret reports a release deployment still signing cookies with
// the placeholder key.
func (c *Config) InsecureSecret() bool {
	return c.Mode == "release" && c.Secret == DefaultSecret
}
