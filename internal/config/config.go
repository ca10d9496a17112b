package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "CONSULT"

type Config struct {
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	StaticPath     string        `mapstructure:"static_path"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	PublicBaseURL  string        `mapstructure:"public_base_url"`
	FileBaseURL    string        `mapstructure:"file_base_url"`
	UploadDir      string        `mapstructure:"upload_dir"`
	UploadMaxBytes int64         `mapstructure:"upload_max_bytes"`
	SignalRate     float64       `mapstructure:"signal_rate"`
	SignalBurst    int           `mapstructure:"signal_burst"`
	Backpressure   string        `mapstructure:"backpressure"`
	LogLevel       string        `mapstructure:"log_level"`
}

// ClientConfig drives the headless consultation client.
type ClientConfig struct {
	Server    string   `mapstructure:"server"`
	Room      string   `mapstructure:"room"`
	Name      string   `mapstructure:"name"`
	Role      string   `mapstructure:"role"`
	STUN      []string `mapstructure:"stun"`
	Secret    string   `mapstructure:"secret"`
	Audio     string   `mapstructure:"audio"`
	Video     string   `mapstructure:"video"`
	Screen    string   `mapstructure:"screen"`
	RecordDir string   `mapstructure:"record_dir"`
	LogLevel  string   `mapstructure:"log_level"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv reads .env into the process environment when one exists.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg(".env not loaded")
	}
}

func setServerDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("public_base_url", "http://localhost:4200")
	v.SetDefault("file_base_url", "")
	v.SetDefault("upload_dir", "./uploads")
	v.SetDefault("upload_max_bytes", 10<<20)
	v.SetDefault("signal_rate", 50)
	v.SetDefault("signal_burst", 100)
	v.SetDefault("backpressure", "drop")
	v.SetDefault("log_level", "info")
}

func Load() (*Config, error) {
	LoadDotEnv()

	v := newViper()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setServerDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Backpressure != "drop" && cfg.Backpressure != "kick" {
		return nil, fmt.Errorf("backpressure must be drop or kick, got %q", cfg.Backpressure)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

func SetClientDefaults(v *viper.Viper) {
	v.SetDefault("server", "ws://localhost:8080/ws/signal")
	v.SetDefault("role", "patient")
	v.SetDefault("stun", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("log_level", "info")
}

// LoadClient unmarshals v, which the caller has already bound to flags.
func LoadClient(v *viper.Viper) (*ClientConfig, error) {
	LoadDotEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetClientDefaults(v)

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	return &cfg, nil
}
