package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"scan-service/internal/domain/scan"
)

type Config struct {
	HTTP         HTTPConfig          `mapstructure:"http"`
	Auth         AuthConfig          `mapstructure:"auth"`
	DB           DBConfig            `mapstructure:"db"`
	Log          LogConfig           `mapstructure:"log"`
	Scanner      ScannerConfig       `mapstructure:"scanner"`
	Camera       CameraConfig        `mapstructure:"camera"`
	Participants []ParticipantConfig `mapstructure:"participants"`
}

type HTTPConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type ScannerConfig struct {
	DebounceWindow    time.Duration `mapstructure:"debounce_window"`
	PauseAfterScan    time.Duration `mapstructure:"pause_after_scan"`
	ProcessingClear   time.Duration `mapstructure:"processing_clear"`
	HistoryLimit      int           `mapstructure:"history_limit"`
	EnrichTimeout     time.Duration `mapstructure:"enrich_timeout"`
	NotificationLimit int           `mapstructure:"notification_limit"`
}

type CameraConfig struct {
	Devices   []scan.CameraDevice `mapstructure:"devices"`
	QueueSize int                 `mapstructure:"queue_size"`
}

// ParticipantConfig seeds the static enricher when no database is configured.
type ParticipantConfig struct {
	Code       string `mapstructure:"code"`
	Name       string `mapstructure:"name"`
	EventName  string `mapstructure:"event_name"`
	TicketType string `mapstructure:"ticket_type"`
	Status     string `mapstructure:"status"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("scanner.debounce_window", 2*time.Second)
	v.SetDefault("scanner.pause_after_scan", 3*time.Second)
	v.SetDefault("scanner.processing_clear", 2*time.Second)
	v.SetDefault("scanner.history_limit", 20)
	v.SetDefault("scanner.enrich_timeout", 5*time.Second)
	v.SetDefault("scanner.notification_limit", 50)
	v.SetDefault("camera.queue_size", 64)
}

// Load reads config.yaml from path (or ./ and ./config when empty) and
// applies SCAN_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("SCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	s := c.Scanner
	switch {
	case s.DebounceWindow <= 0:
		return fmt.Errorf("scanner.debounce_window must be positive")
	case s.PauseAfterScan <= 0:
		return fmt.Errorf("scanner.pause_after_scan must be positive")
	case s.ProcessingClear <= 0:
		return fmt.Errorf("scanner.processing_clear must be positive")
	case s.HistoryLimit <= 0:
		return fmt.Errorf("scanner.history_limit must be positive")
	case s.EnrichTimeout <= 0:
		return fmt.Errorf("scanner.enrich_timeout must be positive")
	case s.NotificationLimit <= 0:
		return fmt.Errorf("scanner.notification_limit must be positive")
	case c.Camera.QueueSize <= 0:
		return fmt.Errorf("camera.queue_size must be positive")
	}

	seen := make(map[string]bool, len(c.Camera.Devices))
	for _, d := range c.Camera.Devices {
		if d.ID == "" {
			return fmt.Errorf("camera.devices: id is required")
		}
		if seen[d.ID] {
			return fmt.Errorf("camera.devices: duplicate id %q", d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}
