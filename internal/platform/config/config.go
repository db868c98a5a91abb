package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the terminal process. Values come from
// config.defaults.yaml (if present), overridden by APP_-prefixed environment
// variables, overridden by nothing else; every key carries a usable default
// so a bare binary still starts against localhost.
type Config struct {
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	ListenPort int    `mapstructure:"LISTEN_PORT"`

	// StorePath is the bbolt database file; STORE_BACKEND can be set to
	// "memory" for development against a throwaway store.
	StorePath    string `mapstructure:"STORE_PATH"`
	StoreBackend string `mapstructure:"STORE_BACKEND"`

	// Remote server of record.
	APIBaseURL       string        `mapstructure:"API_BASE_URL"`
	APITimeout       time.Duration `mapstructure:"API_TIMEOUT"`

	// Connectivity probing.
	ProbeURL         string        `mapstructure:"PROBE_URL"`
	ProbeTimeout     time.Duration `mapstructure:"PROBE_TIMEOUT"`
	ProbeMaxRetries  int           `mapstructure:"PROBE_MAX_RETRIES"`
	ProbeRetryDelay  time.Duration `mapstructure:"PROBE_RETRY_DELAY"`
	WatcherInterval  time.Duration `mapstructure:"WATCHER_INTERVAL"`

	// Defaults for the persisted user settings; once a settings object has
	// been written to the store, the stored values win.
	AllowOfflineTransactions bool `mapstructure:"ALLOW_OFFLINE_TRANSACTIONS"`
	SyncOnConnection         bool `mapstructure:"SYNC_ON_CONNECTION"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config.defaults")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../configs")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.SetEnvPrefix("APP")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LISTEN_PORT", 8090)
	v.SetDefault("STORE_PATH", "terminal.db")
	v.SetDefault("STORE_BACKEND", "bolt")
	v.SetDefault("API_BASE_URL", "http://localhost:3000/api")
	v.SetDefault("API_TIMEOUT", "10s")
	v.SetDefault("PROBE_URL", "http://localhost:3000/api/healthz")
	v.SetDefault("PROBE_TIMEOUT", "5s")
	v.SetDefault("PROBE_MAX_RETRIES", 5)
	v.SetDefault("PROBE_RETRY_DELAY", "2s")
	v.SetDefault("WATCHER_INTERVAL", "15s")
	v.SetDefault("ALLOW_OFFLINE_TRANSACTIONS", true)
	v.SetDefault("SYNC_ON_CONNECTION", true)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Configuration file ('config.defaults.yaml') not found; using defaults and environment variables.")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
