package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Port             int           `mapstructure:"port"`
	DBPath           string        `mapstructure:"db_path"`
	ChunkSize        int           `mapstructure:"chunk_size"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	StorageRoot      string        `mapstructure:"storage_root"`
	KnownHosts       string        `mapstructure:"known_hosts"`
	IgnoreList       []string      `mapstructure:"ignore_list"`
	JWTSecret        string        `mapstructure:"jwt_secret"`
	TokenTTL         time.Duration `mapstructure:"token_ttl"`
	Token            string        `mapstructure:"token"`
	Debug            bool          `mapstructure:"debug"`
}

var Default = Config{
	Port:             8009,
	DBPath:           "flexport.db",
	ChunkSize:        64 * 1024,
	ProgressInterval: time.Second,
	DialTimeout:      30 * time.Second,
	IgnoreList:       []string{},
	TokenTTL:         30 * time.Minute,
}

// MinSecretLen is the shortest jwt_secret the daemon will sign tokens with.
const MinSecretLen = 16

var ErrWeakSecret = errors.New("jwt_secret is unset or too short")

var (
	mu      sync.Mutex
	current *viper.Viper
)

func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home dir: %w", err)
	}

	configDir := filepath.Join(home, ".flexport")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	v.SetDefault("port", Default.Port)
	v.SetDefault("db_path", Default.DBPath)
	v.SetDefault("chunk_size", Default.ChunkSize)
	v.SetDefault("progress_interval", Default.ProgressInterval)
	v.SetDefault("dial_timeout", Default.DialTimeout)
	v.SetDefault("storage_root", Default.StorageRoot)
	v.SetDefault("known_hosts", Default.KnownHosts)
	v.SetDefault("ignore_list", Default.IgnoreList)
	v.SetDefault("jwt_secret", Default.JWTSecret)
	v.SetDefault("token_ttl", Default.TokenTTL)
	v.SetDefault("token", Default.Token)
	v.SetDefault("debug", Default.Debug)

	v.SetEnvPrefix("FLEXPORT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	current = v
	mu.Unlock()

	return cfg, nil
}

// Watch calls onChange with the re-read configuration every time the config
// file changes on disk. It does nothing when no config file was found by Load.
func Watch(onChange func(*Config, error)) {
	mu.Lock()
	v := current
	mu.Unlock()

	if v == nil || v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(decode(v))
	})
	v.WatchConfig()
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk_size must be positive, got %d", cfg.ChunkSize)
	}

	return &cfg, nil
}

// CheckSecret fails until jwt_secret holds at least MinSecretLen bytes.
func (c *Config) CheckSecret() error {
	if len(c.JWTSecret) < MinSecretLen {
		return fmt.Errorf("%w: set jwt_secret (>= %d bytes) in ~/.flexport/config.yaml or FLEXPORT_JWT_SECRET", ErrWeakSecret, MinSecretLen)
	}

	return nil
}
