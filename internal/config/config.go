package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Log struct {
		Level string
	}
	Storage struct {
		Driver       string
		DataDir      string
		DatabasePath string
	}
	Auth struct {
		SessionTTL    time.Duration
		PurgeInterval time.Duration
		Hasher        string
	}
	Upload struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
		MaxBytes  int64
	}
	AWS struct {
		Profile string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("BRAILLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8000")
	v.SetDefault("log.level", "info")
	v.SetDefault("storage.driver", DriverJSON)
	v.SetDefault("storage.datadir", "data")
	v.SetDefault("storage.databasepath", "data/braille.db")
	v.SetDefault("auth.sessionttl", 7*24*time.Hour)
	v.SetDefault("auth.purgeinterval", 10*time.Minute)
	v.SetDefault("auth.hasher", "pbkdf2")
	v.SetDefault("upload.bucket", "")
	v.SetDefault("upload.keyprefix", "uploads")
	v.SetDefault("upload.region", "us-east-1")
	v.SetDefault("upload.endpoint", "")
	v.SetDefault("upload.maxbytes", int64(10<<20))
	v.SetDefault("aws.profile", "")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.Auth.Hasher = strings.ToLower(strings.TrimSpace(cfg.Auth.Hasher))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverJSON:
		if strings.TrimSpace(c.Storage.DataDir) == "" {
			return fmt.Errorf("storage.datadir is required for the %s driver", DriverJSON)
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Storage.DatabasePath) == "" {
			return fmt.Errorf("storage.databasepath is required for the %s driver", DriverSQLite)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Auth.Hasher {
	case "pbkdf2", "bcrypt":
	default:
		return fmt.Errorf("unknown password hasher %q", c.Auth.Hasher)
	}

	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth.sessionttl must be positive, got %s", c.Auth.SessionTTL)
	}
	if c.Auth.PurgeInterval <= 0 {
		return fmt.Errorf("auth.purgeinterval must be positive, got %s", c.Auth.PurgeInterval)
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.maxbytes must be positive, got %d", c.Upload.MaxBytes)
	}
	return nil
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:idx])
		value := strings.Trim(strings.TrimSpace(line[idx+1:]), `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
