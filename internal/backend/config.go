package backend

import (
	"errors"
	"fmt"

	"dividi/internal/config"
)

// FromAppConfig converts the process configuration into a backend Config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	cfg := Config{
		Type:         BackendType(appConfig.DataBackend),
		SeedDir:      appConfig.MemorySeedDir,
		SQLiteDBPath: appConfig.SQLiteDBPath,
		DatabaseURL:  appConfig.DatabaseURL,
		MySQLDSN:     appConfig.MySQLDSN,
		CacheSize:    appConfig.CacheSize,
		CacheTTL:     appConfig.CacheTTL,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required for postgres backend")
		}
	case MySQLBackend:
		if c.MySQLDSN == "" {
			return errors.New("MySQL DSN is required for mysql backend")
		}
	}

	if c.CacheSize > 0 && c.CacheTTL <= 0 {
		return errors.New("cache TTL must be positive when caching is enabled")
	}
	return nil
}
