package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Session defaults sent with every Postgres connection. Dates of birth and passing are
// stored as UTC timestamps, so the server session is pinned to UTC as well.
var postgresDefaults = map[string]string{
	"application_name": "eternal",
	"sslmode":          "disable",
	"TimeZone":         "UTC",
}

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn, err := buildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(postgres.Open(dsn), gormConfig(cfg))
}

// buildPostgresDSN renders a libpq keyword/value string. Options override the defaults.
func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("postgres: user and database name are required")
	}

	pairs := []string{
		"host=" + quoteLibpq(firstNonEmpty(cfg.Host, "localhost")),
		fmt.Sprintf("port=%d", portOrDefault(cfg.Port, 5432)),
		"user=" + quoteLibpq(cfg.User),
		"dbname=" + quoteLibpq(cfg.Name),
	}
	if cfg.Password != "" {
		pairs = append(pairs, "password="+quoteLibpq(cfg.Password))
	}

	for _, opt := range mergeOptions(postgresDefaults, cfg.Options) {
		pairs = append(pairs, opt.key+"="+quoteLibpq(opt.value))
	}
	return strings.Join(pairs, " "), nil
}

// quoteLibpq wraps values holding spaces or quotes, as libpq requires.
func quoteLibpq(value string) string {
	if value != "" && !strings.ContainsAny(value, ` '\`) {
		return value
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value)
	return "'" + escaped + "'"
}
