package db

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ErrUnsupportedDialect is returned for database types the repositories cannot
// write to. Idempotent inserts rely on ON CONFLICT, which rules out mysql.
var ErrUnsupportedDialect = errors.New("unsupported database type")

func Dialect(cfg Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "postgres", "":
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.Host,
			cfg.User,
			cfg.Password,
			cfg.Name,
			cfg.Port,
			cfg.SSLMode,
		)), nil
	case "sqlite":
		name := strings.TrimSpace(cfg.Name)
		if name == "" {
			name = "obrapay.db"
		}
		return sqlite.Open(name), nil
	case "mysql":
		return nil, fmt.Errorf("%w: mysql has no ON CONFLICT support, use postgres or sqlite", ErrUnsupportedDialect)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDialect, cfg.Type)
	}
}

// IsPostgres reports whether migrations can run against the configured dialect.
func (c Config) IsPostgres() bool {
	t := strings.ToLower(strings.TrimSpace(c.Type))
	return t == "postgres" || t == ""
}
