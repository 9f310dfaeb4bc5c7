package database

import (
	"errors"
	"net"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.Open(dsn), gormConfig(cfg))
}

// buildMySQLDSN formats the connection string through the driver's own Config so
// passwords with reserved characters survive. Memorial names and messages are
// Chinese text, hence utf8mb4.
func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql: user and database name are required")
	}

	dsn := mysqldriver.NewConfig()
	dsn.User = cfg.User
	dsn.Passwd = cfg.Password
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(firstNonEmpty(cfg.Host, "127.0.0.1"), strconv.Itoa(portOrDefault(cfg.Port, 3306)))
	dsn.DBName = cfg.Name
	dsn.ParseTime = true
	dsn.Loc = time.UTC

	dsn.Params = map[string]string{"charset": "utf8mb4"}
	for _, opt := range mergeOptions(nil, cfg.Options) {
		dsn.Params[opt.key] = opt.value
	}
	return dsn.FormatDSN(), nil
}
