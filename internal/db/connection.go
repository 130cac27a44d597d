package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"adearn-backend/internal/config"
)

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MaxRetries      int
}

func DSN(cfg config.MySQLConfig) string {
	c := mysql.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	c.DBName = cfg.Database
	c.ParseTime = true
	c.ClientFoundRows = true
	c.Loc = time.UTC
	c.Collation = "utf8mb4_unicode_ci"
	return c.FormatDSN()
}

// Open connects to MySQL, retrying with a linear backoff while the server
// comes up.
func Open(cfg config.MySQLConfig, opts Options) (*sql.DB, error) {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}

	var db *sql.DB
	var err error
	for i := 0; i < opts.MaxRetries; i++ {
		db, err = sql.Open("mysql", DSN(cfg))
		if err == nil {
			if err = db.Ping(); err == nil {
				break
			}
			db.Close()
		}
		if i == opts.MaxRetries-1 {
			return nil, fmt.Errorf("failed to connect to mysql after %d attempts: %w", opts.MaxRetries, err)
		}
		time.Sleep(time.Second * time.Duration(i+1))
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(25)
	}

	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}

	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	return db, nil
}
