package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Connection is a MySQL handle opened on first use. A failed attempt is not
// remembered, so the next caller tries again; once open the handle is shared.
type Connection struct {
	cfg       *mysql.Config
	onConnect func(ctx context.Context, db *sql.DB) error

	mu sync.Mutex
	db atomic.Pointer[sql.DB]
}

// NewConnection parses dsn and forces parseTime and UTC, which the adapter
// relies on to scan DATETIME columns. onConnect runs once after the first
// successful ping, before the handle is published.
func NewConnection(dsn string, onConnect func(ctx context.Context, db *sql.DB) error) (*Connection, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	return &Connection{cfg: cfg, onConnect: onConnect}, nil
}

func (c *Connection) DB(ctx context.Context) (*sql.DB, error) {
	if db := c.db.Load(); db != nil {
		return db, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if db := c.db.Load(); db != nil {
		return db, nil
	}

	connector, err := mysql.NewConnector(c.cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	if c.onConnect != nil {
		if err := c.onConnect(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	c.db.Store(db)
	return db, nil
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	db := c.db.Swap(nil)
	if db == nil {
		return nil
	}
	return db.Close()
}
