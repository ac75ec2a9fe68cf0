package storage

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/sweet-shop/internal/port"
)

type Options struct {
	Driver    string
	MySQLDSN  string
	RedisAddr string
	RedisDB   int
}

// Open builds the store for opts.Driver without contacting the backend; the
// first operation (or Ping) connects.
func Open(opts Options) (port.Store, error) {
	switch opts.Driver {
	case "mysql":
		conn, err := NewConnection(opts.MySQLDSN, Migrate)
		if err != nil {
			return nil, err
		}
		return NewMySQLAdapter(conn), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			DB:       opts.RedisDB,
			PoolSize: 100,
		})
		return NewRedisAdapter(rdb), nil
	case "memory":
		return NewMemoryAdapter(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

var (
	_ port.Store = (*MySQLAdapter)(nil)
	_ port.Store = (*RedisAdapter)(nil)
	_ port.Store = (*MemoryAdapter)(nil)
)
