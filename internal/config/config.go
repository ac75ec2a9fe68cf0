package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverMySQL  = "mysql"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

type App struct {
	// HTTP
	Port      string `envconfig:"PORT" default:"5000"`
	APIPrefix string `envconfig:"API_PREFIX" default:"/api"`
	// Store
	StoreDriver string `envconfig:"STORE_DRIVER" default:"mysql"`
	MySQLDSN    string `envconfig:"MYSQL_DSN" default:"root:root@tcp(localhost:3306)/sweetshop?parseTime=true"`
	RedisAddr   string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB     int    `envconfig:"REDIS_DB" default:"0"`
	// Auth
	JWTSecret  string        `envconfig:"JWT_SECRET" default:"default-secret"`
	JWTTTL     time.Duration `envconfig:"JWT_TTL" default:"24h"`
	BcryptCost int           `envconfig:"BCRYPT_COST" default:"10"`
	// Bootstrap admin, created at startup when email and password are set
	AdminEmail    string `envconfig:"ADMIN_EMAIL"`
	AdminUsername string `envconfig:"ADMIN_USERNAME" default:"admin"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`
	// gRPC health
	GRPCAddr       string        `envconfig:"GRPC_ADDR" default:":50051"`
	HealthInterval time.Duration `envconfig:"HEALTH_INTERVAL" default:"10s"`
	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
}

func Load() (App, error) {
	var c App
	if err := envconfig.Process("", &c); err != nil {
		return c, err
	}
	return c, c.validate()
}

func (c App) HTTPAddr() string {
	return ":" + c.Port
}

func (c App) BootstrapAdmin() bool {
	return c.AdminEmail != "" && c.AdminPassword != ""
}

func (c App) validate() error {
	switch c.StoreDriver {
	case DriverMySQL, DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER: unsupported driver %q", c.StoreDriver)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT: unsupported format %q", c.LogFormat)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET: must not be empty")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL: must be positive, got %s", c.JWTTTL)
	}
	if c.HealthInterval <= 0 {
		return fmt.Errorf("HEALTH_INTERVAL: must be positive, got %s", c.HealthInterval)
	}
	return nil
}
