// Package config loads the process configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/Espresso-Aficionados/sprobot/apperr"
)

// Config is the full process configuration.
type Config struct {
	Port        string   `env:"PORT" envDefault:"8080"`
	Environment string   `env:"SPROBOT_ENV" envDefault:"dev"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	Log       LogConfig
	Storage   StorageConfig
	Images    ImageConfig
	Profiles  ProfileConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Deletions DeletionConfig
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

const (
	StorageS3     = "s3"
	StorageMemory = "memory"
)

// StorageConfig describes the S3-compatible bucket. The four credentials
// are required for the s3 backend. The memory backend keeps objects in
// process and is refused in prod.
type StorageConfig struct {
	Backend   string `env:"SPROBOT_STORAGE_BACKEND" envDefault:"s3"`
	AccessKey string `env:"SPROBOT_S3_KEY"`
	SecretKey string `env:"SPROBOT_S3_SECRET"`
	Endpoint  string `env:"SPROBOT_S3_ENDPOINT"`
	Bucket    string `env:"SPROBOT_S3_BUCKET"`
	PublicURL string `env:"SPROBOT_S3_PUBLIC_URL"`
	Region    string `env:"SPROBOT_S3_REGION" envDefault:"us-southeast-1"`
}

type ImageConfig struct {
	MaxBytes     int64         `env:"SPROBOT_IMAGE_MAX_BYTES" envDefault:"10485760"`
	FetchTimeout time.Duration `env:"SPROBOT_IMAGE_FETCH_TIMEOUT" envDefault:"30s"`
	AllowPrivate bool          `env:"SPROBOT_IMAGE_ALLOW_PRIVATE" envDefault:"false"`
}

type ProfileConfig struct {
	CacheSize     int    `env:"SPROBOT_CACHE_SIZE" envDefault:"500"`
	WebEndpoint   string `env:"SPROBOT_WEB_ENDPOINT" envDefault:"http://bot.espressoaf.com/"`
	TemplatesFile string `env:"SPROBOT_TEMPLATES_FILE"`
}

// RedisConfig is optional; an empty Addr keeps deletion sessions in memory.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// DatabaseConfig is optional; an empty DSN disables the audit trail.
type DatabaseConfig struct {
	DSN    string `env:"DATABASE_DSN"`
	Driver string `env:"DATABASE_DRIVER"`
}

// Dialect names a supported audit database.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// Target returns the database dialect and the DSN to hand its driver.
// DATABASE_DRIVER wins; otherwise the dialect comes from the DSN's scheme
// or, for sqlite, its file extension. URL prefixes the drivers do not
// understand are stripped.
func (c DatabaseConfig) Target() (Dialect, string, error) {
	dsn := strings.TrimSpace(c.DSN)
	if dsn == "" {
		return "", "", apperr.Configuration("DATABASE_DSN is empty", nil)
	}
	lower := strings.ToLower(dsn)

	var dialect Dialect
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "postgres", "postgresql", "pg":
		dialect = DialectPostgres
	case "mysql":
		dialect = DialectMySQL
	case "sqlite", "sqlite3":
		dialect = DialectSQLite
	case "":
		switch {
		case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
			dialect = DialectPostgres
		case strings.HasPrefix(lower, "mysql://"):
			dialect = DialectMySQL
		case strings.HasPrefix(lower, "sqlite://"), strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"):
			dialect = DialectSQLite
		default:
			return "", "", apperr.Configuration("DATABASE_DRIVER is required when DATABASE_DSN does not name a database", nil)
		}
	default:
		return "", "", apperr.Configuration(fmt.Sprintf("DATABASE_DRIVER %q is not supported", c.Driver), nil)
	}

	switch dialect {
	case DialectMySQL:
		dsn = strings.TrimPrefix(dsn, "mysql://")
	case DialectSQLite:
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}
	return dialect, dsn, nil
}

type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET,required,notEmpty"`
	TokenTTL  time.Duration `env:"JWT_TOKEN_TTL" envDefault:"1h"`
	// Clients maps a client id to the bcrypt hash of its secret.
	Clients map[string]string `env:"SPROBOT_API_CLIENTS" envSeparator:"," envKeyValSeparator:":"`
	Admins  []string          `env:"SPROBOT_API_ADMINS" envSeparator:","`
}

type DeletionConfig struct {
	ConfirmationTTL time.Duration `env:"SPROBOT_DELETE_CONFIRM_TTL" envDefault:"15m"`
}

// Load reads an optional .env file and parses the environment. Missing
// required settings are reported as a configuration error.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse parses the current environment without touching .env files.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, apperr.Configuration("invalid configuration", err)
	}

	if err := cfg.Storage.resolve(cfg.Environment, cfg.Port); err != nil {
		return nil, err
	}
	if cfg.Database.DSN != "" {
		if _, _, err := cfg.Database.Target(); err != nil {
			return nil, err
		}
	}
	if cfg.Profiles.CacheSize <= 0 {
		return nil, apperr.Configuration("SPROBOT_CACHE_SIZE must be positive", nil)
	}
	if cfg.Images.MaxBytes <= 0 {
		return nil, apperr.Configuration("SPROBOT_IMAGE_MAX_BYTES must be positive", nil)
	}

	return &cfg, nil
}

func (c *StorageConfig) resolve(environment, port string) error {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.PublicURL = strings.TrimSpace(c.PublicURL)

	switch c.Backend {
	case StorageS3:
		for _, setting := range []struct{ name, value string }{
			{"SPROBOT_S3_KEY", c.AccessKey},
			{"SPROBOT_S3_SECRET", c.SecretKey},
			{"SPROBOT_S3_ENDPOINT", c.Endpoint},
			{"SPROBOT_S3_BUCKET", c.Bucket},
		} {
			if strings.TrimSpace(setting.value) == "" {
				return apperr.Configuration(setting.name+" is required", nil)
			}
		}
		if c.PublicURL == "" {
			c.PublicURL = c.Endpoint
		}
	case StorageMemory:
		if environment == "prod" {
			return apperr.Configuration("SPROBOT_STORAGE_BACKEND=memory is not allowed in prod", nil)
		}
		if c.Bucket == "" {
			c.Bucket = "sprobot"
		}
		if c.PublicURL == "" {
			c.PublicURL = "http://localhost:" + port + MemoryObjectsPath
		}
	default:
		return apperr.Configuration(fmt.Sprintf("SPROBOT_STORAGE_BACKEND %q is not supported", c.Backend), nil)
	}
	return nil
}

// MemoryObjectsPath is where the memory backend's objects are served.
const MemoryObjectsPath = "/objects"
