package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvDev is the development environment name
const EnvDev = "dev"

// Config holds the process configuration read from the environment
type Config struct {
	Environment string
	Host        string
	Port        string

	// Store selects the content store backend: "postgres" or "memory"
	Store       string
	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret    string
	JWKSURL      string
	AuthDisabled bool

	CORSOrigins []string
	LogDir      string

	PresenceConfigFile string
}

// Load reads a .env file if present and then the environment.
func Load() *Config {
	// a missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", EnvDev),
		Host:        getEnv("HOST", ""),
		Port:        getEnv("PORT", "8080"),

		Store:       getEnv("STORE", "postgres"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", ""),
		DBName:      getEnv("DB_NAME", "collab"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWKSURL:   getEnv("JWKS_URL", ""),

		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		LogDir:      getEnv("LOG_DIR", ""),

		PresenceConfigFile: getEnv("PRESENCE_CONFIG_FILE", ""),
	}

	// token checks are off by default in dev only
	cfg.AuthDisabled = getEnv("AUTH_DISABLED", strconv.FormatBool(cfg.IsDev())) == "true"
	return cfg
}

// GetServerAddr returns the listen address
func (c *Config) GetServerAddr() string {
	return c.Host + ":" + c.Port
}

// GetDatabaseConnectionString returns DATABASE_URL when set, otherwise a
// lib/pq key/value string built from the DB_* settings.
func (c *Config) GetDatabaseConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	parts := []string{
		"host=" + quote(c.DBHost),
		"port=" + quote(c.DBPort),
		"user=" + quote(c.DBUser),
		"dbname=" + quote(c.DBName),
		"sslmode=" + quote(c.DBSSLMode),
	}
	if c.DBPassword != "" {
		parts = append(parts, "password="+quote(c.DBPassword))
	}
	return strings.Join(parts, " ")
}

// IsDev reports whether the process runs in the development environment
func (c *Config) IsDev() bool {
	return c.Environment == EnvDev
}

// Redacted returns the database target without credentials, for logging.
func (c *Config) Redacted() string {
	if c.DatabaseURL != "" {
		if u, err := url.Parse(c.DatabaseURL); err == nil {
			return u.Redacted()
		}
		return "(unparseable DATABASE_URL)"
	}
	return fmt.Sprintf("%s@%s:%s/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
}

func quote(v string) string {
	if v == "" || strings.ContainsAny(v, ` '\`) {
		v = strings.ReplaceAll(v, `\`, `\\`)
		v = strings.ReplaceAll(v, `'`, `\'`)
		return "'" + v + "'"
	}
	return v
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %s=%q is not a number, using %d\n", key, value, defaultValue)
		return defaultValue
	}
	return n
}
