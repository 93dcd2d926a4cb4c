// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL used for links in account emails.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Vault holds secret-store (TOTP backend) connection settings.
	Vault VaultConfig

	// Auth holds token issuance and device-trust settings.
	Auth AuthConfig
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so container
// orchestrators can manage each independently. If DATABASE_URL is set, it
// takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	// User is the MariaDB username (default: "gatehouse").
	User string

	// Password is the MariaDB password (default: "gatehouse").
	Password string

	// Name is the database name (default: "gatehouse").
	Name string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration

	// MigrationsPath is the directory holding SQL migration files.
	MigrationsPath string
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// Host/User/Password/Name fields using the driver's Config.FormatDSN()
// to safely handle special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
// Allows users to set DB_HOST=mydb (gets :3306) or DB_HOST=mydb:3307 (as-is).
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// VaultConfig holds connection settings for the external TOTP secret store.
// The store speaks a Vault-compatible HTTP API; see internal/secretstore.
type VaultConfig struct {
	// Addr is the base URL of the secret store (default: "http://localhost:8200").
	Addr string

	// Token is the authentication token sent with every request.
	Token string

	// Timeout bounds every secret-store call. Calls are never retried:
	// an unavailable store fails verification closed.
	Timeout time.Duration

	// Issuer is the TOTP issuer name shown in authenticator apps.
	Issuer string
}

// AuthConfig holds token issuance and device-trust settings.
type AuthConfig struct {
	// TokenTTL is the default access-token lifetime when the caller does
	// not request one.
	TokenTTL time.Duration

	// TokenTTLMin and TokenTTLMax bound a caller-requested token expiry.
	// Requests outside the bounds are clamped, never honored.
	TokenTTLMin time.Duration
	TokenTTLMax time.Duration

	// DeviceTrustWindow is how long a device is exempted from a fresh OTP
	// challenge after a successful second-factor check (default: 720h).
	DeviceTrustWindow time.Duration

	// SessionJWTTTL is the lifetime of a minted session assertion.
	SessionJWTTTL time.Duration

	// JWTKeyID identifies the platform signing key in minted assertions.
	JWTKeyID string

	// jwtPrivateKeyPEM is the raw key material; parsed once in Load.
	jwtPrivateKeyPEM string

	// JWTPrivateKey is the platform RSA key used to sign session assertions.
	JWTPrivateKey *rsa.PrivateKey

	// SecretKey encrypts secrets at rest (the stored SMTP password).
	SecretKey string
}

// JWTPublicKey returns the verification half of the platform signing key.
func (a AuthConfig) JWTPublicKey() *rsa.PublicKey {
	if a.JWTPrivateKey == nil {
		return nil
	}
	return &a.JWTPrivateKey.PublicKey
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing or malformed.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		BaseURL:  getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "gatehouse"),
			Password:        getEnv("DB_PASSWORD", "gatehouse"),
			Name:            getEnv("DB_NAME", "gatehouse"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsPath:  getEnv("DB_MIGRATIONS_PATH", "db/migrations"),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Vault: VaultConfig{
			Addr:    getEnv("VAULT_ADDR", "http://localhost:8200"),
			Token:   getEnv("VAULT_TOKEN", ""),
			Timeout: getEnvDuration("VAULT_TIMEOUT", 3*time.Second),
			Issuer:  getEnv("TOTP_ISSUER", "Gatehouse"),
		},

		Auth: AuthConfig{
			TokenTTL:          getEnvDuration("TOKEN_TTL", 4*time.Hour),
			TokenTTLMin:       getEnvDuration("TOKEN_TTL_MIN", 5*time.Minute),
			TokenTTLMax:       getEnvDuration("TOKEN_TTL_MAX", 24*time.Hour),
			DeviceTrustWindow: getEnvDuration("DEVICE_TRUST_WINDOW", 720*time.Hour),
			SessionJWTTTL:     getEnvDuration("SESSION_JWT_TTL", 10*time.Minute),
			JWTKeyID:          getEnv("JWT_KEY_ID", "gatehouse"),
			jwtPrivateKeyPEM:  getEnv("JWT_PRIVATE_KEY", ""),
			SecretKey:         getEnv("SECRET_KEY", ""),
		},
	}

	if cfg.Auth.TokenTTLMin > cfg.Auth.TokenTTLMax {
		return nil, fmt.Errorf("TOKEN_TTL_MIN (%s) exceeds TOKEN_TTL_MAX (%s)",
			cfg.Auth.TokenTTLMin, cfg.Auth.TokenTTLMax)
	}

	// Validate required secrets in production. Case-insensitive check catches
	// common variants like "Production", "prod", etc.
	envLower := strings.ToLower(cfg.Env)
	if envLower == "production" || envLower == "prod" {
		if cfg.Auth.jwtPrivateKeyPEM == "" {
			return nil, fmt.Errorf("JWT_PRIVATE_KEY is required in production")
		}
		if cfg.Vault.Token == "" {
			return nil, fmt.Errorf("VAULT_TOKEN is required in production")
		}
		if len(cfg.Auth.SecretKey) < 32 {
			return nil, fmt.Errorf("SECRET_KEY must be at least 32 characters in production")
		}
	}
	if cfg.Auth.SecretKey == "" {
		cfg.Auth.SecretKey = "dev-secret-key-do-not-use-in-production!!"
	}

	if cfg.Auth.jwtPrivateKeyPEM != "" {
		key, err := parseRSAPrivateKey(cfg.Auth.jwtPrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parsing JWT_PRIVATE_KEY: %w", err)
		}
		cfg.Auth.JWTPrivateKey = key
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// parseRSAPrivateKey decodes a PEM-encoded RSA private key. The value may be
// base64-wrapped (convenient for env vars that can't hold newlines).
func parseRSAPrivateKey(raw string) (*rsa.PrivateKey, error) {
	data := []byte(raw)
	if !strings.Contains(raw, "-----BEGIN") {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("key is neither PEM nor base64-wrapped PEM: %w", err)
		}
		data = decoded
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is %T, want *rsa.PrivateKey", parsed)
	}
	return key, nil
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "720h") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
