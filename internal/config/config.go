package config // package config loads application configuration from environment variables

import (
	"errors"  // errors joins every missing variable into one report
	"fmt"     // fmt formats the configuration error messages
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"    // time parses durations for token lifetimes and timeouts
)

// ErrMissingConfig marks a configuration error.  The server must not
// start when Load returns it.
var ErrMissingConfig = errors.New("configuration error")

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Secrets are handed to the security package at
// startup and never read again from the environment.
type Config struct {
	Env              string        // application environment (e.g. "dev", "prod")
	Port             string        // HTTP port to listen on
	DBUser           string        // database username
	DBPass           string        // database password (optional)
	DBHost           string        // database host address
	DBPort           string        // database port number
	DBName           string        // database name
	JWTSecret        string        // secret used to sign bearer tokens
	QREncryptionKey  string        // base64 32-byte key sealing QR payloads
	BearerTTL        time.Duration // bearer token lifetime
	BcryptCost       int           // bcrypt cost for password hashing
	LogLevel         string        // zap level name
	AMQPURL          string        // broker for scan events; empty disables publishing
	LogoFetchTimeout time.Duration // upper bound for fetching a gym logo
}

// Load reads configuration values from environment variables.  Every
// missing or malformed required variable is reported in the returned
// error, which wraps ErrMissingConfig.
func Load() (Config, error) {
	var errs []error
	must := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			errs = append(errs, fmt.Errorf("missing required env var: %s", key))
		}
		return v
	}

	cfg := Config{
		Env:              must("APP_ENV"),
		Port:             must("APP_PORT"),
		DBUser:           must("DB_USER"),
		DBPass:           os.Getenv("DB_PASS"), // empty allowed
		DBHost:           must("DB_HOST"),
		DBPort:           must("DB_PORT"),
		DBName:           must("DB_NAME"),
		JWTSecret:        must("JWT_SECRET"),
		QREncryptionKey:  must("QR_ENCRYPTION_KEY"),
		BearerTTL:        time.Duration(envInt("BEARER_TTL_HOURS", 24)) * time.Hour,
		BcryptCost:       envInt("BCRYPT_COST", 12),
		LogLevel:         envStr("LOG_LEVEL", "info"),
		AMQPURL:          amqpURL(),
		LogoFetchTimeout: envDur("LOGO_FETCH_TIMEOUT", 3*time.Second),
	}
	if s := os.Getenv("BCRYPT_COST"); s != "" {
		if _, err := strconv.Atoi(s); err != nil {
			errs = append(errs, fmt.Errorf("invalid int for BCRYPT_COST: %q", s))
		}
	}
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("%w: %w", ErrMissingConfig, errors.Join(errs...))
	}
	return cfg, nil
}

// amqpURL honours both variable names used by deployments.  An empty
// result disables scan event publishing.
func amqpURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}
