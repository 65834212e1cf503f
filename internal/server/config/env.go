package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config fields from environment variables, loading a
// .env file first when one is present. Unset variables leave the current
// value alone.
//
// Recognized variables:
//
//	ENDPOINT_ADDR           HTTP bind address
//	DATABASE_DRIVER         "postgres" or "sqlite"
//	DATABASE_DSN            DSN for the selected driver
//	REDIS_ADDR              redis host:port for the refresh-token store
//	CIPHER_KEY              base64-encoded 32-byte AES key
//	TOKEN_VALIDITY          Go duration string, e.g. "1h"
//	REFRESH_TOKEN_VALIDITY  Go duration string, e.g. "720h"
//	CORS_ALLOWED_ORIGINS    comma-separated origin list
func parseEnv(config *Config) {
	godotenv.Load()

	if v := os.Getenv("ENDPOINT_ADDR"); v != "" {
		config.EndpointAddr = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		config.DatabaseDriver = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		config.DatabaseDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.RedisAddr = v
	}
	if v := os.Getenv("CIPHER_KEY"); v != "" {
		config.CipherKey = v
	}
	if v := os.Getenv("TOKEN_VALIDITY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.TokenValidityDuration = d
		}
	}
	if v := os.Getenv("REFRESH_TOKEN_VALIDITY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.RefreshTokenValidityDuration = d
		}
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		config.CORSAllowedOrigins = splitOrigins(v)
	}
}

func splitOrigins(v string) []string {
	parts := strings.Split(v, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
