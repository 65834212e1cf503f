// Package config handles configuration for the server component,
// including defaults, environment variables, JSON overlay and
// command-line flags.
package config

import "time"

// Config holds runtime settings for the workpass server.
//
// Fields:
//   - EndpointAddr: bind address for the public HTTP endpoint.
//   - DatabaseDriver: "postgres" or "sqlite".
//   - DatabaseDSN: DSN for the selected driver.
//   - RedisAddr: when set, refresh tokens live in redis instead of the
//     relational database.
//   - CipherKey: base64-encoded 32-byte AES key sealing session tokens.
//     Do not use the test default in prod.
//   - TokenValidityDuration: how long a sealed token passes without a
//     database check.
//   - RefreshTokenValidityDuration: how long a session survives without
//     renewal; also the cookie max-age.
//   - CORSAllowedOrigins: origins allowed to call the API with credentials.
type Config struct {
	EndpointAddr                 string
	DatabaseDriver               string
	DatabaseDSN                  string
	RedisAddr                    string
	CipherKey                    string
	TokenValidityDuration        time.Duration
	RefreshTokenValidityDuration time.Duration
	CORSAllowedOrigins           []string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddr = ":8080"
	c.DatabaseDriver = "sqlite"
	c.DatabaseDSN = "file:workpass.db"
	c.RedisAddr = ""
	c.CipherKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
	c.TokenValidityDuration = 1 * time.Hour
	c.RefreshTokenValidityDuration = 720 * time.Hour
	c.CORSAllowedOrigins = []string{"http://localhost:3000"}
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from the environment, an optional JSON file and finally command-line
// flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
