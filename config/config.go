// config/config.go
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Config is filled from command-line flags, QUIZNERDS_* environment
// variables and an optional .env file, in that order of precedence.
type Config struct {
	Bind        string
	Port        int
	DatabaseURL string
	RedisAddr   string
	RedisDB     int

	JWTSecret     string
	SessionSecret string
	TokenTTL      time.Duration

	ClientURL   string
	CORSOrigins []string
	RateLimit   int
	TrustProxy  bool

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	OpenTDBURL      string
	TriviaAPIURL    string
	ExternalTimeout time.Duration

	Production bool
	Verbose    bool
}

// Development fallbacks, refused when Production is set.
const (
	DevJWTSecret     = "dev-secret-key-change-in-production"
	DevSessionSecret = "dev-session-key-change-in-production"
)

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.DatabaseURL == "" {
		return errors.New("--database-url is required")
	}
	if c.Production && (c.JWTSecret == "" || c.JWTSecret == DevJWTSecret) {
		return errors.New("--jwt-secret must be set in production")
	}
	if c.Production && (c.SessionSecret == "" || c.SessionSecret == DevSessionSecret) {
		return errors.New("--session-secret must be set in production")
	}
	if c.SMTPUser != "" && c.SMTPPass == "" {
		return errors.New("--smtp-pass must be provided together with --smtp-user")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("invalid rate limit: %d", c.RateLimit)
	}
	return nil
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// MailConfigured reports whether verification mail can actually be sent.
func (c *Config) MailConfigured() bool {
	return c.SMTPUser != "" && c.SMTPPass != ""
}

func (c *Config) Secret() []byte {
	if c.JWTSecret == "" {
		return []byte(DevJWTSecret)
	}
	return []byte(c.JWTSecret)
}

func (c *Config) CookieSecret() []byte {
	if c.SessionSecret == "" {
		return []byte(DevSessionSecret)
	}
	return []byte(c.SessionSecret)
}

// ClientBase returns ClientURL without a trailing slash.
func (c *Config) ClientBase() string {
	return strings.TrimSuffix(c.ClientURL, "/")
}
