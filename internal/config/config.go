// Package config loads application configuration from the environment.
//
// CONFIG STRATEGY:
// All configuration comes from environment variables (12-factor style). For
// local development a .env file in the working directory is loaded first via
// godotenv — in production the variables come from the deployment environment
// and the .env file simply doesn't exist.
//
// Parsing is done by caarlos0/env: struct tags declare the variable name, a
// default, and (for slices) a separator, so there is no hand-written
// os.Getenv boilerplate to keep in sync with the struct.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// OAuth state handling modes, selected by OAUTH_STATE_MODE.
//
//   - "stateless": the anti-forgery state is a self-contained signed value.
//     Nothing is stored server-side; if the provider (or an SDK-driven
//     client) drops the state entirely, verification is skipped. This
//     matches how the VK ID SDK drives the flow.
//   - "cookie": the state nonce is also pinned in a short-lived HttpOnly
//     cookie and must match on callback. Stricter, but requires the
//     callback to land in the same browser session.
const (
	StateModeStateless = "stateless"
	StateModeCookie    = "cookie"
)

// OAuth callback response modes, selected by OAUTH_RESPONSE_MODE.
//
//   - "json": the callback answers with {message, user, token} directly.
//     For API consumers and tests.
//   - "redirect": the callback answers with a small HTML page that forwards
//     the token (or error) to FRONTEND_URL via a client-side redirect. The
//     provider redirects to this backend, not to the front-end, so the
//     backend has to complete the last hop itself.
const (
	ResponseModeJSON     = "json"
	ResponseModeRedirect = "redirect"
)

// Config holds everything the server needs to run.
type Config struct {
	Port     int    `env:"PORT"      envDefault:"8080"`
	DBPath   string `env:"DB_PATH"   envDefault:"data/postboard.db"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"` // debug|info|warn|error
	Debug    bool   `env:"DEBUG"     envDefault:"false"`

	// VK ID OAuth application credentials. Registered at id.vk.com;
	// VKRedirectURI must byte-for-byte match the callback URL configured
	// there, or the token exchange is rejected.
	VKClientID     string `env:"VK_CLIENT_ID"`
	VKClientSecret string `env:"VK_CLIENT_SECRET"`
	VKRedirectURI  string `env:"VK_REDIRECT_URI"`

	// FrontendURL is where the HTML-redirect response mode sends the
	// browser after the callback completes.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	// CORSOrigins is the allowlist checked by the CORS middleware.
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000"`

	StateMode    string `env:"OAUTH_STATE_MODE"    envDefault:"stateless"`
	StateSecret  string `env:"OAUTH_STATE_SECRET"`
	ResponseMode string `env:"OAUTH_RESPONSE_MODE" envDefault:"json"`
}

// Load reads the optional .env file, parses the environment, and validates
// the result.
func Load() (Config, error) {
	// Missing .env is the normal case outside local dev — ignore it.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.StateMode {
	case StateModeStateless, StateModeCookie:
	default:
		return fmt.Errorf("config: OAUTH_STATE_MODE must be %q or %q, got %q",
			StateModeStateless, StateModeCookie, c.StateMode)
	}

	switch c.ResponseMode {
	case ResponseModeJSON, ResponseModeRedirect:
	default:
		return fmt.Errorf("config: OAUTH_RESPONSE_MODE must be %q or %q, got %q",
			ResponseModeJSON, ResponseModeRedirect, c.ResponseMode)
	}

	// OAuth routes are only registered when VK credentials are present, but
	// a half-configured pair is always a mistake worth failing loudly on.
	if (c.VKClientID == "") != (c.VKClientSecret == "") {
		return fmt.Errorf("config: VK_CLIENT_ID and VK_CLIENT_SECRET must be set together")
	}

	// Stateless mode signs the state parameter, which needs a key.
	if c.VKEnabled() && c.StateMode == StateModeStateless && c.StateSecret == "" {
		return fmt.Errorf("config: OAUTH_STATE_SECRET is required in stateless mode")
	}

	return nil
}

// VKEnabled reports whether the VK ID OAuth flow can be wired.
func (c Config) VKEnabled() bool {
	return c.VKClientID != "" && c.VKClientSecret != ""
}

// SlogLevel translates the LOG_LEVEL string into a slog level.
// Unknown values fall back to Info rather than failing startup.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
