package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Session backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds the server configuration, loadable from environment variables
// (PROMO_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string        `usage:"PostgreSQL URL for packages and codes; built-in tables when empty (PROMO_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Locale      string        `default:"ar" usage:"Message language: ar or en"`
	Phone       string        `default:"201093191277" usage:"WhatsApp number for contact links"`
	SubmitDelay time.Duration `default:"1200ms" usage:"Delay before a submitted code is resolved" flag:"submit-delay"`
	Session     SessionConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// SessionConfig controls per-visitor state.
type SessionConfig struct {
	Backend     string        `default:"memory" usage:"Session backend: memory or redis"`
	RedisURL    string        `usage:"Redis URL for the redis backend (PROMO_SESSION_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	TTL         time.Duration `default:"24h" usage:"Session cookie and persisted discount lifetime"`
	IdleTimeout time.Duration `default:"30m" usage:"Evict controllers of idle sessions after" flag:"idle-timeout"`
	CookieName  string        `default:"promo_session" usage:"Session cookie name" flag:"cookie-name"`
	Secure      bool          `default:"false" usage:"Mark the session cookie Secure" flag:"cookie-secure"`
}

// RateLimitConfig limits code submissions per session.
type RateLimitConfig struct {
	Max    int           `default:"10" usage:"Max code submissions per window"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PROMO",
		Files:     []string{"config.yaml", "/etc/promo/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Session.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Session.RedisURL == "" {
			return errors.New("redis session backend needs a URL: set PROMO_SESSION_REDIS_URL or REDIS_URL")
		}
	default:
		return errors.Errorf("unknown session backend %q", c.Session.Backend)
	}
	if c.Locale != "ar" && c.Locale != "en" {
		return errors.Errorf("unsupported locale %q", c.Locale)
	}
	if c.SubmitDelay < 0 {
		return errors.New("submit delay must not be negative")
	}
	return nil
}

// applyPlatformDefaults maps the standard PORT, DATABASE_URL and REDIS_URL
// variables set by hosting platforms.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Session.RedisURL == "" {
		c.Session.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
