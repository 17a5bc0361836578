package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full environment-driven configuration of the authority.
type Config struct {
	Issuer string `env:"WARDEN_ISSUER" envDefault:"crewpay-warden"`

	// SigningKeyFile points at a PKCS8 PEM Ed25519 private key. When empty,
	// an ephemeral key is generated at startup and tokens do not survive a
	// restart.
	SigningKeyFile string `env:"WARDEN_SIGNING_KEY_FILE"`
	PepperFile     string `env:"WARDEN_PEPPER_FILE" envDefault:"pepper"`

	// StoreBackend selects the session store driver: "redis" or "memory".
	StoreBackend  string        `env:"WARDEN_STORE_BACKEND" envDefault:"memory"`
	RedisAddr     string        `env:"WARDEN_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"WARDEN_REDIS_PASSWORD"`
	RedisDB       int           `env:"WARDEN_REDIS_DB" envDefault:"0"`
	StoreTimeout  time.Duration `env:"WARDEN_STORE_TIMEOUT" envDefault:"3s"`

	// Zero means the built-in lifetime for that audience kind.
	AccessTTL  time.Duration `env:"WARDEN_ACCESS_TTL"`
	SessionTTL time.Duration `env:"WARDEN_SESSION_TTL"`
	LostTTL    time.Duration `env:"WARDEN_LOST_PASSWORD_TTL"`
	ChangeTTL  time.Duration `env:"WARDEN_CHANGE_PASSWORD_TTL"`

	// PeerKeyBaseURL, when set, enables the remote key cache for verifying
	// tokens minted by sibling issuers behind the same gateway.
	PeerKeyBaseURL string        `env:"WARDEN_PEER_KEY_BASE_URL"`
	PeerKeyTTL     time.Duration `env:"WARDEN_PEER_KEY_TTL" envDefault:"15m"`

	Env                  string        `env:"ENV" envDefault:"dev"`
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat            string        `env:"LOG_FORMAT" envDefault:"json"`
	Port                 int           `env:"PORT" envDefault:"8080"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1h"`
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	switch cfg.StoreBackend {
	case "redis", "memory":
	default:
		return Config{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	return cfg, nil
}
