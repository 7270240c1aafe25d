package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"jwt-provider/internal/pkg/jwt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
)

// DefaultChallenge is sent with every 401. A scheme other than "Basic"
// keeps browsers from opening their native credential prompt.
const DefaultChallenge = `Token realm="Token"`

type AppConfig struct {
	Env string `env:"APP_ENV" envDefault:"production"`

	// Server
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	Port      int    `env:"PORT"`
	RedisAddr string `env:"REDIS_ADDR"`
	RedisPass string `env:"REDIS_PASS"`

	// TrustedProxies may set X-Forwarded-For. Empty means the client IP is
	// always the peer address.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// Credentials
	CredentialsPath string `env:"CREDENTIALS_PATH" envDefault:"passwd"`
	AuthChallenge   string `env:"AUTH_CHALLENGE" envDefault:"Token realm=\"Token\""`

	Login LoginLimit
	JWT   jwt.Config
}

// LoginLimit bounds failed Basic-auth attempts per client and username.
type LoginLimit struct {
	MaxAttempts int64         `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	Window      time.Duration `env:"LOGIN_WINDOW" envDefault:"15m"`
	// MaxKeys caps the in-process counters; the oldest are evicted first.
	MaxKeys     int           `env:"LOGIN_MAX_KEYS" envDefault:"100000"`
}

// IsDevelopment reports whether the service runs with development logging.
func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// Load reads the environment, then lets command-line flags override it.
func Load(args []string) (AppConfig, error) {
	return load(args, env.Options{})
}

func load(args []string, opts env.Options) (AppConfig, error) {
	var cfg AppConfig
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return AppConfig{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	fs := pflag.NewFlagSet("jwt-provider", pflag.ContinueOnError)
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "address the token service listens on")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "port the token service listens on (overrides the port of --addr)")
	fs.StringVar(&cfg.CredentialsPath, "passwd", cfg.CredentialsPath, "JSON password file used to verify access, generated by keygen")
	fs.StringSliceVar(&cfg.TrustedProxies, "trusted-proxy", cfg.TrustedProxies, "proxy address or CIDR whose X-Forwarded-For is honoured (repeatable)")
	fs.StringVar(&cfg.JWT.PrivPath, "jwk", cfg.JWT.PrivPath, "JWK set holding the signing key, generated by keygen")
	if err := fs.Parse(args); err != nil {
		return AppConfig{}, err
	}
	if fs.NArg() > 0 {
		return AppConfig{}, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	if cfg.Port != 0 {
		addr, err := withPort(cfg.HTTPAddr, cfg.Port)
		if err != nil {
			return AppConfig{}, err
		}
		cfg.HTTPAddr = addr
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	switch {
	case c.CredentialsPath == "":
		return fmt.Errorf("credentials path is required")
	case c.JWT.PrivPath == "":
		return fmt.Errorf("private JWK set path is required")
	case c.JWT.TTL <= 0:
		return fmt.Errorf("token ttl must be positive, got %s", c.JWT.TTL)
	case c.AuthChallenge == "":
		return fmt.Errorf("auth challenge must not be empty")
	case c.Login.MaxAttempts <= 0:
		return fmt.Errorf("login max attempts must be positive, got %d", c.Login.MaxAttempts)
	}
	return nil
}

func withPort(addr string, port int) (string, error) {
	if port < 1 || port > 65535 {
		return "", fmt.Errorf("invalid port %d", port)
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}
