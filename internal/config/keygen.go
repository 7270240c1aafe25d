package config

import (
	"fmt"
	"os"
	"path/filepath"

	"jwt-provider/internal/domain/credential"
	"jwt-provider/internal/pkg/jwt"
	"jwt-provider/internal/pkg/password"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
)

// KeygenConfig drives one run of the offline generator.
type KeygenConfig struct {
	Env string `env:"APP_ENV" envDefault:"production"`

	OutDir          string `env:"KEYGEN_OUT_DIR" envDefault:"."`
	CredentialsPath string `env:"CREDENTIALS_PATH" envDefault:"passwd"`
	PrivateKeyPath  string `env:"JWT_PRIVATE_JWKS_PATH" envDefault:"jwt_secrets_priv.jwks"`
	PublicKeyPath   string `env:"JWT_PUBLIC_JWKS_PATH" envDefault:"jwt_secrets_pub.jwks"`

	KeyBits    int `env:"KEYGEN_KEY_BITS"`
	BcryptCost int `env:"KEYGEN_BCRYPT_COST"`

	Users     []string
	UsersFile string
}

// LoadKeygen reads the environment, then lets command-line flags override it.
func LoadKeygen(args []string) (KeygenConfig, error) {
	return loadKeygen(args, env.Options{})
}

func loadKeygen(args []string, opts env.Options) (KeygenConfig, error) {
	var cfg KeygenConfig
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return KeygenConfig{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.KeyBits == 0 {
		cfg.KeyBits = jwt.MinKeyBits
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = password.DefaultCost
	}

	fs := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
	fs.StringArrayVarP(&cfg.Users, "user", "u", nil, "user to add as name:password (repeatable)")
	fs.StringVar(&cfg.UsersFile, "users-file", "", "file with one name:password per line")
	fs.StringVarP(&cfg.OutDir, "out-dir", "o", cfg.OutDir, "directory relative output paths are resolved against")
	fs.StringVar(&cfg.CredentialsPath, "passwd", cfg.CredentialsPath, "credential file to write")
	fs.StringVar(&cfg.PrivateKeyPath, "jwk", cfg.PrivateKeyPath, "private JWK set to write")
	fs.StringVar(&cfg.PublicKeyPath, "jwk-pub", cfg.PublicKeyPath, "public JWK set to write")
	fs.IntVar(&cfg.KeyBits, "key-size", cfg.KeyBits, "RSA modulus size in bits")
	fs.IntVar(&cfg.BcryptCost, "bcrypt-cost", cfg.BcryptCost, "bcrypt cost factor")
	if err := fs.Parse(args); err != nil {
		return KeygenConfig{}, err
	}
	if fs.NArg() > 0 {
		return KeygenConfig{}, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	if len(cfg.Users) == 0 && cfg.UsersFile == "" {
		return KeygenConfig{}, fmt.Errorf("no users given, use --user or --users-file")
	}
	return cfg, nil
}

// IsDevelopment reports whether development logging is wanted.
func (c KeygenConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// Request resolves output paths and collects the users to hash.
func (c KeygenConfig) Request() (*credential.GenerateRequest, error) {
	var pairs []credential.Pair
	for _, u := range c.Users {
		p, err := credential.ParsePair(u)
		if err != nil {
			return nil, fmt.Errorf("--user: %w", err)
		}
		pairs = append(pairs, p)
	}

	if c.UsersFile != "" {
		f, err := os.Open(c.UsersFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open users file: %w", err)
		}
		defer f.Close()

		fromFile, err := credential.ParsePairs(f)
		if err != nil {
			return nil, fmt.Errorf("users file %s: %w", c.UsersFile, err)
		}
		pairs = append(pairs, fromFile...)
	}

	return &credential.GenerateRequest{
		Pairs:           pairs,
		CredentialsPath: c.resolve(c.CredentialsPath),
		PrivateKeyPath:  c.resolve(c.PrivateKeyPath),
		PublicKeyPath:   c.resolve(c.PublicKeyPath),
		KeyBits:         c.KeyBits,
		BcryptCost:      c.BcryptCost,
	}, nil
}

func (c KeygenConfig) resolve(p string) string {
	if filepath.IsAbs(p) || c.OutDir == "" {
		return p
	}
	return filepath.Join(c.OutDir, p)
}
