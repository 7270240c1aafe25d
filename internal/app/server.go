// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"jwt-provider/internal/config"
	"jwt-provider/internal/db"
	tokenHandler "jwt-provider/internal/handlers/token"
	"jwt-provider/internal/middleware"
	"jwt-provider/internal/pkg/jwt"
	"jwt-provider/internal/pkg/ratelimit"
	"jwt-provider/internal/repository/file"
	tokenUsecase "jwt-provider/internal/service/token"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	logger *zap.Logger
	http   *http.Server
	redis  *redis.Client
}

// NewServer loads the credential table and signing key and builds the HTTP
// stack. Any load failure is returned before a listener exists, so a
// misconfigured service never accepts a connection.
func NewServer(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}

	// ----- Credentials -----
	creds, err := file.LoadCredentials(cfg.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	logger.Info("credentials loaded",
		zap.String("path", cfg.CredentialsPath),
		zap.Int("count", creds.Count()),
		zap.Strings("users", creds.Usernames()),
	)

	// ----- JWT Manager -----
	jwtManager, err := jwt.LoadAndBuild(cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("failed to load JWT manager: %w", err)
	}
	if jwtManager.KeysInSet > 1 {
		logger.Warn("private key set holds more than one key, only the last one is used",
			zap.String("path", cfg.JWT.PrivPath),
			zap.Int("keys", jwtManager.KeysInSet),
			zap.String("kid", jwtManager.Generator.KeyID()),
		)
	}
	logger.Info("signing key loaded",
		zap.String("kid", jwtManager.Generator.KeyID()),
		zap.String("issuer", cfg.JWT.Issuer),
		zap.String("audience", cfg.JWT.Audience),
		zap.Duration("ttl", jwtManager.Generator.TTL()),
	)

	// ----- Rate Limiter -----
	var store ratelimit.Store
	if cfg.RedisAddr != "" {
		s.redis, err = db.NewRedisClient(ctx, db.RedisConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPass,
			PoolSize: 10,
		})
		if err != nil {
			return nil, err
		}
		store = ratelimit.NewRedisStore(s.redis)
		logger.Info("login rate limiter uses redis", zap.String("addr", cfg.RedisAddr))
	} else {
		store = ratelimit.NewMemoryStoreWithLimit(cfg.Login.MaxKeys)
	}
	limiter := ratelimit.NewLoginLimiter(store, cfg.Login.MaxAttempts, cfg.Login.Window)

	// ----- Services -----
	tokenService := tokenUsecase.NewTokenService(creds, jwtManager.Generator, limiter, logger)

	engine, err := NewEngine(tokenService, cfg.AuthChallenge, cfg.TrustedProxies, logger)
	if err != nil {
		return nil, err
	}

	s.http = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// NewEngine wires middleware, handlers and routes around a token service.
// Only trustedProxies may override the client IP through X-Forwarded-For;
// the login limiter keys on that IP.
func NewEngine(tokenService *tokenUsecase.Service, challenge string, trustedProxies []string, logger *zap.Logger) (*gin.Engine, error) {
	engine := gin.New()
	if err := engine.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	engine.Use(
		middleware.LoggingMiddleware(logger),
		middleware.RecoveryMiddleware(logger),
	)

	SetupRouter(engine, &Handlers{
		TokenHandler:   tokenHandler.NewTokenHandler(tokenService, logger),
		AuthMiddleware: middleware.NewAuthMiddleware(tokenService, challenge, logger),
	})
	return engine, nil
}

// Handler exposes the HTTP stack, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("token service listening", zap.String("addr", s.cfg.HTTPAddr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases the redis pool.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	if s.redis != nil {
		if cerr := s.redis.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
