package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"jwt-provider/internal/config"
	"jwt-provider/internal/service/keygen"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadKeygen(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("[KEYGEN] %v", err)
	}

	var logger *zap.Logger
	if cfg.IsDevelopment() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("[KEYGEN] failed to build logger: %v", err)
	}
	defer logger.Sync()

	req, err := cfg.Request()
	if err != nil {
		logger.Fatal("invalid input", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := keygen.NewKeygenService(logger).Generate(ctx, req)
	if err != nil {
		logger.Fatal("key generation failed", zap.Error(err))
	}

	fmt.Printf("kid:         %s\n", res.KeyID)
	fmt.Printf("credentials: %s\n", res.CredentialsPath)
	fmt.Printf("private key: %s (keep secret, give to the token service)\n", res.PrivateKeyPath)
	fmt.Printf("public key:  %s (publish to the verifying gateway)\n", res.PublicKeyPath)
}
