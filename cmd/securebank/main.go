// securebank is the interactive banking console. Set DATABASE_URL to keep accounts in Postgres
// (run cmd/migrate first); without it accounts live in memory for the length of the run.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"securebank/internal/app"
	"securebank/internal/config"
	"securebank/internal/console"
	"securebank/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg, os.Stdout)
	if err != nil {
		if errors.Is(err, security.ErrCryptoConfiguration) {
			log.Fatalf("password derivation settings rejected: %v", err)
		}
		log.Fatalf("startup: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := deps.Close(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	c := console.New(os.Stdin, os.Stdout, deps.Auth, deps.Engine, cfg.MaxAmount())
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("console: %v", err)
	}
}
