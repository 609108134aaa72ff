// seed registers the demo account in the configured account store.
// Idempotent: an existing demo account is left untouched.
package main

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"securebank/internal/app"
	"securebank/internal/config"
	identityservice "securebank/internal/identity/service"
)

const (
	demoAccountID = "AB12345"
	demoPassword  = "Str0ng!Pass"
	demoDeposit   = "100.00"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; an in-memory seed would vanish on exit")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deps, err := app.Build(ctx, cfg, io.Discard)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer func() { _ = deps.Close(context.Background()) }()

	err = deps.Auth.Register(ctx, demoAccountID, demoPassword, decimal.RequireFromString(demoDeposit))
	switch {
	case errors.Is(err, identityservice.ErrAccountExists):
		log.Printf("seed: %s already exists, skipping", demoAccountID)
	case err != nil:
		log.Fatalf("seed: register %s: %v", demoAccountID, err)
	default:
		log.Printf("seed: registered %s with balance %s (password %s)", demoAccountID, demoDeposit, demoPassword)
	}
}
