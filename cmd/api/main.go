package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/coin"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/complaint"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-market-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-market-go/pkg/utilities"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// .env is loaded best-effort inside config.Load
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Infow("starting service-market", "addr", cfg.HTTP.Addr)
	if cfg.Token.UsesDevSecret() {
		sugar.Warn("JWT_SECRET not set; using the development secret")
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	tokens := session.NewTokenService(cfg.Token)
	users := user.NewUserService(db, nil, user.BcryptHasher{Cost: cfg.Auth.BcryptCost}, tokens)
	users.MaxFailed = cfg.Auth.MaxFailedLogins
	users.LockDuration = cfg.Auth.LockDuration
	coins := coin.NewService(db)
	complaints := complaint.NewService(db)

	if cfg.AutoMigrate {
		mctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		for _, ensure := range []func(context.Context) error{users.EnsureSchema, coins.EnsureSchema, complaints.EnsureSchema} {
			if err := ensure(mctx); err != nil {
				cancel()
				sugar.Fatalf("ensure schema: %v", err)
			}
		}
		cancel()
		sugar.Info("schema ensured")
	}

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := router.RegisterRoutes(sugar, router.Deps{
		DB:         db,
		Users:      users,
		Tokens:     tokens,
		Coins:      coins,
		Complaints: complaints,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Info("service is running; press Ctrl+C to stop")

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
