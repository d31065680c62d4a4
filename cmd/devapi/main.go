// Command devapi runs the in-memory incident API for local development.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/incidentdesk/internal/config"
	"github.com/geocoder89/incidentdesk/internal/devapi"
	"github.com/geocoder89/incidentdesk/internal/observability"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	cfg := config.Load()
	log := observability.NewLogger(cfg.Env)

	seeds, err := devapi.LoadSeeds(cfg.DevAPIUsersFile)
	if err != nil {
		log.Error("load users", "err", err)
		os.Exit(1)
	}

	users, err := devapi.NewUsers(seeds, bcrypt.DefaultCost)
	if err != nil {
		log.Error("seed users", "err", err)
		os.Exit(1)
	}

	api := devapi.NewServer(users, devapi.Config{
		JWTSecret: cfg.DevAPIJWTSecret,
		AccessTTL: time.Hour,
		Log:       log,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.DevAPIPort),
		Handler:           api.Router("/api"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("devapi starting", "port", cfg.DevAPIPort, "users", users.Usernames())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("devapi failed", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
