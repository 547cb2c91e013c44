package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sabio/superset-autodash/pkg/advisor"
	"github.com/sabio/superset-autodash/pkg/config"
	"github.com/sabio/superset-autodash/pkg/provision"
	"github.com/sabio/superset-autodash/pkg/server"
	"github.com/sabio/superset-autodash/pkg/superset"
)

func main() {
	log.Println("Starting superset-autodash...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Println("Superset configuration:")
	log.Printf("  Server URL: %s", cfg.Superset.BaseURL)
	if cfg.Superset.APIKey != "" {
		log.Println("  Authentication: API key")
	} else {
		log.Printf("  Authentication: password login as %s", cfg.Superset.Username)
	}
	log.Printf("  Default database id: %d (schema %s)", cfg.Superset.DatabaseID, cfg.Superset.Schema)
	log.Printf("  Payload shape: %s", cfg.Superset.CapabilityVersion)
	log.Printf("LLM model: %s", cfg.LLM.Model)

	auth := superset.NewAuthenticator(superset.AuthConfig{
		BaseURL:  cfg.Superset.BaseURL,
		APIKey:   cfg.Superset.APIKey,
		Username: cfg.Superset.Username,
		Password: cfg.Superset.Password,
	})

	client := superset.NewClient(superset.ClientConfig{
		BaseURL:           cfg.Superset.BaseURL,
		CapabilityVersion: cfg.Superset.CapabilityVersion,
	})

	adv, err := advisor.New(advisor.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	})
	if err != nil {
		log.Fatalf("Failed to create advisor: %v", err)
	}

	provisioner := provision.NewProvisioner(client)

	srv := server.New(cfg.Superset, auth, adv, provisioner, client)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Routes(),
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	log.Printf("Server listening on :%s", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped")
}
