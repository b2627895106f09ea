// Package main is the entry point for the chatrelay server.
package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/chatrelay/chatrelay/internal/catalog"
	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/provider"
	"github.com/chatrelay/chatrelay/internal/server"
	"github.com/chatrelay/chatrelay/internal/session"
	"github.com/chatrelay/chatrelay/internal/store"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		log.Fatalf("failed to open message store: %v", err)
	}
	defer st.Close()

	// One provider client reused across requests, constructed here and
	// passed down explicitly — no package-level instance.
	prov := provider.NewAnthropicProvider(cfg.Provider.APIKey, cfg.Provider.BaseURL, http.DefaultClient)

	cat := catalog.New(cfg.Models.Default, cfg.Models.Available)
	reg := session.NewRegistry()

	srv := server.New(prov, reg, cat, st, cfg.Provider.FragmentTimeout)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv,
		// ReadTimeout bounds the request; WriteTimeout would bound the
		// whole SSE stream, so it stays at the configured value — 0 in
		// the shipped config.
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("chatrelay listening on :%d (provider %s, default model %s)",
		cfg.Server.Port, prov.Name(), cat.Default())

	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
