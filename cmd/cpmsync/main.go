package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cpmsync/internal/apiclient"
	"cpmsync/internal/auth"
	"cpmsync/internal/config"
	"cpmsync/internal/db"
	"cpmsync/internal/graph"
	"cpmsync/internal/httpapi"
	"cpmsync/internal/repo"
	"cpmsync/internal/services"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	cfg.Log.ConfigureZerolog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		store    graph.Store
		recorder services.SyncRecorder
		pruner   *repo.GraphStore
	)
	switch cfg.GraphBackend {
	case config.BackendMemory:
		mem := graph.NewMemoryStore()
		if err := graph.EnsureLayout(ctx, mem, cfg.Graph.Layout()); err != nil {
			log.Fatal().Err(err).Msg("Failed to build in-memory layout")
		}
		store = mem
		log.Warn().Msg("Using in-memory graph store, nothing will be persisted")
	default:
		connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
		d, err := db.Connect(connectCtx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err == nil {
			err = d.Migrate(connectCtx)
		}
		connectCancel()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare database")
		}
		defer d.Close()

		gs := repo.NewGraphStore(d.Pool)
		store = gs
		pruner = gs
		recorder = repo.NewSyncStateRepo(d.Pool)
	}

	creds := newCredentials(cfg.API)
	client := apiclient.New(cfg.API.BaseURL, creds, cfg.API.HTTPTimeout)
	client.MaxTransactionPages = cfg.API.TransactionMaxPages

	engine := services.NewEngine(client, store, cfg.Graph.Layout(), services.AttributeNames{
		Category:     cfg.Graph.AttributeCategory,
		LinkCategory: cfg.Graph.LinkCategory,
		LinkLabel:    cfg.Graph.LinkLabel,
	})
	if recorder != nil {
		engine.Recorder = recorder
	}

	srv := httpapi.NewServer(engine, cfg.StatusAPIKey, cfg.GraphBackend)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("Status server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Status server failed")
		}
	}()

	if pruner != nil {
		go pruneHistory(ctx, pruner)
	}

	poller := services.NewPoller(engine, cfg.PullInterval, cfg.ErrorPenalty)
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("Shutting down")
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Msg("Required graph nodes are missing, run the seed command or fix the configured names")
			exitCode = 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	log.Info().Msg("Shutdown complete")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func newCredentials(c config.APIConfig) *auth.Manager {
	var source auth.Source
	if c.UsesClientCredentials() {
		source = auth.NewClientCredentialsSource(c.ResolvedTokenURL(), c.ClientID, c.ClientSecret, c.Scope, c.GrantType,
			&http.Client{Timeout: c.HTTPTimeout})
	} else {
		source = auth.NewStaticSource(c.StaticToken, c.StaticTokenTTL)
	}

	m := auth.NewManager(source, c.TokenSkew, auth.WithStore(auth.NewFileStore(c.TokenPath)))
	if _, err := m.Load(); err != nil {
		log.Warn().Err(err).Str("path", c.TokenPath).Msg("Ignoring unreadable credential file")
	}
	return m
}

func pruneHistory(ctx context.Context, gs *repo.GraphStore) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := gs.PruneEndpointHistory(ctx, time.Now().Add(-repo.HistoryRetention))
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("Endpoint history prune failed")
		} else if n > 0 {
			log.Info().Int64("rows", n).Msg("Pruned endpoint history")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
