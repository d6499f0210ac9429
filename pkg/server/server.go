// Package server provides the public entry point for initializing a
// market node: the ledger, the four programs and the HTTP API.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	go srv.Keeper.Start(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/agentoven/agentmarket/internal/api"
	"github.com/agentoven/agentmarket/internal/api/handlers"
	"github.com/agentoven/agentmarket/internal/api/middleware"
	"github.com/agentoven/agentmarket/internal/config"
	"github.com/agentoven/agentmarket/internal/escrow"
	"github.com/agentoven/agentmarket/internal/events"
	"github.com/agentoven/agentmarket/internal/identity"
	"github.com/agentoven/agentmarket/internal/ledger"
	"github.com/agentoven/agentmarket/internal/reputation"
	"github.com/agentoven/agentmarket/internal/retention"
	"github.com/agentoven/agentmarket/internal/store"
	"github.com/agentoven/agentmarket/internal/telemetry"
	"github.com/agentoven/agentmarket/internal/validation"
)

// Server holds an initialized market node.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the key/value store backing the ledger.
	Store store.Store

	Ledger     *ledger.Ledger
	Identity   *identity.Registry
	Validation *validation.Registry
	Reputation *reputation.Registry
	Escrow     *escrow.Escrow

	// Keeper sweeps expired jobs and overdue deposits. Nil when disabled.
	Keeper *retention.Keeper

	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc flushes telemetry, drains the event sinks and closes the
	// store.
	ShutdownFunc func(context.Context) error
}

// New loads configuration from the environment and initializes a Server.
func New(ctx context.Context) (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig initializes a Server with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry, telemetry.Node{
		Version:  cfg.Version,
		Deployer: ledger.AddressFromSeed(cfg.Market.DeployerSeed).Hex(),
		Store:    cfg.Store.Backend,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	closers := []func(context.Context) error{shutdownTelemetry}

	dataStore, err := openStore(cfg.Store)
	if err != nil {
		shutdownTelemetry(ctx)
		return nil, err
	}
	closers = append(closers, func(context.Context) error { return dataStore.Close() })

	buf := events.NewBuffer(cfg.Market.EventBuffer)
	l := ledger.New(dataStore, ledger.WithSink(buf), ledger.WithSink(events.LogSink{}))
	if cfg.Kafka.Brokers != "" {
		sink := events.NewKafkaSink(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), cfg.Kafka.Timeout)
		l.AddSink(sink)
		closers = append(closers, func(context.Context) error { return sink.Close() })
		log.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("✅ Kafka event sink enabled")
	}

	if len(cfg.Webhook.URLs) > 0 {
		hook := events.NewWebhookSink(events.WebhookOptions{
			URLs:    cfg.Webhook.URLs,
			Secret:  cfg.Webhook.Secret,
			Events:  cfg.Webhook.Events,
			Timeout: cfg.Webhook.Timeout,
		})
		l.AddSink(hook)
		closers = append(closers, func(context.Context) error { return hook.Close() })
		log.Info().Int("urls", len(cfg.Webhook.URLs)).Msg("✅ Webhook event sink enabled")
	}

	srv := &Server{
		Store:        dataStore,
		Ledger:       l,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: func(ctx context.Context) error {
			var errs []error
			for i := len(closers) - 1; i >= 0; i-- {
				errs = append(errs, closers[i](ctx))
			}
			return errors.Join(errs...)
		},
	}
	if err := srv.deploy(ctx); err != nil {
		srv.ShutdownFunc(ctx)
		return nil, err
	}

	if cfg.Keeper.Enabled {
		opts := []retention.Option{retention.WithBatchSize(cfg.Keeper.BatchSize)}
		if cfg.Keeper.ArchiveDir != "" {
			opts = append(opts, retention.WithArchiver(retention.NewLocalFileArchiver(cfg.Keeper.ArchiveDir, cfg.Keeper.Compress)))
		}
		srv.Keeper = retention.NewKeeper(srv.Validation, srv.Escrow, l.Clock(),
			ledger.AddressFromSeed(cfg.Keeper.Seed), cfg.Keeper.Interval, opts...)
	}

	h := &handlers.Handlers{
		Ledger:       l,
		Identity:     srv.Identity,
		Validation:   srv.Validation,
		Reputation:   srv.Reputation,
		Escrow:       srv.Escrow,
		Events:       buf,
		FaucetConfig: cfg.Faucet,
		Version:      cfg.Version,
	}
	var auth *middleware.APIKeyAuth
	if len(cfg.Auth.APIKeys) > 0 {
		if auth, err = middleware.NewAPIKeyAuth(cfg.Auth.APIKeys); err != nil {
			srv.ShutdownFunc(ctx)
			return nil, err
		}
		log.Info().Int("keys", len(cfg.Auth.APIKeys)).Msg("🔐 API key auth enabled")
	}
	srv.Handler = api.NewRouter(h, auth)
	return srv, nil
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "leveldb":
		db, err := store.OpenLevelDB(cfg.DataDir, cfg.CacheMB, cfg.Handles)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.DataDir).Msg("✅ LevelDB store opened")
		return db, nil
	default:
		log.Info().Str("data_dir", cfg.DataDir).Msg("✅ In-memory store initialized")
		return store.NewMemoryStore(cfg.DataDir), nil
	}
}

// deploy deploys the four programs from the configured deployer and issues
// the identity token class if it does not exist yet. Program addresses are
// derived from the deployer, so a restart over the same store finds the
// same state.
func (s *Server) deploy(ctx context.Context) error {
	cfg := s.Config
	deployer := ledger.AddressFromSeed(cfg.Market.DeployerSeed)

	var err error
	if s.Identity, err = identity.Deploy(s.Ledger, deployer, cfg.Shards.Identity); err != nil {
		return fmt.Errorf("deploy identity registry: %w", err)
	}
	if s.Validation, err = validation.Deploy(ctx, s.Ledger, deployer, cfg.Shards.Validation, s.Identity.Address()); err != nil {
		return fmt.Errorf("deploy validation registry: %w", err)
	}
	if s.Reputation, err = reputation.Deploy(ctx, s.Ledger, deployer, cfg.Shards.Reputation, s.Validation.Address(), s.Identity.Address()); err != nil {
		return fmt.Errorf("deploy reputation registry: %w", err)
	}
	if s.Escrow, err = escrow.Deploy(ctx, s.Ledger, deployer, cfg.Shards.Escrow, s.Validation.Address(), s.Identity.Address()); err != nil {
		return fmt.Errorf("deploy escrow: %w", err)
	}

	tokenID, _, err := s.Identity.IssueToken(ctx, deployer, cfg.Market.TokenName, cfg.Market.TokenTicker)
	switch {
	case errors.Is(err, identity.ErrTokenAlreadyIssued):
		info, err := s.Identity.TokenInfo(ctx)
		if err != nil {
			return fmt.Errorf("read identity token: %w", err)
		}
		tokenID = info.TokenID
	case err != nil:
		return fmt.Errorf("issue identity token: %w", err)
	}
	log.Info().
		Str("deployer", deployer.Hex()).
		Str("token", string(tokenID)).
		Msg("✅ Market programs ready")
	return nil
}
