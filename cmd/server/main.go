// Agent Market node: an identity, validation, reputation and escrow
// ledger behind a JSON API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/agentoven/agentmarket/internal/config"
	"github.com/agentoven/agentmarket/pkg/server"
)

var (
	flagPort    int
	flagBackend string
	flagDataDir string
	flagFaucet  bool
	flagDebug   bool
)

var rootCmd = &cobra.Command{
	Use:   "agentmarket",
	Short: "🏪 Agent Market node",
	Long:  "Runs the identity, validation, reputation and escrow programs\nbehind a JSON API. Flags override AGENTMARKET_* environment variables.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the node version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		fmt.Println(cfg.Version)
		return nil
	},
}

func init() {
	rootCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "HTTP port")
	rootCmd.Flags().StringVar(&flagBackend, "store", "", "store backend (memory or leveldb)")
	rootCmd.Flags().StringVar(&flagDataDir, "data-dir", "", "snapshot or leveldb directory")
	rootCmd.Flags().BoolVar(&flagFaucet, "faucet", false, "enable the test faucet")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "debug logging")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cmd *cobra.Command) error {
	if flagDebug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = flagPort
	}
	if flags.Changed("store") {
		cfg.Store.Backend = flagBackend
	}
	if flags.Changed("data-dir") {
		cfg.Store.DataDir = flagDataDir
	}
	if flags.Changed("faucet") {
		cfg.Faucet.Enabled = flagFaucet
	}

	log.Info().Str("version", cfg.Version).Msg("🏪 Agent Market starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewWithConfig(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize server")
		return err
	}
	defer srv.ShutdownFunc(context.Background())

	if srv.Keeper != nil {
		go srv.Keeper.Start(ctx)
	}

	// WriteTimeout stays unset: the event stream is long lived.
	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", srv.Port),
		Handler:     srv.Handler,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info().Msg("🛑 Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().
		Int("port", srv.Port).
		Msg("🔥 Agent Market is open")

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Server failed")
		return err
	}
	return nil
}
