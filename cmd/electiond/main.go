// Command electiond runs the commit-reveal election protocol core behind
// a thin HTTP surface. Flag names and defaults (storage, port) are kept
// from the teacher's own Config struct; session/batch/mixwindow/difficulty
// belonged to its now-removed anonymizing-blockchain demo and have no
// equivalent here.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lietuva-vote/electiond/internal/httpapi"
	"github.com/lietuva-vote/electiond/internal/logging"
	"github.com/lietuva-vote/electiond/internal/persistence"
	"github.com/lietuva-vote/electiond/internal/protocol"
)

type rootFlags struct {
	storage   string
	port      int
	logLevel  string
	logFormat string
}

func main() {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "electiond",
		Short: "Runs the commit-reveal election protocol core",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(flags)
		},
	}

	root.PersistentFlags().StringVar(&flags.storage, "storage", "data", "Directory for protocol snapshot storage")
	root.PersistentFlags().IntVar(&flags.port, "port", 8080, "Server port")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "console", "Log format (console, json)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(flags *rootFlags) error {
	if err := logging.Configure(flags.logLevel, logging.Format(flags.logFormat)); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	store, err := persistence.New(flags.storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	ownerKey, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("failed to mint owner identity: %w", err)
	}
	owner := protocol.AddressFromPrivateKey(ownerKey)
	log.Info().Str("owner", owner.Hex()).Msg("minted owner identity for this run")

	clock := protocol.SystemClock{}
	registry, err := persistence.RestoreRegistry(store, ownerKey, clock)
	if err != nil {
		return fmt.Errorf("failed to restore registry snapshot: %w", err)
	}
	factory := protocol.NewFactory(owner, registry, clock)
	verifier := protocol.NewVerifier(owner)

	server := httpapi.New(registry, factory, verifier, clock)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", flags.port),
		Handler: server.Router(),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", flags.port).Msg("starting server")
		serverErrCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	if err := persistence.SaveRegistry(store, registry); err != nil {
		log.Error().Err(err).Msg("failed to persist registry snapshot")
	}
	if err := persistence.SaveFactory(store, factory); err != nil {
		log.Error().Err(err).Msg("failed to persist factory snapshot")
	}
	return nil
}
