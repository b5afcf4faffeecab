package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/viktsys/bolsaingest/api"
	"github.com/viktsys/bolsaingest/database"
	"github.com/viktsys/bolsaingest/ingest"
	"github.com/viktsys/bolsaingest/query"
)

const shutdownTimeout = 15 * time.Second

var serverCMD = &cobra.Command{
	Use:   "server",
	Short: "Start the API server and the ingestion scheduler",
	Long:  `Start the HTTP API server, the websocket push channel and the periodic snapshot job.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger.Info("Initializing database...")
		db, err := database.InitDB(ctx, cfg.DB, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}

		ingestor, err := newIngestor(db, cfg.Ingest)
		if err != nil {
			return err
		}

		hub := api.NewHub()
		srv := api.NewServer(query.NewService(database.NewStore(db)), ingestor, database.NewStore(db), hub, logger)
		scheduler := ingest.NewScheduler(ingestor, cfg.Ingest.Interval, cfg.Ingest.RunOnStart, srv, logger)

		httpSrv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           srv.SetupRoutes(),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return hub.Run(gctx) })
		g.Go(func() error { return scheduler.Run(gctx) })
		g.Go(func() error {
			logger.Infow("Starting server", "addr", cfg.HTTP.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("Shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("Server stopped")
		return nil
	},
}
