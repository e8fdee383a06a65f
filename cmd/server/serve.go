package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sponsorrail/internal/executor"
	"sponsorrail/internal/idempotency"
	"sponsorrail/internal/logtrace"
	"sponsorrail/internal/pricing"
	"sponsorrail/internal/reconcile"
	"sponsorrail/internal/server"
	"sponsorrail/internal/workflow"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := logtrace.CtxWithCorrelationID(context.Background(), "sponsorrail-serve")

		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		defer logtrace.Sync()

		store, err := a.openIdempotency(ctx)
		if err != nil {
			return fmt.Errorf("idempotency store error: %w", err)
		}

		if signer, err := a.identity.Load(); err != nil {
			logtrace.Error(ctx, "sponsor identity unavailable; workflows will fail", logtrace.Fields{
				logtrace.FieldModule: "serve",
				logtrace.FieldError:  err.Error(),
			})
		} else {
			logtrace.Info(ctx, "sponsor identity loaded", logtrace.Fields{
				logtrace.FieldModule:  "serve",
				logtrace.FieldSponsor: signer.Address(),
			})
		}

		metrics := server.NewMetrics()
		orchestrator, err := workflow.New(workflow.Config{
			Identity:   a.identity,
			Funding:    a.funding,
			Executor:   executor.New(a.client, executor.WithCoinType(a.cfg.Deployment.CoinType), executor.WithObserver(metrics)),
			Verifier:   a.verifier(metrics),
			Journal:    a.journal,
			Observer:   metrics,
			Deployment: a.cfg.Deployment.Deployment,
			Policies:   a.cfg.Policies(),
			Budgets:    a.cfg.Budgets(),
		})
		if err != nil {
			return err
		}

		apiServer := server.NewServer(a.cfg, server.Deps{
			Workflows:   orchestrator,
			Identity:    a.identity,
			Funding:     a.funding,
			Prices:      pricing.NewLookup(a.client),
			Reconcile:   a.journal,
			Idempotency: store,
			Ledger:      a.client,
			Metrics:     metrics,
		})

		runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if interval := a.cfg.Service.ReconcileInterval; interval > 0 {
			sweeper := reconcile.NewSweeper(a.journal, a.verifier(nil))
			go sweeper.Run(runCtx, interval, func(r reconcile.SweepReport) {
				metrics.SetReconcilePending(len(r.Pending))
			})
		}

		if purger, ok := store.(idempotency.Purger); ok {
			go idempotency.RunPurge(runCtx, purger, a.cfg.Service.IdempotencyPurge)
		}

		errCh := make(chan error, 1)
		go func() {
			if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-runCtx.Done():
		}

		logtrace.Info(ctx, "shutting down", logtrace.Fields{logtrace.FieldModule: "serve"})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
