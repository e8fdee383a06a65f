package main

import (
	"context"
	"fmt"

	"sponsorrail/internal/config"
	"sponsorrail/internal/custody"
	"sponsorrail/internal/funding"
	"sponsorrail/internal/idempotency"
	"sponsorrail/internal/ledger"
	"sponsorrail/internal/logtrace"
	"sponsorrail/internal/reconcile"
	"sponsorrail/internal/sponsor"
)

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg      *config.AppConfig
	client   *ledger.RPCClient
	identity *sponsor.Loader
	funding  *funding.Checker
	journal  reconcile.Store
	closers  []func()
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	logtrace.Setup("sponsorrail", cfg.Service.Environment, cfg.Service.LogLevel)
	if len(cfg.Defaulted) > 0 {
		logtrace.Warn(ctx, "using built-in defaults", logtrace.Fields{
			logtrace.FieldModule: "config",
			"defaulted":          cfg.Defaulted,
		})
	}

	client, err := ledger.NewRPCClient(ctx, ledger.RPCClientConfig{
		URL:               cfg.Chain.RPCURL,
		RequestsPerSecond: cfg.Chain.RequestsPerSecond,
		GasPriceTTL:       cfg.Chain.GasPriceTTL,
		HTTPTimeout:       cfg.Chain.RPCTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger client error: %w", err)
	}

	a := &app{
		cfg:      cfg,
		client:   client,
		identity: sponsor.NewLoader(cfg.Chain.SponsorSecret),
		funding:  funding.NewChecker(client, cfg.Deployment.CoinType),
	}
	a.closers = append(a.closers, client.Close)

	journal, err := a.openJournal(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("reconcile store error: %w", err)
	}
	a.journal = journal
	return a, nil
}

func (a *app) openJournal(ctx context.Context) (reconcile.Store, error) {
	svc := a.cfg.Service
	switch svc.ReconcileStore {
	case "file":
		return reconcile.NewFileStore(svc.ReconcileStorePath)
	case "sqlite":
		store, err := reconcile.NewSQLiteStore(svc.ReconcileStorePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, nil
	case "postgres":
		store, err := reconcile.NewPostgresStore(ctx, svc.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return reconcile.NewMemoryStore(), nil
	}
}

func (a *app) openIdempotency(ctx context.Context) (idempotency.Store, error) {
	svc := a.cfg.Service
	switch svc.IdempotencyStore {
	case "file":
		return idempotency.NewFileStore(svc.IdempotencyStorePath)
	case "postgres":
		store, err := idempotency.NewPostgresStore(ctx, svc.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return idempotency.NewMemoryStore(), nil
	}
}

// verifier builds a custody reader; observer may be nil.
func (a *app) verifier(observer custody.Observer) *custody.Verifier {
	return custody.NewVerifier(a.client, observer)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
