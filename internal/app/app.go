// Package app wires the venue gateway, the execution core, the config
// store, the HTTP intake and the sweep scheduler into one runnable process.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"riptide/internal/config"
	"riptide/internal/executor"
	"riptide/internal/logger"
	"riptide/internal/market"
	"riptide/internal/scheduler"
	"riptide/internal/store"
	tradehttp "riptide/internal/transport/http/trade"
	"riptide/internal/venue"
	"riptide/internal/venue/binance"
)

type App struct {
	cfg     *config.Config
	store   *store.Store
	server  *tradehttp.Server
	sweeper *executor.Sweeper
}

func NewApp(cfg *config.Config) (*App, error) {
	gateway, err := binance.New(binance.Config{
		APIKey:            os.Getenv("RIPTIDE_API_KEY"),
		APISecret:         os.Getenv("RIPTIDE_API_SECRET"),
		RESTBaseURL:       cfg.Venue.RESTBaseURL,
		HTTPTimeout:       time.Duration(cfg.Venue.TimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.Venue.RequestsPerSecond,
		ProxyEnabled:      cfg.Venue.ProxyEnabled,
		RESTProxyURL:      cfg.Venue.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("building venue gateway: %w", err)
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening config store: %w", err)
	}

	rules := venue.NewRulesCache(gateway)
	estimator := market.NewATREstimator(gateway)
	exec := executor.NewExecutor(gateway, rules, estimator)
	exec.SetQuoteAsset(cfg.Venue.QuoteAsset)
	sweeper := executor.NewSweeper(gateway)

	server, err := tradehttp.NewServer(tradehttp.ServerConfig{
		Addr:     cfg.App.HTTPAddr,
		Executor: exec,
		Sweeper:  sweeper,
		Store:    st,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("building http server: %w", err)
	}
	return &App{cfg: cfg, store: st, server: server, sweeper: sweeper}, nil
}

// Run blocks until the context ends or a component fails.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(ctx) })
	if a.cfg.Sweep.Enabled {
		interval, err := time.ParseDuration(a.cfg.Sweep.Interval)
		if err != nil {
			return fmt.Errorf("parsing sweep interval: %w", err)
		}
		g.Go(func() error {
			scheduler.NewIntervalScheduler(ctx, interval).Start(func() { a.runSweep(ctx) })
			return nil
		})
	}
	return g.Wait()
}

// runSweep heals leftover half-states for every configured symbol. Errors
// are logged, never fatal: the next tick retries against fresh venue state.
func (a *App) runSweep(ctx context.Context) {
	for _, symbol := range a.cfg.Sweep.Symbols {
		if _, err := a.sweeper.CancelOrdersIfNoPosition(ctx, symbol); err != nil {
			logger.Errorf("sweep: cancel-orders pass for %s: %v", symbol, err)
		}
		if _, err := a.sweeper.ClosePositionIfNoOpenOrders(ctx, symbol); err != nil {
			logger.Errorf("sweep: close-position pass for %s: %v", symbol, err)
		}
	}
}
