// Package app wires storage, strategy and logging from a config.Config
// for the cmd/ binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"options-spread-lab/internal/config"
	"options-spread-lab/internal/fixtures"
	"options-spread-lab/internal/storage"
	chstore "options-spread-lab/internal/storage/clickhouse"
	"options-spread-lab/internal/storage/memory"
	"options-spread-lab/internal/storage/migrations"
	pgstore "options-spread-lab/internal/storage/postgres"
	"options-spread-lab/internal/storage/sqlite"
	"options-spread-lab/internal/strategy"
)

// Default synthetic range for the memory data source.
var (
	DefaultFixtureFrom = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	DefaultFixtureTo   = time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC)
)

// Options tunes Open.
type Options struct {
	// FixtureFrom and FixtureTo bound the synthetic sessions generated for
	// the memory data source. Zero values use the defaults above.
	FixtureFrom time.Time
	FixtureTo   time.Time

	// SkipTradeStore leaves Env.Store nil, for commands that only read ticks.
	SkipTradeStore bool
}

// Env holds the collaborators shared by the commands.
type Env struct {
	Config   config.Config
	Log      *logrus.Logger
	Provider storage.MarketDataProvider
	Store    storage.TradeStore
	Manager  *strategy.LifecycleManager

	closers []func()
}

// Open connects the configured data source and trade store.
// Postgres and ClickHouse migrations are applied on connect.
func Open(ctx context.Context, cfg config.Config, log *logrus.Logger, opts Options) (*Env, error) {
	env := &Env{Config: cfg, Log: log}
	loc := cfg.Strategy.Location()

	provider, err := env.openProvider(ctx, opts)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Provider = provider

	if !opts.SkipTradeStore {
		if cfg.App.PostgresDSN == "" {
			env.Store = memory.NewTradeRecordStore()
			log.Info("trade records kept in memory")
		} else {
			pool, err := pgstore.NewPool(ctx, cfg.App.PostgresDSN)
			if err != nil {
				env.Close()
				return nil, fmt.Errorf("connect postgres: %w", err)
			}
			env.closers = append(env.closers, pool.Close)
			applied, err := pgstore.Migrate(ctx, pool)
			if err != nil {
				env.Close()
				return nil, fmt.Errorf("postgres migrations: %w", err)
			}
			env.Store = pgstore.NewTradeRecordStore(pool, loc)
			log.WithField("migrations_applied", migrationNames(applied)).Info("trade records stored in postgres")
		}
	}

	manager, err := strategy.NewLifecycleManager(cfg.Strategy, provider, log)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Manager = manager
	return env, nil
}

func (e *Env) openProvider(ctx context.Context, opts Options) (storage.MarketDataProvider, error) {
	cfg := e.Config
	loc := cfg.Strategy.Location()

	switch cfg.App.DataSource {
	case config.DataSourceSQLite:
		md, err := sqlite.Open(cfg.App.OptionsDBPath, cfg.App.SpotDBPath, cfg.Strategy.Underlying, loc)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() { _ = md.Close() })
		e.Log.WithFields(logrus.Fields{
			"options_db": cfg.App.OptionsDBPath,
			"spot_db":    cfg.App.SpotDBPath,
		}).Info("reading sqlite tick data")
		return md, nil

	case config.DataSourceClickHouse:
		conn, applied, err := chstore.OpenMigrated(ctx, cfg.App.ClickHouseDSN)
		if err != nil {
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		e.closers = append(e.closers, func() { _ = conn.Close() })
		e.Log.WithField("migrations_applied", migrationNames(applied)).Info("reading clickhouse tick data")
		return chstore.NewMarketData(conn, loc), nil

	default:
		from, to := opts.FixtureFrom, opts.FixtureTo
		if from.IsZero() {
			from = DefaultFixtureFrom
		}
		if to.IsZero() {
			to = DefaultFixtureTo
		}
		fcfg := fixtures.DefaultConfig()
		fcfg.Underlying = cfg.Strategy.Underlying
		fcfg.Location = loc

		md := memory.NewMarketData().WithLocation(loc)
		sessions, err := fixtures.Populate(ctx, md, fcfg, from, to)
		if err != nil {
			return nil, fmt.Errorf("generate fixtures: %w", err)
		}
		e.Log.WithFields(logrus.Fields{
			"sessions": len(sessions),
			"from":     from.Format("2006-01-02"),
			"to":       to.Format("2006-01-02"),
		}).Info("generated synthetic sessions")
		return md, nil
	}
}

func migrationNames(ms []migrations.Migration) []string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.Name
	}
	return names
}

// Close releases connections in reverse order of opening.
func (e *Env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}
