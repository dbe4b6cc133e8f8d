package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/prospectpro/leadengine/internal/budget"
	"github.com/prospectpro/leadengine/internal/cache"
	"github.com/prospectpro/leadengine/internal/config"
	"github.com/prospectpro/leadengine/internal/orchestrator"
	"github.com/prospectpro/leadengine/internal/ratelimit"
	"github.com/prospectpro/leadengine/internal/resilience"
	"github.com/prospectpro/leadengine/internal/score"
	"github.com/prospectpro/leadengine/internal/source"
	"github.com/prospectpro/leadengine/internal/store"
	"github.com/prospectpro/leadengine/internal/telemetry"
	"github.com/prospectpro/leadengine/pkg/foursquare"
	"github.com/prospectpro/leadengine/pkg/hunter"
	"github.com/prospectpro/leadengine/pkg/neverbounce"
	"github.com/prospectpro/leadengine/pkg/places"
	"github.com/prospectpro/leadengine/pkg/statereg"
)

// engineEnv holds the initialized store, adapter registry, and engine used
// by the discover/campaigns/cache/serve commands.
type engineEnv struct {
	Store   store.Store
	Engine  *orchestrator.Engine
	Cache   *cache.Cache
	Metrics *telemetry.Collector
}

// Close releases resources held by the environment.
func (env *engineEnv) Close() {
	if env.Store != nil {
		_ = env.Store.Close()
	}
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "", "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEngine sets up the store, provider clients, adapter registry, rate
// limiters, budget ledger, and the orchestrator. Callers should defer
// env.Close().
func initEngine(ctx context.Context) (*engineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	retryCfg := resilience.FromConfig(
		cfg.Retry.MaxAttempts,
		cfg.Retry.InitialBackoffMS,
		cfg.Retry.MaxBackoffMS,
		cfg.Retry.Multiplier,
		cfg.Retry.JitterFraction,
	)
	circuitCfg := resilience.CircuitConfig{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		ResetTimeout:     time.Duration(cfg.Circuit.ResetTimeoutSecs) * time.Second,
	}

	registry := source.NewRegistry()
	limits := ratelimit.New()

	register := func(a source.Adapter, sc config.SourceConfig) {
		registry.Register(source.WithResilience(a, retryCfg, circuitCfg))
		limits.Configure(a.Name(), sc.RatePerSec, sc.Burst)
	}
	httpClient := func(sc config.SourceConfig) *http.Client {
		return &http.Client{Timeout: sc.Timeout()}
	}

	if cfg.Places.Key != "" {
		client := places.NewClient(cfg.Places.Key,
			places.WithBaseURL(cfg.Places.BaseURL),
			places.WithHTTPClient(httpClient(cfg.Sources.GooglePlaces)))
		register(source.NewPlacesAdapter(client, cfg.Sources.GooglePlaces), cfg.Sources.GooglePlaces)
	} else {
		zap.L().Warn("PROSPECT_PLACES_KEY not set, google_places disabled")
	}

	if cfg.Foursquare.Key != "" {
		client := foursquare.NewClient(cfg.Foursquare.Key,
			foursquare.WithBaseURL(cfg.Foursquare.BaseURL),
			foursquare.WithHTTPClient(httpClient(cfg.Sources.Foursquare)))
		register(source.NewFoursquareAdapter(client, cfg.Sources.Foursquare), cfg.Sources.Foursquare)
	} else {
		zap.L().Debug("PROSPECT_FOURSQUARE_KEY not set, foursquare disabled")
	}

	if cfg.Hunter.Key != "" {
		client := hunter.NewClient(cfg.Hunter.Key,
			hunter.WithBaseURL(cfg.Hunter.BaseURL),
			hunter.WithHTTPClient(httpClient(cfg.Sources.HunterIO)))
		register(source.NewHunterAdapter(client, cfg.Sources.HunterIO), cfg.Sources.HunterIO)
	} else {
		zap.L().Debug("PROSPECT_HUNTER_KEY not set, email discovery disabled")
	}

	if cfg.NeverBounce.Key != "" {
		client := neverbounce.NewClient(cfg.NeverBounce.Key,
			neverbounce.WithBaseURL(cfg.NeverBounce.BaseURL),
			neverbounce.WithHTTPClient(httpClient(cfg.Sources.NeverBounce)))
		register(source.NewNeverBounceAdapter(client, cfg.Sources.NeverBounce), cfg.Sources.NeverBounce)
	} else {
		zap.L().Debug("PROSPECT_NEVERBOUNCE_KEY not set, email verification disabled")
	}

	if len(cfg.Registry.Endpoints) > 0 {
		client := statereg.NewClient(cfg.Registry.Endpoints,
			statereg.WithHTTPClient(httpClient(cfg.Sources.StateRegistry)))
		register(source.NewRegistryAdapter(client, cfg.Sources.StateRegistry), cfg.Sources.StateRegistry)
	} else {
		zap.L().Debug("no state registry endpoints configured, registry validation disabled")
	}

	if len(registry.OfKind(source.KindDiscovery)) == 0 {
		_ = st.Close()
		return nil, eris.New("no discovery sources configured: set at least PROSPECT_PLACES_KEY or PROSPECT_FOURSQUARE_KEY")
	}

	ledger := budget.NewLedger(func(ctx context.Context, snap budget.Snapshot) {
		if err := st.SaveLedgerSnapshot(ctx, snap); err != nil {
			zap.L().Warn("ledger snapshot persist failed",
				zap.String("campaign_id", snap.CampaignID),
				zap.Error(err))
		}
	})

	timeout := cfg.Sources.GooglePlaces.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	responseCache := cache.New(st)
	engine := orchestrator.New(
		registry,
		limits,
		responseCache,
		ledger,
		score.New(score.FromConfig(cfg.Scoring)),
		score.NewHTTPChecker(timeout),
		telemetry.NewRecorder(st),
		st,
		orchestrator.Config{
			Reliability:             cfg.Sources.Reliability,
			MaxConcurrentSources:    cfg.Discovery.MaxConcurrentSources,
			MaxConcurrentCandidates: cfg.Discovery.MaxConcurrentCandidates,
			RateWaitMax:             time.Duration(cfg.Discovery.RateWaitMaxSecs) * time.Second,
			PreValidationMinScore:   cfg.Scoring.PreValidationMinScore,
		},
	)

	return &engineEnv{
		Store:   st,
		Engine:  engine,
		Cache:   responseCache,
		Metrics: telemetry.NewCollector(st),
	}, nil
}
