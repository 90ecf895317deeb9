package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/agent"
	"github.com/sells-group/evidence-cli/internal/attribution"
	"github.com/sells-group/evidence-cli/internal/contradiction"
	"github.com/sells-group/evidence-cli/internal/decision"
	"github.com/sells-group/evidence-cli/internal/digest"
	"github.com/sells-group/evidence-cli/internal/fetcher"
	"github.com/sells-group/evidence-cli/internal/ingest"
	"github.com/sells-group/evidence-cli/internal/monitoring"
	"github.com/sells-group/evidence-cli/internal/pilot"
	"github.com/sells-group/evidence-cli/internal/proposal"
	"github.com/sells-group/evidence-cli/internal/server"
	"github.com/sells-group/evidence-cli/internal/store"
	"github.com/sells-group/evidence-cli/internal/synthesis"
	"github.com/sells-group/evidence-cli/internal/textgen"
	"github.com/sells-group/evidence-cli/pkg/anthropic"
)

// appEnv holds the store and every domain service a command may need.
type appEnv struct {
	server.Services
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "evidence.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv validates the configuration for mode, opens and migrates the store
// and builds the services. Synthesis and Agents stay nil when no Anthropic
// key is configured. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	feeds := fetcher.New(fetcher.Options{
		UserAgent:    cfg.Ingest.UserAgent,
		Timeout:      time.Duration(cfg.Ingest.TimeoutSecs) * time.Second,
		MaxDocuments: cfg.Ingest.MaxDocuments,
	})
	metrics := pilot.NewStoreMetrics(st, time.Duration(cfg.Pilot.BaselineWindowDays)*24*time.Hour)

	env := &appEnv{Services: server.Services{
		Store:     st,
		Scheduler: ingest.NewScheduler(st),
		Ingest: ingest.NewWorker(st, st, feeds, ingest.WorkerOptions{
			MinQuality:      cfg.Ingest.MinQuality,
			MinCompleteness: cfg.Ingest.MinCompleteness,
			Concurrency:     cfg.Ingest.Concurrency,
		}),
		Digests: digest.NewGenerator(st, digest.Options{
			Period:              cfg.Digest.Period,
			ActionableThreshold: cfg.Digest.ActionableThreshold,
			MajorThemeThreshold: cfg.Digest.MajorThemeThreshold,
		}),
		Contradictions: contradiction.NewDetector(st),
		Proposals:      proposal.NewGenerator(st),
		Pilots:         pilot.NewManager(st, metrics, pilot.Options{BaselineConcurrency: cfg.Pilot.BaselineConcurrency}),
		Metrics:        metrics,
		Attribution:    attribution.NewEngine(st, metrics, cfg.Pilot.BaselineConcurrency),
		Decisions:      decision.NewEngine(st),
	}}
	env.Monitoring = monitoring.NewChecker(
		monitoring.NewCollector(st, env.Pilots, env.Contradictions),
		monitoring.NewAlerter(cfg.Monitoring),
		cfg.Monitoring,
	)

	if cfg.Anthropic.Key != "" {
		gen := initTextgen()
		env.Synthesis = synthesis.NewService(st, gen)
		env.Agents = agent.NewExecutor(st, gen)
	}
	return env, nil
}

func initTextgen() *textgen.Generator {
	opts := []anthropic.ClientOption{
		anthropic.WithTimeout(time.Duration(cfg.Anthropic.TimeoutSecs) * time.Second),
	}
	if cfg.Anthropic.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.Anthropic.BaseURL))
	}
	client := anthropic.NewClient(cfg.Anthropic.Key, opts...)
	return textgen.New(client, textgen.Options{
		Model:             cfg.Anthropic.Model,
		MaxTokens:         cfg.Anthropic.MaxTokens,
		Temperature:       cfg.Anthropic.Temperature,
		RequestsPerMinute: cfg.Anthropic.RequestsPerMinute,
	})
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// requireChange turns a false precondition result into a command error.
func requireChange(ok bool, err error, what string) error {
	if err != nil {
		return err
	}
	if !ok {
		return eris.Errorf("%s: nothing changed (see log for the reason)", what)
	}
	return nil
}
