package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpadapter "sengol/internal/adapters/http"
	pg "sengol/internal/adapters/postgres"
	"sengol/internal/config"
	"sengol/internal/metrics"
	"sengol/internal/policy"
	"sengol/internal/ports"
	"sengol/internal/services/evaluation"
	"sengol/internal/services/submission"
	"sengol/internal/workers/evalrunner"
)

func main() {
	cfg, err := config.Load()
	log := config.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)
	if err != nil && !errors.Is(err, config.ErrNoDatabase) {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is required for Postgres adapters")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect error", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Error("migrate", "error", err)
		os.Exit(1)
	}
	if cfg.PolicySeedPath != "" {
		if err := seedPolicies(ctx, db, cfg.PolicySeedAccount, cfg.PolicySeedPath); err != nil {
			log.Error("seed policies", "path", cfg.PolicySeedPath, "error", err)
			os.Exit(1)
		}
	}

	// Wire repositories to services (ports)
	var _ ports.PolicyRepository = db
	var _ ports.ViolationStore = db
	var _ ports.JobRepository = db
	assessments := db.Assessments()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	evaluator := evaluation.New(db, db, evaluation.Options{
		Interpretation: cfg.Interpretation,
		MaxConcurrency: cfg.EvalMaxConcurrency,
		BatchTimeout:   cfg.EvalBatchTimeout,
		Logger:         log,
		Metrics:        m,
	})
	submissions := submission.New(assessments, db, submission.Options{Logger: log, Metrics: m})
	var _ ports.Evaluator = evaluator
	var _ ports.Submissions = submissions

	srv := httpadapter.New(submissions, evaluator, assessments, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), log)
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	// Optional background evaluation workers
	workersDone := make(chan struct{})
	if cfg.EvalWorkers > 0 {
		processor := evalrunner.Evaluator{Assessments: assessments, Policies: evaluator}
		go func() {
			evalrunner.Run(ctx, db, processor, cfg.EvalWorkers, cfg.EvalPollInterval, log)
			close(workersDone)
		}()
		log.Info("evaluation workers started", "workers", cfg.EvalWorkers)
	} else {
		close(workersDone)
	}

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	log.Info("listening", "addr", cfg.ListenAddr, "env", cfg.Env, "interpretation", cfg.Interpretation)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		log.Error("server error", "error", err)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = httpSrv.Shutdown(shutdownCtx)
	cancel()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		log.Warn("workers did not stop before shutdown deadline")
	}
}

func seedPolicies(ctx context.Context, db *pg.DB, accountID, path string) error {
	defs, err := policy.LoadFile(path)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if err := db.UpsertPolicy(ctx, accountID, def); err != nil {
			return err
		}
	}
	slog.Info("policies seeded", "account_id", accountID, "count", len(defs))
	return nil
}
