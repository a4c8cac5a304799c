package commands

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/trendspark/alert"
	"github.com/teranos/trendspark/config"
	"github.com/teranos/trendspark/growth"
	"github.com/teranos/trendspark/ingest"
	"github.com/teranos/trendspark/logger"
	"github.com/teranos/trendspark/notify"
	"github.com/teranos/trendspark/post"
	"github.com/teranos/trendspark/replies"
	"github.com/teranos/trendspark/scheduler"
	"github.com/teranos/trendspark/score"
	"github.com/teranos/trendspark/trend"
)

// blueskyPollInterval paces the continuous timeline consumer; the cron
// ingest_rank job remains the authoritative ranking pass.
const blueskyPollInterval = 2 * time.Minute

// ServeCmd runs the full service.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the TrendSpark service",
	Long: `Run the full TrendSpark service: the cron scheduler with its
standard jobs (ingest_rank, gen_replies, daily_ideas), the continuous
Bluesky timeline consumer when configured, and an HTTP endpoint exposing
/metrics and /healthz.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.Logger

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	// Stores.
	posts := post.NewStore(database)
	audit := ingest.NewAuditStore(database)
	profiles := growth.NewStore(database)
	notifications := notify.NewStore(database)
	ideas := replies.NewIdeaStore(database)
	configs := scheduler.NewConfigStore(database)
	runs := scheduler.NewJobRunStore(database)

	if _, err := profiles.EnsureDefault(); err != nil {
		return err
	}
	if err := configs.EnsureDefaults(); err != nil {
		return err
	}

	// Delivery channel.
	var notifier notify.Sender = notify.NopSender{}
	if cfg.Telegram.Enabled {
		notifier = notify.NewTelegramSender(cfg.Telegram, notifications, log)
		log.Infow("telegram notifications enabled")
	} else {
		log.Infow("no notification channel configured, alerts will be dropped")
	}

	// Ingestion sources.
	var sources []ingest.Source
	var bluesky *ingest.BlueskySource
	if cfg.Bluesky.Enabled {
		bluesky = ingest.NewBlueskySource(cfg.Bluesky, log)
		sources = append(sources, bluesky)
	}
	var hashtags ingest.HashtagSupplier
	if cfg.X.Enabled {
		sources = append(sources, ingest.NewXSource(cfg.X, log))
		hashtags = ingest.NewXTrends(cfg.X, log)
	}
	if len(sources) == 0 {
		log.Warnw("no ingestion sources enabled")
	}

	// Pipeline.
	generator := replies.NewClient(cfg.OpenAI, log)
	engine := score.NewEngine(cfg.Scoring)
	machine := trend.NewMachine(posts, engine, cfg.Trending, log)
	selector := alert.NewSelector(posts, generator, notifier, cfg.Alerts, cfg.OpenAI.Tones, log)
	runner := ingest.NewRunner(sources, posts, audit, log)

	handlers := scheduler.NewHandlerRegistry(scheduler.HandlerDeps{
		Posts:    posts,
		Ingest:   runner,
		Hashtags: hashtags,
		Trends:   machine,
		Alerts:   selector,
		Replies:  generator,
		Ideas:    ideas,
		Notifier: notifier,
		Tones:    cfg.OpenAI.Tones,
		Log:      log,
	})

	leases := scheduler.NewLeaseManager(database, cfg.Scheduler.AtomicLeases, log)
	failures := scheduler.NewFailureMonitor(
		cfg.Scheduler.FailureThreshold,
		time.Duration(cfg.Scheduler.FailureCooldownMinutes)*time.Minute,
		notifier, log)
	sched := scheduler.New(cfg.Scheduler, configs, leases, runs, failures, profiles, handlers, log)

	if err := sched.Start(); err != nil {
		return err
	}

	// Continuous timeline consumption runs supervised alongside the cron
	// pipeline so a flapping session never takes the service down.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var supervisor *ingest.Supervisor
	if bluesky != nil {
		supervisor = ingest.NewSupervisor("bluesky-poll", func(ctx context.Context) error {
			return bluesky.Poll(ctx, blueskyPollInterval, func(p *post.Post) error {
				_, err := posts.Upsert(p)
				return err
			})
		}, log)
		supervisor.Start(ctx)
	}

	httpServer := startHTTPServer(cfg, database, log)

	port := config.DefaultServerPort
	if cfg.Server.Port != nil {
		port = *cfg.Server.Port
	}
	fmt.Printf("TrendSpark running\n")
	fmt.Printf("  Database: %s\n", cfg.Database.Path)
	fmt.Printf("  HTTP:     http://localhost:%d (metrics, healthz)\n", port)
	fmt.Printf("  Triggers: %d\n", sched.TriggerCount())
	fmt.Printf("\nPress Ctrl+C for graceful shutdown\n\n")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Printf("\nShutting down...\n")

	// Stop in reverse order of startup.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http server shutdown incomplete", "error", err)
	}
	if supervisor != nil {
		supervisor.Stop()
	}
	sched.Stop()
	cancel()

	fmt.Printf("TrendSpark stopped\n")
	return nil
}

func startHTTPServer(cfg *config.Config, database *sql.DB, log *zap.SugaredLogger) *http.Server {
	port := config.DefaultServerPort
	if cfg.Server.Port != nil {
		port = *cfg.Server.Port
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Ping(); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("http server failed", "error", err)
		}
	}()
	return server
}
