// Command asthmabot runs the pediatric asthma consultation chatbot:
// a Kakao skill webhook that interviews parents, extracts symptom
// fields with an LLM, and returns an asthma possibility assessment.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/drlike/asthmabot/internal/archive"
	"github.com/drlike/asthmabot/internal/dialog"
	"github.com/drlike/asthmabot/internal/llm"
	"github.com/drlike/asthmabot/internal/queue"
	"github.com/drlike/asthmabot/internal/server"
	"github.com/drlike/asthmabot/internal/session"
	"github.com/drlike/asthmabot/pkg/config"
	"github.com/drlike/asthmabot/pkg/observability"
	"github.com/drlike/asthmabot/pkg/security"
)

// Version is set via ldflags.
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "asthmabot",
		Short:         "Pediatric asthma consultation chatbot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"), "configuration file path")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the skill webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("asthmabot v%s\n", Version)
		},
	}

	root.AddCommand(serve, version)
	return root
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log.Printf("[Startup] asthmabot v%s, port: %d", Version, cfg.Port)

	observability.InitMetrics()
	if err := observability.InitTracingFromEnv(); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build session store: %w", err)
	}
	defer store.Close()

	provider, err := llm.NewProvider(cfg.LLM.Provider, map[string]any{
		"api_key":  cfg.LLM.APIKey,
		"base_url": cfg.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}
	defer provider.Close()
	client := llm.NewClient(provider, buildModels(cfg), llm.DefaultTimeouts())

	archiver, err := buildArchiver(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build archiver: %w", err)
	}
	defer archiver.Close()

	notifier := server.NewCallbackNotifier(buildURLGuard(cfg))

	// The in-process queue hands tasks straight back to the machine, so
	// the machine reference is filled in after construction.
	var machine *dialog.Machine
	taskQueue, err := buildQueue(ctx, cfg, func(taskCtx context.Context, task *queue.AnalysisTask) {
		if err := machine.ProcessAnalysis(taskCtx, task); err != nil {
			log.Printf("[Task Error] user: %s: %v", task.UserKey, err)
		}
	})
	if err != nil {
		return fmt.Errorf("build task queue: %w", err)
	}
	defer taskQueue.Close()

	machine = dialog.NewMachine(store, client, taskQueue, archiver, notifier)

	checker := observability.NewHealthChecker()
	checker.RegisterCheck(observability.StoreCheck(store.Ping))

	var limiter *security.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = security.NewRateLimiter(
			cfg.RateLimit.GlobalRPS, cfg.RateLimit.GlobalBurst,
			cfg.RateLimit.UserRPS, cfg.RateLimit.UserBurst,
		)
	}

	srv := server.New(server.Options{
		Port:    cfg.Port,
		Machine: machine,
		Limiter: limiter,
		Checker: checker,
	})

	sweeper := startSweeper(cfg, store)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("webhook server: %w", err)
		}
		return nil
	})

	var opsServer *observability.Server
	if cfg.MetricsPort != 0 {
		opsServer = observability.NewServer(cfg.MetricsPort, checker)
		g.Go(func() error {
			if err := opsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Println("[Shutdown] draining")

		if sweeper != nil {
			sweeper.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[Shutdown] webhook server: %v", err)
		}
		if opsServer != nil {
			if err := opsServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("[Shutdown] ops server: %v", err)
			}
		}

		machine.WaitBackground()

		if err := observability.ShutdownTracing(shutdownCtx); err != nil {
			log.Printf("[Shutdown] tracing: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Println("[Shutdown] complete")
	return nil
}

func buildStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	ttl := time.Duration(cfg.Session.TTLMinutes) * time.Minute

	switch cfg.Session.Backend {
	case "memory":
		log.Println("[Session] in-memory store")
		return session.NewMemoryStore(ttl), nil
	case "redis":
		log.Printf("[Session] redis store at %s", cfg.Session.RedisAddr)
		return session.NewRedisStore(session.RedisConfig{
			Addr:       cfg.Session.RedisAddr,
			Password:   cfg.Session.RedisPassword,
			DB:         cfg.Session.RedisDB,
			Prefix:     cfg.Session.KeyPrefix,
			SessionTTL: ttl,
		})
	case "firestore":
		log.Printf("[Session] firestore store, collection: %s", cfg.Session.Collection)
		return session.NewFirestoreStore(ctx, session.FirestoreConfig{
			ProjectID:  cfg.GCPProject,
			Collection: cfg.Session.Collection,
			SessionTTL: ttl,
		})
	default:
		return nil, fmt.Errorf("unknown session backend: %s", cfg.Session.Backend)
	}
}

func buildModels(cfg *config.Config) llm.Models {
	models := llm.DefaultModels()
	if cfg.LLM.QuestionModel != "" {
		models.Question = cfg.LLM.QuestionModel
	}
	if cfg.LLM.AnalysisModel != "" {
		models.Extraction = cfg.LLM.AnalysisModel
	}
	if cfg.LLM.WaitModel != "" {
		models.Wait = cfg.LLM.WaitModel
	}
	if cfg.LLM.VisionModel != "" {
		models.Vision = cfg.LLM.VisionModel
	}
	return models
}

func buildQueue(ctx context.Context, cfg *config.Config, handler queue.Handler) (queue.TaskQueue, error) {
	switch cfg.Queue.Backend {
	case "cloudtasks":
		log.Printf("[Queue] cloud tasks queue: %s", cfg.Queue.Name)
		return queue.NewCloudTasksQueue(ctx, queue.CloudTasksConfig{
			ProjectID:  cfg.GCPProject,
			Location:   cfg.GCPLocation,
			QueueName:  cfg.Queue.Name,
			ServiceURL: cfg.Queue.ServiceURL,
		})
	case "inprocess":
		log.Println("[Queue] in-process queue")
		return queue.NewInProcessQueue(handler, 2), nil
	default:
		return nil, fmt.Errorf("unknown queue backend: %s", cfg.Queue.Backend)
	}
}

func buildArchiver(ctx context.Context, cfg *config.Config) (archive.Archiver, error) {
	switch cfg.Archive.Backend {
	case "bigquery":
		log.Printf("[Archive] bigquery %s.%s", cfg.Archive.Dataset, cfg.Archive.Table)
		return archive.NewBigQueryArchiver(ctx, archive.BigQueryConfig{
			ProjectID: cfg.GCPProject,
			DatasetID: cfg.Archive.Dataset,
			TableID:   cfg.Archive.Table,
		})
	case "none":
		return archive.NopArchiver{}, nil
	default:
		return nil, fmt.Errorf("unknown archive backend: %s", cfg.Archive.Backend)
	}
}

func buildURLGuard(cfg *config.Config) *security.URLGuard {
	guardCfg := security.DefaultURLGuardConfig()
	guardCfg.AllowedHosts = cfg.Callback.AllowedHosts
	guardCfg.AllowLocalhost = cfg.Callback.AllowLocalhost
	return security.NewURLGuard(guardCfg)
}

// startSweeper schedules the expired-session sweep. Firestore and the
// in-memory store need it; Redis expires keys natively.
func startSweeper(cfg *config.Config, store session.Store) *cron.Cron {
	interval := cfg.Session.SweepIntervalMinutes
	if interval <= 0 {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %dm", interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		purged, err := store.PurgeExpired(ctx)
		if err != nil {
			log.Printf("[Session Sweep Error] %v", err)
			return
		}
		if purged > 0 {
			log.Printf("[Session Sweep] purged %d expired sessions", purged)
			observability.AddPurgedSessions(purged)
		}
	})
	if err != nil {
		log.Printf("[Session Sweep] not scheduled: %v", err)
		return nil
	}
	c.Start()
	return c
}
