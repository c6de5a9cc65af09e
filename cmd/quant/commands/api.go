package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/sujun1972/stock-analysis-go/internal/api"
	"github.com/sujun1972/stock-analysis-go/internal/api/handlers"
	"github.com/sujun1972/stock-analysis-go/internal/scheduler"
	"github.com/sujun1972/stock-analysis-go/internal/scheduler/jobs"
	"github.com/sujun1972/stock-analysis-go/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the REST API server",
	Long: `Starts the HTTP API server.

Endpoints:
  GET  /health                           - Health check
  GET  /api/strategies/{selectors|entries|exits}
  POST /api/strategies                   - Register custom strategy code
  POST /api/combinations/validate        - Check a combination
  POST /api/backtest/run                 - Start a backtest
  GET  /api/backtest/runs                - List tracked runs
  GET  /api/backtest/runs/{id}           - Run status and result
  GET  /api/backtest/runs/{id}/stream    - Websocket progress stream
  GET  /api/audit/recent                 - Recent audit events

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8086`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if apiPort != "" {
		rt.cfg.Port = apiPort
	}

	log := rt.log
	log.WithFields(map[string]interface{}{
		"port": rt.cfg.Port,
		"env":  rt.cfg.Env,
	}).Info("Initializing API server")

	// Built-in catalog records; existing rows are untouched.
	if created, err := seedBuiltinRecords(ctx, rt); err != nil {
		return fmt.Errorf("seed builtin strategies: %w", err)
	} else if created > 0 {
		log.WithField("created", created).Info("Seeded builtin strategies")
	}

	responseCache := redis.NewCache(rt.redis, "quant")
	handler := handlers.New(
		rt.store, rt.registry, rt.runs, rt.auditLog,
		responseCache, rt.cfg.API.CacheTTL,
		handlers.Defaults{
			InitialCapital: rt.cfg.Backtest.InitialCapital,
			Frictions:      rt.defaultFrictions(),
		},
		log,
	)

	limiter := rate.NewLimiter(rate.Limit(rt.cfg.API.RateLimitPerSec), rt.cfg.API.RateLimitBurst)
	router := api.NewRouter(handler, limiter, log)
	server := api.New(rt.cfg, log, router)

	// Maintenance scheduler rides along with the API process.
	var sched *scheduler.Scheduler
	if rt.cfg.Scheduler.Enabled {
		sched = scheduler.New(log)
		if err := sched.AddJob(jobs.NewRevalidateJob(rt.store, rt.auditLog, rt.cfg.Scheduler.RevalidateSpec, log)); err != nil {
			return err
		}
		if err := sched.AddJob(jobs.NewRetentionJob(rt.auditRepo, rt.cfg.Scheduler.AuditRetentionDays, rt.cfg.Scheduler.RetentionSpec, log)); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", rt.cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
