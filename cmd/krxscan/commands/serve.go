package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/wonny/krxscan/internal/api"
	"github.com/wonny/krxscan/internal/api/handlers"
	"github.com/wonny/krxscan/internal/market"
	"github.com/wonny/krxscan/internal/refresh"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작하고 일일 갱신 스케줄러를 함께 돌립니다.

Endpoints:
  GET /health
  GET /api/v1/scan        - 전략 스캔 (캐시 적용)
  GET /api/v1/levels      - 시그니처별 레벨 조회
  GET /api/v1/universe    - 유니버스 조회
  GET /api/v1/strategies  - 전략 목록
  GET /api/v1/runs        - 최근 스캔 이력

Example:
  go run ./cmd/krxscan serve
  go run ./cmd/krxscan serve --port 8091`,
	RunE: runServe,
}

var servePort string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "API server port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Println("=== krxscan API Server ===")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if servePort != "" {
		a.cfg.Port = servePort
	}

	scanHandler := handlers.NewScanHandler(a.runner(), a.store, a.selector, a.cache, a.recorder, a.log)
	router := api.NewRouter(scanHandler, a.log)
	server := api.New(a.cfg, a.log, router)

	// daily refresh: cron triggers, the lock-file job makes it run at
	// most once per day across all processes sharing the data dir
	var scheduler *cron.Cron
	if a.cfg.Refresh.Enabled {
		job := refresh.New(a.cfg.Data.LockDir, a.log)
		scheduler = cron.New()
		_, err := scheduler.AddFunc(a.cfg.Refresh.CronSpec, func() {
			started := job.TryRunOnce(func() error { return dailyRefresh(a) })
			if started {
				a.log.Info("Daily refresh started")
			}
		})
		if err != nil {
			return fmt.Errorf("schedule refresh: %w", err)
		}
		scheduler.Start()
		a.log.WithField("cron", a.cfg.Refresh.CronSpec).Info("Daily refresh scheduled")
	}

	go func() {
		if err := server.Start(); err != nil {
			a.log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}

// dailyRefresh downloads the latest snapshots and merges them into the
// panels for every market
func dailyRefresh(a *app) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	for _, m := range market.All() {
		if _, err := a.downloader.DownloadLatest(ctx, m, time.Now(), false); err != nil {
			return fmt.Errorf("download %s: %w", m, err)
		}
		if _, _, err := a.store.Refresh(m); err != nil {
			return fmt.Errorf("refresh %s panel: %w", m, err)
		}
	}
	return nil
}
