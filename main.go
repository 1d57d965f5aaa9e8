package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sageflow/sageflow/internal/config"
	_ "github.com/sageflow/sageflow/internal/metrics" // Import for side effects
	"github.com/sageflow/sageflow/internal/orchestrator"
)

func main() {
	configPath := flag.String("config", "", "path to sageflow.yaml (default: SAGEFLOW_CONFIG or ./config/sageflow.yaml)")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall run deadline")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	goal, err := readGoal(flag.Args())
	if err != nil {
		logger.Fatal("No goal provided", zap.Error(err))
	}

	// Admin endpoint for Prometheus scrapes; runs for the lifetime of the
	// process so long-running goals stay observable.
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Addr:         ":" + strconv.Itoa(cfg.Metrics.Port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Metrics server listening", zap.Int("port", cfg.Metrics.Port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server error", zap.Error(err))
			}
		}()
	}

	engine, err := orchestrator.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to assemble engine", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Warn("Received signal, canceling run", zap.String("signal", sig.String()))
		cancel()
	}()

	resp, err := engine.RunGoal(ctx, goal, nil)
	if err != nil {
		logger.Fatal("Run failed", zap.Error(err))
	}

	fmt.Println(resp.Text)
	logger.Info("Run summary",
		zap.Int("tasks", resp.Metadata.NumResults),
		zap.Int("successful", resp.Metadata.NumSuccessful),
		zap.Float64("success_rate", resp.Metadata.SuccessRate),
		zap.Duration("total_model_time", resp.Metadata.TotalDuration),
	)
	if resp.Metadata.NumSuccessful == 0 {
		os.Exit(1)
	}
}

// readGoal takes the goal from the remaining CLI args, or from stdin when
// none are given (pipe-friendly).
func readGoal(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	stat, err := os.Stdin.Stat()
	if err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		goal := strings.TrimSpace(string(data))
		if goal != "" {
			return goal, nil
		}
	}
	return "", fmt.Errorf("pass a goal as arguments or on stdin")
}

func buildLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	if lc.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
