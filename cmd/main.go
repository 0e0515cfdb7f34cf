package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"codeclaim/internal/config"
	"codeclaim/internal/repo"
	"codeclaim/internal/services"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultConfigPath = "config.json"

// app holds the wired services shared by every command.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	logService *services.LogService
	engine     *services.AllocationService
	gate       *services.AdminGate
}

func main() {
	var cfgPath string
	var current *app

	root := &cobra.Command{
		Use:           "codeclaim",
		Short:         "Issue one redemption code per eligible phone number",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			current, err = newApp(cfg, logger)
			if err != nil {
				return err
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if current != nil {
				_ = current.logger.Sync()
			}
		},
	}

	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = defaultConfigPath
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", defaultPath, "path to the JSON or YAML config file")

	appFn := func() *app { return current }
	root.AddCommand(
		newServeCmd(appFn),
		newClaimCmd(appFn),
		newStatsCmd(appFn),
		newExportCmd(appFn),
		newReplayCmd(appFn),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	return cfg.Build()
}

func newApp(cfg config.Config, logger *zap.Logger) (*app, error) {
	db, err := repo.Connect(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := repo.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logService, err := services.NewLogService(db)
	if err != nil {
		return nil, fmt.Errorf("create log service: %w", err)
	}

	journal, err := services.NewJournalService(db)
	if err != nil {
		return nil, fmt.Errorf("create journal service: %w", err)
	}

	xlsxService, err := services.NewXlsxService()
	if err != nil {
		return nil, fmt.Errorf("create xlsx service: %w", err)
	}

	retry := services.RetryPolicy{
		MaxAttempts:     cfg.Flush.MaxAttempts,
		InitialInterval: cfg.Flush.InitialInterval(),
		MaxInterval:     cfg.Flush.MaxInterval(),
	}

	loader, err := services.NewEligibilityLoader(cfg.EligibilityPath, xlsxService, cfg.Sheets, retry, logger.Named("eligibility"))
	if err != nil {
		return nil, fmt.Errorf("create eligibility loader: %w", err)
	}

	claims, err := services.NewClaimLogStore(cfg.ClaimLogPath, xlsxService, cfg.Sheets, retry, logger.Named("claim_log"))
	if err != nil {
		return nil, fmt.Errorf("create claim log store: %w", err)
	}

	engine, err := services.NewAllocationService(loader, claims, journal, logService, logger.Named("allocation"))
	if err != nil {
		return nil, fmt.Errorf("create allocation service: %w", err)
	}

	gate, err := services.NewAdminGate(cfg.AdminPassword, logService)
	if err != nil {
		return nil, fmt.Errorf("create admin gate: %w", err)
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		logService: logService,
		engine:     engine,
		gate:       gate,
	}, nil
}

type pendingFlusher interface {
	FlushPending(ctx context.Context) (services.FlushReport, error)
}

func startCron(schedule string, service pendingFlusher, logger *zap.Logger) (*cron.Cron, error) {
	if service == nil {
		return nil, errors.New("allocation service is nil")
	}

	scheduler := cron.New()

	if _, err := scheduler.AddFunc(schedule, func() {
		report, err := service.FlushPending(context.Background())
		if err != nil {
			logger.Warn("flush pending claims", zap.Error(err))
			return
		}
		if report.Eligibility > 0 || report.ClaimLog > 0 {
			logger.Info("flushed pending claims", zap.Int("eligibility", report.Eligibility), zap.Int("claim_log", report.ClaimLog))
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", schedule, err)
	}

	scheduler.Start()
	return scheduler, nil
}
