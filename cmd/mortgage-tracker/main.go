package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/avidalv/mortgage-tracker/internal/auth"
	"github.com/avidalv/mortgage-tracker/internal/cache"
	"github.com/avidalv/mortgage-tracker/internal/config"
	"github.com/avidalv/mortgage-tracker/internal/database"
	"github.com/avidalv/mortgage-tracker/internal/repository"
	"github.com/avidalv/mortgage-tracker/internal/server"
	"github.com/avidalv/mortgage-tracker/internal/service"
	"github.com/avidalv/mortgage-tracker/pkg/amortization"
	"github.com/avidalv/mortgage-tracker/pkg/constants"
	"github.com/avidalv/mortgage-tracker/pkg/output"
	"github.com/avidalv/mortgage-tracker/pkg/report"
	"github.com/avidalv/mortgage-tracker/pkg/validation"
)

var version = "dev"

// initializeLogger creates a zap logger based on configuration and CLI override
func initializeLogger(loggingConfig config.LoggingConfig, logLevelOverride string) (*zap.Logger, error) {
	// Determine log level (CLI override takes precedence)
	level := loggingConfig.Level
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	if level == "" {
		level = "info"
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	format := loggingConfig.Format
	if format == "" {
		format = "json"
	}

	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	case "json":
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}

	if loggingConfig.OutputFile != "" {
		if dir := filepath.Dir(loggingConfig.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %v", dir, err)
			}
		}

		if file, err := os.OpenFile(loggingConfig.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %v", loggingConfig.OutputFile, err)
		} else {
			_ = file.Close()
		}

		cfg.OutputPaths = []string{loggingConfig.OutputFile}
		cfg.ErrorOutputPaths = []string{loggingConfig.OutputFile}
	}

	return cfg.Build()
}

func main() {
	configLocation := flag.String("config", constants.DefaultConfigFile, "path to configuration file")
	serve := flag.Bool("serve", false, "run the HTTP API instead of the one-shot CLI")
	mortgageID := flag.String("mortgage", "", "mortgage ID to render in CLI mode")
	outputFormatFlag := flag.String("output-format", "", "type of output override: pretty, csv, pdf")
	outputFile := flag.String("output", "schedule.pdf", "destination file for PDF output")
	simulateAmount := flag.Float64("simulate-amount", 0, "extra principal to simulate paying off early (CLI mode)")
	simulateAfter := flag.Int("simulate-after", 0, "payment number the extra payment lands after (0 = before the first)")
	simulateStrategy := flag.String("simulate-strategy", constants.StrategyReduceTerm, "early payoff strategy: reduce_term or reduce_payment")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	conf, err := config.LoadConfiguration(*configLocation)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}

	logger, err := initializeLogger(conf.Logging, *logLevel)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	warnings := conf.ValidateConfiguration()
	for _, warning := range warnings {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}

	ctx := context.Background()

	if conf.Database.URL == "" {
		logger.Fatal("database.url is required",
			zap.String("op", "main"),
		)
	}

	if err := database.MigrateUp(conf.Database.URL); err != nil {
		logger.Fatal("failed to run database migrations",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	db, err := database.NewConnection(ctx, conf.Database.URL)
	if err != nil {
		logger.Fatal("failed to connect to database",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
	defer db.Close()

	var scheduleCache cache.Cache
	if conf.Redis.Address != "" {
		redisCache := cache.NewRedisCache(conf.Redis.Address, conf.Redis.Password, conf.Redis.DB)
		defer func() {
			_ = redisCache.Close()
		}()
		scheduleCache = redisCache
	} else {
		scheduleCache = cache.NewMemoryCache()
	}

	mortgages := repository.NewMortgageRepository(db.Pool)
	payments := repository.NewPaymentRepository(db.Pool)
	requests := repository.NewRequestRepository(db.Pool)

	schedules := service.NewScheduleService(mortgages, scheduleCache, logger)
	requestService := service.NewRequestService(requests, mortgages, schedules, logger)

	if *serve {
		runServer(conf, logger, schedules, requestService, mortgages, payments)
		return
	}

	if *simulateAmount > 0 {
		runSimulateCLI(ctx, logger, schedules, *mortgageID, *simulateAmount, *simulateAfter, *simulateStrategy)
		return
	}

	runCLI(ctx, conf, logger, schedules, *mortgageID, *outputFormatFlag, *outputFile)
}

// runSimulateCLI renders an early payoff comparison to stdout.
func runSimulateCLI(ctx context.Context, logger *zap.Logger, schedules *service.ScheduleService,
	mortgageID string, amount float64, afterPayment int, strategy string) {

	if mortgageID == "" {
		logger.Fatal("-mortgage is required with -simulate-amount",
			zap.String("op", "main"),
		)
	}

	sim, err := schedules.Simulate(ctx, mortgageID, amount, afterPayment, amortization.Strategy(strategy))
	if err != nil {
		logger.Fatal("failed to simulate early payoff",
			zap.String("op", "main"),
			zap.String("mortgage_id", mortgageID),
			zap.Error(err),
		)
	}

	output.SimulationFormat(os.Stdout, *sim)
}

// runCLI renders one mortgage's schedule to stdout or to a PDF file.
func runCLI(ctx context.Context, conf *config.Configuration, logger *zap.Logger,
	schedules *service.ScheduleService, mortgageID, outputFormatFlag, outputFile string) {

	// CLI override takes precedence over config.
	outputFormat := conf.Output.Format
	if outputFormatFlag != "" {
		outputFormat = outputFormatFlag
	}
	if outputFormat == "" {
		outputFormat = constants.OutputFormatPretty
	}

	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		logger.Fatal(err.Error(),
			zap.String("op", "main"),
		)
	}

	if mortgageID == "" {
		all, err := schedules.ListMortgages(ctx)
		if err != nil {
			logger.Fatal("failed to list mortgages",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
		if len(all) == 0 {
			logger.Fatal("no mortgages stored; create one via the API first",
				zap.String("op", "main"),
			)
		}
		for _, m := range all {
			fmt.Printf("%s  %s\n", m.ID, m.Name)
		}
		return
	}

	schedule, summary, err := schedules.Schedule(ctx, mortgageID)
	if err != nil {
		logger.Fatal("failed to build amortization schedule",
			zap.String("op", "main"),
			zap.String("mortgage_id", mortgageID),
			zap.Error(err),
		)
	}

	switch outputFormat {
	case constants.OutputFormatPretty:
		output.PrettyFormat(os.Stdout, schedule, summary)
	case constants.OutputFormatCSV:
		if err := output.CsvFormat(os.Stdout, schedule); err != nil {
			logger.Fatal("failed to write CSV output",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
	case constants.OutputFormatPDF:
		agg, err := schedules.Aggregate(ctx, mortgageID)
		if err != nil {
			logger.Fatal("failed to load mortgage",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
		pdf, err := report.SchedulePDF(agg.Mortgage, schedule, summary)
		if err != nil {
			logger.Fatal("failed to render PDF report",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
		if err := os.WriteFile(outputFile, pdf, 0644); err != nil {
			logger.Fatal("failed to write PDF report",
				zap.String("op", "main"),
				zap.String("path", outputFile),
				zap.Error(err),
			)
		}
		logger.Info("PDF report written",
			zap.String("op", "main"),
			zap.String("path", outputFile),
		)
	}
}

// runServer runs the HTTP API until interrupted, then drains in-flight
// requests.
func runServer(conf *config.Configuration, logger *zap.Logger,
	schedules *service.ScheduleService, requests *service.RequestService,
	mortgages *repository.MortgageRepository, payments *repository.PaymentRepository) {

	sessions := auth.NewStore(conf.Auth.Users)
	handler := server.NewHandler(logger, schedules, requests, mortgages, payments, sessions, version)

	rateLimiter := server.NewRateLimiter(conf.Server.RequestLimit, time.Minute)
	defer rateLimiter.Stop()

	srv := &http.Server{
		Addr:         conf.Server.Address,
		Handler:      server.RateLimitMiddleware(rateLimiter, handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening",
			zap.String("op", "main"),
			zap.String("address", conf.Server.Address),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Error("server failed",
			zap.String("op", "main"),
			zap.Error(err),
		)
		return
	case <-quit:
		logger.Info("shutting down",
			zap.String("op", "main"),
		)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
}
