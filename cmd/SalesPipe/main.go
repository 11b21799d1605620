package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/SalesPipe/internal/analyst"
	"github.com/BTreeMap/SalesPipe/internal/api"
	"github.com/BTreeMap/SalesPipe/internal/catalog"
	"github.com/BTreeMap/SalesPipe/internal/decision"
	"github.com/BTreeMap/SalesPipe/internal/flow"
	"github.com/BTreeMap/SalesPipe/internal/genai"
	"github.com/BTreeMap/SalesPipe/internal/lockfile"
	"github.com/BTreeMap/SalesPipe/internal/notify"
	"github.com/BTreeMap/SalesPipe/internal/quality"
	"github.com/BTreeMap/SalesPipe/internal/scheduler"
	"github.com/BTreeMap/SalesPipe/internal/sessionlock"
	"github.com/BTreeMap/SalesPipe/internal/speaker"
	"github.com/BTreeMap/SalesPipe/internal/store"
	"github.com/BTreeMap/SalesPipe/internal/util"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for SalesPipe state data
	DefaultStateDir = "/var/lib/salespipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "salespipe.db"
	// DefaultLogLevel matches the verbose logging used during development
	DefaultLogLevel = "debug"
)

func main() {
	initializeLogger(os.Getenv("LOG_LEVEL"))

	config := loadEnvironmentConfig()
	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}
	if *flags.logLevel != config.LogLevel {
		initializeLogger(*flags.logLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping SalesPipe")
	if err := run(ctx, config, flags); err != nil {
		slog.Error("SalesPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("SalesPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir       string
	DatabaseURL    string
	APIAddr        string
	LLMProvider    string
	OpenAIKey      string
	GeminiKey      string
	AnalystModel   string
	SpeakerModel   string
	RedisURL       string
	RedisPassword  string
	CatalogFile    string
	FactSheetFile  string
	PaymentLink    string
	BookingURL     string
	SweepSchedule  string
	IdleTimeout    time.Duration
	QualityScoring bool
	GenAIDebug     bool
	JobPoll        time.Duration
	JobConcurrency int
	LogLevel       string
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbDSN       *string
	apiAddr     *string
	llmProvider *string
	catalogFile *string
	redisURL    *string
	logLevel    *string
}

// initializeLogger installs a text handler on stdout at the requested level.
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:       os.Getenv("SALESPIPE_STATE_DIR"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		APIAddr:        os.Getenv("API_ADDR"),
		LLMProvider:    os.Getenv("LLM_PROVIDER"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		GeminiKey:      os.Getenv("GEMINI_API_KEY"),
		AnalystModel:   os.Getenv("ANALYST_MODEL"),
		SpeakerModel:   os.Getenv("SPEAKER_MODEL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		CatalogFile:    os.Getenv("PHASE_CATALOG_FILE"),
		FactSheetFile:  os.Getenv("FACT_SHEET_FILE"),
		PaymentLink:    os.Getenv("PAYMENT_LINK"),
		BookingURL:     os.Getenv("BOOKING_URL"),
		SweepSchedule:  os.Getenv("SWEEP_SCHEDULE"),
		IdleTimeout:    util.ParseDurationEnv("SESSION_IDLE_TIMEOUT", flow.DefaultIdleTimeout),
		QualityScoring: util.ParseBoolEnv("QUALITY_SCORING", true),
		GenAIDebug:     util.ParseBoolEnv("GENAI_DEBUG", false),
		JobPoll:        util.ParseDurationEnv("JOB_POLL_INTERVAL", store.DefaultPollInterval),
		JobConcurrency: util.ParseIntEnv("JOB_CONCURRENCY", store.DefaultConcurrency),
		LogLevel:       os.Getenv("LOG_LEVEL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SALESPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	if config.SweepSchedule == "" {
		config.SweepSchedule = scheduler.DefaultSweepSchedule
	}
	if config.LogLevel == "" {
		config.LogLevel = DefaultLogLevel
	}

	slog.Debug("environment variables loaded",
		"SALESPIPE_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", os.Getenv("DATABASE_URL") != "",
		"API_ADDR", config.APIAddr,
		"LLM_PROVIDER", config.LLMProvider,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"GEMINI_API_KEY_SET", config.GeminiKey != "",
		"REDIS_URL_SET", config.RedisURL != "",
		"PHASE_CATALOG_FILE", config.CatalogFile,
		"SWEEP_SCHEDULE", config.SweepSchedule,
		"SESSION_IDLE_TIMEOUT", config.IdleTimeout,
		"QUALITY_SCORING", config.QualityScoring)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	flags := Flags{
		stateDir:    fs.String("state-dir", config.StateDir, "state directory for SalesPipe data (overrides $SALESPIPE_STATE_DIR)"),
		dbDSN:       fs.String("db-dsn", config.DatabaseURL, "database DSN, a SQLite path or PostgreSQL URL (overrides $DATABASE_URL)"),
		apiAddr:     fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		llmProvider: fs.String("llm-provider", config.LLMProvider, "language model provider: openai or gemini (overrides $LLM_PROVIDER)"),
		catalogFile: fs.String("catalog", config.CatalogFile, "YAML phase catalog override (overrides $PHASE_CATALOG_FILE)"),
		redisURL:    fs.String("redis-url", config.RedisURL, "Redis address for cross-process session locks (overrides $REDIS_URL)"),
		logLevel:    fs.String("log-level", config.LogLevel, "log level: debug, info, warn or error (overrides $LOG_LEVEL)"),
	}
	if err := fs.Parse(args); err != nil {
		return flags, err
	}

	// A moved state directory moves the default SQLite file with it.
	defaultDSN := filepath.Join(config.StateDir, DefaultDBFileName)
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == defaultDSN && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"llmProvider", *flags.llmProvider,
		"catalog", *flags.catalogFile,
		"redisURL_set", *flags.redisURL != "")
	return flags, nil
}

// ensureDirectoriesExist creates the state directory, and the SQLite file's
// directory when the store is file based.
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		return fmt.Errorf("create state directory %s: %w", *flags.stateDir, err)
	}
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		dir := filepath.Dir(*flags.dbDSN)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}
	return nil
}

// buildGenAIOptions returns the options for one model role.
func buildGenAIOptions(config Config, flags Flags, model string, jsonResponse bool) []genai.Option {
	key := config.OpenAIKey
	if strings.EqualFold(*flags.llmProvider, genai.ProviderGemini) {
		key = config.GeminiKey
	}
	opts := []genai.Option{genai.WithAPIKey(key), genai.WithModel(model)}
	if jsonResponse {
		opts = append(opts, genai.WithJSONResponse(), genai.WithTemperature(0.2))
	}
	if config.GenAIDebug {
		opts = append(opts, genai.WithDebugMode(true, *flags.stateDir))
	}
	return opts
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFile(path)
}

func buildSpeakerOptions(config Config) ([]speaker.Option, error) {
	opts := []speaker.Option{
		speaker.WithPaymentLink(config.PaymentLink),
		speaker.WithBookingURL(config.BookingURL),
	}
	if config.FactSheetFile != "" {
		data, err := os.ReadFile(config.FactSheetFile)
		if err != nil {
			return nil, fmt.Errorf("read fact sheet: %w", err)
		}
		opts = append(opts, speaker.WithFactSheet(string(data)))
	}
	return opts, nil
}

func buildLocker(ctx context.Context, config Config, flags Flags) (sessionlock.Locker, func(), error) {
	if *flags.redisURL == "" {
		return sessionlock.NewLocalLocker(sessionlock.DefaultWait), func() {}, nil
	}
	rl, err := sessionlock.NewRedisLocker(ctx,
		sessionlock.WithRedisAddr(*flags.redisURL),
		sessionlock.WithRedisPassword(config.RedisPassword))
	if err != nil {
		return nil, nil, err
	}
	return rl, func() {
		if err := rl.Close(); err != nil {
			slog.Warn("failed to close Redis locker", "error", err)
		}
	}, nil
}

func buildNotifier() flow.Notifier {
	n, err := notify.NewTwilioNotifier()
	if err != nil {
		slog.Info("Twilio not configured, closing-link SMS will only be logged", "reason", err)
		return notify.LogNotifier{}
	}
	return n
}

// run wires every module and blocks until ctx is cancelled or a component fails.
func run(ctx context.Context, config Config, flags Flags) error {
	if err := ensureDirectoriesExist(flags); err != nil {
		return err
	}
	if err := scheduler.Validate(config.SweepSchedule); err != nil {
		return err
	}

	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		lock, err := lockfile.AcquireLock(*flags.stateDir, *flags.apiAddr)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := store.Open(*flags.dbDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	c, err := loadCatalog(*flags.catalogFile)
	if err != nil {
		return err
	}

	analystGen, err := genai.New(ctx, *flags.llmProvider, buildGenAIOptions(config, flags, config.AnalystModel, true)...)
	if err != nil {
		return fmt.Errorf("create analyst model client: %w", err)
	}
	speakerGen, err := genai.New(ctx, *flags.llmProvider, buildGenAIOptions(config, flags, config.SpeakerModel, false)...)
	if err != nil {
		return fmt.Errorf("create speaker model client: %w", err)
	}
	speakerOpts, err := buildSpeakerOptions(config)
	if err != nil {
		return err
	}

	locker, closeLocker, err := buildLocker(ctx, config, flags)
	if err != nil {
		return fmt.Errorf("connect session locker: %w", err)
	}
	defer closeLocker()

	engine := decision.New(c)
	salesFlow := flow.NewSalesFlow(st,
		analyst.New(analystGen, c),
		speaker.New(speakerGen, c, speakerOpts...),
		engine,
		flow.WithLocker(locker),
		flow.WithQualityScoring(config.QualityScoring),
		flow.WithClosingLinks(config.PaymentLink, config.BookingURL),
	)

	runner := store.NewJobRunner(st, config.JobPoll)
	runner.SetConcurrency(config.JobConcurrency)
	if err := runner.RecoverStaleJobs(); err != nil {
		slog.Warn("failed to recover stale jobs", "error", err)
	}
	var scorer flow.Scorer
	if config.QualityScoring {
		scorer = quality.NewScorer(analystGen)
	}
	salesFlow.RegisterJobHandlers(runner, scorer, buildNotifier())

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := scheduler.ScheduleSweep(sched, config.SweepSchedule, salesFlow, config.IdleTimeout); err != nil {
		return err
	}

	server := api.NewServer(salesFlow, st,
		api.WithAddr(*flags.apiAddr),
		api.WithPaymentLink(config.PaymentLink),
		api.WithBookingURL(config.BookingURL))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error {
		runner.Run(gctx)
		return nil
	})
	return g.Wait()
}
