package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wanhive/overlay-hub/internal/audit"
	"github.com/wanhive/overlay-hub/internal/config"
	"github.com/wanhive/overlay-hub/internal/credstore"
	"github.com/wanhive/overlay-hub/internal/db"
	"github.com/wanhive/overlay-hub/internal/hostsdir"
	"github.com/wanhive/overlay-hub/internal/httpapi"
	"github.com/wanhive/overlay-hub/internal/hub"
	"github.com/wanhive/overlay-hub/internal/maintenance"
	"github.com/wanhive/overlay-hub/internal/metrics"
	"github.com/wanhive/overlay-hub/internal/reactor"
	"github.com/wanhive/overlay-hub/internal/stabilize"
)

// reactorTick governs the hub's own periodic responsibilities: idle
// connection sweeps, audit batch flushes, and metrics sampling.
const reactorTick = 5 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "migrate":
		runMigrate()
	case "maintenance":
		runMaintenance()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: overlay-hub <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve         Start the overlay hub")
	fmt.Println("  migrate       Run database migrations")
	fmt.Println("  maintenance   Run audit_events partition maintenance (create new, drop old)")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

func parseFlags(args []string) (configPath string, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

func loadConfig(args []string) (*config.Config, *zap.Logger) {
	configPath, logLevelOverride := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, logger
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// migrationsDir returns the path to the migrations directory relative to the binary.
func migrationsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

func runServe() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting overlay-hub",
		zap.String("instance_id", cfg.Service.InstanceID),
		zap.Uint64("self", cfg.Overlay.Self),
		zap.String("listen", cfg.Service.Listen),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Audit.DSN, cfg.Audit.MaxConns, cfg.Audit.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	pm := maintenance.NewPartitionManager(pool, cfg.Retention.Days, cfg.Retention.Timezone, logger)
	if err := pm.CreatePartitions(ctx); err != nil {
		logger.Fatal("failed to create audit_events partitions on startup", zap.Error(err))
	}

	identity, err := hub.LoadPrivateIdentity(cfg.Paths.PrivateKey)
	if err != nil {
		logger.Fatal("failed to load private key", zap.Error(err))
	}

	creds := credstore.New(pool, logger)
	hosts := hostsdir.New(pool, logger)
	auditWriter := audit.NewWriter(pool, logger.Named("audit.writer"))

	var auditProducer *audit.Producer
	if cfg.Audit.Topic != "" {
		auditProducer, err = audit.NewProducer(cfg.Audit.Brokers, cfg.Audit.Topic, cfg.Service.InstanceID, logger.Named("audit.producer"))
		if err != nil {
			logger.Fatal("failed to create audit producer", zap.Error(err))
		}
		defer auditProducer.Close()
	}

	r, err := reactor.New(reactorTick, logger)
	if err != nil {
		logger.Fatal("failed to create reactor", zap.Error(err))
	}
	defer r.Close()

	pair := stabilize.NewSocketpair()

	hubCfg := hub.Config{
		Self:           cfg.Overlay.Self,
		Group:          cfg.Overlay.Group,
		Netmask:        cfg.Overlay.Netmask,
		TableSize:      cfg.Overlay.TableSize,
		MaxNodes:       cfg.Overlay.MaxNodes,
		PoolCapacity:   cfg.Overlay.PoolCapacity,
		MaxConnections: cfg.Overlay.MaxConnections,
		ClientQueueCap: cfg.Overlay.ClientQueueCap,
		Deadline:       time.Duration(cfg.Overlay.TimeoutMs) * time.Millisecond,
		RecentPeers:    cfg.Overlay.RecentPeers,
	}
	h := hub.New(hubCfg, identity, creds, hosts, auditWriter, r, pair, logger)
	if auditProducer != nil {
		h.SetAuditProducer(auditProducer)
	}

	reloadPaths := hub.ReloadPaths{
		Options:    cfg.Paths.Options,
		HostsFile:  cfg.Paths.HostsFile,
		PrivateKey: cfg.Paths.PrivateKey,
		PublicKey:  cfg.Paths.PublicKey,
		SSLCA:      cfg.Paths.SSLCA,
		SSLCert:    cfg.Paths.SSLCert,
		SSLKey:     cfg.Paths.SSLKey,
	}
	h.SetReloadPaths(reloadPaths)
	if err := reloadPaths.Watch(r); err != nil {
		logger.Warn("failed to register hot-reload watches", zap.Error(err))
	}

	period := time.Duration(cfg.Overlay.PeriodMs) * time.Millisecond
	timeout := time.Duration(cfg.Overlay.TimeoutMs) * time.Millisecond
	pause := time.Duration(cfg.Overlay.PauseMs) * time.Millisecond
	stabilizer := stabilize.New(cfg.Overlay.Self, h.Table(), pair, period, timeout, pause, logger)

	httpServer := httpapi.NewServer(cfg.Metrics.Listen, pool, h, logger)
	if err := httpServer.Start(); err != nil {
		logger.Fatal("failed to start HTTP server", zap.Error(err))
	}

	ln, err := net.Listen("tcp", cfg.Service.Listen)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.Service.Listen), zap.Error(err))
	}

	go r.Run(ctx)
	go h.Run(ctx)
	if cfg.Overlay.Join {
		go stabilizer.Run(ctx)
	}
	go acceptLoop(ctx, ln, h, logger)

	logger.Info("overlay hub started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownTimeout := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	_ = ln.Close()
	cancel()

	<-shutdownCtx.Done()
	logger.Info("overlay-hub stopped")
}

// acceptLoop hands every accepted socket to the hub, which serves it
// through the reactor. It returns once ln is closed during shutdown.
func acceptLoop(ctx context.Context, ln net.Listener, h *hub.Hub, logger *zap.Logger) {
	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Warn("accept failed", zap.Error(err))
				return
			}
		}
		h.Accept(ctx, c)
	}
}

func runMigrate() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	logger.Info("running migrations", zap.String("dsn", redactDSN(cfg.Audit.DSN)))

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Audit.DSN, cfg.Audit.MaxConns, cfg.Audit.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, migrationsDir(), logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	logger.Info("migrations complete")
}

func runMaintenance() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	logger.Info("running audit_events partition maintenance",
		zap.Int("retention_days", cfg.Retention.Days),
		zap.String("timezone", cfg.Retention.Timezone),
	)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Audit.DSN, cfg.Audit.MaxConns, cfg.Audit.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	pm := maintenance.NewPartitionManager(pool, cfg.Retention.Days, cfg.Retention.Timezone, logger)
	if err := pm.Run(ctx); err != nil {
		logger.Fatal("maintenance failed", zap.Error(err))
	}

	logger.Info("partition maintenance complete")
}

func redactDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		// keyword=value format, e.g. "host=... password=... dbname=..."
		re := regexp.MustCompile(`password\s*=\s*\S+`)
		return re.ReplaceAllString(dsn, "password=***")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
