package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KevinKickass/OpenMotionCore/internal/auth"
	"github.com/KevinKickass/OpenMotionCore/internal/config"
	"github.com/KevinKickass/OpenMotionCore/internal/cycle"
	"github.com/KevinKickass/OpenMotionCore/internal/devices"
	"github.com/KevinKickass/OpenMotionCore/internal/fieldbus"
	"github.com/KevinKickass/OpenMotionCore/internal/fieldbus/sim"
	"github.com/KevinKickass/OpenMotionCore/internal/storage"
	"github.com/KevinKickass/OpenMotionCore/internal/system"
	"github.com/KevinKickass/OpenMotionCore/internal/types"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	newKey := flag.Bool("new-api-key", false, "print a new API key with its hash and exit")
	flag.Parse()

	if *newKey {
		if err := printAPIKey(); err != nil {
			log.Fatalf("Failed to generate API key: %v", err)
		}
		return
	}

	// Logger initialisieren
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(*configPath, logger); err != nil {
		logger.Error("OpenMotionCore stopped with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("OpenMotionCore stopped successfully")
}

func run(configPath string, logger *zap.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Info("Config loaded successfully", zap.Int("slaves", len(cfg.Slaves)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []system.Option{}
	if cfg.Database.Enabled {
		db, err := storage.NewPostgresClient(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.Info("Database connected successfully")
		opts = append(opts, system.WithRecorder(db))
	}

	driver, err := newDriver(cfg, logger)
	if err != nil {
		return err
	}

	lifecycle, err := system.NewLifecycleManager(cfg, driver, logger, opts...)
	if err != nil {
		return err
	}

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := lifecycle.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", zap.Error(err))
		}
	}

	if err := lifecycle.Start(); err != nil {
		shutdown()
		return fmt.Errorf("failed to start system: %w", err)
	}

	logger.Info("OpenMotionCore started, entering cyclic operation")

	// Blockiert bis SIGINT/SIGTERM, Stop über die API oder Fail-Safe
	runErr := lifecycle.Run(ctx)
	if ctx.Err() != nil {
		logger.Info("Shutdown signal received")
	}
	shutdown()

	if errors.Is(runErr, cycle.ErrBusFault) {
		return fmt.Errorf("fail-safe stop: %w", runErr)
	}
	return runErr
}

// newDriver builds the bus transport. The in-memory simulation is the only
// transport shipped here; it gets one CiA402 servo per configured slave.
func newDriver(cfg *config.Config, logger *zap.Logger) (fieldbus.Driver, error) {
	registry, err := devices.NewRegistry(cfg.Devices.SearchPaths, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create template registry: %w", err)
	}

	slaves := make([]*sim.Slave, 0, len(cfg.Slaves))
	for _, s := range cfg.Slaves {
		id := types.DeviceIdentity{VendorID: s.VendorID, ProductCode: s.ProductCode}
		if id.VendorID == 0 && id.ProductCode == 0 {
			name := s.Template
			if name == "" {
				name = devices.EROBTemplateID
			}
			tmpl, err := registry.Lookup(name)
			if err != nil {
				return nil, fmt.Errorf("slave %s: %w", s.Name, err)
			}
			id = tmpl.Identity
		}
		slaves = append(slaves, sim.NewServo(types.BusAddress{Alias: s.Alias, Position: s.Position}, id))
	}

	logger.Info("Using simulated bus transport", zap.Int("slaves", len(slaves)))
	return sim.NewBus(slaves...), nil
}

func printAPIKey() error {
	key, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}

	start := time.Now()
	hash, err := auth.NewHasher().Hash(key)
	if err != nil {
		return err
	}

	fmt.Printf("api key: %s\nhash:    %s\n(hashed in %s, store only the hash in auth.api_keys)\n",
		key, hash, time.Since(start).Round(time.Millisecond))
	return nil
}
