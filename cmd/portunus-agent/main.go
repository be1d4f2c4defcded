package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/Portunus/agent/internal/config"
	"github.com/BrandonDHaskell/Portunus/agent/internal/hardware"
	"github.com/BrandonDHaskell/Portunus/agent/internal/hardware/periph"
	"github.com/BrandonDHaskell/Portunus/agent/internal/hardware/sim"
	"github.com/BrandonDHaskell/Portunus/agent/internal/health"
	"github.com/BrandonDHaskell/Portunus/agent/internal/httpapi"
	"github.com/BrandonDHaskell/Portunus/agent/internal/logging"
	"github.com/BrandonDHaskell/Portunus/agent/internal/observability"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/sensor"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/store/remote"
)

const appName = "portunus-agent"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	configPath := flagSet.String("config", os.Getenv("PORTUNUS_CONFIG"), "path to a TOML config file")
	apiBase := flagSet.String("api-base", "", "directory API base URL")
	backend := flagSet.String("backend", "", "hardware backend (periph|sim)")
	logLevel := flagSet.String("log-level", "", "trace|debug|info|warn|error|disabled")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*configPath, func(c *config.Config) {
		if flagSet.Changed("api-base") {
			c.APIBase = *apiBase
		}
		if flagSet.Changed("backend") {
			c.Hardware.Backend = *backend
		}
		if flagSet.Changed("log-level") {
			c.LogLevel = *logLevel
		}
	})
	if err != nil {
		return err
	}

	logger := logging.New(appName, cfg.LogLevel, cfg.LogFormat, os.Stdout)
	observability.RegisterMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hw, err := openHardware(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Str("backend", cfg.Hardware.Backend).Msg("hardware initialisation failed")
		return err
	}
	defer func() {
		if err := hw.close(); err != nil {
			logger.Warn().Err(err).Msg("error closing hardware")
		}
	}()

	dir, err := openDirectory(cfg, logger)
	if err != nil {
		return err
	}

	registry := service.NewActuatorRegistry(hw.servos, dir, service.RegistryConfig{
		SettleDelay: cfg.SettleDelay,
	}, logger)

	deps := service.Dependencies{
		Sensor:            sensor.New(hw.reader, logger),
		Registry:          registry,
		Directory:         dir,
		Logger:            logger,
		ReloadInterval:    cfg.ReloadInterval,
		PollInterval:      cfg.PollInterval,
		StartupRetryDelay: cfg.StartupRetryDelay,
	}
	var hs *health.Server
	if cfg.HealthAddr != "" {
		hs = health.NewServer(cfg.HealthAddr, logger)
		deps.Listener = hs
	}
	orch := service.NewOrchestrator(deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(gctx) })

	if cfg.StatusAddr != "" {
		srv := httpapi.NewServer(httpapi.Dependencies{
			Logger: logger,
			Addr:   cfg.StatusAddr,
			Doors:  registry,
			State:  orch,
		})
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	if hs != nil {
		g.Go(func() error { return hs.Serve(gctx) })
	}

	logger.Info().
		Str("backend", cfg.Hardware.Backend).
		Str("api_base", cfg.APIBase).
		Msg("agent starting")

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("agent stopped with error")
		return err
	}
	logger.Info().Msg("agent stopped")
	return nil
}

type hardwareSet struct {
	servos hardware.ServoFactory
	reader hardware.TagReader
	close  func() error
}

func openHardware(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*hardwareSet, error) {
	switch cfg.Hardware.Backend {
	case config.BackendPeriph:
		h, err := periph.NewHost(logger)
		if err != nil {
			return nil, err
		}
		r, err := h.OpenReader(periph.ReaderConfig{
			SPIPort:  cfg.Hardware.SPIPort,
			SpeedHz:  cfg.Hardware.SPISpeedHz,
			ResetPin: cfg.Hardware.ResetPin,
		})
		if err != nil {
			return nil, err
		}
		return &hardwareSet{servos: h, reader: r, close: h.Close}, nil

	case config.BackendSim:
		var in io.Reader = strings.NewReader("")
		if cfg.Sim.TagsFromStdin {
			in = os.Stdin
		}
		return &hardwareSet{
			servos: sim.NewServoFactory(logger),
			reader: sim.NewLineReader(ctx, in, logger),
			close:  func() error { return nil },
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", hardware.ErrUnknownBackend, cfg.Hardware.Backend)
}

func openDirectory(cfg config.Config, logger zerolog.Logger) (store.Directory, error) {
	if cfg.Hardware.Backend == config.BackendSim && cfg.Sim.DirectoryFile != "" {
		d, err := memory.LoadFile(cfg.Sim.DirectoryFile, cfg.DefaultMinPulse, cfg.DefaultMaxPulse)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("file", cfg.Sim.DirectoryFile).Msg("using in-process directory")
		return d, nil
	}
	return remote.New(remote.Options{
		BaseURL:         cfg.APIBase,
		Timeout:         cfg.RequestTimeout,
		Logger:          logger,
		DefaultMinPulse: cfg.DefaultMinPulse,
		DefaultMaxPulse: cfg.DefaultMaxPulse,
	}), nil
}
