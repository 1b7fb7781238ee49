package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/tms-heartbeat/internal/constants"
	"github.com/benmeehan/tms-heartbeat/internal/registry"
	"github.com/benmeehan/tms-heartbeat/internal/service_registry"
	"github.com/benmeehan/tms-heartbeat/internal/services"
	"github.com/benmeehan/tms-heartbeat/internal/utils"
	"github.com/benmeehan/tms-heartbeat/pkg/dds"
	"github.com/benmeehan/tms-heartbeat/pkg/file"
	"github.com/benmeehan/tms-heartbeat/pkg/identity"
	"github.com/joho/godotenv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run is the whole process lifecycle; it returns the exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	reporter := services.NewConsoleReporter(stdout)
	reporter.Banner(constants.ServerName, utils.BannerVersion())

	fs := flag.NewFlagSet("tms", flag.ContinueOnError)
	fs.SetOutput(stderr)
	serverTypeArg := fs.String("servertype", "", "role of this process: pub or sub")
	configPath := fs.String("config", "configs/config.yaml", "path to config file")
	if err := fs.Parse(args); err != nil {
		return constants.ExitUsageError
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "failed to load .env: %v\n", err)
		return constants.ExitInitError
	}

	config, err := utils.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return constants.ExitInitError
	}

	fileClient := file.NewFileService()
	logger, closeLog, err := utils.SetupLogger(config.Logging.ConfigFile, fileClient, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "failed to configure logging: %v\n", err)
		return constants.ExitInitError
	}
	defer closeLog()
	logger.Info().Msg("Logging is configured")

	serverType, err := registry.ParseServerType(*serverTypeArg)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid argument")
		return constants.ExitOK
	}

	deviceInfo := identity.NewDeviceInfo()
	reporter.DeviceID(deviceInfo.GetDeviceID())
	logger.Info().Str("device_id", deviceInfo.GetDeviceID()).Msg("Device identity generated")

	serviceRegistry := service_registry.NewServiceRegistry(config, fileClient, deviceInfo, reporter, logger)
	role, err := serviceRegistry.Setup(ctx, serverType)
	if err != nil {
		var initErr *dds.InitError
		if errors.As(err, &initErr) {
			logger.Error().Err(initErr.Err).Str("step", initErr.Step).Msg("Startup failed")
		} else {
			logger.Error().Err(err).Msg("Startup failed")
		}
		fmt.Fprintln(stderr, err)
		return constants.ExitInitError
	}
	defer func() {
		if err := serviceRegistry.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close distribution service")
		}
	}()

	logger.Info().Str("role", role.Name()).Str("transport", config.Transport.Kind).Msg("Role started")
	runErr := role.Run(ctx)

	code := constants.ExitOK
	var readErr *dds.ReadError
	if errors.As(runErr, &readErr) {
		// Observation has ended; the process stays up until it is told to stop.
		logger.Error().Err(readErr).Msg("Heartbeat observation terminated, waiting for shutdown signal")
		<-ctx.Done()
		code = constants.ExitReadError
	} else if runErr != nil {
		logger.Error().Err(runErr).Msg("Role stopped with error")
		code = constants.ExitInitError
	}

	if roster := serviceRegistry.Roster(); roster != nil {
		for _, rec := range roster.Snapshot() {
			logger.Info().
				Str("device_id", rec.DeviceID).
				Uint64("received", rec.Received).
				Uint32("last_sequence_number", rec.LastSequence).
				Time("first_seen", rec.FirstSeen).
				Time("last_seen", rec.LastSeen).
				Msg("Device summary")
		}
	}

	logger.Info().Msg("Shutting down gracefully...")
	return code
}
