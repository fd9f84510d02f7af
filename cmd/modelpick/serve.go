package modelpick

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/modelpick/modelpick/internal/server"
)

type serveCommandOptions struct {
	configPath   string
	portOverride int
}

func newServeCommand() *cobra.Command {
	options := &serveCommandOptions{}

	command := &cobra.Command{
		Use:   serveCommandUse,
		Short: serveCommandShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeCommand(cmd.Context(), *options)
		},
	}
	command.Flags().StringVar(&options.configPath, configFlagName, defaultConfigPath, configFlagUsage)
	command.Flags().IntVar(&options.portOverride, portFlagName, 0, portFlagUsage)
	return command
}

func runServeCommand(ctx context.Context, options serveCommandOptions) error {
	rootConfiguration, configurationErr := loadRootConfiguration(options.configPath)
	if configurationErr != nil {
		return configurationErr
	}
	if options.portOverride > 0 {
		rootConfiguration.Server.Port = options.portOverride
	}

	logger, loggerErr := newLogger(rootConfiguration.Common.Logging.Level, rootConfiguration.Common.Logging.Format)
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	dependencies, dependenciesErr := buildServerDependencies(rootConfiguration, logger)
	if dependenciesErr != nil {
		return dependenciesErr
	}

	wizardServer := server.New(dependencies)

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErrors := make(chan error, 1)
	go func() {
		serveErrors <- wizardServer.Start(rootConfiguration.Server.Port)
	}()

	select {
	case serveErr := <-serveErrors:
		return serveErr
	case <-signalCtx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriodSeconds*time.Second)
	defer cancel()
	if shutdownErr := wizardServer.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}
	return <-serveErrors
}

func newLogger(level, format string) (*zap.Logger, error) {
	loggerConfiguration := zap.NewProductionConfig()
	if format == "console" {
		loggerConfiguration = zap.NewDevelopmentConfig()
	}
	if level != "" {
		parsedLevel, parseErr := zap.ParseAtomicLevel(level)
		if parseErr != nil {
			return nil, parseErr
		}
		loggerConfiguration.Level = parsedLevel
	}
	return loggerConfiguration.Build()
}
