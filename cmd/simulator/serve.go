package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/kitchen-simulator/internal/service_registry"
	"github.com/benmeehan/kitchen-simulator/pkg/file"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simulation panel and its control API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, logger, err := loadConfig()
		if err != nil {
			return err
		}

		serviceRegistry := service_registry.NewServiceRegistry(logger)
		if err := serviceRegistry.RegisterServices(config, service_registry.Dependencies{
			FileClient: file.NewFileService(),
		}); err != nil {
			return err
		}

		if err := serviceRegistry.StartServices(); err != nil {
			logger.Error().Err(err).Msg("Failed to start services")
			return err
		}
		logger.Info().Str("api", config.API.Listen).Msg("All services started successfully")

		// Handle graceful shutdown
		stopCh := make(chan os.Signal, 1)
		signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
		<-stopCh

		logger.Info().Msg("Shutting down gracefully...")
		return serviceRegistry.StopServices()
	},
}
