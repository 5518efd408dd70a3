package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/benmeehan/kitchen-simulator/internal/utils"
	"github.com/benmeehan/kitchen-simulator/pkg/file"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "KITCHENSIM"

var rootCmd = &cobra.Command{
	Use:   "kitchen-simulator",
	Short: "Simulate smart kitchen devices sending telemetry",
	Long: `kitchen-simulator hosts two simulated kitchen devices: a shopping camera
that posts telemetry over HTTP and a fridge that publishes over MQTT. Each
device can be started, paused, edited and sent from the control API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "configs/config.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "override log.level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("listen", "", "override api.listen")
	rootCmd.PersistentFlags().String("mqtt-mode", "", "override mqtt.mode (simulated or broker)")

	for _, name := range []string{"config", "log-level", "listen", "mqtt-mode"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, sendCmd, devicesCmd)
}

// loadConfig reads the configuration file and applies flag and environment
// overrides, then builds the process logger.
func loadConfig() (*utils.Config, zerolog.Logger, error) {
	config, err := utils.LoadConfig(viper.GetString("config"), file.NewFileService())
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	if level := viper.GetString("log-level"); level != "" {
		config.Log.Level = level
	}
	if listen := viper.GetString("listen"); listen != "" {
		config.API.Listen = listen
	}
	if mode := viper.GetString("mqtt-mode"); mode != "" {
		config.MQTT.Mode = mode
	}
	if err := config.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid overrides: %w", err)
	}

	logger, err := utils.NewLogger(config.Log.Level, config.Log.Format, os.Stderr)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return config, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
