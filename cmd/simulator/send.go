package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/benmeehan/kitchen-simulator/internal/constants"
	"github.com/benmeehan/kitchen-simulator/internal/services"
	"github.com/benmeehan/kitchen-simulator/pkg/file"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	sendPayload string
	sendTimeout time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <camera|fridge>",
	Short: "Send one payload from an emitter and exit",
	Long: `send mounts the panel, performs a single manual send from the named
emitter and prints the recorded history entry. The fridge needs
--mqtt-mode broker, since the simulated broker only accepts sends from a
running emitter.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{constants.CameraEmitter, constants.FridgeEmitter},
	RunE: func(cmd *cobra.Command, args []string) error {
		config, logger, err := loadConfig()
		if err != nil {
			return err
		}

		panel := services.NewPanelService(config, file.NewFileService(), nil, nil, nil, logger)
		if err := panel.Start(); err != nil {
			return err
		}
		defer panel.Stop()

		e, err := panel.Emitter(args[0])
		if err != nil {
			return err
		}
		if sendPayload != "" {
			if err := e.SetField(constants.FieldPayload, sendPayload); err != nil {
				return err
			}
		}

		ctx, cancel := sendContext(cmd.Context(), sendTimeout)
		defer cancel()
		if err := e.Send(ctx); err != nil {
			return err
		}

		history := e.History()
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(history[len(history)-1]); err != nil {
			return fmt.Errorf("failed to print history entry: %w", err)
		}
		return nil
	},
}

// sendContext bounds a send by timeout. A zero timeout waits indefinitely,
// the same as http.timeout.
func sendContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

func init() {
	sendCmd.Flags().StringVarP(&sendPayload, "payload", "p", "", "payload to send instead of the configured default")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 30*time.Second, "give up on the send after this long (0 waits indefinitely)")
}
