package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/benmeehan/kitchen-simulator/internal/models"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var devicesType string

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the devices of a running simulator",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, _, err := loadConfig()
		if err != nil {
			return err
		}

		endpoint := url.URL{Scheme: "http", Host: config.API.Listen, Path: "/api/devices"}
		if devicesType != "" {
			endpoint.RawQuery = url.Values{"type": {devicesType}}.Encode()
		}

		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Get(endpoint.String())
		if err != nil {
			return fmt.Errorf("failed to reach the simulator API: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("simulator API returned %s", resp.Status)
		}

		var devices []models.Device
		if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
			return fmt.Errorf("failed to decode devices: %w", err)
		}

		return printDevices(devices)
	},
}

func printDevices(devices []models.Device) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tPROTOCOL\tSTATUS\tLAST ACTIVE")
	for _, d := range devices {
		last := "-"
		if d.LastActive != nil {
			last = d.LastActive.Local().Format(time.TimeOnly)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Type, d.Protocol, d.Status, last)
	}
	return w.Flush()
}

func init() {
	devicesCmd.Flags().StringVar(&devicesType, "type", "", "only list devices of this type (camera, refrigerator or all)")
}
