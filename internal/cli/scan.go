package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tacholink/tacholink/internal/ble"
)

var scanAll bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for tachograph adapters",
	RunE: func(_ *cobra.Command, _ []string) error {
		adapter := ble.NewTinyGoAdapter()
		if err := adapter.Enable(); err != nil {
			return fmt.Errorf("enable adapter: %w", err)
		}

		serviceUUID := cfg.BuildDialect().ServiceUUID
		if scanAll {
			serviceUUID = ""
		}

		ctx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Device.ScanTimeoutSeconds)*time.Second)
		defer cancel()

		devices, err := adapter.Scan(ctx, serviceUUID)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}

		if len(devices) == 0 {
			fmt.Println("No devices found.")
			return nil
		}
		for _, d := range devices {
			name := d.Name
			if name == "" {
				name = "(unnamed)"
			}
			fmt.Printf("%-24s %s  RSSI %d\n", name, d.Address, d.RSSI)
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "list every peripheral, not just dialect matches")
	rootCmd.AddCommand(scanCmd)
}
