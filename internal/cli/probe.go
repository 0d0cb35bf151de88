package cli

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tacholink/tacholink/internal/protocol"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Fire the diagnostic command battery and print responses",
	Long: `Probe sends a fixed battery of candidate commands one at a time and
records every response the device produces for each. Useful when mapping
an unknown adapter firmware; no authentication is performed.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()
		s, conn, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer conn.Disconnect()

		results, err := s.Probe(ctx, protocol.ProbeBattery())
		if err != nil {
			return err
		}

		for _, r := range results {
			fmt.Printf("%-14s %-8s -> %d response(s)\n",
				r.Command.Label, hex.EncodeToString(r.Command.Opcode), len(r.Responses))
			for _, resp := range r.Responses {
				fmt.Printf("    %s\n", hex.EncodeToString(resp))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
