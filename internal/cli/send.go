package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tacholink/tacholink/internal/download"
)

var sendCmd = &cobra.Command{
	Use:   "send <hex-opcode>",
	Short: "Send a custom command and capture the response (.bin)",
	Long: `Send runs the full download flow around an arbitrary opcode, e.g.:

  tacholink send 8001
  tacholink send "80 01"

Any response data is saved as a .bin artifact.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		opcode, err := parseOpcode(args[0])
		if err != nil {
			return err
		}

		ctx := context.Background()
		s, conn, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer conn.Disconnect()

		if err := authenticate(ctx, s); err != nil {
			return err
		}

		coord := download.NewCoordinator(s, download.NewStore(cfg.Output.Dir))
		coord.OnProgress = func(n int) {
			fmt.Printf("\r  received %d bytes", n)
		}

		label := "custom-" + hex.EncodeToString(opcode)
		rec, err := coord.SendCustomCommand(ctx, opcode, label)
		fmt.Println()
		if err != nil {
			return err
		}
		printRecord(rec)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

// parseOpcode decodes a hex opcode, tolerating spaces and colons.
func parseOpcode(arg string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "").Replace(arg)
	opcode, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("parsing opcode %q: %w", arg, err)
	}
	if len(opcode) == 0 {
		return nil, fmt.Errorf("opcode must not be empty")
	}
	return opcode, nil
}
