package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tacholink/tacholink/internal/download"
	"github.com/tacholink/tacholink/internal/protocol"
	"github.com/tacholink/tacholink/internal/session"
)

var (
	rangeFrom string
	rangeTo   string
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download data from the tachograph adapter",
}

var downloadVUCmd = &cobra.Command{
	Use:   "vu",
	Short: "Download the vehicle unit data (.tgd)",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runDownload(func(c *download.Coordinator, ctx context.Context, rng *protocol.DateRange) (*download.Record, error) {
			return c.DownloadVehicleUnit(ctx, rng)
		})
	},
}

var downloadCardCmd = &cobra.Command{
	Use:   "card",
	Short: "Download the driver card data (.ddd)",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runDownload(func(c *download.Coordinator, ctx context.Context, rng *protocol.DateRange) (*download.Record, error) {
			return c.DownloadDriverCard(ctx, rng)
		})
	},
}

func init() {
	downloadCmd.PersistentFlags().StringVar(&rangeFrom, "from", "", "start of the activity range (YYYY-MM-DD)")
	downloadCmd.PersistentFlags().StringVar(&rangeTo, "to", "", "end of the activity range (YYYY-MM-DD)")
	downloadCmd.AddCommand(downloadVUCmd)
	downloadCmd.AddCommand(downloadCardCmd)
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(op func(*download.Coordinator, context.Context, *protocol.DateRange) (*download.Record, error)) error {
	rng, err := parseRange(rangeFrom, rangeTo)
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
	coord.OnPhase = func(p session.Phase) {
		slog.Info("download phase", "phase", string(p))
	}
	coord.OnProgress = func(n int) {
		fmt.Printf("\r  received %d bytes", n)
	}

	rec, err := op(coord, ctx, rng)
	fmt.Println()
	if err != nil {
		return err
	}
	printRecord(rec)
	return nil
}

func printRecord(rec *download.Record) {
	switch rec.Status {
	case download.StatusSuccess:
		fmt.Printf("Saved %d bytes to %s", len(rec.Data), rec.Path)
		if !rec.Complete {
			fmt.Print(" (partial: transfer wait elapsed before end-of-transmission)")
		}
		fmt.Println()
	case download.StatusNoData:
		fmt.Println("Device sent no data.")
	default:
		fmt.Println("Download failed.")
	}
}

// parseRange builds the optional date range from the --from/--to flags.
// Both must be given together; the end date is inclusive.
func parseRange(from, to string) (*protocol.DateRange, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	if from == "" || to == "" {
		return nil, fmt.Errorf("--from and --to must be given together")
	}
	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		return nil, fmt.Errorf("parsing --from: %w", err)
	}
	end, err := time.Parse("2006-01-02", to)
	if err != nil {
		return nil, fmt.Errorf("parsing --to: %w", err)
	}
	end = end.Add(24*time.Hour - time.Second)
	if end.Before(start) {
		return nil, fmt.Errorf("--to %s is before --from %s", to, from)
	}
	return &protocol.DateRange{Start: start, End: end}, nil
}
