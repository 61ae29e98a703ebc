package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"medallion/internal/ui"
)

var (
	quarantineRunID   string
	quarantineSummary bool
)

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Inspect quarantined records",
	Long: `Quarantine lists rows rejected during reconciliation together with the
column, offending value and machine-readable reason. Filter to one run with
--run, or aggregate reasons with --summary.`,
	RunE: runQuarantine,
}

func init() {
	rootCmd.AddCommand(quarantineCmd)
	quarantineCmd.Flags().StringVar(&quarantineRunID, "run", "", "filter to a single run id")
	quarantineCmd.Flags().BoolVar(&quarantineSummary, "summary", false, "show a per-reason histogram instead of rows")
}

func runQuarantine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	service, _, quarantine, err := openWarehouse(cfg)
	if err != nil {
		return err
	}
	defer service.Close()

	records, err := service.LoadQuarantine(context.Background(), quarantine, quarantineRunID)
	if err != nil {
		return err
	}

	if quarantineSummary {
		histogram := make(map[string]int)
		for _, rec := range records {
			histogram[string(rec.Reason)]++
		}

		reasons := make([]string, 0, len(histogram))
		for reason := range histogram {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)

		ui.PrintSection("Quarantine by reason")
		for _, reason := range reasons {
			ui.PrintKeyValue(reason, fmt.Sprintf("%d", histogram[reason]))
		}
		fmt.Printf("\n%d quarantined record(s) total\n", len(records))
		return nil
	}

	ui.RenderQuarantine(os.Stdout, records)
	return nil
}
