package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"wildfire-analytics/internal/infrastructure"
)

func newImportCmd(connect Connector) *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Load fire incidents from a CSV export",
		Long: `Load fire incidents from a CSV export into the operational store.

Both FPA FOD headers (FIRE_SIZE, STAT_CAUSE_DESCR, ...) and the table's own
column names are accepted. Rows without coordinates or fire year are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if batchSize < 1 {
				return fmt.Errorf("batch size must be positive, got %d", batchSize)
			}

			backend, err := connect(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer backend.Close()

			incidents, stats, err := infrastructure.NewIncidentReader(backend.Logger()).ReadIncidentsFromFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Read %d rows, %d kept, %d dropped\n", stats.Rows, stats.Kept, stats.Dropped)

			batches := (len(incidents) + batchSize - 1) / batchSize
			inserted := 0
			for i := 0; i < len(incidents); i += batchSize {
				end := min(i+batchSize, len(incidents))
				n, err := backend.ImportIncidents(cmd.Context(), incidents[i:end])
				inserted += n
				if err != nil {
					return fmt.Errorf("batch %d/%d after %d incidents: %w", i/batchSize+1, batches, inserted, err)
				}
				fmt.Fprintf(out, "Inserted batch %d/%d\n", i/batchSize+1, batches)
			}

			fmt.Fprintf(out, "Imported %d incidents\n", inserted)
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 1000, "incidents per insert")
	return cmd
}
