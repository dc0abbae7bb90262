package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"wildfire-analytics/internal/domain"
)

func newEnqueueCmd(connect Connector) *cobra.Command {
	var (
		eps        float64
		minSamples int
		periods    int
		state      string
	)

	cmd := &cobra.Command{
		Use:   "enqueue <clustering|pca|forecast|risk>",
		Short: "Enqueue one analytic job",
		Long: `Enqueue one analytic job. Flags left unset use the job defaults.

Examples:
  wildfirectl enqueue pca
  wildfirectl enqueue forecast --periods 6`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobType, err := domain.ParseJobType(args[0])
			if err != nil {
				return err
			}

			var jobArgs domain.Arguments
			flags := cmd.Flags()
			if flags.Changed("eps") {
				jobArgs.Eps = &eps
			}
			if flags.Changed("min-samples") {
				jobArgs.MinSamples = &minSamples
			}
			if flags.Changed("periods") {
				jobArgs.ForecastPeriods = &periods
			}
			jobArgs.State = state

			backend, err := connect(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer backend.Close()

			id, err := backend.Enqueue(cmd.Context(), jobType, jobArgs)
			if err != nil {
				return fmt.Errorf("enqueue %s: %w", jobType, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %s on %s: %s\n", jobType, jobType.Queue(), id)
			return nil
		},
	}

	cmd.Flags().Float64Var(&eps, "eps", 0.5, "clustering neighbourhood radius")
	cmd.Flags().IntVar(&minSamples, "min-samples", 5, "clustering core point threshold")
	cmd.Flags().IntVar(&periods, "periods", 12, "forecast horizon in years")
	cmd.Flags().StringVar(&state, "state", "", "restrict risk assessment to one state")
	return cmd
}

func newRunAllCmd(connect Connector) *cobra.Command {
	return &cobra.Command{
		Use:   "run-all",
		Short: "Enqueue every analytic job with default arguments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := connect(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer backend.Close()

			out := backend.RunAll(cmd.Context())
			for _, job := range domain.JobTypes() {
				if id, ok := out.TaskIDs[job]; ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", job, id)
				}
			}

			if len(out.Errors) == 0 {
				return nil
			}
			failed := make([]string, 0, len(out.Errors))
			for job, err := range out.Errors {
				failed = append(failed, fmt.Sprintf("%s: %v", job, err))
			}
			sort.Strings(failed)
			return fmt.Errorf("%d of %d jobs not enqueued: %v", len(out.Errors), len(domain.JobTypes()), failed)
		},
	}
}

func newTaskCmd(connect Connector) *cobra.Command {
	return &cobra.Command{
		Use:   "task <id>",
		Short: "Show the stored state of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := connect(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer backend.Close()

			task, err := backend.GetTask(cmd.Context(), args[0])
			if errors.Is(err, domain.ErrTaskNotFound) {
				return fmt.Errorf("task not found: %s", args[0])
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(task)
		},
	}
}

func newSetupCmd(connect Connector) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create missing databases, tables and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := connect(cmd.Context(), true)
			if err != nil {
				return err
			}
			backend.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "Stores are ready")
			return nil
		},
	}
}
