package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/saldang/grezzi/internal/model"
	"github.com/saldang/grezzi/internal/monitoring"
	"github.com/saldang/grezzi/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect cleaning jobs submitted to the server",
}

// -- jobs list --

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		state, _ := cmd.Flags().GetString("state")
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		list, err := st.ListJobs(ctx, store.JobFilter{State: model.JobState(state), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}

		if format == "table" {
			if len(list) == 0 {
				fmt.Fprintln(os.Stderr, "No jobs found.")
				return nil
			}
			formatJobsList(os.Stdout, list)
			return nil
		}
		return encodeJobs(os.Stdout, format, list)
	},
}

// -- jobs get --

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs get")
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "table" {
			format = "json"
		}
		return encodeJobs(os.Stdout, format, job)
	},
}

// -- jobs stats --

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate job statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		snap, err := monitoring.NewCollector(st, nil).Collect(ctx, int(since.Hours()))
		if err != nil {
			return eris.Wrap(err, "jobs stats")
		}
		formatJobStats(os.Stdout, snap)
		return nil
	},
}

func init() {
	jobsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 168h; 0 for all)")
	jobsListCmd.Flags().String("state", "", "filter by state (queued, loaded, ..., forwarded, failed)")
	jobsListCmd.Flags().Int("limit", 50, "max number of jobs to display")
	jobsListCmd.Flags().String("format", "table", "output format: table, json or yaml")
	jobsGetCmd.Flags().String("format", "json", "output format: json or yaml")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsGetCmd)
	jobsCmd.AddCommand(jobsStatsCmd)
	rootCmd.AddCommand(jobsCmd)
}

// encodeJobs writes v as indented JSON or YAML.
func encodeJobs(out io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		return eris.Errorf("unknown format %q", format)
	}
}

// formatJobsList writes a tabular list of jobs to out.
func formatJobsList(out io.Writer, list []model.Job) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tFILE\tSTATE\tROWS\tCLEAN\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t----\t-----\t-------")

	for _, j := range list {
		file := j.File
		if len(file) > 40 {
			file = "..." + file[len(file)-37:]
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			truncateID(j.ID),
			file,
			j.State,
			j.RawRows,
			j.CleanRows,
			j.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatJobStats writes aggregate stats to out.
func formatJobStats(out io.Writer, s *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total jobs:\t%d\n", s.JobsTotal)
	_, _ = fmt.Fprintf(w, "Forwarded:\t%d\n", s.JobsForwarded)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.JobsFailed)
	_, _ = fmt.Fprintf(w, "Queued:\t%d\n", s.JobsQueued)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.JobsRunning)
	_, _ = fmt.Fprintf(w, "Rows:\t%d\n", s.RawRows)
	_, _ = fmt.Fprintf(w, "Clean rows:\t%d (%.1f%%)\n", s.CleanRows, s.CleanRatio*100)
	_, _ = fmt.Fprintf(w, "Removed rows:\t%d\n", s.RemovedRows)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
