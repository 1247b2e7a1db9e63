package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/chanreset/internal/taskstore"
	"github.com/flemzord/chanreset/pkg/app"
)

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect persisted reset tasks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pending resets with their remaining time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, _, err := app.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			ctx := context.Background()
			store, backend, err := app.OpenStore(ctx, cfg.Store, slog.New(slog.DiscardHandler))
			if err != nil {
				return err
			}
			if c, ok := backend.(io.Closer); ok {
				defer func() { _ = c.Close() }()
			}

			return printTasks(cmd.OutOrStdout(), store.Snapshot(), time.Now())
		},
	})
	return cmd
}

func printTasks(w io.Writer, tasks []taskstore.Task, now time.Time) error {
	if len(tasks) == 0 {
		_, err := fmt.Fprintln(w, "No pending resets.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tRESOURCE\tDEADLINE\tREMAINING")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			t.GroupID,
			t.ResourceID,
			t.Deadline.UTC().Format(time.RFC3339),
			remaining(t.Deadline.Sub(now)),
		)
	}
	return tw.Flush()
}

// remaining renders d as "3d 4h 5m", or "due" once it is not positive.
func remaining(d time.Duration) string {
	if d <= 0 {
		return "due"
	}
	d = d.Truncate(time.Minute)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
