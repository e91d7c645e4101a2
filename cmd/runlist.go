package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/haulage/app"
	"github.com/kilianp07/haulage/core/model"
	"github.com/kilianp07/haulage/pkg/export"
)

var runListCmd = &cobra.Command{
	Use:   "runlist",
	Short: "Print the run list of a truck",
	Long:  "Print the run list of a truck between two days. Without --from and --to the current week is used.",
	RunE:  runRunList,
}

var (
	runListTruck  string
	runListFrom   string
	runListTo     string
	runListFormat string
)

func init() {
	runListCmd.Flags().StringVar(&runListTruck, "truck", "", "truck id")
	runListCmd.Flags().StringVar(&runListFrom, "from", "", "first day (YYYY-MM-DD)")
	runListCmd.Flags().StringVar(&runListTo, "to", "", "last day (YYYY-MM-DD)")
	runListCmd.Flags().StringVar(&runListFormat, "format", "csv", "output format: csv or json")
	_ = runListCmd.MarkFlagRequired("truck")
	rootCmd.AddCommand(runListCmd)
}

func runRunList(cmd *cobra.Command, args []string) error {
	if runListFormat != "csv" && runListFormat != "json" {
		return fmt.Errorf("unknown format %q", runListFormat)
	}
	if (runListFrom == "") != (runListTo == "") {
		return fmt.Errorf("--from and --to must be used together")
	}
	return withService(cmd, func(ctx context.Context, svc *app.Service) error {
		var (
			jobs []model.Job
			err  error
		)
		if runListFrom == "" {
			jobs, err = svc.Machine.RunListForWeek(ctx, runListTruck, time.Now())
		} else {
			from, ferr := time.Parse(time.DateOnly, runListFrom)
			if ferr != nil {
				return fmt.Errorf("--from: %w", ferr)
			}
			to, terr := time.Parse(time.DateOnly, runListTo)
			if terr != nil {
				return fmt.Errorf("--to: %w", terr)
			}
			jobs, err = svc.Machine.RunList(ctx, runListTruck, from, to)
		}
		if err != nil {
			return err
		}
		entries := export.Entries(jobs)
		if runListFormat == "json" {
			return export.WriteJSON(cmd.OutOrStdout(), entries)
		}
		return export.WriteCSV(cmd.OutOrStdout(), entries)
	})
}
