package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/haulage/app"
)

var capacityCmd = &cobra.Command{
	Use:   "capacity",
	Short: "Show the load of a truck for a day and time slot",
	RunE:  runCapacity,
}

var (
	capTruck string
	capDate  string
	capSlot  string
)

func init() {
	capacityCmd.Flags().StringVar(&capTruck, "truck", "", "truck id")
	capacityCmd.Flags().StringVar(&capDate, "date", "", "day (YYYY-MM-DD)")
	capacityCmd.Flags().StringVar(&capSlot, "slot", "", "time slot id")
	for _, f := range []string{"truck", "date", "slot"} {
		_ = capacityCmd.MarkFlagRequired(f)
	}
	rootCmd.AddCommand(capacityCmd)
}

func runCapacity(cmd *cobra.Command, args []string) error {
	day, err := time.Parse(time.DateOnly, capDate)
	if err != nil {
		return fmt.Errorf("--date: %w", err)
	}
	return withService(cmd, func(ctx context.Context, svc *app.Service) error {
		w, err := svc.Machine.BucketCapacity(ctx, capTruck, day, capSlot)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "truck %s on %s, slot %s\n", w.TruckID, day.Format(time.DateOnly), w.TimeSlotID)
		fmt.Fprintf(out, "jobs: %d, load: %.0f kg of %.0f kg (%.0f%%)\n", len(w.Jobs), w.TotalWeightKg, w.CapacityKg, w.Utilization*100)
		if w.Message != "" {
			_, err = fmt.Fprintln(out, w.Message)
		}
		return err
	})
}
