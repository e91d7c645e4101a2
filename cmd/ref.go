package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/haulage/app"
	"github.com/kilianp07/haulage/core/reference"
)

var refCmd = &cobra.Command{
	Use:   "ref",
	Short: "Job reference numbers",
}

var refNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Allocate the next reference number of a customer",
	RunE:  runRefNext,
}

var refParseCmd = &cobra.Command{
	Use:   "parse <reference>",
	Short: "Split a reference number into year, docket and sequence",
	Args:  cobra.ExactArgs(1),
	RunE:  runRefParse,
}

var refCustomer string

func init() {
	refNextCmd.Flags().StringVar(&refCustomer, "customer", "", "customer id")
	_ = refNextCmd.MarkFlagRequired("customer")
	refCmd.AddCommand(refNextCmd, refParseCmd)
	rootCmd.AddCommand(refCmd)
}

func runRefNext(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *app.Service) error {
		ref, err := svc.Allocator.Allocate(ctx, refCustomer)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), ref)
		return err
	})
}

func runRefParse(cmd *cobra.Command, args []string) error {
	p, err := reference.Parse(args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "year=%02d docket=%d sequence=%03d\n", p.Year, p.DocketID, p.Sequence)
	return err
}
