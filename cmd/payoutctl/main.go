// Command payoutctl is the operator-facing CLI for the Payout Pipeline
// (spec §4.7/§6): scheduling a payout run and exporting its customers as
// a CSV ledger plus SEPA XML batches, outside of the Administration API.
// Exit codes follow spec §6: 0 success, 1 validation error, 2 database
// error.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/config"
	"github.com/stustapay/core/internal/database"
	"github.com/stustapay/core/internal/models"
	"github.com/stustapay/core/internal/payout"
)

const (
	exitSuccess    = 0
	exitValidation = 1
	exitDatabase   = 2
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	if apiErr, ok := apierrors.As(err); ok {
		switch apiErr.Kind {
		case apierrors.KindInvalidArgument, apierrors.KindAccessDenied,
			apierrors.KindInsufficientFunds, apierrors.KindAgeRestriction,
			apierrors.KindAlreadyFinished, apierrors.KindNotFound, apierrors.KindConflict:
			return exitValidation
		}
	}
	return exitDatabase
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "payoutctl",
		Short:         "Manage StuStaPay payout runs",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the core's YAML configuration file")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newExportCmd(&configPath))
	return root
}

func newRunCmd(configPath *string) *cobra.Command {
	var (
		createdBy    int64
		maxPayoutSum string
		nodeID       int64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create a payout run, attaching every eligible customer up to the given sum",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return apierrors.InvalidArgument("loading config: %v", err)
			}
			maxSum, err := models.NewMoney(maxPayoutSum)
			if err != nil {
				return apierrors.InvalidArgument("invalid --max-payout-sum %q: %v", maxPayoutSum, err)
			}

			ctx := context.Background()
			pool, err := database.New(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			settings := config.NewSettingsView(cfg)
			if _, ok := settings.ForNode(nodeID); !ok {
				return apierrors.InvalidArgument("no event settings configured for node %d", nodeID)
			}
			svc := payout.NewService(settings, bankCodeToBIC())

			var runID int64
			var scheduled int
			err = database.WithTx(ctx, pool, pgx.Serializable, func(tx pgx.Tx) error {
				runID, scheduled, err = svc.CreatePayoutRun(ctx, tx, createdBy, maxSum)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Printf("created payout run %d, scheduled %d customers\n", runID, scheduled)
			return nil
		},
	}
	cmd.Flags().Int64Var(&createdBy, "created-by", 0, "user id recorded as the run's creator")
	cmd.Flags().StringVar(&maxPayoutSum, "max-payout-sum", "", "maximum total amount this run may disburse")
	cmd.Flags().Int64Var(&nodeID, "node", 0, "node id whose event settings to use")
	cmd.MarkFlagRequired("max-payout-sum")
	return cmd
}

func newExportCmd(configPath *string) *cobra.Command {
	var (
		createdBy              int64
		nodeID                 int64
		maxPayoutSum           string
		outputDir              string
		dryRun                 bool
		maxExportItemsPerBatch int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Create a payout run and write its CSV ledger and SEPA XML batches to disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return apierrors.InvalidArgument("loading config: %v", err)
			}
			maxSum, err := models.NewMoney(maxPayoutSum)
			if err != nil {
				return apierrors.InvalidArgument("invalid --max-payout-sum %q: %v", maxPayoutSum, err)
			}
			if outputDir == "" {
				outputDir = cfg.Payout.OutputDir
			}
			if maxExportItemsPerBatch == 0 {
				maxExportItemsPerBatch = cfg.Payout.MaxExportItemsPerBatch
			}

			ctx := context.Background()
			pool, err := database.New(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			settings := config.NewSettingsView(cfg)
			svc := payout.NewService(settings, bankCodeToBIC())

			var result payout.ExportResult
			err = database.WithTx(ctx, pool, pgx.Serializable, func(tx pgx.Tx) error {
				result, err = svc.ExportCustomerPayouts(ctx, tx, createdBy, nodeID, outputDir, dryRun, maxSum, maxExportItemsPerBatch)
				return err
			})
			// ErrDryRun is ExportCustomerPayouts' signal to roll back, not a
			// failure: the export files were still written successfully.
			if err != nil && !errors.Is(err, payout.ErrDryRun) {
				return err
			}
			fmt.Printf("payout run %d: %d customers exported\n", result.RunID, result.ItemCount)
			if result.CSVPath != "" {
				fmt.Printf("csv: %s\n", result.CSVPath)
			}
			for _, p := range result.XMLPaths {
				fmt.Printf("sepa batch: %s\n", p)
			}
			if result.DryRun {
				fmt.Println("dry run: transaction was rolled back, no customers were attached permanently")
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&createdBy, "created-by", 0, "user id recorded as the run's creator")
	cmd.Flags().Int64Var(&nodeID, "node", 0, "node id whose event settings to use")
	cmd.Flags().StringVar(&maxPayoutSum, "max-payout-sum", "", "maximum total amount this run may disburse")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory to write the CSV/XML files to (defaults to payout.output_dir)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "write files but do not mark the run done")
	cmd.Flags().IntVar(&maxExportItemsPerBatch, "max-items-per-batch", 0, "maximum customers per SEPA XML batch (defaults to payout.max_export_items_per_batch)")
	cmd.MarkFlagRequired("max-payout-sum")
	return cmd
}

// bankCodeToBIC is the static German bank-code lookup the SEPA renderer
// consults to derive a BIC when an account's bank doesn't carry one
// directly embedded in its IBAN, matching cmd/server's table.
func bankCodeToBIC() map[string]string {
	return map[string]string{
		"70150000": "SSKMDEMM",
		"10010010": "PBNKDEFF",
	}
}
