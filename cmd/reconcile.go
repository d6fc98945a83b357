package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kodisha/payments/internal/payment"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Start the standalone payment reconciler",
	Long: `Start the reconciler worker pool without the HTTP server. It sweeps
pending transactions whose callback never arrived and resolves them
against the M-Pesa status query API.`,
	Run: func(cmd *cobra.Command, args []string) {
		startReconciler()
	},
}

var (
	reconcileWorkers   int
	reconcileBatchSize int
)

func startReconciler() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	cfg := payment.ReconcilerConfig{
		Interval:    deps.Config.Reconciler.Interval,
		PendingAge:  deps.Config.Reconciler.PendingAge,
		ExpireAfter: deps.Config.Reconciler.ExpireAfter,
		MaxWorkers:  getIntFlag(reconcileWorkers, deps.Config.Reconciler.Workers),
		BatchSize:   getIntFlag(reconcileBatchSize, deps.Config.Reconciler.BatchSize),
	}

	deps.Logger.Info("starting standalone reconciler",
		"interval", cfg.Interval,
		"pending_age", cfg.PendingAge,
		"max_workers", cfg.MaxWorkers,
		"batch_size", cfg.BatchSize)

	reconciler := payment.NewReconciler(deps.PaymentService, cfg, deps.Logger)
	reconciler.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	deps.Logger.Info("reconciler is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	deps.Logger.Info("received signal, shutting down reconciler", "signal", sig)

	reconciler.Shutdown()
	if err := deps.DB.Close(); err != nil {
		deps.Logger.Error("database close error", "error", err)
	}
	deps.Logger.Info("reconciler shutdown complete")
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	reconcileCmd.Flags().IntVar(&reconcileWorkers, "workers", 0, "Number of reconcile workers (overrides config)")
	reconcileCmd.Flags().IntVar(&reconcileBatchSize, "batch-size", 0, "Sweep batch size (overrides config)")
}
