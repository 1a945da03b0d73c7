// ops runs maintenance jobs against the configured database.
//
//	go run ./cmd/ops reconcile-overdue
//	go run ./cmd/ops replay-outbox --tenant <tenant_id>
//	go run ./cmd/ops migrate
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/logistics_backend/config"
	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/repository"
	"bitbucket.org/mmdatafocus/logistics_backend/services"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"bitbucket.org/mmdatafocus/logistics_backend/workflow"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ops",
		Short:         "Maintenance jobs for the logistics back office",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.ConfigureLogger(config.GetSettings())
			config.ConnectDatabaseWithRetry()
		},
	}
	root.AddCommand(newReconcileCommand(), newReplayCommand(), newDispatchCommand(), newMigrateCommand())
	return root
}

func newReconcileCommand() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "reconcile-overdue",
		Short: "Mark every past-due unpaid invoice as overdue",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			if at != "" {
				parsed, err := time.Parse("2006-01-02", at)
				if err != nil {
					return fmt.Errorf("--at must be YYYY-MM-DD: %w", err)
				}
				now = parsed
			}
			s := config.GetSettings()
			deps := repository.NewDeps(config.GetDB(), nil, nil, s.PaymentLockTTL, config.GetLogger())
			ctx := utils.SetSkipTenantScopeInContext(cmd.Context(), true)
			n, err := services.NewLedgerService(deps).ReconcileOverdue(ctx, now)
			if err != nil {
				return err
			}
			fmt.Printf("marked %d invoice(s) overdue\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate as of this date (YYYY-MM-DD)")
	return cmd
}

func newReplayCommand() *cobra.Command {
	var tenantId string
	cmd := &cobra.Command{
		Use:   "replay-outbox",
		Short: "Requeue DEAD outbox events",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := workflow.ReplayDead(cmd.Context(), config.GetDB(), tenantId)
			if err != nil {
				return err
			}
			fmt.Printf("requeued %d event(s)\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantId, "tenant", "", "only requeue events of this tenant")
	return cmd
}

func newDispatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch-outbox",
		Short: "Deliver pending outbox events until the queue is drained",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := workflow.NewOutboxDispatcher(config.GetDB(), config.GetLogger(),
				workflow.AuditHandler{}, workflow.UnsettledCollectionNotifier{})
			defer config.ClosePubSub()
			total := 0
			for {
				n := d.DispatchOnce(cmd.Context())
				if n == 0 {
					break
				}
				total += n
			}
			fmt.Printf("processed %d event(s)\n", total)
			return nil
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return models.MigrateTable(config.GetDB())
		},
	}
}
