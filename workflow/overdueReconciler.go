package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/logistics_backend/config"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/sirupsen/logrus"
)

type overdueSweeper interface {
	ReconcileOverdue(ctx context.Context, now time.Time) (int, error)
}

// OverdueReconciler flags past-due invoices of every tenant on a fixed interval.
type OverdueReconciler struct {
	Ledger   overdueSweeper
	Logger   *logrus.Logger
	Interval time.Duration
	Now      func() time.Time
}

func NewOverdueReconciler(ledger overdueSweeper, logger *logrus.Logger, interval time.Duration) *OverdueReconciler {
	if logger == nil {
		logger = config.GetLogger()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &OverdueReconciler{Ledger: ledger, Logger: logger, Interval: interval, Now: time.Now}
}

func (r *OverdueReconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		r.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *OverdueReconciler) SweepOnce(ctx context.Context) int {
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	n, err := r.Ledger.ReconcileOverdue(ctx, r.Now().UTC())
	if err != nil {
		config.LogError(r.Logger, "workflow", "OverdueReconciler", "sweeping overdue invoices", n, err)
		return n
	}
	if n > 0 {
		r.Logger.WithFields(logrus.Fields{"field": "OverdueReconciler", "flipped": n}).Info("invoices marked overdue")
	}
	return n
}
