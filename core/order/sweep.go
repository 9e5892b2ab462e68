package order

import (
	"context"
	"time"

	"github.com/edushop/edushop/core/activation"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// Sweep periodically cancels orders stuck in pending past the timeout and
// expires overdue activation codes. It reuses the guarded transitions, so a
// legitimate callback racing the sweep loses or wins cleanly, never both.
func Sweep(ctx context.Context, db *sqlx.DB, log logrus.FieldLogger, interval time.Duration, timeout time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}

		n, err := cancelStale(ctx, db, timeout.Seconds())
		if err != nil {
			log.Errorf("sweeping stale orders: %v", err)
		} else if n > 0 {
			log.Infof("cancelled %d stale pending orders", n)
		}

		n, err = activation.ExpireOverdue(ctx, db)
		if err != nil {
			log.Errorf("expiring activation codes: %v", err)
		} else if n > 0 {
			log.Infof("expired %d activation codes", n)
		}
	}
}
