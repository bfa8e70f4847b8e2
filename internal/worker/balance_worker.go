package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"fatture/internal/amqp"
	"fatture/internal/gateway"
	"fatture/internal/log"
	"fatture/internal/services"
)

// Consumer delivers change events until its context ends.
type Consumer interface {
	ConsumeChanges(ctx context.Context, handler func(context.Context, *amqp.ChangeEvent) error) error
}

// BalanceWorker keeps the persisted balance_summary and client totals in
// step with invoices and expenses written by any process. It reacts to change
// events and also reconciles periodically in case events were lost.
type BalanceWorker struct {
	ledger   *services.Ledger
	interval time.Duration
	logger   *log.Logger

	handled    atomic.Int64
	reconciled atomic.Int64
}

func NewBalanceWorker(ledger *services.Ledger, interval time.Duration, logger *log.Logger) *BalanceWorker {
	if logger == nil {
		logger = log.Default()
	}
	return &BalanceWorker{
		ledger:   ledger,
		interval: interval,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// affectsDerived reports whether a change to table can move a client total
// or the balance.
func affectsDerived(table string) bool {
	switch gateway.Table(table) {
	case gateway.Invoices, gateway.Expenses, gateway.Clients, gateway.BalanceSummary:
		return true
	}
	return false
}

// HandleChange processes a single change event. Events for tables that
// derived records do not depend on only refresh the ledger.
func (w *BalanceWorker) HandleChange(ctx context.Context, ev *amqp.ChangeEvent) error {
	if !gateway.Table(ev.Table).Valid() {
		w.logger.WarnContext(ctx, "Ignoring change for unknown table", log.FieldTable, ev.Table)
		return nil
	}
	w.handled.Add(1)

	if err := w.ledger.Reload(ctx); err != nil {
		return fmt.Errorf("reload after %s/%s: %w", ev.Table, ev.ID, err)
	}
	if !affectsDerived(ev.Table) {
		return nil
	}
	if err := w.ledger.Recompute(ctx); err != nil {
		return fmt.Errorf("recompute after %s/%s: %w", ev.Table, ev.ID, err)
	}

	w.logger.DebugContext(ctx, "Change processed",
		log.FieldTable, ev.Table,
		log.FieldRecordID, ev.ID,
		log.FieldOperation, ev.Op)
	return nil
}

// Reconcile reloads everything and recomputes the derived records.
func (w *BalanceWorker) Reconcile(ctx context.Context) error {
	start := time.Now()
	if err := w.ledger.Reload(ctx); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := w.ledger.Recompute(ctx); err != nil {
		return fmt.Errorf("recompute: %w", err)
	}
	w.reconciled.Add(1)

	b := w.ledger.CurrentBalance()
	w.logger.InfoContext(ctx, "Reconciled balance",
		"earnings", b.TotalEarnings.StringFixed(2),
		"expenses", b.TotalExpenses.StringFixed(2),
		"tracking_since", string(b.TrackingSince),
		log.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

// Run reconciles once, then consumes events and reconciles on every tick
// until ctx is done. consumer may be nil, leaving only the periodic pass.
func (w *BalanceWorker) Run(ctx context.Context, consumer Consumer) error {
	if err := w.Reconcile(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Startup reconcile failed", log.FieldError, err.Error())
	}

	g, ctx := errgroup.WithContext(ctx)
	if consumer != nil {
		g.Go(func() error {
			return consumer.ConsumeChanges(ctx, w.HandleChange)
		})
	}
	if w.interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(w.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					if err := w.Reconcile(ctx); err != nil {
						w.logger.ErrorContext(ctx, "Periodic reconcile failed", log.FieldError, err.Error())
					}
				}
			}
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stats reports how many events and reconcile passes were processed.
func (w *BalanceWorker) Stats() (handled, reconciled int64) {
	return w.handled.Load(), w.reconciled.Load()
}
