package worker

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fatture/internal/amqp"
	"fatture/internal/core"
	"fatture/internal/gateway"
	"fatture/internal/gateway/memory"
	"fatture/internal/log"
	"fatture/internal/services"
)

type sliceConsumer struct {
	events []*amqp.ChangeEvent
	errs   chan error
}

func (c *sliceConsumer) ConsumeChanges(ctx context.Context, handler func(context.Context, *amqp.ChangeEvent) error) error {
	for _, ev := range c.events {
		c.errs <- handler(ctx, ev)
	}
	<-ctx.Done()
	return ctx.Err()
}

func setup(t *testing.T) (*memory.Store, *services.Ledger) {
	t.Helper()
	gw := memory.New()
	ledger := services.NewLedger(gw, services.LedgerOptions{Logger: log.Discard()})
	if err := ledger.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return gw, ledger
}

// writeExternally simulates another process writing a paid invoice and an
// expense straight to the table store.
func writeExternally(t *testing.T, gw gateway.Gateway) {
	t.Helper()
	ctx := context.Background()
	client, err := gw.Insert(ctx, gateway.Clients, gateway.ClientRow(core.Client{Name: "Acme", Email: "a@acme.test"}))
	if err != nil {
		t.Fatalf("insert client: %v", err)
	}
	inv := core.Invoice{
		ID:         "INV-001",
		ClientID:   client.ID(),
		Status:     core.StatusPaid,
		DateIssued: "2025-01-10",
		Items:      []core.LineItem{core.NewLineItem("Work", decimal.NewFromInt(1), decimal.NewFromInt(900))},
	}
	inv.ApplyTotals(decimal.Zero)
	row, err := gateway.InvoiceRow(inv)
	if err != nil {
		t.Fatalf("encode invoice: %v", err)
	}
	if _, err := gw.Insert(ctx, gateway.Invoices, row); err != nil {
		t.Fatalf("insert invoice: %v", err)
	}
	exp := core.Expense{Amount: decimal.NewFromInt(200), Description: "Laptop stand", Date: "2025-01-12"}
	if _, err := gw.Insert(ctx, gateway.Expenses, gateway.ExpenseRow(exp)); err != nil {
		t.Fatalf("insert expense: %v", err)
	}
}

func persistedBalance(t *testing.T, gw gateway.Gateway) core.BalanceSummary {
	t.Helper()
	rows, err := gw.List(context.Background(), gateway.BalanceSummary, gateway.Order{})
	if err != nil || len(rows) != 1 {
		t.Fatalf("list balance: %v (%d rows)", err, len(rows))
	}
	b, err := gateway.BalanceFromRow(rows[0])
	if err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	return b
}

func TestBalanceWorker_HandleChange(t *testing.T) {
	gw, ledger := setup(t)
	writeExternally(t, gw)
	w := NewBalanceWorker(ledger, 0, log.Discard())

	err := w.HandleChange(context.Background(), amqp.NewChangeEvent(string(gateway.Invoices), "INV-001", gateway.OpInsert))
	if err != nil {
		t.Fatalf("HandleChange() error = %v", err)
	}

	b := persistedBalance(t, gw)
	if !b.TotalEarnings.Equal(decimal.NewFromInt(900)) {
		t.Errorf("earnings = %s, want 900", b.TotalEarnings)
	}
	if !b.CurrentBalance.Equal(decimal.NewFromInt(700)) {
		t.Errorf("balance = %s, want 700", b.CurrentBalance)
	}
	clients := ledger.Clients.All()
	if len(clients) != 1 || !clients[0].TotalAmount.Equal(decimal.NewFromInt(900)) || clients[0].TotalInvoices != 1 {
		t.Errorf("client totals not recomputed: %+v", clients)
	}
}

func TestBalanceWorker_IgnoresUnknownTable(t *testing.T) {
	_, ledger := setup(t)
	w := NewBalanceWorker(ledger, 0, log.Discard())

	if err := w.HandleChange(context.Background(), &amqp.ChangeEvent{Table: "payroll", ID: "1"}); err != nil {
		t.Fatalf("HandleChange() error = %v", err)
	}
	if handled, _ := w.Stats(); handled != 0 {
		t.Errorf("handled = %d, want 0", handled)
	}
}

func TestBalanceWorker_Run(t *testing.T) {
	gw, ledger := setup(t)
	w := NewBalanceWorker(ledger, time.Hour, log.Discard())
	writeExternally(t, gw)

	consumer := &sliceConsumer{
		events: []*amqp.ChangeEvent{
			amqp.NewChangeEvent(string(gateway.Settings), "default", gateway.OpUpdate),
			amqp.NewChangeEvent(string(gateway.Expenses), "x", gateway.OpInsert),
		},
		errs: make(chan error, 2),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, consumer) }()

	for i := 0; i < 2; i++ {
		if err := <-consumer.errs; err != nil {
			t.Fatalf("handler error = %v", err)
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	handled, reconciled := w.Stats()
	if handled != 2 || reconciled != 1 {
		t.Errorf("stats = %d handled, %d reconciled; want 2, 1", handled, reconciled)
	}
	if b := persistedBalance(t, gw); !b.CurrentBalance.Equal(decimal.NewFromInt(700)) {
		t.Errorf("balance = %s, want 700", b.CurrentBalance)
	}
}
