package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"fatture/internal/amqp"
	"fatture/internal/core"
	"fatture/internal/filter"
	"fatture/internal/gateway"
	"fatture/internal/log"
	"fatture/internal/notify"
	"fatture/internal/store"
)

// Topics published on the document bus after a successful mutation.
const (
	TopicExpenseChanged  = "expense:changed"
	TopicCategoryChanged = "category:changed"
	TopicInvoiceChanged  = "invoice:changed"
	TopicClientChanged   = "client:changed"
	TopicSettingsChanged = "settings:changed"
	TopicBalanceChanged  = "balance:changed"
)

// BalanceID is the id of the single balance_summary row.
const BalanceID = "current"

var (
	ErrClientInUse    = errors.New("client still has invoices")
	ErrUnknownClient  = errors.New("unknown client")
	ErrCategoryExists = errors.New("category already exists")
)

// Publisher is the document level event bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, data any) int
}

// ChangePublisher forwards change events to other processes.
type ChangePublisher interface {
	PublishChange(ctx context.Context, ev *amqp.ChangeEvent) error
}

// Change is the payload of every ledger topic.
type Change struct {
	Table gateway.Table
	ID    string
	Op    string
}

func topicFor(t gateway.Table) string {
	switch t {
	case gateway.Expenses:
		return TopicExpenseChanged
	case gateway.ExpenseCategories:
		return TopicCategoryChanged
	case gateway.Invoices:
		return TopicInvoiceChanged
	case gateway.Clients:
		return TopicClientChanged
	case gateway.Settings:
		return TopicSettingsChanged
	default:
		return TopicBalanceChanged
	}
}

type LedgerOptions struct {
	Events  Publisher
	Changes ChangePublisher
	Logger  *log.Logger
	Now     func() time.Time
}

// Ledger is the application store. Every mutation goes through one of its
// methods, which persist first, then recompute the derived client totals and
// balance, then announce the change.
type Ledger struct {
	Expenses   *store.Collection[core.Expense]
	Categories *store.Collection[core.Category]
	Invoices   *store.Collection[core.Invoice]
	Clients    *store.Collection[core.Client]
	Settings   *store.Collection[core.Settings]
	Balance    *store.Collection[core.BalanceSummary]

	events  Publisher
	changes ChangePublisher
	logger  *log.Logger
	slog    *log.StructuredLogger
	now     func() time.Time

	// serializes recomputation of derived records
	derive sync.Mutex
}

func NewLedger(gw gateway.Gateway, opts LedgerOptions) *Ledger {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		Expenses:   store.New(gw, store.ExpenseCodec(), logger),
		Categories: store.New(gw, store.CategoryCodec(), logger),
		Invoices:   store.New(gw, store.InvoiceCodec(), logger),
		Clients:    store.New(gw, store.ClientCodec(), logger),
		Settings:   store.New(gw, store.SettingsCodec(), logger),
		Balance:    store.New(gw, store.BalanceCodec(), logger),
		events:     opts.Events,
		changes:    opts.Changes,
		logger:     logger.WithComponent(log.ComponentLedger),
		slog:       log.NewStructuredLogger(logger),
		now:        now,
	}
}

// Reload refreshes every collection from the gateway concurrently. A
// collection that fails to load keeps its previous contents.
func (l *Ledger) Reload(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.Expenses.Load(ctx) })
	g.Go(func() error { return l.Categories.Load(ctx) })
	g.Go(func() error { return l.Invoices.Load(ctx) })
	g.Go(func() error { return l.Clients.Load(ctx) })
	g.Go(func() error { return l.Settings.Load(ctx) })
	g.Go(func() error { return l.Balance.Load(ctx) })
	return g.Wait()
}

// Bootstrap loads everything and seeds the settings, default categories and
// the balance row on a fresh store.
func (l *Ledger) Bootstrap(ctx context.Context) error {
	if err := l.Reload(ctx); err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	if l.Settings.Len() == 0 {
		if _, err := l.Settings.Add(ctx, core.DefaultSettings()); err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
	}
	if l.Categories.Len() == 0 {
		for _, c := range core.DefaultCategories() {
			if _, err := l.Categories.Add(ctx, c); err != nil {
				return fmt.Errorf("seed category %s: %w", c.ID, err)
			}
		}
	}
	if l.Balance.Len() == 0 {
		if _, err := l.Balance.Add(ctx, core.BalanceSummary{ID: BalanceID}); err != nil {
			return fmt.Errorf("seed balance: %w", err)
		}
	}
	l.logger.InfoContext(ctx, "Ledger loaded",
		"expenses", l.Expenses.Len(),
		"invoices", l.Invoices.Len(),
		"clients", l.Clients.Len())
	return nil
}

// CurrentSettings returns the stored settings or the defaults.
func (l *Ledger) CurrentSettings() core.Settings {
	if all := l.Settings.All(); len(all) > 0 {
		return all[0]
	}
	return core.DefaultSettings()
}

// CurrentBalance returns the stored balance summary.
func (l *Ledger) CurrentBalance() core.BalanceSummary {
	if b, ok := l.Balance.Get(BalanceID); ok {
		return b
	}
	if all := l.Balance.All(); len(all) > 0 {
		return all[0]
	}
	return core.BalanceSummary{ID: BalanceID}
}

// Categories

func (l *Ledger) AddCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, l.fail(ctx, "Category not saved", err)
	}
	for _, existing := range l.Categories.All() {
		if strings.EqualFold(existing.Name, c.Name) {
			return core.Category{}, l.fail(ctx, "Category not saved", core.Invalid("name", ErrCategoryExists))
		}
	}
	saved, err := l.Categories.Add(ctx, c)
	if err != nil {
		return core.Category{}, l.fail(ctx, "Category not saved", err)
	}
	l.changed(ctx, gateway.ExpenseCategories, saved.ID, gateway.OpInsert, "Category added")
	return saved, nil
}

// Expenses

func (l *Ledger) resolveCategory(e *core.Expense) {
	if e.CategoryID == "" {
		return
	}
	if c, ok := l.Categories.Get(e.CategoryID); ok {
		e.Category = c.Name
	}
}

func (l *Ledger) SaveExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.Description = strings.TrimSpace(e.Description)
	l.resolveCategory(&e)
	if err := e.Validate(); err != nil {
		return core.Expense{}, l.fail(ctx, "Expense not saved", err)
	}
	saved, err := l.Expenses.Add(ctx, e)
	if err != nil {
		return core.Expense{}, l.fail(ctx, "Expense not saved", err)
	}
	l.recomputeBalance(ctx)
	l.changed(ctx, gateway.Expenses, saved.ID, gateway.OpInsert, "Expense added")
	return saved, nil
}

func (l *Ledger) UpdateExpense(ctx context.Context, id string, e core.Expense) (core.Expense, error) {
	e.ID = id
	e.Description = strings.TrimSpace(e.Description)
	l.resolveCategory(&e)
	if err := e.Validate(); err != nil {
		return core.Expense{}, l.fail(ctx, "Expense not updated", err)
	}
	saved, err := l.Expenses.Update(ctx, id, func(cur *core.Expense) error {
		*cur = e
		return nil
	})
	if err != nil {
		return core.Expense{}, l.fail(ctx, "Expense not updated", err)
	}
	l.recomputeBalance(ctx)
	l.changed(ctx, gateway.Expenses, id, gateway.OpUpdate, "Expense updated")
	return saved, nil
}

func (l *Ledger) DeleteExpense(ctx context.Context, id string) error {
	if err := l.Expenses.Remove(ctx, id); err != nil {
		return l.fail(ctx, "Expense not deleted", err)
	}
	l.recomputeBalance(ctx)
	l.changed(ctx, gateway.Expenses, id, gateway.OpDelete, "Expense deleted")
	return nil
}

// Clients

func (l *Ledger) SaveClient(ctx context.Context, c core.Client) (core.Client, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.PaymentTerms == "" {
		c.PaymentTerms = core.DefaultPaymentTerms
	}
	c.TotalInvoices, c.TotalAmount = 0, decimal.Zero
	if err := c.Validate(); err != nil {
		return core.Client{}, l.fail(ctx, "Client not saved", err)
	}
	if _, err := TermsFor(c.PaymentTerms); err != nil {
		return core.Client{}, l.fail(ctx, "Client not saved", core.Invalid("payment_terms", err))
	}
	saved, err := l.Clients.Add(ctx, c)
	if err != nil {
		return core.Client{}, l.fail(ctx, "Client not saved", err)
	}
	l.changed(ctx, gateway.Clients, saved.ID, gateway.OpInsert, "Client added")
	return saved, nil
}

// UpdateClient replaces the editable fields of a client. Derived totals are
// kept.
func (l *Ledger) UpdateClient(ctx context.Context, id string, c core.Client) (core.Client, error) {
	c.ID = id
	c.Name = strings.TrimSpace(c.Name)
	if c.PaymentTerms == "" {
		c.PaymentTerms = core.DefaultPaymentTerms
	}
	if err := c.Validate(); err != nil {
		return core.Client{}, l.fail(ctx, "Client not updated", err)
	}
	if _, err := TermsFor(c.PaymentTerms); err != nil {
		return core.Client{}, l.fail(ctx, "Client not updated", core.Invalid("payment_terms", err))
	}
	saved, err := l.Clients.Update(ctx, id, func(cur *core.Client) error {
		c.TotalInvoices, c.TotalAmount = cur.TotalInvoices, cur.TotalAmount
		*cur = c
		return nil
	})
	if err != nil {
		return core.Client{}, l.fail(ctx, "Client not updated", err)
	}
	l.changed(ctx, gateway.Clients, id, gateway.OpUpdate, "Client updated")
	return saved, nil
}

// DeleteClient refuses to remove a client that invoices still reference.
func (l *Ledger) DeleteClient(ctx context.Context, id string) error {
	for _, inv := range l.Invoices.All() {
		if inv.ClientID == id {
			return l.fail(ctx, "Client not deleted", core.Invalid("client", ErrClientInUse))
		}
	}
	if err := l.Clients.Remove(ctx, id); err != nil {
		return l.fail(ctx, "Client not deleted", err)
	}
	l.changed(ctx, gateway.Clients, id, gateway.OpDelete, "Client deleted")
	return nil
}

// Invoices

// prepareInvoice fills defaults, resolves the client and computes totals
// with the configured tax rate.
func (l *Ledger) prepareInvoice(inv *core.Invoice) error {
	settings := l.CurrentSettings()
	client, ok := l.Clients.Get(inv.ClientID)
	if !ok {
		return core.Invalid("client_id", ErrUnknownClient)
	}
	inv.ClientName = client.Name
	if inv.Status == "" {
		inv.Status = core.StatusDraft
	}
	if inv.DateIssued == "" {
		inv.DateIssued = core.DateOf(l.now())
	}
	if inv.DueDate == "" {
		inv.DueDate = DueDate(inv.DateIssued, client.PaymentTerms)
	}
	inv.ApplyTotals(settings.TaxRate)
	return inv.Validate()
}

// SaveInvoice creates an invoice. Without an id the next number in the
// configured prefix sequence is assigned.
func (l *Ledger) SaveInvoice(ctx context.Context, inv core.Invoice) (core.Invoice, error) {
	if inv.ID == "" {
		inv.ID = core.NextInvoiceID(l.CurrentSettings().InvoicePrefix, l.Invoices.IDs())
	}
	if err := l.prepareInvoice(&inv); err != nil {
		return core.Invoice{}, l.fail(ctx, "Invoice not saved", err)
	}
	saved, err := l.Invoices.Add(ctx, inv)
	if err != nil {
		return core.Invoice{}, l.fail(ctx, "Invoice not saved", err)
	}
	l.recomputeClient(ctx, saved.ClientID)
	l.recomputeBalance(ctx)
	l.changed(ctx, gateway.Invoices, saved.ID, gateway.OpInsert, "Invoice "+saved.ID+" created")
	return saved, nil
}

func (l *Ledger) UpdateInvoice(ctx context.Context, id string, inv core.Invoice) (core.Invoice, error) {
	inv.ID = id
	if err := l.prepareInvoice(&inv); err != nil {
		return core.Invoice{}, l.fail(ctx, "Invoice not updated", err)
	}
	var previousClient string
	saved, err := l.Invoices.Update(ctx, id, func(cur *core.Invoice) error {
		previousClient = cur.ClientID
		*cur = inv
		return nil
	})
	if err != nil {
		return core.Invoice{}, l.fail(ctx, "Invoice not updated", err)
	}
	if previousClient != "" && previousClient != saved.ClientID {
		l.recomputeClient(ctx, previousClient)
	}
	l.recomputeClient(ctx, saved.ClientID)
	l.recomputeBalance(ctx)
	l.changed(ctx, gateway.Invoices, id, gateway.OpUpdate, "Invoice "+id+" updated")
	return saved, nil
}

// SetInvoiceStatus moves an invoice to status. Transitions are user driven;
// any valid status may follow any other.
func (l *Ledger) SetInvoiceStatus(ctx context.Context, id string, status core.InvoiceStatus) (core.Invoice, error) {
	if !status.Valid() {
		return core.Invoice{}, l.fail(ctx, "Status not changed", core.Invalid("status", core.ErrInvalidStatus))
	}
	saved, err := l.Invoices.Update(ctx, id, func(cur *core.Invoice) error {
		cur.Status = status
		return nil
	})
	if err != nil {
		return core.Invoice{}, l.fail(ctx, "Status not changed", err)
	}
	l.recomputeClient(ctx, saved.ClientID)
	l.recomputeBalance(ctx)
	l.changed(ctx, gateway.Invoices, id, gateway.OpUpdate, fmt.Sprintf("Invoice %s marked %s", id, status))
	return saved, nil
}

func (l *Ledger) DeleteInvoice(ctx context.Context, id string) error {
	inv, ok := l.Invoices.Get(id)
	if !ok {
		return l.fail(ctx, "Invoice not deleted", fmt.Errorf("invoice %s: %w", id, store.ErrNotFound))
	}
	if err := l.Invoices.Remove(ctx, id); err != nil {
		return l.fail(ctx, "Invoice not deleted", err)
	}
	l.recomputeClient(ctx, inv.ClientID)
	l.recomputeBalance(ctx)
	l.changed(ctx, gateway.Invoices, id, gateway.OpDelete, "Invoice "+id+" deleted")
	return nil
}

// Settings

func (l *Ledger) SaveSettings(ctx context.Context, s core.Settings) (core.Settings, error) {
	s.Currency = strings.ToUpper(strings.TrimSpace(s.Currency))
	if err := s.Validate(); err != nil {
		return core.Settings{}, l.fail(ctx, "Settings not saved", err)
	}
	current := l.CurrentSettings()
	var (
		saved core.Settings
		err   error
		op    = gateway.OpUpdate
	)
	if _, ok := l.Settings.Get(current.ID); ok {
		s.ID = current.ID
		saved, err = l.Settings.Update(ctx, current.ID, func(cur *core.Settings) error {
			*cur = s
			return nil
		})
	} else {
		s.ID = core.DefaultSettings().ID
		op = gateway.OpInsert
		saved, err = l.Settings.Add(ctx, s)
	}
	if err != nil {
		return core.Settings{}, l.fail(ctx, "Settings not saved", err)
	}
	l.changed(ctx, gateway.Settings, saved.ID, op, "Settings saved")
	return saved, nil
}

// Balance

// ResetBalance starts a new tracking window today. Historical records stay
// untouched; only the balance cards stop counting them.
func (l *Ledger) ResetBalance(ctx context.Context) (core.BalanceSummary, error) {
	today := core.DateOf(l.now())
	b, _, err := l.deriveBalance(ctx, func(b *core.BalanceSummary) { b.TrackingSince = today })
	if err != nil {
		return core.BalanceSummary{}, l.fail(ctx, "Balance not reset", err)
	}
	l.changed(ctx, gateway.BalanceSummary, b.ID, gateway.OpUpdate, "Balance tracking restarted")
	return b, nil
}

// Recompute rebuilds every client's totals and the balance from the loaded
// invoices and expenses.
func (l *Ledger) Recompute(ctx context.Context) error {
	var errs []error
	for _, c := range l.Clients.All() {
		if err := l.syncClient(ctx, c.ID); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := l.writeBalance(ctx, nil); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (l *Ledger) recomputeClient(ctx context.Context, id string) {
	if err := l.syncClient(ctx, id); err != nil {
		l.logger.WarnContext(ctx, "Client totals not updated",
			log.FieldClientID, id, log.FieldError, err.Error())
	}
}

func (l *Ledger) syncClient(ctx context.Context, id string) error {
	changed, err := l.deriveClient(ctx, id)
	if changed {
		l.publish(ctx, gateway.Clients, id, gateway.OpUpdate)
	}
	return err
}

func (l *Ledger) deriveClient(ctx context.Context, id string) (bool, error) {
	l.derive.Lock()
	defer l.derive.Unlock()

	c, ok := l.Clients.Get(id)
	if !ok {
		return false, nil
	}
	total, ok := filter.ClientTotals(l.Invoices.All())[id]
	if !ok {
		total.Paid = decimal.Zero
	}
	if c.TotalInvoices == total.Invoices && c.TotalAmount.Equal(total.Paid) {
		return false, nil
	}
	_, err := l.Clients.Update(ctx, id, func(cur *core.Client) error {
		cur.TotalInvoices = total.Invoices
		cur.TotalAmount = total.Paid
		return nil
	})
	return err == nil, err
}

func (l *Ledger) recomputeBalance(ctx context.Context) {
	if _, err := l.writeBalance(ctx, nil); err != nil {
		l.logger.WarnContext(ctx, "Balance not updated", log.FieldError, err.Error())
	}
}

// writeBalance applies edit, recomputes the totals for the tracking window
// and persists the row when anything changed.
func (l *Ledger) writeBalance(ctx context.Context, edit func(*core.BalanceSummary)) (core.BalanceSummary, error) {
	b, op, err := l.deriveBalance(ctx, edit)
	if err == nil && op != "" {
		l.publish(ctx, gateway.BalanceSummary, b.ID, op)
	}
	return b, err
}

func (l *Ledger) deriveBalance(ctx context.Context, edit func(*core.BalanceSummary)) (core.BalanceSummary, string, error) {
	l.derive.Lock()
	defer l.derive.Unlock()

	current := l.CurrentBalance()
	next := current
	if edit != nil {
		edit(&next)
	}
	earnings, spent := filter.Balance(l.Invoices.All(), l.Expenses.All(), next.TrackingSince)
	next.TotalEarnings = earnings
	next.TotalExpenses = spent
	next.CurrentBalance = earnings.Sub(spent)
	next.CalculatedAt = l.now().UTC()

	if _, ok := l.Balance.Get(current.ID); !ok {
		saved, err := l.Balance.Add(ctx, next)
		return saved, gateway.OpInsert, err
	}
	if next.TrackingSince == current.TrackingSince &&
		next.TotalEarnings.Equal(current.TotalEarnings) &&
		next.TotalExpenses.Equal(current.TotalExpenses) {
		return current, "", nil
	}
	saved, err := l.Balance.Update(ctx, current.ID, func(cur *core.BalanceSummary) error {
		*cur = next
		return nil
	})
	return saved, gateway.OpUpdate, err
}

// changed announces a user-visible mutation.
func (l *Ledger) changed(ctx context.Context, table gateway.Table, id, op, message string) {
	l.slog.LogRecordChanged(ctx, string(table), id, op)
	l.publish(ctx, table, id, op)
	notify.Send(ctx, message, notify.Success)
}

func (l *Ledger) publish(ctx context.Context, table gateway.Table, id, op string) {
	if l.events != nil {
		l.events.Publish(ctx, topicFor(table), Change{Table: table, ID: id, Op: op})
	}
	if l.changes == nil {
		return
	}
	if err := l.changes.PublishChange(ctx, amqp.NewChangeEvent(string(table), id, op)); err != nil {
		// the worker's periodic reconcile catches up
		l.logger.WarnContext(ctx, "Failed to publish change event",
			log.FieldTable, string(table),
			log.FieldRecordID, id,
			log.FieldError, err.Error())
	}
}

// fail reports err to the user and returns it unchanged.
func (l *Ledger) fail(ctx context.Context, message string, err error) error {
	switch {
	case errors.Is(err, store.ErrBusy):
		notify.Send(ctx, message+": the record is being saved, try again", notify.Warning)
	default:
		if ve, ok := core.AsValidation(err); ok {
			notify.Send(ctx, message+": "+ve.Error(), notify.Warning)
		} else {
			notify.Send(ctx, message+": "+err.Error(), notify.Error)
			l.logger.ErrorContext(ctx, message, log.FieldError, err.Error())
		}
	}
	return err
}
