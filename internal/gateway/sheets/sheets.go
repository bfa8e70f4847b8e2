// Package sheets uses a Google spreadsheet as the hosted table store: one tab
// per table, the first row holding the column names.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fatture/internal/gateway"
	"fatture/internal/log"
)

// Options configures the client.
type Options struct {
	SpreadsheetID   string
	Prefix          string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	prefix        string
	logger        *log.Logger
	now           func() time.Time

	// Row positions shift on insert and delete, so writes are serialised.
	mu       sync.Mutex
	sheetIDs map[string]int64
}

var _ gateway.Gateway = (*Client)(nil)

// New creates a client authenticated with a service account.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, opts.SpreadsheetID, opts.Prefix, logger), nil
}

// NewWithService wraps an existing service, e.g. one pointed at a test server.
func NewWithService(svc *gsheet.Service, spreadsheetID, prefix string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		prefix:        strings.TrimSpace(prefix),
		logger:        logger.WithComponent(log.ComponentSheets),
		now:           time.Now,
		sheetIDs:      make(map[string]int64),
	}
}

func newSheetsService(ctx context.Context, opts Options, logger *log.Logger) (*gsheet.Service, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		credentialsJSON = []byte(opts.CredentialsJSON)
	case strings.TrimSpace(opts.CredentialsFile) != "":
		b, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials")
	}

	if logger != nil {
		logger.InfoContext(ctx, "Creating Google Sheets service", "credentials_size", len(credentialsJSON))
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

func (c *Client) tab(t gateway.Table) string {
	if c.prefix == "" {
		return string(t)
	}
	return c.prefix + " " + string(t)
}

// EnsureTabs creates missing tabs and writes a minimal header to new ones.
func (c *Client) EnsureTabs(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadSheetIDs(ctx); err != nil {
		return err
	}
	var reqs []*gsheet.Request
	var created []string
	for _, t := range gateway.Tables() {
		name := c.tab(t)
		if _, ok := c.sheetIDs[name]; ok {
			continue
		}
		reqs = append(reqs, &gsheet.Request{AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: name}}})
		created = append(created, name)
	}
	if len(reqs) == 0 {
		return nil
	}
	_, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add tabs %v: %w", created, err)
	}
	for _, name := range created {
		if err := c.writeHeader(ctx, name, defaultHeader()); err != nil {
			return err
		}
	}
	c.logger.InfoContext(ctx, "Created spreadsheet tabs", "tabs", created)
	return c.loadSheetIDs(ctx)
}

func (c *Client) loadSheetIDs(ctx context.Context) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet metadata: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			c.sheetIDs[sh.Properties.Title] = sh.Properties.SheetId
		}
	}
	return nil
}

func (c *Client) read(ctx context.Context, table gateway.Table) (sheetTable, error) {
	rng := fmt.Sprintf("%s!A:ZZ", quoteTab(c.tab(table)))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return sheetTable{}, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseValues(resp.Values), nil
}

func (c *Client) List(ctx context.Context, table gateway.Table, order gateway.Order) ([]gateway.Row, error) {
	if !table.Valid() {
		return nil, gateway.Wrap(table, gateway.OpList, "", gateway.ErrUnknownTable)
	}
	st, err := c.read(ctx, table)
	if err != nil {
		return nil, gateway.Wrap(table, gateway.OpList, "", err)
	}
	gateway.SortRows(st.rows, order)
	return st.rows, nil
}

func (c *Client) Insert(ctx context.Context, table gateway.Table, row gateway.Row) (gateway.Row, error) {
	if !table.Valid() {
		return nil, gateway.Wrap(table, gateway.OpInsert, row.ID(), gateway.ErrUnknownTable)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.read(ctx, table)
	if err != nil {
		return nil, gateway.Wrap(table, gateway.OpInsert, row.ID(), err)
	}
	r := gateway.PrepareInsert(row, c.now())
	if st.indexOf(r.ID()) >= 0 {
		return nil, gateway.Wrap(table, gateway.OpInsert, r.ID(), gateway.ErrDuplicate)
	}
	header, changed := extendHeader(st.header, r)
	if changed {
		if err := c.writeHeader(ctx, c.tab(table), header); err != nil {
			return nil, gateway.Wrap(table, gateway.OpInsert, r.ID(), err)
		}
	}

	rowNumber := len(st.rows) + 2
	if err := c.writeRow(ctx, c.tab(table), rowNumber, header, r); err != nil {
		return nil, gateway.Wrap(table, gateway.OpInsert, r.ID(), err)
	}
	return r, nil
}

func (c *Client) Update(ctx context.Context, table gateway.Table, id string, row gateway.Row) (gateway.Row, error) {
	if !table.Valid() {
		return nil, gateway.Wrap(table, gateway.OpUpdate, id, gateway.ErrUnknownTable)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.read(ctx, table)
	if err != nil {
		return nil, gateway.Wrap(table, gateway.OpUpdate, id, err)
	}
	i := st.indexOf(id)
	if i < 0 {
		return nil, gateway.Wrap(table, gateway.OpUpdate, id, gateway.ErrNotFound)
	}
	merged := gateway.Merge(st.rows[i], row, c.now())
	header, changed := extendHeader(st.header, merged)
	if changed {
		if err := c.writeHeader(ctx, c.tab(table), header); err != nil {
			return nil, gateway.Wrap(table, gateway.OpUpdate, id, err)
		}
	}
	if err := c.writeRow(ctx, c.tab(table), i+2, header, merged); err != nil {
		return nil, gateway.Wrap(table, gateway.OpUpdate, id, err)
	}
	return merged, nil
}

func (c *Client) Delete(ctx context.Context, table gateway.Table, id string) error {
	if !table.Valid() {
		return gateway.Wrap(table, gateway.OpDelete, id, gateway.ErrUnknownTable)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.read(ctx, table)
	if err != nil {
		return gateway.Wrap(table, gateway.OpDelete, id, err)
	}
	i := st.indexOf(id)
	if i < 0 {
		return gateway.Wrap(table, gateway.OpDelete, id, gateway.ErrNotFound)
	}
	name := c.tab(table)
	sheetID, ok := c.sheetIDs[name]
	if !ok {
		if err := c.loadSheetIDs(ctx); err != nil {
			return gateway.Wrap(table, gateway.OpDelete, id, err)
		}
		if sheetID, ok = c.sheetIDs[name]; !ok {
			return gateway.Wrap(table, gateway.OpDelete, id, fmt.Errorf("tab %q not found", name))
		}
	}
	// Zero based, end exclusive; the header occupies index 0.
	start := int64(i + 1)
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{Range: &gsheet.DimensionRange{
			SheetId:    sheetID,
			Dimension:  "ROWS",
			StartIndex: start,
			EndIndex:   start + 1,
		}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return gateway.Wrap(table, gateway.OpDelete, id, err)
	}
	return nil
}

func (c *Client) writeHeader(ctx context.Context, tab string, header []string) error {
	values := make([]any, len(header))
	for i, h := range header {
		values[i] = h
	}
	rng := fmt.Sprintf("%s!A1:%s1", quoteTab(tab), columnName(len(header)))
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{values}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header %s: %w", rng, err)
	}
	return nil
}

func (c *Client) writeRow(ctx context.Context, tab string, rowNumber int, header []string, r gateway.Row) error {
	rng := fmt.Sprintf("%s!A%d:%s%d", quoteTab(tab), rowNumber, columnName(len(header)), rowNumber)
	vr := &gsheet.ValueRange{Values: [][]any{rowValues(header, r)}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", rng, err)
	}
	return nil
}
