package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fatture/internal/gateway"
	"fatture/internal/log"
)

// fakeSheets serves the subset of the Sheets values API the client uses.
type fakeSheets struct {
	mu   sync.Mutex
	tabs map[string][][]any
}

var rowRange = regexp.MustCompile(`^'(.+)'!A(\d+):[A-Z]+\d+$`)

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := strings.Index(r.URL.Path, "/values/")
	if i < 0 {
		http.Error(w, "unsupported", http.StatusNotImplemented)
		return
	}
	rng := r.URL.Path[i+len("/values/"):]

	switch r.Method {
	case http.MethodGet:
		tab := strings.Trim(strings.SplitN(rng, "!", 2)[0], "'")
		json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": f.tabs[tab]})
	case http.MethodPut:
		m := rowRange.FindStringSubmatch(rng)
		if m == nil {
			http.Error(w, "bad range "+rng, http.StatusBadRequest)
			return
		}
		var body struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n, _ := strconv.Atoi(m[2])
		rows := f.tabs[m[1]]
		for len(rows) < n {
			rows = append(rows, nil)
		}
		rows[n-1] = body.Values[0]
		f.tabs[m[1]] = rows
		json.NewEncoder(w).Encode(map[string]any{"updatedRows": 1})
	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T, tabs map[string][][]any) (*Client, *fakeSheets) {
	t.Helper()
	fake := &fakeSheets{tabs: tabs}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return NewWithService(svc, "sheet-id", "", log.Discard()), fake
}

func TestClientListParsesHeaderRow(t *testing.T) {
	c, _ := newTestClient(t, map[string][][]any{
		"expenses": {
			{"id", "amount", "date_incurred"},
			{"e2", "5", "2025-02-01"},
			{"e1", "10", "2025-01-01"},
		},
	})

	rows, err := c.List(context.Background(), gateway.Expenses, gateway.OrderBy("date_incurred"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 || rows[0].ID() != "e1" || rows[1]["amount"] != "5" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestClientInsertAndUpdate(t *testing.T) {
	c, fake := newTestClient(t, map[string][][]any{})
	ctx := context.Background()

	if _, err := c.Insert(ctx, gateway.Clients, gateway.Row{"id": "c1", "name": "Acme"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := c.Insert(ctx, gateway.Clients, gateway.Row{"id": "c1", "name": "Again"}); !errors.Is(err, gateway.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	up, err := c.Update(ctx, gateway.Clients, "c1", gateway.Row{"email": "a@acme.test"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if up["name"] != "Acme" || up["email"] != "a@acme.test" {
		t.Fatalf("unexpected merged row: %v", up)
	}

	rows, err := c.List(ctx, gateway.Clients, gateway.Order{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0]["email"] != "a@acme.test" {
		t.Fatalf("unexpected rows: %v", rows)
	}
	if got := len(fake.tabs["clients"][0]); got != 5 {
		t.Errorf("expected header of 5 columns, got %d: %v", got, fake.tabs["clients"][0])
	}

	if _, err := c.Update(ctx, gateway.Clients, "missing", gateway.Row{}); !errors.Is(err, gateway.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), Options{}, log.Discard()); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
}
