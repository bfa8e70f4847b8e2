package chart

import (
	"context"
	"encoding/json"
	"html"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatture/internal/core"
	"fatture/internal/filter"
	"fatture/internal/lifecycle"
	"fatture/internal/log"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func expenses() []core.Expense {
	return []core.Expense{
		{ID: "e1", Amount: dec("100"), Date: "2025-01-15", Category: "food"},
		{ID: "e2", Amount: dec("50"), Date: "2025-01-20", Category: "food"},
		{ID: "e3", Amount: dec("30"), Date: "2025-02-01", Category: "transport"},
	}
}

type expensePage struct{ charts *Adapter }

func (p expensePage) ID() string { return "expenses" }

func (p expensePage) Mount(_ context.Context, s *lifecycle.Scope) error {
	recs := expenses()
	if err := s.Node(lifecycle.Container("expenses"), "expense-monthly", `<div id="expense-monthly"></div>`); err != nil {
		return err
	}
	if _, err := p.charts.Mount(s, "expense-monthly", FromPeriods("Monthly", filter.ByMonth(recs)), Line); err != nil {
		return err
	}
	_, err := p.charts.Mount(s, "expense-categories", FromCategories("Categories", filter.ByCategory(recs)), Doughnut)
	return err
}

type dashboardPage struct{}

func (dashboardPage) ID() string { return "dashboard" }

func (dashboardPage) Mount(_ context.Context, s *lifecycle.Scope) error {
	return s.Node(lifecycle.Container("dashboard"), "dashboard-body", "<p>hi</p>")
}

func TestRender_ReplacesPreviousInstance(t *testing.T) {
	doc := lifecycle.NewDocument()
	a := NewAdapter(doc, log.Discard())
	s := FromPeriods("Monthly", filter.ByMonth(expenses()))

	first, err := a.Render("expenses", "monthly", s, Line)
	require.NoError(t, err)
	second, err := a.Render("expenses", "monthly", s, Bar)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, a.Count())
	assert.Equal(t, 1, a.Instances("monthly"))
	assert.Len(t, doc.Nodes("monthly"), 1)
	assert.Contains(t, doc.Render("monthly"), "chart--bar")

	// closing a replaced instance must not destroy its successor
	require.NoError(t, first.Close())
	assert.Equal(t, 1, a.Instances("monthly"))
}

func TestRender_OnlyTouchesItsContainer(t *testing.T) {
	doc := lifecycle.NewDocument()
	doc.Put(lifecycle.Node{ID: "other", Container: "sidebar", Owner: "expenses", HTML: "<nav></nav>"})
	a := NewAdapter(doc, log.Discard())

	_, err := a.Render("expenses", "monthly", Series{}, Line)
	require.NoError(t, err)
	assert.True(t, a.Destroy("monthly"))
	assert.False(t, a.Destroy("monthly"))

	assert.Equal(t, "<nav></nav>", doc.Render("sidebar"))
	assert.Empty(t, doc.Nodes("monthly"))
}

func TestRender_Rejects(t *testing.T) {
	a := NewAdapter(lifecycle.NewDocument(), log.Discard())

	_, err := a.Render("p", "c", Series{}, Kind("pie"))
	assert.Error(t, err)
	_, err = a.Render("p", "c", Series{Labels: []string{"a"}}, Line)
	assert.Error(t, err)
	assert.Equal(t, 0, a.Count())
}

func TestConfig_ParallelArrays(t *testing.T) {
	s := FromPeriods("Monthly", filter.ByMonth(expenses()))
	raw, err := Config(s, Line)
	require.NoError(t, err)

	var cfg struct {
		Type string `json:"type"`
		Data struct {
			Labels   []string `json:"labels"`
			Datasets []struct {
				Data []float64 `json:"data"`
			} `json:"datasets"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &cfg))
	assert.Equal(t, "line", cfg.Type)
	assert.Equal(t, []string{"2025-01", "2025-02"}, cfg.Data.Labels)
	require.Len(t, cfg.Data.Datasets, 1)
	assert.Equal(t, []float64{150, 30}, cfg.Data.Datasets[0].Data)
}

func TestFromCategories_Percentages(t *testing.T) {
	s := FromCategories("Categories", filter.ByCategory(expenses()))

	assert.Equal(t, []string{"food", "transport"}, s.Labels)
	require.Len(t, s.Percents, 2)
	assert.Equal(t, "83.33", s.Percents[0].StringFixed(2))
	assert.Equal(t, "16.67", s.Percents[1].StringFixed(2))

	zero := FromCategories("Categories", []filter.CategoryAmount{{Category: "x", Amount: decimal.Zero}})
	assert.True(t, zero.Percents[0].IsZero())
}

func TestCanvas_EscapesConfig(t *testing.T) {
	s := Series{Labels: []string{`"><script>`}, Values: []decimal.Decimal{dec("1")}}
	markup, err := Canvas("c", s, Bar)
	require.NoError(t, err)

	assert.NotContains(t, markup, "<script>")
	start := strings.Index(markup, `data-chart="`) + len(`data-chart="`)
	end := strings.LastIndex(markup, `"`)
	assert.True(t, json.Valid([]byte(html.UnescapeString(markup[start:end]))))
}

func TestNavigation_OneChartPerCanvas(t *testing.T) {
	doc := lifecycle.NewDocument()
	charts := NewAdapter(doc, log.Discard())
	ctrl := lifecycle.NewController(doc, nil, log.Discard())
	ctrl.Register(expensePage{charts: charts}, dashboardPage{})
	ctx := context.Background()

	_, err := ctrl.Activate(ctx, "expenses")
	require.NoError(t, err)
	assert.Equal(t, 2, charts.Count())

	_, err = ctrl.Activate(ctx, "dashboard")
	require.NoError(t, err)
	assert.Equal(t, 0, charts.Count())
	assert.Empty(t, doc.OwnedBy("expenses"))

	_, err = ctrl.Activate(ctx, "expenses")
	require.NoError(t, err)

	assert.Equal(t, 2, charts.Count())
	assert.Equal(t, 1, charts.Instances("expense-monthly"))
	assert.Equal(t, 1, charts.Instances("expense-categories"))
	assert.Len(t, doc.Nodes("expense-monthly"), 1)
	assert.Len(t, doc.Nodes("expense-categories"), 1)
}

func TestMount_ClosedScope(t *testing.T) {
	doc := lifecycle.NewDocument()
	charts := NewAdapter(doc, log.Discard())
	ctrl := lifecycle.NewController(doc, nil, log.Discard())
	ctrl.Register(dashboardPage{})
	tok, err := ctrl.Activate(context.Background(), "dashboard")
	require.NoError(t, err)
	s, err := ctrl.Scope(tok)
	require.NoError(t, err)
	require.NoError(t, ctrl.Close())

	_, err = charts.Mount(s, "late", Series{}, Line)
	assert.ErrorIs(t, err, lifecycle.ErrStale)
	assert.Equal(t, 0, charts.Count())
}

func TestMount_RemountInSameScope(t *testing.T) {
	doc := lifecycle.NewDocument()
	charts := NewAdapter(doc, log.Discard())
	ctrl := lifecycle.NewController(doc, nil, log.Discard())
	ctrl.Register(dashboardPage{})
	tok, err := ctrl.Activate(context.Background(), "dashboard")
	require.NoError(t, err)
	s, err := ctrl.Scope(tok)
	require.NoError(t, err)

	series := FromPeriods("Expenses", []filter.PeriodAmount{{Period: "2025-01", Amount: dec("10")}})
	for i := 0; i < 5; i++ {
		_, err := charts.Mount(s, "refreshing", series, Line)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, charts.Instances("refreshing"))
	assert.Len(t, doc.Nodes("refreshing"), 1)

	require.NoError(t, ctrl.Close())
	assert.Equal(t, 0, charts.Count())
	assert.Empty(t, doc.Nodes("refreshing"))
}

func TestMount_StaleScopeKeepsCurrentChart(t *testing.T) {
	doc := lifecycle.NewDocument()
	charts := NewAdapter(doc, log.Discard())
	ctrl := lifecycle.NewController(doc, nil, log.Discard())
	ctrl.Register(expensePage{charts: charts}, dashboardPage{})
	ctx := context.Background()

	tok, err := ctrl.Activate(ctx, "dashboard")
	require.NoError(t, err)
	old, err := ctrl.Scope(tok)
	require.NoError(t, err)

	_, err = ctrl.Activate(ctx, "expenses")
	require.NoError(t, err)
	current, ok := charts.Get("expense-monthly")
	require.True(t, ok)

	series := FromPeriods("Late", []filter.PeriodAmount{{Period: "2024-12", Amount: dec("1")}})
	_, err = charts.Mount(old, "expense-monthly", series, Bar)
	assert.ErrorIs(t, err, lifecycle.ErrStale)

	got, ok := charts.Get("expense-monthly")
	require.True(t, ok)
	assert.Equal(t, current.ID, got.ID)
	assert.Equal(t, Line, got.Kind)

	_, err = ctrl.Activate(ctx, "dashboard")
	require.NoError(t, err)
	assert.Equal(t, 0, charts.Instances("expense-monthly"))
	assert.Empty(t, doc.Nodes("expense-monthly"))
}
