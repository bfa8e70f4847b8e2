package chart

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"fatture/internal/filter"
)

var palette = []string{
	"#4f46e5", "#0891b2", "#16a34a", "#ca8a04", "#dc2626",
	"#9333ea", "#db2777", "#0d9488", "#ea580c", "#64748b",
}

type config struct {
	Type    Kind    `json:"type"`
	Data    data    `json:"data"`
	Options options `json:"options"`
}

type data struct {
	Labels   []string  `json:"labels"`
	Datasets []dataset `json:"datasets"`
}

type dataset struct {
	Label           string        `json:"label,omitempty"`
	Data            []json.Number `json:"data"`
	Percentages     []json.Number `json:"percentages,omitempty"`
	BackgroundColor any           `json:"backgroundColor,omitempty"`
	BorderColor     string        `json:"borderColor,omitempty"`
	Fill            bool          `json:"fill,omitempty"`
	Tension         float64       `json:"tension,omitempty"`
}

type options struct {
	Responsive          bool    `json:"responsive"`
	MaintainAspectRatio bool    `json:"maintainAspectRatio"`
	Plugins             plugins `json:"plugins"`
}

type plugins struct {
	Legend legend `json:"legend"`
}

type legend struct {
	Display  bool   `json:"display"`
	Position string `json:"position,omitempty"`
}

func number(d decimal.Decimal) json.Number { return json.Number(d.StringFixed(2)) }

// Config builds the Chart.js configuration for s.
func Config(s Series, kind Kind) ([]byte, error) {
	ds := dataset{Label: s.Name, Data: make([]json.Number, len(s.Values))}
	for i, v := range s.Values {
		ds.Data[i] = number(v)
	}
	if len(s.Percents) > 0 {
		if len(s.Percents) != len(s.Values) {
			return nil, fmt.Errorf("chart: %d percentages for %d values", len(s.Percents), len(s.Values))
		}
		ds.Percentages = make([]json.Number, len(s.Percents))
		for i, p := range s.Percents {
			ds.Percentages[i] = number(p)
		}
	}

	lg := legend{Display: false}
	switch kind {
	case Line:
		ds.BorderColor = palette[0]
		ds.Tension = 0.3
	case Bar:
		ds.BackgroundColor = palette[0]
	case Doughnut:
		colors := make([]string, len(s.Values))
		for i := range colors {
			colors[i] = palette[i%len(palette)]
		}
		ds.BackgroundColor = colors
		lg = legend{Display: true, Position: "right"}
	}

	labels := s.Labels
	if labels == nil {
		labels = []string{}
	}
	return json.Marshal(config{
		Type: kind,
		Data: data{Labels: labels, Datasets: []dataset{ds}},
		Options: options{
			Responsive: true,
			Plugins:    plugins{Legend: lg},
		},
	})
}

// FromPeriods plots period totals in ascending period order.
func FromPeriods(name string, periods []filter.PeriodAmount) Series {
	s := Series{
		Name:   name,
		Labels: make([]string, len(periods)),
		Values: make([]decimal.Decimal, len(periods)),
	}
	for i, p := range periods {
		s.Labels[i] = p.Period
		s.Values[i] = p.Amount
	}
	return s
}

// FromCategories plots category totals with each slice's share of the
// total, as the doughnut tooltip shows it.
func FromCategories(name string, cats []filter.CategoryAmount) Series {
	s := Series{
		Name:     name,
		Labels:   make([]string, len(cats)),
		Values:   make([]decimal.Decimal, len(cats)),
		Percents: make([]decimal.Decimal, len(cats)),
	}
	total := decimal.Zero
	for _, c := range cats {
		total = total.Add(c.Amount)
	}
	for i, c := range cats {
		s.Labels[i] = c.Category
		s.Values[i] = c.Amount
		s.Percents[i] = filter.Percent(c.Amount, total)
	}
	return s
}

// FromClients plots earnings per client.
func FromClients(name string, clients []filter.ClientAmount) Series {
	s := Series{
		Name:   name,
		Labels: make([]string, len(clients)),
		Values: make([]decimal.Decimal, len(clients)),
	}
	for i, c := range clients {
		s.Labels[i] = c.ClientName
		s.Values[i] = c.Amount
	}
	return s
}
