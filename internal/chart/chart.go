// Package chart turns filter aggregates into Chart.js configurations and
// keeps track of the chart instances bound to each container so that a
// container never holds more than one.
package chart

import (
	"fmt"
	"html"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"fatture/internal/lifecycle"
	"fatture/internal/log"
)

// Kind is a Chart.js chart type.
type Kind string

const (
	Line     Kind = "line"
	Bar      Kind = "bar"
	Doughnut Kind = "doughnut"
)

func (k Kind) Valid() bool {
	switch k {
	case Line, Bar, Doughnut:
		return true
	}
	return false
}

// Series holds parallel label and value arrays. Percents is optional and,
// when set, has one entry per value.
type Series struct {
	Name     string
	Labels   []string
	Values   []decimal.Decimal
	Percents []decimal.Decimal
}

func (s Series) Len() int { return len(s.Labels) }

// Empty reports whether there is nothing to plot.
func (s Series) Empty() bool { return len(s.Values) == 0 }

// Instance is one live chart bound to a container.
type Instance struct {
	ID        uint64
	Container string
	Kind      Kind
	Series    Series

	adapter *Adapter
}

// Close destroys the instance if it is still the one bound to its
// container.
func (i *Instance) Close() error {
	i.adapter.destroyInstance(i)
	return nil
}

// Adapter renders charts into a session document.
type Adapter struct {
	doc    *lifecycle.Document
	logger *log.Logger

	mu        sync.Mutex
	next      uint64
	instances map[string]*Instance
	owners    map[string]*lifecycle.Scope
}

func NewAdapter(doc *lifecycle.Document, logger *log.Logger) *Adapter {
	if logger == nil {
		logger = log.Default()
	}
	return &Adapter{
		doc:       doc,
		logger:    logger.WithComponent(log.ComponentChart),
		instances: make(map[string]*Instance),
		owners:    make(map[string]*lifecycle.Scope),
	}
}

// NodeID is the id of the canvas node a chart writes into its container.
func NodeID(container string) string { return container + "-canvas" }

// Render destroys any chart bound to container, then creates a new one and
// writes its canvas node into container. owner tags the node for lifecycle
// teardown. No other container is touched.
func (a *Adapter) Render(owner, container string, s Series, kind Kind) (*Instance, error) {
	markup, err := prepare(container, s, kind)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.renderLocked(owner, container, s, kind, markup), nil
}

func prepare(container string, s Series, kind Kind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("chart kind %q: unsupported", kind)
	}
	if len(s.Labels) != len(s.Values) {
		return "", fmt.Errorf("chart %s: %d labels for %d values", container, len(s.Labels), len(s.Values))
	}
	return Canvas(container, s, kind)
}

// caller holds a.mu
func (a *Adapter) renderLocked(owner, container string, s Series, kind Kind, markup string) *Instance {
	if prev, ok := a.instances[container]; ok {
		a.removeLocked(prev)
	}
	a.next++
	inst := &Instance{ID: a.next, Container: container, Kind: kind, Series: s, adapter: a}
	a.instances[container] = inst
	a.doc.Put(lifecycle.Node{ID: NodeID(container), Container: container, Owner: owner, HTML: markup})

	a.logger.Debug("Chart rendered",
		log.FieldContainer, container,
		log.FieldPage, owner,
		log.FieldCount, s.Len())
	return inst
}

// Mount renders a chart on behalf of a page scope. The first mount of a
// container within a scope ties the container to the scope, so whatever
// chart it holds when the page is deactivated is destroyed. Remounting in the
// same scope replaces the chart without registering anything new. A closed
// scope neither renders nor claims the container, so a late mount from a
// previous activation cannot evict the current one's chart.
func (a *Adapter) Mount(s *lifecycle.Scope, container string, series Series, kind Kind) (*Instance, error) {
	markup, err := prepare(container, series, kind)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if s.Closed() {
		a.mu.Unlock()
		return nil, lifecycle.ErrStale
	}
	inst := a.renderLocked(s.Page(), container, series, kind, markup)
	owned := a.owners[container] == s
	a.owners[container] = s
	a.mu.Unlock()

	if owned {
		return inst, nil
	}
	// OnClose runs the release itself when the scope closed after the check.
	if err := s.OnClose("chart "+container, func() error {
		a.release(s, container)
		return nil
	}); err != nil {
		return nil, err
	}
	return inst, nil
}

func (a *Adapter) release(s *lifecycle.Scope, container string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.owners[container] != s {
		return
	}
	delete(a.owners, container)
	if inst, ok := a.instances[container]; ok {
		a.removeLocked(inst)
	}
}

// Destroy removes the chart bound to container and reports whether there
// was one.
func (a *Adapter) Destroy(container string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	inst, ok := a.instances[container]
	if !ok {
		return false
	}
	a.removeLocked(inst)
	return true
}

func (a *Adapter) destroyInstance(inst *Instance) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cur, ok := a.instances[inst.Container]; ok && cur == inst {
		a.removeLocked(inst)
	}
}

// caller holds a.mu
func (a *Adapter) removeLocked(inst *Instance) {
	delete(a.instances, inst.Container)
	a.doc.Remove(inst.Container, NodeID(inst.Container))
}

// Count is the number of live chart instances.
func (a *Adapter) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.instances)
}

// Instances is the number of live charts bound to container.
func (a *Adapter) Instances(container string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.instances[container]; ok {
		return 1
	}
	return 0
}

// Get returns the chart bound to container.
func (a *Adapter) Get(container string) (*Instance, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	inst, ok := a.instances[container]
	return inst, ok
}

// Containers lists containers that currently hold a chart.
func (a *Adapter) Containers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.instances))
	for c := range a.instances {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Canvas returns the canvas markup carrying the chart configuration in a
// data attribute, where the page script picks it up.
func Canvas(container string, s Series, kind Kind) (string, error) {
	cfg, err := Config(s, kind)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`<canvas id="%s" class="chart chart--%s" data-chart="%s"></canvas>`,
		html.EscapeString(NodeID(container)), kind, html.EscapeString(string(cfg))), nil
}
