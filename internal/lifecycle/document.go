package lifecycle

import (
	"sort"
	"strings"
	"sync"
)

// Node is one rendered fragment placed into a container. Owner is the page
// that created it.
type Node struct {
	ID        string
	Container string
	Owner     string
	HTML      string
}

// Document is the server-side model of what a browser session currently
// shows: containers holding ordered nodes.
type Document struct {
	mu         sync.RWMutex
	containers map[string][]Node
}

func NewDocument() *Document {
	return &Document{containers: make(map[string][]Node)}
}

// Put inserts n, replacing a node with the same id in the same container.
func (d *Document) Put(n Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	nodes := d.containers[n.Container]
	for i := range nodes {
		if nodes[i].ID == n.ID {
			nodes[i] = n
			return
		}
	}
	d.containers[n.Container] = append(nodes, n)
}

// Remove deletes a node and reports whether it existed.
func (d *Document) Remove(container, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	nodes := d.containers[container]
	for i := range nodes {
		if nodes[i].ID == id {
			d.containers[container] = append(nodes[:i:i], nodes[i+1:]...)
			if len(d.containers[container]) == 0 {
				delete(d.containers, container)
			}
			return true
		}
	}
	return false
}

// RemoveOwned deletes every node owned by owner in any container and
// returns how many were removed.
func (d *Document) RemoveOwned(owner string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for c, nodes := range d.containers {
		kept := nodes[:0:0]
		for _, n := range nodes {
			if n.Owner == owner {
				removed++
				continue
			}
			kept = append(kept, n)
		}
		if len(kept) == 0 {
			delete(d.containers, c)
		} else {
			d.containers[c] = kept
		}
	}
	return removed
}

// OwnedBy returns every node owned by owner, ordered by container.
func (d *Document) OwnedBy(owner string) []Node {
	return d.collect(func(n Node) bool { return n.Owner == owner })
}

// OwnedOutside returns the nodes owned by owner that live outside its own
// container.
func (d *Document) OwnedOutside(owner, container string) []Node {
	return d.collect(func(n Node) bool { return n.Owner == owner && n.Container != container })
}

func (d *Document) collect(match func(Node) bool) []Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Node
	for _, c := range d.sortedContainers() {
		for _, n := range d.containers[c] {
			if match(n) {
				out = append(out, n)
			}
		}
	}
	return out
}

// Nodes returns a copy of a container's nodes.
func (d *Document) Nodes(container string) []Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Node(nil), d.containers[container]...)
}

// Find looks a node up by id in any container.
func (d *Document) Find(id string) (Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, nodes := range d.containers {
		for _, n := range nodes {
			if n.ID == id {
				return n, true
			}
		}
	}
	return Node{}, false
}

// Render concatenates the HTML of a container's nodes.
func (d *Document) Render(container string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var b strings.Builder
	for _, n := range d.containers[container] {
		b.WriteString(n.HTML)
	}
	return b.String()
}

// Containers lists the non-empty containers in name order.
func (d *Document) Containers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sortedContainers()
}

// Len is the total number of nodes.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, nodes := range d.containers {
		n += len(nodes)
	}
	return n
}

// caller holds d.mu
func (d *Document) sortedContainers() []string {
	out := make([]string, 0, len(d.containers))
	for c := range d.containers {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
