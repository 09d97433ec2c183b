package cluster

import "sync/atomic"

// Table is the hot-swappable name -> Cluster mapping. Readers atomically
// load the current snapshot; a writer constructs a new mapping and swaps
// it in. A loaded snapshot remains valid for the reader's entire use,
// regardless of subsequent swaps — the map itself is never mutated after
// it is stored.
type Table struct {
	p atomic.Pointer[map[string]*Cluster]
}

// NewTable publishes an initial snapshot.
func NewTable(clusters map[string]*Cluster) *Table {
	t := &Table{}
	if clusters == nil {
		clusters = map[string]*Cluster{}
	}
	t.p.Store(&clusters)
	return t
}

// Load returns the current snapshot. Safe to hold across suspension
// points: the returned map is never mutated in place.
func (t *Table) Load() map[string]*Cluster {
	m := t.p.Load()
	if m == nil {
		return nil
	}
	return *m
}

// Store atomically publishes a new snapshot, replacing the current one.
// Readers that already hold an older snapshot keep observing it.
func (t *Table) Store(clusters map[string]*Cluster) {
	if clusters == nil {
		clusters = map[string]*Cluster{}
	}
	t.p.Store(&clusters)
}

// Get looks up a single cluster by name in the current snapshot.
func (t *Table) Get(name string) (*Cluster, bool) {
	c, ok := t.Load()[name]
	return c, ok
}
