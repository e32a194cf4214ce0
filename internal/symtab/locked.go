package symtab

import (
	"iter"
	"sync"

	"firestige.xyz/nfd/internal/core"
)

// Locked serializes every operation on a Table so that read-then-write groups
// (Update, InsertIntoMap, InsertIntoSet) stay atomic when several capture
// goroutines share one table.
type Locked struct {
	mu    sync.Mutex
	table *Table
}

// NewLocked wraps t. The caller must not use t directly afterwards.
func NewLocked(t *Table) *Locked {
	return &Locked{table: t}
}

func (l *Locked) Declare(id string, v core.Variable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.table.Declare(id, v)
}

func (l *Locked) Update(id string, v core.Variable) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.table.Update(id, v)
}

// Lookup returns a copy of the variable bound to id.
func (l *Locked) Lookup(id string) (core.Variable, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.table.Lookup(id)
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

func (l *Locked) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.table.Len()
}

func (l *Locked) BuildMap(id string, key, value core.Variable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.table.BuildMap(id, key, value)
}

func (l *Locked) InsertIntoMap(id string, key, value core.Variable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.table.InsertIntoMap(id, key, value)
}

func (l *Locked) BuildSet(id string, value core.Variable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.table.BuildSet(id, value)
}

func (l *Locked) InsertIntoSet(id string, value core.Variable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.table.InsertIntoSet(id, value)
}

func (l *Locked) BindFrame(pm core.PacketMap) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.table.BindFrame(pm)
}

// UnionOf snapshots both sets under the lock and returns their union. Later
// changes to the table do not affect the returned sequence.
func (l *Locked) UnionOf(a, b string) iter.Seq[core.Variable] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return core.CollectSet(l.table.UnionOf(a, b)).All()
}
