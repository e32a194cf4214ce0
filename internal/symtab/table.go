// Package symtab implements the NFD symbol table: identifiers bound to typed
// variables, with type-locked updates and collection builders.
package symtab

import (
	"iter"
	"maps"
	"slices"

	"firestige.xyz/nfd/internal/core"
)

// DefaultFrameID is the identifier the current frame is bound under.
const DefaultFrameID = "f"

// Table maps identifiers to variables.
//
// An identifier is either unbound or bound to one variant. Declare is the only
// way out of the unbound state and may re-bind to a different variant; Update
// and the collection operations keep the variant. There is no delete.
//
// A Table is not safe for concurrent use; see Locked.
type Table struct {
	vars    map[string]core.Variable
	frameID string
}

// Option configures a Table.
type Option func(*Table)

// WithFrameID overrides the identifier used by BindFrame.
func WithFrameID(id string) Option {
	return func(t *Table) {
		if id != "" {
			t.frameID = id
		}
	}
}

// New returns an empty table.
func New(opts ...Option) *Table {
	t := &Table{
		vars:    make(map[string]core.Variable),
		frameID: DefaultFrameID,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewWithFrame returns a table whose only binding is pm under the frame identifier.
func NewWithFrame(pm core.PacketMap, opts ...Option) *Table {
	t := New(opts...)
	t.BindFrame(pm)
	return t
}

// FrameID returns the identifier used by BindFrame.
func (t *Table) FrameID() string {
	return t.frameID
}

// Declare binds id to a copy of v, replacing any previous binding regardless of its kind.
func (t *Table) Declare(id string, v core.Variable) {
	t.vars[id] = v.Clone()
}

// Update replaces the value bound to id with a copy of v. It fails, leaving
// the table unchanged, when id is unbound or bound to a different kind.
func (t *Table) Update(id string, v core.Variable) bool {
	old, ok := t.vars[id]
	if !ok || !core.SameKind(old, v) {
		return false
	}
	t.vars[id] = v.Clone()
	return true
}

// Lookup returns the variable bound to id. The result is owned by the table.
func (t *Table) Lookup(id string) (core.Variable, bool) {
	v, ok := t.vars[id]
	return v, ok
}

// Len returns the number of bound identifiers.
func (t *Table) Len() int {
	return len(t.vars)
}

// Names returns the bound identifiers in sorted order.
func (t *Table) Names() []string {
	return slices.Sorted(maps.Keys(t.vars))
}

// All yields bindings sorted by identifier.
func (t *Table) All() iter.Seq2[string, core.Variable] {
	return func(yield func(string, core.Variable) bool) {
		for _, id := range t.Names() {
			if !yield(id, t.vars[id]) {
				return
			}
		}
	}
}

// BindFrame adopts pm as a Packet under the frame identifier, replacing the
// previous frame.
func (t *Table) BindFrame(pm core.PacketMap) {
	t.vars[t.frameID] = core.Packet{Fields: pm}
}

// Frame returns the currently bound frame, if any.
func (t *Table) Frame() (core.PacketMap, bool) {
	v, ok := t.vars[t.frameID]
	if !ok {
		return core.PacketMap{}, false
	}
	p, ok := v.(core.Packet)
	if !ok {
		return core.PacketMap{}, false
	}
	return p.Fields, true
}
