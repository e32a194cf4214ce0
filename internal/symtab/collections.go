package symtab

import (
	"fmt"
	"iter"

	"firestige.xyz/nfd/internal/core"
)

// UsageError reports a collection operation applied to the wrong kind of
// variable. It is raised with panic: it marks a defect in the caller or in
// the rule being loaded, not a runtime condition.
type UsageError struct {
	Op   string
	ID   string
	Want core.Kind
	Got  string
	Err  error
}

func (e *UsageError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("symtab: %s: want %s, got %s: %v", e.Op, e.Want, e.Got, e.Err)
	}
	return fmt.Sprintf("symtab: %s %q: want %s, got %s: %v", e.Op, e.ID, e.Want, e.Got, e.Err)
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

func misuse(op, id string, want core.Kind, got core.Variable, bound bool) {
	e := &UsageError{Op: op, ID: id, Want: want, Err: core.ErrKindMismatch}
	switch {
	case !bound:
		e.Got = "unbound"
		e.Err = core.ErrUnbound
	case isNil(got):
		e.Got = "nil"
	default:
		e.Got = got.Kind().String()
	}
	panic(e)
}

// isNil reports an absent variable, including a nil *core.Map or *core.Set.
func isNil(v core.Variable) bool {
	switch c := v.(type) {
	case nil:
		return true
	case *core.Map:
		return c == nil
	case *core.Set:
		return c == nil
	}
	return false
}

// BuildMap declares id as a new map holding exactly key -> value.
func (t *Table) BuildMap(id string, key, value core.Variable) {
	t.vars[id] = core.NewMap(key, value)
}

// InsertIntoMap stores key -> value in the map bound to id, replacing the
// value of an existing equal key. It panics with *UsageError when id is not
// bound to a map.
func (t *Table) InsertIntoMap(id string, key, value core.Variable) {
	v, ok := t.vars[id]
	m, isMap := v.(*core.Map)
	if !ok || !isMap || m == nil {
		misuse("insert_into_map", id, core.KindMap, v, ok)
	}
	m.Insert(key, value)
}

// BuildSet declares id as a new set holding exactly value.
func (t *Table) BuildSet(id string, value core.Variable) {
	t.vars[id] = core.NewSet(value)
}

// InsertIntoSet adds value to the set bound to id; it is a no-op when an
// equal element is present. It panics with *UsageError when id is not bound
// to a set.
func (t *Table) InsertIntoSet(id string, value core.Variable) {
	v, ok := t.vars[id]
	s, isSet := v.(*core.Set)
	if !ok || !isSet || s == nil {
		misuse("insert_into_set", id, core.KindSet, v, ok)
	}
	s.Insert(value)
}

// Union yields the elements of both sets once each, in ascending order.
// Elements equal under core.Compare are collapsed. Each range over the
// result walks the sets afresh; use core.CollectSet to keep the result.
//
// Union panics with *UsageError unless both operands are sets.
func Union(a, b core.Variable) iter.Seq[core.Variable] {
	sa, ok := a.(*core.Set)
	if !ok || sa == nil {
		misuse("union", "", core.KindSet, a, true)
	}
	sb, ok := b.(*core.Set)
	if !ok || sb == nil {
		misuse("union", "", core.KindSet, b, true)
	}

	return func(yield func(core.Variable) bool) {
		next, stop := iter.Pull(sb.All())
		defer stop()

		y, haveY := next()
		for x := range sa.All() {
			for haveY && core.Compare(y, x) < 0 {
				if !yield(y) {
					return
				}
				y, haveY = next()
			}
			if haveY && core.Compare(y, x) == 0 {
				y, haveY = next()
			}
			if !yield(x) {
				return
			}
		}
		for haveY {
			if !yield(y) {
				return
			}
			y, haveY = next()
		}
	}
}

// UnionOf resolves both identifiers and returns Union of their sets. It panics
// with *UsageError when either identifier is unbound or not a set.
func (t *Table) UnionOf(a, b string) iter.Seq[core.Variable] {
	va, ok := t.vars[a]
	if !ok {
		misuse("union", a, core.KindSet, nil, false)
	}
	vb, ok := t.vars[b]
	if !ok {
		misuse("union", b, core.KindSet, nil, false)
	}
	if _, isSet := va.(*core.Set); !isSet {
		misuse("union", a, core.KindSet, va, true)
	}
	if _, isSet := vb.(*core.Set); !isSet {
		misuse("union", b, core.KindSet, vb, true)
	}
	return Union(va, vb)
}
