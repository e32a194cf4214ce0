package core

import (
	"fmt"
	"iter"
	"net/netip"
	"strconv"
	"strings"

	"github.com/google/btree"
)

// Kind is the variant tag of a Variable. Kinds are ordered by declaration.
type Kind uint8

const (
	KindIP Kind = iota
	KindInt
	KindRule
	KindMap
	KindSet
	KindPacket
)

func (k Kind) String() string {
	switch k {
	case KindIP:
		return "ip"
	case KindInt:
		return "int"
	case KindRule:
		return "rule"
	case KindMap:
		return "map"
	case KindSet:
		return "set"
	case KindPacket:
		return "packet"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Variable is a value held by the symbol table: IP, Int, Rule, *Map, *Set or Packet.
//
// Scalar variants have an "uninitialized" state (their zero value). Containers
// own their elements: anything inserted into a *Map or *Set is deep-copied first.
type Variable interface {
	Kind() Kind
	// Clone returns a deep copy sharing no mutable state with the receiver.
	Clone() Variable
	String() string

	variable()
}

// IP is an IPv4 network with prefix. The zero value is uninitialized.
type IP struct {
	Net netip.Prefix
}

// Int is a 32-bit integer. Valid is false when uninitialized.
type Int struct {
	Value int32
	Valid bool
}

// Rule states that Field matches or falls within Net. The zero value is uninitialized.
type Rule struct {
	Field PacketField
	Net   netip.Prefix
}

// Packet is an adopted per-frame fact table.
type Packet struct {
	Fields PacketMap
}

// NewInt returns an initialized Int.
func NewInt(v int32) Int {
	return Int{Value: v, Valid: true}
}

// NewRule returns an initialized Rule.
func NewRule(f PacketField, n netip.Prefix) Rule {
	return Rule{Field: f, Net: n}
}

func (IP) Kind() Kind     { return KindIP }
func (Int) Kind() Kind    { return KindInt }
func (Rule) Kind() Kind   { return KindRule }
func (*Map) Kind() Kind   { return KindMap }
func (*Set) Kind() Kind   { return KindSet }
func (Packet) Kind() Kind { return KindPacket }

func (IP) variable()     {}
func (Int) variable()    {}
func (Rule) variable()   {}
func (*Map) variable()   {}
func (*Set) variable()   {}
func (Packet) variable() {}

func (v IP) Clone() Variable   { return v }
func (v Int) Clone() Variable  { return v }
func (v Rule) Clone() Variable { return v }

func (v Packet) Clone() Variable {
	return Packet{Fields: v.Fields.Clone()}
}

// Initialized reports whether the IP holds a network.
func (v IP) Initialized() bool { return v.Net.IsValid() }

// Initialized reports whether the Rule holds a condition.
func (v Rule) Initialized() bool { return v.Net.IsValid() }

func (v IP) String() string {
	if !v.Initialized() {
		return "ip(unset)"
	}
	return v.Net.String()
}

func (v Int) String() string {
	if !v.Valid {
		return "int(unset)"
	}
	return strconv.FormatInt(int64(v.Value), 10)
}

func (v Rule) String() string {
	if !v.Initialized() {
		return "rule(unset)"
	}
	return fmt.Sprintf("rule(%s in %s)", v.Field, v.Net)
}

func (v Packet) String() string {
	return "packet" + v.Fields.String()
}

const btreeDegree = 8

// Set is an ordered set of Variables, unique under Compare.
// The zero value is an empty set; a nil *Set reads as empty.
type Set struct {
	tree *btree.BTreeG[Variable]
}

func lessVariable(a, b Variable) bool {
	return Compare(a, b) < 0
}

// NewSet returns a set holding copies of elems.
func NewSet(elems ...Variable) *Set {
	s := &Set{}
	for _, e := range elems {
		s.Insert(e)
	}
	return s
}

// CollectSet materializes seq into a new set.
func CollectSet(seq iter.Seq[Variable]) *Set {
	s := &Set{}
	for v := range seq {
		s.Insert(v)
	}
	return s
}

func (s *Set) init() {
	if s.tree == nil {
		s.tree = btree.NewG(btreeDegree, lessVariable)
	}
}

// Insert adds a copy of v. It reports false, leaving the set unchanged, when
// an element comparing equal to v is already present.
func (s *Set) Insert(v Variable) bool {
	s.init()
	if s.tree.Has(v) {
		return false
	}
	s.tree.ReplaceOrInsert(v.Clone())
	return true
}

// Contains reports whether an element comparing equal to v is present.
func (s *Set) Contains(v Variable) bool {
	if s == nil || s.tree == nil {
		return false
	}
	return s.tree.Has(v)
}

func (s *Set) Len() int {
	if s == nil || s.tree == nil {
		return 0
	}
	return s.tree.Len()
}

// All yields elements in ascending order. Yielded values are owned by the set
// and must not be mutated.
func (s *Set) All() iter.Seq[Variable] {
	return func(yield func(Variable) bool) {
		if s == nil || s.tree == nil {
			return
		}
		s.tree.Ascend(func(v Variable) bool {
			return yield(v)
		})
	}
}

func (s *Set) Clone() Variable {
	c := &Set{}
	for v := range s.All() {
		c.Insert(v)
	}
	return c
}

func (s *Set) String() string {
	parts := make([]string, 0, s.Len())
	for v := range s.All() {
		parts = append(parts, v.String())
	}
	return "set{" + strings.Join(parts, ", ") + "}"
}

type mapEntry struct {
	key   Variable
	value Variable
}

// Map is an ordered mapping keyed under Compare. The zero value is an empty
// map; a nil *Map reads as empty.
type Map struct {
	tree *btree.BTreeG[mapEntry]
}

func lessEntry(a, b mapEntry) bool {
	return Compare(a.key, b.key) < 0
}

// NewMap returns a map holding a single entry key -> value.
func NewMap(key, value Variable) *Map {
	m := &Map{}
	m.Insert(key, value)
	return m
}

func (m *Map) init() {
	if m.tree == nil {
		m.tree = btree.NewG(btreeDegree, lessEntry)
	}
}

// Insert stores copies of key and value, replacing the value of an existing equal key.
func (m *Map) Insert(key, value Variable) {
	m.init()
	m.tree.ReplaceOrInsert(mapEntry{key: key.Clone(), value: value.Clone()})
}

// Get returns the value stored under key.
func (m *Map) Get(key Variable) (Variable, bool) {
	if m == nil || m.tree == nil {
		return nil, false
	}
	e, ok := m.tree.Get(mapEntry{key: key})
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (m *Map) Len() int {
	if m == nil || m.tree == nil {
		return 0
	}
	return m.tree.Len()
}

// All yields entries in ascending key order. Yielded values are owned by the
// map and must not be mutated.
func (m *Map) All() iter.Seq2[Variable, Variable] {
	return func(yield func(Variable, Variable) bool) {
		if m == nil || m.tree == nil {
			return
		}
		m.tree.Ascend(func(e mapEntry) bool {
			return yield(e.key, e.value)
		})
	}
}

func (m *Map) Clone() Variable {
	c := &Map{}
	for k, v := range m.All() {
		c.Insert(k, v)
	}
	return c
}

func (m *Map) String() string {
	parts := make([]string, 0, m.Len())
	for k, v := range m.All() {
		parts = append(parts, k.String()+": "+v.String())
	}
	return "map{" + strings.Join(parts, ", ") + "}"
}
