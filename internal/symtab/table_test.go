package symtab

import (
	"errors"
	"net/netip"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/nfd/internal/core"
)

func ip(s string) core.IP {
	return core.IP{Net: core.MustParsePrefix(s)}
}

// snapshot renders every binding so tests can assert the table did not change.
func snapshot(t *Table) []string {
	var out []string
	for id, v := range t.All() {
		out = append(out, id+"="+v.Kind().String()+":"+v.String())
	}
	return out
}

// catchUsage runs fn and returns the *UsageError it panics with.
func catchUsage(t *testing.T, fn func()) (ue *UsageError) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a usage panic")
		var ok bool
		ue, ok = r.(*UsageError)
		require.True(t, ok, "expected *UsageError, got %T", r)
	}()
	fn()
	return nil
}

func TestDeclare(t *testing.T) {
	tbl := New()
	tbl.Declare("net", core.IP{})
	tbl.Declare("count", core.NewInt(3))

	v, ok := tbl.Lookup("net")
	require.True(t, ok)
	assert.Equal(t, core.KindIP, v.Kind())
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"count", "net"}, tbl.Names())

	_, ok = tbl.Lookup("missing")
	assert.False(t, ok)
}

// Declare is kept as an unconditional re-bind: it may change an identifier's
// kind, unlike Update.
func TestDeclareRebindsAcrossKinds(t *testing.T) {
	tbl := New()
	tbl.Declare("x", core.NewInt(1))
	tbl.Declare("x", core.NewSet(core.NewInt(1)))

	v, ok := tbl.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, core.KindSet, v.Kind())
}

func TestDeclareCopiesValue(t *testing.T) {
	tbl := New()
	s := core.NewSet(core.NewInt(1))
	tbl.Declare("s", s)
	s.Insert(core.NewInt(2))

	v, _ := tbl.Lookup("s")
	assert.Equal(t, 1, v.(*core.Set).Len())
}

func TestUpdateTypeLock(t *testing.T) {
	values := []core.Variable{
		core.IP{},
		ip("10.0.0.0/8"),
		core.Int{},
		core.NewInt(7),
		core.Rule{},
		core.NewRule(core.FieldDport, core.MustParsePrefix("10.0.0.0/8")),
		core.NewMap(core.NewInt(1), core.NewInt(2)),
		core.NewSet(ip("10.0.0.1")),
		core.Packet{},
	}

	for _, stored := range values {
		for _, next := range values {
			tbl := New()
			tbl.Declare("id", stored)
			tbl.Declare("other", core.NewInt(0))
			before := snapshot(tbl)

			ok := tbl.Update("id", next)

			if core.SameKind(stored, next) {
				assert.True(t, ok, "update %s with %s", stored.Kind(), next.Kind())
				got, _ := tbl.Lookup("id")
				assert.Equal(t, 0, core.Compare(next, got))
			} else {
				assert.False(t, ok, "update %s with %s", stored.Kind(), next.Kind())
				assert.Equal(t, before, snapshot(tbl))
			}
		}
	}
}

func TestUpdateUnknownIdentifier(t *testing.T) {
	tbl := New()
	assert.False(t, tbl.Update("ghost", core.NewInt(1)))
	assert.Equal(t, 0, tbl.Len())
}

func TestUpdateInitializesDeclaredScalar(t *testing.T) {
	tbl := New()
	tbl.Declare("net", core.IP{})
	require.True(t, tbl.Update("net", ip("192.168.0.0/16")))

	v, _ := tbl.Lookup("net")
	assert.Equal(t, "192.168.0.0/16", v.String())
}

func TestBuildAndInsertIntoMap(t *testing.T) {
	tbl := New()
	tbl.Declare("m", core.NewInt(0))
	tbl.BuildMap("m", ip("10.0.0.1"), core.NewInt(1))

	tbl.InsertIntoMap("m", ip("10.0.0.2"), core.NewInt(2))
	tbl.InsertIntoMap("m", ip("10.0.0.1"), core.NewInt(10))
	tbl.InsertIntoMap("m", ip("10.0.0.1"), core.NewInt(20))

	v, _ := tbl.Lookup("m")
	m := v.(*core.Map)
	assert.Equal(t, 2, m.Len())
	got, ok := m.Get(ip("10.0.0.1"))
	require.True(t, ok)
	assert.Equal(t, core.NewInt(20), got)
	assert.Equal(t, "map{10.0.0.1/32: 20, 10.0.0.2/32: 2}", m.String())
}

func TestBuildAndInsertIntoSet(t *testing.T) {
	tbl := New()
	tbl.BuildSet("s", ip("10.0.0.3"))
	for _, a := range []string{"10.0.0.1", "10.0.0.3", "10.0.0.2", "10.0.0.1"} {
		tbl.InsertIntoSet("s", ip(a))
	}
	tbl.InsertIntoSet("s", core.NewInt(1))

	v, _ := tbl.Lookup("s")
	s := v.(*core.Set)
	require.Equal(t, 4, s.Len())

	elems := slices.Collect(s.All())
	for i := 1; i < len(elems); i++ {
		assert.Equal(t, -1, core.Compare(elems[i-1], elems[i]), "elements must be unique and ascending")
	}
}

func TestCollectionMisuse(t *testing.T) {
	tests := []struct {
		name    string
		op      func(tbl *Table)
		wantErr error
	}{
		{"InsertIntoMapOnSet", func(tbl *Table) { tbl.InsertIntoMap("s", core.NewInt(1), core.NewInt(1)) }, core.ErrKindMismatch},
		{"InsertIntoSetOnMap", func(tbl *Table) { tbl.InsertIntoSet("m", core.NewInt(1)) }, core.ErrKindMismatch},
		{"InsertIntoSetOnScalar", func(tbl *Table) { tbl.InsertIntoSet("n", core.NewInt(1)) }, core.ErrKindMismatch},
		{"InsertIntoMapUnbound", func(tbl *Table) { tbl.InsertIntoMap("ghost", core.NewInt(1), core.NewInt(1)) }, core.ErrUnbound},
		{"InsertIntoSetUnbound", func(tbl *Table) { tbl.InsertIntoSet("ghost", core.NewInt(1)) }, core.ErrUnbound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := New()
			tbl.BuildSet("s", core.NewInt(0))
			tbl.BuildMap("m", core.NewInt(0), core.NewInt(0))
			tbl.Declare("n", core.NewInt(0))
			before := snapshot(tbl)

			ue := catchUsage(t, func() { tt.op(tbl) })
			assert.True(t, errors.Is(ue, tt.wantErr), "got %v", ue)
			assert.Equal(t, before, snapshot(tbl))
		})
	}
}

func TestUnion(t *testing.T) {
	a, b, c := ip("10.0.0.1"), ip("10.0.0.2"), ip("10.0.0.3")
	s1 := core.NewSet(a, b)
	s2 := core.NewSet(b, c)

	got := slices.Collect(Union(s1, s2))
	require.Len(t, got, 3)
	assert.Equal(t, 0, core.Compare(a, got[0]))
	assert.Equal(t, 0, core.Compare(b, got[1]))
	assert.Equal(t, 0, core.Compare(c, got[2]))
}

func TestUnionCollapsesByValueNotKind(t *testing.T) {
	// Elements of the same kind but different values are all kept.
	s1 := core.NewSet(core.NewInt(1), core.NewInt(5))
	s2 := core.NewSet(core.NewInt(2), ip("10.0.0.0/8"), core.NewInt(5))

	var got []string
	for v := range Union(s1, s2) {
		got = append(got, v.String())
	}
	assert.Equal(t, []string{"10.0.0.0/8", "1", "2", "5"}, got)
}

func TestUnionIsRestartable(t *testing.T) {
	tbl := New()
	tbl.BuildSet("a", core.NewInt(1))
	tbl.BuildSet("b", core.NewInt(2))

	seq := tbl.UnionOf("a", "b")
	assert.Len(t, slices.Collect(seq), 2)
	assert.Len(t, slices.Collect(seq), 2)

	// A fresh traversal reflects the current contents.
	tbl.InsertIntoSet("b", core.NewInt(3))
	assert.Len(t, slices.Collect(seq), 3)

	// Materialized results are independent of the operands.
	kept := core.CollectSet(seq)
	tbl.InsertIntoSet("a", core.NewInt(4))
	assert.Equal(t, 3, kept.Len())
}

func TestUnionEarlyStop(t *testing.T) {
	s1 := core.NewSet(core.NewInt(1), core.NewInt(3))
	s2 := core.NewSet(core.NewInt(2), core.NewInt(4))

	var first []core.Variable
	for v := range Union(s1, s2) {
		first = append(first, v)
		if len(first) == 2 {
			break
		}
	}
	assert.Equal(t, []core.Variable{core.NewInt(1), core.NewInt(2)}, first)
}

func TestUnionMisuse(t *testing.T) {
	ue := catchUsage(t, func() { Union(core.NewSet(), core.NewInt(1)) })
	assert.ErrorIs(t, ue, core.ErrKindMismatch)
	assert.Equal(t, core.KindSet, ue.Want)

	tbl := New()
	tbl.BuildSet("s", core.NewInt(1))
	ue = catchUsage(t, func() { tbl.UnionOf("s", "ghost") })
	assert.ErrorIs(t, ue, core.ErrUnbound)
	assert.Equal(t, "ghost", ue.ID)
}

func TestNilCollectionsAreMisuse(t *testing.T) {
	var nilSet *core.Set

	ue := catchUsage(t, func() { Union(nilSet, core.NewSet(core.NewInt(1))) })
	assert.ErrorIs(t, ue, core.ErrKindMismatch)
	assert.Equal(t, "nil", ue.Got)

	ue = catchUsage(t, func() { Union(core.NewSet(core.NewInt(1)), nilSet) })
	assert.Equal(t, "nil", ue.Got)

	tbl := New()
	tbl.Declare("s", nilSet)
	ue = catchUsage(t, func() { tbl.InsertIntoSet("s", core.NewInt(1)) })
	assert.ErrorIs(t, ue, core.ErrKindMismatch)
	assert.Equal(t, "s", ue.ID)

	var nilMap *core.Map
	tbl.Declare("m", nilMap)
	ue = catchUsage(t, func() { tbl.InsertIntoMap("m", core.NewInt(1), core.NewInt(2)) })
	assert.Equal(t, "nil", ue.Got)
}

func TestBindFrame(t *testing.T) {
	var pm core.PacketMap
	pm.Set(core.FieldSip, core.IPInfo{Addr: netip.MustParseAddr("10.0.0.1")})
	tbl := NewWithFrame(pm)

	require.Equal(t, 1, tbl.Len())
	v, ok := tbl.Lookup(DefaultFrameID)
	require.True(t, ok)
	assert.Equal(t, core.KindPacket, v.Kind())

	// A new frame replaces the old one rather than merging.
	var next core.PacketMap
	next.Set(core.FieldDport, core.SomePort(80))
	tbl.BindFrame(next)

	frame, ok := tbl.Frame()
	require.True(t, ok)
	assert.Equal(t, 1, frame.Len())
	_, ok = frame.Get(core.FieldSip)
	assert.False(t, ok)
}

func TestWithFrameID(t *testing.T) {
	tbl := New(WithFrameID("frame"))
	tbl.BindFrame(core.PacketMap{})
	_, ok := tbl.Lookup("frame")
	assert.True(t, ok)
	assert.Equal(t, "frame", tbl.FrameID())

	_, ok = New().Frame()
	assert.False(t, ok)
}

func TestLockedConcurrentInserts(t *testing.T) {
	l := NewLocked(New())
	l.BuildSet("seen", core.NewInt(-1))
	l.BuildMap("count", core.NewInt(0), core.NewInt(0))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.InsertIntoSet("seen", core.NewInt(int32(i)))
				l.InsertIntoMap("count", core.NewInt(int32(w)), core.NewInt(int32(i)))
				l.Update("seen", core.NewSet(core.NewInt(-1)))
			}
		}(w)
	}
	wg.Wait()

	v, ok := l.Lookup("count")
	require.True(t, ok)
	assert.Equal(t, 8, v.(*core.Map).Len())
	assert.Equal(t, 2, l.Len())
	assert.NotEmpty(t, slices.Collect(l.UnionOf("seen", "seen")))
}
