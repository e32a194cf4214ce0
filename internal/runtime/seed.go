package runtime

import (
	"fmt"
	"strconv"

	"firestige.xyz/nfd/internal/config"
	"firestige.xyz/nfd/internal/core"
	"firestige.xyz/nfd/internal/symtab"
)

// Seed declares every configured symbol in t, in order. Sets and maps are
// built element by element so each element is checked as it is added.
func Seed(t *symtab.Table, symbols []config.SymbolConfig) error {
	for _, sym := range symbols {
		if err := seedOne(t, sym); err != nil {
			return fmt.Errorf("symbol %q: %w", sym.ID, err)
		}
	}
	return nil
}

func seedOne(t *symtab.Table, sym config.SymbolConfig) error {
	lit := sym.Literal
	switch lit.Type {
	case config.TypeSet:
		if len(lit.Elements) == 0 {
			return fmt.Errorf("%w: empty set", core.ErrInvalidLiteral)
		}
		for i, el := range lit.Elements {
			v, err := Literal(el)
			if err != nil {
				return fmt.Errorf("elements[%d]: %w", i, err)
			}
			if i == 0 {
				t.BuildSet(sym.ID, v)
				continue
			}
			t.InsertIntoSet(sym.ID, v)
		}
		return nil

	case config.TypeMap:
		if len(lit.Entries) == 0 {
			return fmt.Errorf("%w: empty map", core.ErrInvalidLiteral)
		}
		for i, e := range lit.Entries {
			k, v, err := entry(e)
			if err != nil {
				return fmt.Errorf("entries[%d]: %w", i, err)
			}
			if i == 0 {
				t.BuildMap(sym.ID, k, v)
				continue
			}
			t.InsertIntoMap(sym.ID, k, v)
		}
		return nil
	}

	v, err := Literal(lit)
	if err != nil {
		return err
	}
	t.Declare(sym.ID, v)
	return nil
}

// Literal converts a configured literal to a variable. An empty scalar
// value yields the uninitialized variable of that kind.
func Literal(lit config.ValueConfig) (core.Variable, error) {
	switch lit.Type {
	case config.TypeIP:
		if lit.Value == "" {
			return core.IP{}, nil
		}
		return core.ParseIP(lit.Value)

	case config.TypeInt:
		if lit.Value == "" {
			return core.Int{}, nil
		}
		n, err := strconv.ParseInt(lit.Value, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: int %q", core.ErrInvalidLiteral, lit.Value)
		}
		return core.NewInt(int32(n)), nil

	case config.TypeRule:
		if lit.Field == "" && lit.Value == "" {
			return core.Rule{}, nil
		}
		f, err := core.ParsePacketField(lit.Field)
		if err != nil {
			return nil, err
		}
		if lit.Value == "" {
			return nil, fmt.Errorf("%w: rule on %s needs a network", core.ErrInvalidLiteral, f)
		}
		p, err := core.ParsePrefix(lit.Value)
		if err != nil {
			return nil, err
		}
		return core.NewRule(f, p), nil

	case config.TypeSet:
		s := core.NewSet()
		for i, el := range lit.Elements {
			v, err := Literal(el)
			if err != nil {
				return nil, fmt.Errorf("elements[%d]: %w", i, err)
			}
			s.Insert(v)
		}
		return s, nil

	case config.TypeMap:
		if len(lit.Entries) == 0 {
			return nil, fmt.Errorf("%w: empty map", core.ErrInvalidLiteral)
		}
		var m *core.Map
		for i, e := range lit.Entries {
			k, v, err := entry(e)
			if err != nil {
				return nil, fmt.Errorf("entries[%d]: %w", i, err)
			}
			if m == nil {
				m = core.NewMap(k, v)
				continue
			}
			m.Insert(k, v)
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", core.ErrInvalidLiteral, lit.Type)
}

func entry(e config.EntryConfig) (core.Variable, core.Variable, error) {
	k, err := Literal(e.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("key: %w", err)
	}
	v, err := Literal(e.Value)
	if err != nil {
		return nil, nil, fmt.Errorf("value: %w", err)
	}
	return k, v, nil
}
