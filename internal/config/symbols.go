package config

import (
	"fmt"
	"strings"
)

// Literal types accepted under `symbols[].type`.
const (
	TypeIP   = "ip"
	TypeInt  = "int"
	TypeRule = "rule"
	TypeMap  = "map"
	TypeSet  = "set"
)

// SymbolConfig declares one identifier in the symbol table at startup.
//
//	symbols:
//	  - id: blocked
//	    type: set
//	    elements:
//	      - {type: ip, value: 10.0.0.0/8}
//	  - id: web
//	    type: rule
//	    field: dport
//	    value: 10.0.0.0/8
type SymbolConfig struct {
	ID      string      `mapstructure:"id"`
	Literal ValueConfig `mapstructure:",squash"`
}

// ValueConfig is a literal. An empty Value on a scalar declares it
// uninitialized.
type ValueConfig struct {
	Type     string        `mapstructure:"type"`
	Value    string        `mapstructure:"value"`
	Field    string        `mapstructure:"field"`    // rule only
	Elements []ValueConfig `mapstructure:"elements"` // set only
	Entries  []EntryConfig `mapstructure:"entries"`  // map only
}

// EntryConfig is one map entry.
type EntryConfig struct {
	Key   ValueConfig `mapstructure:"key"`
	Value ValueConfig `mapstructure:"value"`
}

// validate checks the literal's shape. Value syntax is checked when the
// literal is converted to a variable.
func (v *ValueConfig) validate() error {
	v.Type = strings.ToLower(v.Type)
	switch v.Type {
	case TypeIP, TypeInt:
		if v.Field != "" || len(v.Elements) > 0 || len(v.Entries) > 0 {
			return fmt.Errorf("%s literal takes only a value", v.Type)
		}
	case TypeRule:
		if len(v.Elements) > 0 || len(v.Entries) > 0 {
			return fmt.Errorf("rule literal takes only field and value")
		}
		if v.Field == "" && v.Value != "" {
			return fmt.Errorf("rule literal with a value needs a field")
		}
	case TypeSet:
		if v.Value != "" || v.Field != "" || len(v.Entries) > 0 {
			return fmt.Errorf("set literal takes only elements")
		}
		if len(v.Elements) == 0 {
			return fmt.Errorf("set literal needs at least one element")
		}
		for i := range v.Elements {
			if err := v.Elements[i].validate(); err != nil {
				return fmt.Errorf("elements[%d]: %w", i, err)
			}
		}
	case TypeMap:
		if v.Value != "" || v.Field != "" || len(v.Elements) > 0 {
			return fmt.Errorf("map literal takes only entries")
		}
		if len(v.Entries) == 0 {
			return fmt.Errorf("map literal needs at least one entry")
		}
		for i := range v.Entries {
			if err := v.Entries[i].Key.validate(); err != nil {
				return fmt.Errorf("entries[%d].key: %w", i, err)
			}
			if err := v.Entries[i].Value.validate(); err != nil {
				return fmt.Errorf("entries[%d].value: %w", i, err)
			}
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown type %q (must be ip/int/rule/map/set)", v.Type)
	}
	return nil
}
