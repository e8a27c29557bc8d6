package domain

// MetadataKind tags which alternative of MetadataValue is populated.
type MetadataKind int

const (
	MetadataNull MetadataKind = iota
	MetadataString
	MetadataNumber
	MetadataBool
)

// MetadataValue is the explicit tagged value variant for the metadata
// layer: {string | number | bool | null}. Callers build predicates against
// typed values rather than passing heterogeneous maps around.
type MetadataValue struct {
	Kind MetadataKind
	Str  string
	Num  float64
	Bool bool
}

func StringValue(s string) MetadataValue { return MetadataValue{Kind: MetadataString, Str: s} }
func NumberValue(n float64) MetadataValue { return MetadataValue{Kind: MetadataNumber, Num: n} }
func BoolValue(b bool) MetadataValue      { return MetadataValue{Kind: MetadataBool, Bool: b} }
func NullValue() MetadataValue            { return MetadataValue{Kind: MetadataNull} }

// Equal reports whether two metadata values are of the same kind and hold
// the same value.
func (v MetadataValue) Equal(other MetadataValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case MetadataString:
		return v.Str == other.Str
	case MetadataNumber:
		return v.Num == other.Num
	case MetadataBool:
		return v.Bool == other.Bool
	default:
		return true
	}
}

// Metadata is the per-row scalar attribute bag stored alongside a vector.
type Metadata map[string]MetadataValue

// Predicate is the compiled, typed filter the Vector Store evaluates
// against a row's Metadata during scan/query. Concrete implementations are
// Equal, In, Range, And, and Or.
type Predicate interface {
	Evaluate(Metadata) bool
}

// Equal matches rows whose Field holds exactly Value.
type Equal struct {
	Field string
	Value MetadataValue
}

func (p Equal) Evaluate(m Metadata) bool {
	v, ok := m[p.Field]
	if !ok {
		return false
	}
	return v.Equal(p.Value)
}

// In matches rows whose Field holds any of Values (set membership).
type In struct {
	Field  string
	Values []MetadataValue
}

func (p In) Evaluate(m Metadata) bool {
	v, ok := m[p.Field]
	if !ok {
		return false
	}
	for _, want := range p.Values {
		if v.Equal(want) {
			return true
		}
	}
	return false
}

// Range matches rows whose numeric Field falls within [Min, Max], with
// exclusivity controlled per bound.
type Range struct {
	Field        string
	Min, Max     *float64
	MinExclusive bool
	MaxExclusive bool
}

func (p Range) Evaluate(m Metadata) bool {
	v, ok := m[p.Field]
	if !ok || v.Kind != MetadataNumber {
		return false
	}
	if p.Min != nil {
		if p.MinExclusive && v.Num <= *p.Min {
			return false
		}
		if !p.MinExclusive && v.Num < *p.Min {
			return false
		}
	}
	if p.Max != nil {
		if p.MaxExclusive && v.Num >= *p.Max {
			return false
		}
		if !p.MaxExclusive && v.Num > *p.Max {
			return false
		}
	}
	return true
}

// And matches rows satisfying every nested predicate. An empty And matches
// everything, so an empty top-level predicate behaves as no predicate.
type And struct {
	Predicates []Predicate
}

func (p And) Evaluate(m Metadata) bool {
	for _, sub := range p.Predicates {
		if !sub.Evaluate(m) {
			return false
		}
	}
	return true
}

// Or matches rows satisfying at least one nested predicate.
type Or struct {
	Predicates []Predicate
}

func (p Or) Evaluate(m Metadata) bool {
	for _, sub := range p.Predicates {
		if sub.Evaluate(m) {
			return true
		}
	}
	return false
}
