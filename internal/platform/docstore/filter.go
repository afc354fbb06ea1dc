package docstore

import "slices"

type Op int

const (
	OpEq Op = iota
	OpIn
	// OpMissing matches documents where the field is absent or null.
	OpMissing
)

// Cond is one predicate over a top-level string field.
type Cond struct {
	Field  string
	Op     Op
	Values []string
}

func Eq(field, value string) Cond { return Cond{Field: field, Op: OpEq, Values: []string{value}} }

func In(field string, values ...string) Cond {
	return Cond{Field: field, Op: OpIn, Values: values}
}

func Missing(field string) Cond { return Cond{Field: field, Op: OpMissing} }

// Filter is a conjunction of conditions. The empty filter matches everything.
type Filter []Cond

// Match evaluates f against d in memory.
func (f Filter) Match(d Document) bool {
	for _, c := range f {
		if !c.match(d) {
			return false
		}
	}
	return true
}

func (c Cond) match(d Document) bool {
	if c.Field == IDField {
		return c.matchValue(d.ID, d.ID != "")
	}
	v, ok := d.Fields[c.Field]
	if ok && v == nil {
		ok = false
	}
	s, isString := v.(string)
	if ok && !isString {
		// Only string fields are filterable.
		return false
	}
	return c.matchValue(s, ok)
}

func (c Cond) matchValue(s string, present bool) bool {
	switch c.Op {
	case OpEq:
		return present && len(c.Values) > 0 && s == c.Values[0]
	case OpIn:
		return present && slices.Contains(c.Values, s)
	case OpMissing:
		return !present
	default:
		return false
	}
}
