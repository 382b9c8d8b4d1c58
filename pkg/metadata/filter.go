package metadata

// Op is a filter operator. The names match the JSON filter syntax.
type Op string

const (
	OpEq  Op = "$eq"
	OpNe  Op = "$ne"
	OpGt  Op = "$gt"
	OpGte Op = "$gte"
	OpLt  Op = "$lt"
	OpLte Op = "$lte"
	OpIn  Op = "$in"
	OpNin Op = "$nin"
	OpAnd Op = "$and"
	OpOr  Op = "$or"
)

// Filter is one node of a predicate tree.
//
// Comparator nodes ($eq..$lte) use Key and Value, membership nodes ($in, $nin) use Key and
// Values, and combinator nodes ($and, $or) use Children. A nil *Filter matches everything.
type Filter struct {
	Op       Op
	Key      string
	Value    Value
	Values   []Value
	Children []*Filter
}

// Eq matches items whose key equals v (same kind and payload).
func Eq(key string, v Value) *Filter { return &Filter{Op: OpEq, Key: key, Value: v} }

// Ne matches items that have key with a value different from v.
func Ne(key string, v Value) *Filter { return &Filter{Op: OpNe, Key: key, Value: v} }

// Gt matches numeric values strictly greater than n.
func Gt(key string, n float64) *Filter { return &Filter{Op: OpGt, Key: key, Value: Number(n)} }

// Gte matches numeric values greater than or equal to n.
func Gte(key string, n float64) *Filter { return &Filter{Op: OpGte, Key: key, Value: Number(n)} }

// Lt matches numeric values strictly less than n.
func Lt(key string, n float64) *Filter { return &Filter{Op: OpLt, Key: key, Value: Number(n)} }

// Lte matches numeric values less than or equal to n.
func Lte(key string, n float64) *Filter { return &Filter{Op: OpLte, Key: key, Value: Number(n)} }

// In matches non-boolean values contained in vs.
func In(key string, vs ...Value) *Filter { return &Filter{Op: OpIn, Key: key, Values: vs} }

// Nin matches non-boolean values not contained in vs.
func Nin(key string, vs ...Value) *Filter { return &Filter{Op: OpNin, Key: key, Values: vs} }

// And matches when every child matches. An empty And matches everything.
func And(children ...*Filter) *Filter { return &Filter{Op: OpAnd, Children: children} }

// Or matches when at least one child matches. An empty Or matches nothing.
func Or(children ...*Filter) *Filter { return &Filter{Op: OpOr, Children: children} }

// Matches reports whether md satisfies f.
func (f *Filter) Matches(md Metadata) bool {
	return Evaluate(md, f)
}

// Evaluate reports whether md satisfies the predicate tree f.
// It has no side effects and never fails: missing keys and type mismatches are non-matches.
func Evaluate(md Metadata, f *Filter) bool {
	if f == nil {
		return true
	}
	switch f.Op {
	case OpAnd:
		for _, child := range f.Children {
			if !Evaluate(md, child) {
				return false
			}
		}
		return true
	case OpOr:
		for _, child := range f.Children {
			if Evaluate(md, child) {
				return true
			}
		}
		return false
	}

	v, ok := md[f.Key]
	if !ok {
		return false
	}
	switch f.Op {
	case OpEq:
		return v.Equal(f.Value)
	case OpNe:
		return !v.Equal(f.Value)
	case OpGt, OpGte, OpLt, OpLte:
		return compareNumbers(f.Op, v, f.Value)
	case OpIn:
		return v.Kind() != KindBool && contains(f.Values, v)
	case OpNin:
		return v.Kind() != KindBool && !contains(f.Values, v)
	default:
		return false
	}
}

func compareNumbers(op Op, v, bound Value) bool {
	a, ok := v.AsNumber()
	if !ok {
		return false
	}
	b, ok := bound.AsNumber()
	if !ok {
		return false
	}
	switch op {
	case OpGt:
		return a > b
	case OpGte:
		return a >= b
	case OpLt:
		return a < b
	case OpLte:
		return a <= b
	default:
		return false
	}
}

func contains(set []Value, v Value) bool {
	for _, s := range set {
		if s.Equal(v) {
			return true
		}
	}
	return false
}
