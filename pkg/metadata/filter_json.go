package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidFilter is returned when a JSON filter document cannot be parsed.
var ErrInvalidFilter = errors.New("invalid filter")

// ParseFilter parses the JSON filter syntax:
//
//	{"category": "x"}                               shorthand for $eq
//	{"price": {"$gte": 10, "$lt": 20}}              several operators are ANDed
//	{"tag": {"$in": ["a", "b"]}}
//	{"$or": [{"category": "x"}, {"featured": true}]}
//
// Sibling keys of one object are combined with $and. Empty objects, empty operator objects,
// empty $and/$or lists and null are rejected with ErrInvalidFilter rather than read as "match
// everything"; callers that want no filter pass a nil *Filter.
func ParseFilter(data []byte) (*Filter, error) {
	var f Filter
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// UnmarshalJSON implements json.Unmarshaler using the syntax documented on ParseFilter.
func (f *Filter) UnmarshalJSON(data []byte) error {
	parsed, err := parseObject(data)
	if err != nil {
		return err
	}
	*f = *parsed
	return nil
}

func parseObject(data []byte) (*Filter, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: expected object: %v", ErrInvalidFilter, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: expected object, got null", ErrInvalidFilter)
	}
	if len(obj) == 0 {
		return nil, fmt.Errorf("%w: empty filter object", ErrInvalidFilter)
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var nodes []*Filter
	for _, k := range keys {
		raw := obj[k]
		switch Op(k) {
		case OpAnd, OpOr:
			children, err := parseList(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			nodes = append(nodes, &Filter{Op: Op(k), Children: children})
		default:
			if strings.HasPrefix(k, "$") {
				return nil, fmt.Errorf("%w: unknown top-level operator %q", ErrInvalidFilter, k)
			}
			fieldNodes, err := parseField(k, raw)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, fieldNodes...)
		}
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return And(nodes...), nil
}

func parseList(raw json.RawMessage) ([]*Filter, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: expected array", ErrInvalidFilter)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: expected a non-empty array", ErrInvalidFilter)
	}
	children := make([]*Filter, 0, len(items))
	for _, item := range items {
		child, err := parseObject(item)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func parseField(key string, raw json.RawMessage) ([]*Filter, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		var v Value
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, key, err)
		}
		return []*Filter{Eq(key, v)}, nil
	}

	var ops map[string]json.RawMessage
	if err := json.Unmarshal(raw, &ops); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, key, err)
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("%w: %s: empty operator object", ErrInvalidFilter, key)
	}
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)

	nodes := make([]*Filter, 0, len(names))
	for _, name := range names {
		operand := ops[name]
		switch op := Op(name); op {
		case OpEq, OpNe:
			var v Value
			if err := json.Unmarshal(operand, &v); err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidFilter, key, name, err)
			}
			nodes = append(nodes, &Filter{Op: op, Key: key, Value: v})
		case OpGt, OpGte, OpLt, OpLte:
			var n float64
			if err := json.Unmarshal(operand, &n); err != nil {
				return nil, fmt.Errorf("%w: %s.%s expects a number", ErrInvalidFilter, key, name)
			}
			nodes = append(nodes, &Filter{Op: op, Key: key, Value: Number(n)})
		case OpIn, OpNin:
			var vs []Value
			if err := json.Unmarshal(operand, &vs); err != nil {
				return nil, fmt.Errorf("%w: %s.%s expects an array of scalars", ErrInvalidFilter, key, name)
			}
			nodes = append(nodes, &Filter{Op: op, Key: key, Values: vs})
		default:
			return nil, fmt.Errorf("%w: unknown operator %q for %s", ErrInvalidFilter, name, key)
		}
	}
	return nodes, nil
}

// MarshalJSON implements json.Marshaler. The output parses back into an equivalent tree.
func (f *Filter) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	switch f.Op {
	case OpAnd, OpOr:
		children := f.Children
		if children == nil {
			children = []*Filter{}
		}
		return json.Marshal(map[string][]*Filter{string(f.Op): children})
	case OpIn, OpNin:
		values := f.Values
		if values == nil {
			values = []Value{}
		}
		return json.Marshal(map[string]map[string][]Value{f.Key: {string(f.Op): values}})
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		return json.Marshal(map[string]map[string]Value{f.Key: {string(f.Op): f.Value}})
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, f.Op)
	}
}
