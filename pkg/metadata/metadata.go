package metadata

import (
	"fmt"
	"sort"
)

// Metadata maps keys to scalar values.
type Metadata map[string]Value

// FromMap converts a map of Go scalars into Metadata.
func FromMap(m map[string]any) (Metadata, error) {
	if m == nil {
		return nil, nil
	}
	md := make(Metadata, len(m))
	for k, raw := range m {
		v, err := FromInterface(raw)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		md[k] = v
	}
	return md, nil
}

// Clone returns an independent copy of md. Values are immutable, so a shallow map copy suffices.
func (md Metadata) Clone() Metadata {
	if md == nil {
		return nil
	}
	out := make(Metadata, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

// Pick returns the subset of md whose keys appear in keys.
func (md Metadata) Pick(keys []string) Metadata {
	out := make(Metadata, len(keys))
	for _, k := range keys {
		if v, ok := md[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Keys returns the keys of md in sorted order.
func (md Metadata) Keys() []string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map converts md into a map of Go scalars.
func (md Metadata) Map() map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v.Interface()
	}
	return out
}
