package types

import (
	"sort"
)

// Record is the structured form of a decoded message payload. Values are the
// natural Go representation of the source format (int64 for integral JSON
// numbers and float64 for the rest, int32/int64/float32/float64 for Avro
// numerics, nested maps for nested groups).
type Record map[string]interface{}

// TopLevelGroup is the FieldSpec group that selects fields from the root of a
// record rather than from a nested group.
const TopLevelGroup = "top-level"

// TopLevelAlias is accepted as a shorter spelling of TopLevelGroup.
const TopLevelAlias = "top"

// FieldSpec describes a field whitelist for projection. Each key names a group:
// TopLevelGroup selects root fields, any other key selects fields nested one
// level below the same-named group in the source record.
type FieldSpec map[string][]string

// IsTopLevel reports whether group refers to the root of a record.
func IsTopLevel(group string) bool {
	return group == TopLevelGroup || group == TopLevelAlias
}

// Groups returns the spec's group names with the top-level group first and the
// remaining groups in lexical order, giving projection a deterministic order.
func (s FieldSpec) Groups() []string {
	groups := make([]string, 0, len(s))
	var nested []string
	for g := range s {
		if IsTopLevel(g) {
			groups = append(groups, g)
			continue
		}
		nested = append(nested, g)
	}
	sort.Strings(groups)
	sort.Strings(nested)
	return append(groups, nested...)
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Group returns the nested map stored under key, accepting both Record and the
// plain map type produced by decoders.
func (r Record) Group(key string) (Record, bool) {
	v, ok := r[key]
	if !ok {
		return nil, false
	}
	switch g := v.(type) {
	case Record:
		return g, true
	case map[string]interface{}:
		return g, true
	default:
		return nil, false
	}
}
