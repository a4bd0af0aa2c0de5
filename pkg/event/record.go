// Package event defines the record type delivered by the sink and the
// template syntax used to reference record fields.
package event

import (
	"fmt"
	"sort"
)

// Record is one unit of structured data to be delivered. Values may be
// scalars or nested maps. The sink never mutates a record.
type Record map[string]any

// Keys returns the record's field names in sorted order. Records are plain
// maps, so sorted order is the only stable iteration order available.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String converts a field value to its string form for templating and
// form-encoded bodies. Nil renders as the empty string.
func String(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
