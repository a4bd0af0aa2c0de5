package event

import (
	"strings"
)

// Render substitutes %{field} references in a template with values from the
// record. Nested fields are addressed as %{[parent][child]}. References to
// fields the record does not contain render as the empty string; all other
// text passes through unchanged.
//
// Rendering is pure with respect to the record.
func Render(template string, rec Record) string {
	// Fast path: no references at all.
	if !strings.Contains(template, "%{") {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))

	rest := template
	for {
		start := strings.Index(rest, "%{")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:start])

		end := strings.Index(rest[start:], "}")
		if end < 0 {
			// Unterminated reference, emit literally.
			b.WriteString(rest[start:])
			break
		}

		ref := rest[start+2 : start+end]
		b.WriteString(String(lookup(ref, rec)))
		rest = rest[start+end+1:]
	}

	return b.String()
}

// lookup resolves a field reference against the record. A plain reference
// names a top-level field; a bracketed reference like [a][b] walks nested
// maps. Missing fields resolve to nil.
func lookup(ref string, rec Record) any {
	if !strings.HasPrefix(ref, "[") {
		return rec[ref]
	}

	var cur any = map[string]any(rec)
	for _, seg := range splitPath(ref) {
		m, ok := cur.(map[string]any)
		if !ok {
			if r, isRec := cur.(Record); isRec {
				m = map[string]any(r)
			} else {
				return nil
			}
		}
		cur = m[seg]
	}
	return cur
}

// splitPath turns "[a][b][c]" into ["a", "b", "c"]. Malformed segments are
// kept as-is so they resolve to nothing rather than panicking.
func splitPath(ref string) []string {
	var segs []string
	for len(ref) > 0 {
		if ref[0] != '[' {
			segs = append(segs, ref)
			break
		}
		close := strings.IndexByte(ref, ']')
		if close < 0 {
			segs = append(segs, ref[1:])
			break
		}
		segs = append(segs, ref[1:close])
		ref = ref[close+1:]
	}
	return segs
}
