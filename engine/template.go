package engine

import (
	"strings"

	"github.com/orchehq/orchepy/model"
)

// InterpolateValue substitutes ${event.data.<field>} placeholders throughout
// a JSON value. Strings are scanned for placeholders; objects and arrays are
// interpolated recursively; other scalars pass through unchanged.
func InterpolateValue(v any, event *model.Event) any {
	switch t := v.(type) {
	case string:
		return InterpolateString(t, event)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = InterpolateValue(val, event)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = InterpolateValue(val, event)
		}
		return out
	default:
		return v
	}
}

// InterpolateString replaces each ${...} placeholder with the rendering of
// the referenced event data field. Unknown references and non-scalar values
// render empty; literal text is preserved. The scan moves strictly forward,
// so substituted values are never re-expanded.
func InterpolateString(template string, event *model.Event) string {
	var b strings.Builder
	rest := template
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:start])

		ref := rest[start+2 : start+end]
		if field, ok := strings.CutPrefix(ref, "event.data."); ok {
			if v, present := event.Data[field]; present {
				b.WriteString(renderScalar(v))
			}
		}

		rest = rest[start+end+1:]
	}
}
