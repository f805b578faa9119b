package prompt

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// bullets renders one "- item" line per element, in input order.
func bullets(v any) string {
	items := stringsOf(v)
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(it)
	}
	return b.String()
}

func numbered(v any) string {
	items := stringsOf(v)
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(it)
	}
	return b.String()
}

func join(sep string, v any) string {
	return strings.Join(stringsOf(v), sep)
}

// field reads a key from a map element inside range loops over object lists.
func field(key string, v any) any {
	if m, ok := v.(map[string]any); ok {
		return m[key]
	}
	return nil
}

func stringsOf(v any) []string {
	switch s := v.(type) {
	case nil:
		return nil
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, it := range s {
			out = append(out, scalar(it))
		}
		return out
	default:
		return []string{scalar(v)}
	}
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+scalar(t[k]))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}
