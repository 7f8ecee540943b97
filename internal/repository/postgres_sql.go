package repository

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Array fields are JSONB arrays of small objects. Every mutation is a single
// UPDATE whose WHERE clause carries the guard, so a concurrent writer can
// never have its change overwritten by a stale copy of the list.

// activeStories rebuilds the story column without items created at or before
// the cutoff bound to param, preserving order.
func activeStories(param int) string {
	return fmt.Sprintf(`COALESCE((
		SELECT jsonb_agg(s.item ORDER BY s.ord)
		FROM jsonb_array_elements(story) WITH ORDINALITY AS s(item, ord)
		WHERE (s.item->>'createdAt')::timestamptz > $%d::timestamptz
	), '[]'::jsonb)`, param)
}

// pulled rebuilds column without the elements whose field equals the text
// bound to param, preserving order.
func pulled(column, field string, param int) string {
	return fmt.Sprintf(`COALESCE((
		SELECT jsonb_agg(e.item ORDER BY e.ord)
		FROM jsonb_array_elements(%s) WITH ORDINALITY AS e(item, ord)
		WHERE e.item->>'%s' <> $%d
	), '[]'::jsonb)`, column, field, param)
}

// element encodes a one-element JSON array usable both for || appends and
// for @> containment guards.
func element(field string, value any) ([]byte, error) {
	return json.Marshal([]map[string]any{{field: value}})
}

func elementOf(v any) ([]byte, error) {
	return json.Marshal([]any{v})
}

// prefixed qualifies a comma separated column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
