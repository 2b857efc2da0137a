// Package identifier sanitizes host type and field names into SQL
// identifiers, and escapes SQL identifiers for inclusion in generated
// statements. It is deliberately tiny and dependency-free: the
// out-of-scope code generator collaborator consumes the same rules, so
// they live here rather than buried inside the schema package.
package identifier

import (
	"strconv"
	"strings"
	"unicode"
)

// Sanitize converts an arbitrary host-language name into a valid SQL
// identifier:
//
//  1. the first character must be a Unicode letter or underscore; any
//     other first character is replaced with "_".
//  2. subsequent characters are kept when they fall in the Unicode
//     letter, digit, mark, connector-punctuation, or format categories.
//  3. a space does not appear in the output; instead it signals that
//     the next valid character should be capitalized (camel-casing
//     "order total" into "orderTotal").
//  4. any other character is dropped.
//
// Sanitize is idempotent: Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(name string) string {
	if name == "" {
		return "_"
	}

	var b strings.Builder
	capitalizeNext := false

	for i, r := range name {
		if i == 0 {
			if unicode.IsLetter(r) || r == '_' {
				b.WriteRune(r)
			} else {
				b.WriteRune('_')
			}
			continue
		}

		if r == ' ' {
			capitalizeNext = true
			continue
		}

		if !isContinuation(r) {
			continue
		}

		if capitalizeNext {
			r = unicode.ToUpper(r)
			capitalizeNext = false
		}
		b.WriteRune(r)
	}

	return b.String()
}

// isContinuation reports whether r belongs to one of the Unicode
// categories kept for non-leading identifier characters: letter,
// digit, mark, connector punctuation, or format.
func isContinuation(r rune) bool {
	return unicode.IsLetter(r) ||
		unicode.IsDigit(r) ||
		unicode.Is(unicode.Mark, r) ||
		unicode.Is(unicode.Pc, r) ||
		unicode.Is(unicode.Cf, r)
}

// ResolveCollision suffixes a sanitized field name that collides
// (case-insensitively) with the name of its enclosing type, trying
// "Property", then "Property1", "Property2", ... until the result no
// longer collides. Names that do not collide are returned unchanged.
func ResolveCollision(sanitized, typeName string) string {
	if !strings.EqualFold(sanitized, typeName) {
		return sanitized
	}

	candidate := sanitized + "Property"
	if !strings.EqualFold(candidate, typeName) {
		return candidate
	}
	for n := 1; ; n++ {
		candidate := sanitized + "Property" + strconv.Itoa(n)
		if !strings.EqualFold(candidate, typeName) {
			return candidate
		}
	}
}

// Quote escapes name for use as a double-quoted SQL identifier,
// doubling any embedded quote characters per the SQLite grammar.
func Quote(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}
