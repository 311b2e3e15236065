package bundb

import (
	"reflect"
	"strings"
	"unicode"
)

// defaultModelName derives a model name from T, e.g. *BlogPost -> blog_post.
func defaultModelName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	name := t.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return toSnake(name)
}

// toSnake converts a reflected type name to snake_case. Anything that is
// not a letter or digit, such as the punctuation of pointer or generic type
// names, becomes a single separator, so the result fits a key segment.
func toSnake(s string) string {
	runes := []rune(s)

	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	sep := false
	separate := func() {
		if b.Len() > 0 && !sep {
			b.WriteByte('_')
			sep = true
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || nextLower {
					separate()
				}
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsDigit(r):
			if i > 0 && !unicode.IsDigit(runes[i-1]) && runes[i-1] != '_' {
				separate()
			}
			b.WriteRune(r)
		case unicode.IsLower(r):
			b.WriteRune(r)
		default:
			separate()
			continue
		}
		sep = false
	}

	return strings.Trim(b.String(), "_")
}
