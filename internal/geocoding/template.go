package geocoding

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"
)

// DefaultTemplate is the location template used when none is configured.
const DefaultTemplate = "{location}"

// MissingFieldError reports a template placeholder the row does not carry.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("template: missing field %q", e.Field)
}

type segment struct {
	text  string
	field bool
}

// Template renders a row into a free-text location query. Placeholders are
// written {field}; {{ and }} produce literal braces. Everything else is
// copied verbatim.
type Template struct {
	pattern  string
	segments []segment
	fields   []string
}

// ParseTemplate compiles pattern. A pattern without placeholders is valid
// and renders to itself.
func ParseTemplate(pattern string) (*Template, error) {
	t := &Template{pattern: pattern}
	var lit strings.Builder
	seen := make(map[string]bool)

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '{' && i+1 < len(pattern) && pattern[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(pattern) && pattern[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexAny(pattern[i+1:], "{}")
			if end < 0 || pattern[i+1+end] != '}' {
				return nil, eris.Errorf("template: unclosed placeholder at offset %d in %q", i, pattern)
			}
			name := pattern[i+1 : i+1+end]
			if name == "" {
				return nil, eris.Errorf("template: empty placeholder at offset %d in %q", i, pattern)
			}
			if lit.Len() > 0 {
				t.segments = append(t.segments, segment{text: lit.String()})
				lit.Reset()
			}
			t.segments = append(t.segments, segment{text: name, field: true})
			if !seen[name] {
				seen[name] = true
				t.fields = append(t.fields, name)
			}
			i += end + 1
		case c == '}':
			return nil, eris.Errorf("template: unmatched '}' at offset %d in %q", i, pattern)
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		t.segments = append(t.segments, segment{text: lit.String()})
	}
	return t, nil
}

// MustParseTemplate is ParseTemplate that panics on error.
func MustParseTemplate(pattern string) *Template {
	t, err := ParseTemplate(pattern)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the source pattern.
func (t *Template) String() string { return t.pattern }

// Fields returns the distinct placeholder names in order of first use.
func (t *Template) Fields() []string {
	return append([]string(nil), t.fields...)
}

// Render substitutes the row's values into the template. A NULL value
// renders as the empty string; a column the row lacks is a
// *MissingFieldError.
func (t *Template) Render(row map[string]any) (string, error) {
	var b strings.Builder
	for _, s := range t.segments {
		if !s.field {
			b.WriteString(s.text)
			continue
		}
		v, ok := row[s.text]
		if !ok {
			return "", &MissingFieldError{Field: s.text}
		}
		b.WriteString(textOf(v))
	}
	return b.String(), nil
}

func textOf(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
