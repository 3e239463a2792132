package prompt

import (
	"strings"
)

// segment is either literal text or a placeholder name.
type segment struct {
	text        string
	placeholder bool
}

// template is a compiled template string. Immutable after compile.
type template struct {
	segments  []segment
	variables []string // declared placeholders, in first-seen order
}

// compile splits src into literal and placeholder segments.
//
// {name} is a placeholder when name is a non-empty run of letters, digits or
// underscores. {{ and }} render as literal braces. Any other brace is kept as
// literal text.
func compile(src string) template {
	var (
		t    template
		lit  strings.Builder
		seen = make(map[string]struct{})
	)

	flush := func() {
		if lit.Len() > 0 {
			t.segments = append(t.segments, segment{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '{' && i+1 < len(src) && src[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(src) && src[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := placeholderEnd(src, i+1)
			if end < 0 {
				lit.WriteByte(c)
				continue
			}
			name := src[i+1 : end]
			flush()
			t.segments = append(t.segments, segment{text: name, placeholder: true})
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				t.variables = append(t.variables, name)
			}
			i = end
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return t
}

// placeholderEnd returns the index of the closing brace for an identifier
// starting at start, or -1 when src[start:] does not begin with "ident}".
func placeholderEnd(src string, start int) int {
	i := start
	for i < len(src) && isIdentByte(src[i]) {
		i++
	}
	if i == start || i >= len(src) || src[i] != '}' {
		return -1
	}
	return i
}

func isIdentByte(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// render substitutes vars. It returns the first placeholder without a value.
func (t template) render(vars Vars) (string, string, bool) {
	var b strings.Builder
	for _, s := range t.segments {
		if !s.placeholder {
			b.WriteString(s.text)
			continue
		}
		v, ok := vars[s.text]
		if !ok {
			return "", s.text, false
		}
		b.WriteString(v)
	}
	return b.String(), "", true
}

func (t template) empty() bool { return len(t.segments) == 0 }
