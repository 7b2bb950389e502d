package normalizer

import (
	"errors"
	"strings"
)

var errUnterminatedString = errors.New("unterminated string literal")

var pythonLiterals = map[string]string{
	"True":  "true",
	"False": "false",
	"None":  "null",
}

// repairQuotes rewrites a Python-literal style payload into JSON text.
// Single quoted strings become double quoted (inner double quotes escaped),
// double quoted strings pass through, and True/False/None outside strings map
// to their JSON spellings. It does not validate structure; the JSON parser
// that follows does.
func repairQuotes(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw) + 8)

	for i := 0; i < len(raw); {
		c := raw[i]
		switch {
		case c == '\'':
			n, err := copySingleQuoted(&b, raw[i+1:])
			if err != nil {
				return "", err
			}
			i += n + 1
		case c == '"':
			n, err := copyDoubleQuoted(&b, raw[i+1:])
			if err != nil {
				return "", err
			}
			i += n + 1
		case isIdentStart(c):
			j := i + 1
			for j < len(raw) && isIdentPart(raw[j]) {
				j++
			}
			word := raw[i:j]
			if lit, ok := pythonLiterals[word]; ok {
				word = lit
			}
			b.WriteString(word)
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// copySingleQuoted writes the JSON form of a single quoted body and returns the
// number of bytes consumed including the closing quote.
func copySingleQuoted(b *strings.Builder, s string) (int, error) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\'':
			b.WriteByte('"')
			return i + 1, nil
		case '"':
			b.WriteString(`\"`)
		case '\\':
			if i+1 >= len(s) {
				return 0, errUnterminatedString
			}
			i++
			writeEscape(b, s, &i)
		default:
			b.WriteByte(c)
		}
	}
	return 0, errUnterminatedString
}

func copyDoubleQuoted(b *strings.Builder, s string) (int, error) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteByte('"')
			return i + 1, nil
		case '\\':
			if i+1 >= len(s) {
				return 0, errUnterminatedString
			}
			i++
			writeEscape(b, s, &i)
		default:
			b.WriteByte(c)
		}
	}
	return 0, errUnterminatedString
}

// writeEscape translates the escape whose letter is at s[*i]. Escapes JSON
// does not know are converted: \' to a bare quote, \xNN to \u00NN.
func writeEscape(b *strings.Builder, s string, i *int) {
	c := s[*i]
	switch c {
	case '\'':
		b.WriteByte('\'')
	case 'x':
		if *i+2 < len(s) && isHex(s[*i+1]) && isHex(s[*i+2]) {
			b.WriteString(`\u00`)
			b.WriteString(s[*i+1 : *i+3])
			*i += 2
			return
		}
		b.WriteString(`\\x`)
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
		b.WriteByte('\\')
		b.WriteByte(c)
	default:
		b.WriteString(`\\`)
		b.WriteByte(c)
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
