// Package mathml prepares raw tutor responses for HTML display. It escapes
// HTML-significant characters and converts newlines to explicit line breaks
// while leaving LaTeX-delimited spans ($...$ and $$...$$) byte-for-byte
// intact for a downstream typesetting pass.
package mathml

import "strings"

// Render transforms raw text into safe-for-display markup. Outside math
// spans, &, < and > are entity-escaped and newlines become <br />. Content
// between $...$ or $$...$$ delimiters is copied verbatim, delimiters
// included. An unterminated delimiter is treated as literal text.
func Render(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/8)

	for i := 0; i < len(text); {
		if text[i] == '$' {
			if span, width := mathSpan(text[i:]); width > 0 {
				b.WriteString(span)
				i += width
				continue
			}
		}
		writeEscaped(&b, text[i])
		i++
	}

	return b.String()
}

// mathSpan returns the math span starting at s[0] == '$' and its byte width,
// or ("", 0) when the delimiter is unterminated.
func mathSpan(s string) (string, int) {
	delim := "$"
	if strings.HasPrefix(s, "$$") {
		delim = "$$"
	}

	rest := s[len(delim):]
	end := strings.Index(rest, delim)
	if end < 0 {
		return "", 0
	}
	width := len(delim) + end + len(delim)
	return s[:width], width
}

func writeEscaped(b *strings.Builder, c byte) {
	switch c {
	case '&':
		b.WriteString("&amp;")
	case '<':
		b.WriteString("&lt;")
	case '>':
		b.WriteString("&gt;")
	case '\n':
		b.WriteString("<br />")
	default:
		b.WriteByte(c)
	}
}
