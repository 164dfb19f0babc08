package serial

import (
	"fmt"
	"strings"
)

func escapeSpecial(c byte) (string, bool) {
	switch c {
	case '\r':
		return `\r`, true
	case '\n':
		return `\n`, true
	case '\t':
		return `\t`, true
	case '\\':
		return `\\`, true
	}
	return "", false
}

func isPrint(c byte) bool {
	return c >= 0x20 && c < 0x7f
}

// Escape makes s printable: \r, \n, \t and \\ are escaped, other
// non-printable bytes become \xHH.
func Escape(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if e, ok := escapeSpecial(c); ok {
			sb.WriteString(e)
			continue
		}
		if isPrint(c) {
			sb.WriteByte(c)
			continue
		}
		fmt.Fprintf(&sb, `\x%02x`, c)
	}
	return sb.String()
}

// ParseEscapes turns user input such as `\r\n` into the bytes it names.
// It understands \n, \r, \t, \\, \0 and \xH or \xHH. Unknown sequences and
// a trailing backslash are kept as typed.
func ParseEscapes(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i == len(s)-1 {
			sb.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\':
			sb.WriteByte('\\')
		case '0':
			sb.WriteByte(0)
		case 'x':
			v, n := parseHex(s[i+2:])
			if n == 0 {
				sb.WriteString(`\x`)
			} else {
				sb.WriteByte(v)
			}
			i += n
		default:
			sb.WriteByte('\\')
			sb.WriteByte(s[i+1])
		}
		i++
	}
	return sb.String()
}

// parseHex reads at most two hex digits from the start of s.
func parseHex(s string) (byte, int) {
	var v byte
	n := 0
	for n < 2 && n < len(s) {
		d, ok := hexDigit(s[n])
		if !ok {
			break
		}
		v = v<<4 | d
		n++
	}
	return v, n
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
