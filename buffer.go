package serial

import (
	"fmt"
	"strings"
)

// LineTermination selects the bytes appended to an outgoing message.
type LineTermination int

const (
	None LineTermination = iota
	LF
	CR
	CRLF
	Null
)

var terminations = [...]struct {
	name  string
	bytes string
	reply byte
}{
	None: {"none", "", '\n'},
	LF:   {"lf", "\n", '\n'},
	CR:   {"cr", "\r", '\r'},
	CRLF: {"crlf", "\r\n", '\n'},
	Null: {"null", "\x00", 0},
}

// ParseLineTermination parses one of none, lf, cr, crlf or null.
func ParseLineTermination(s string) (LineTermination, error) {
	name := strings.ToLower(s)
	for t, v := range terminations {
		if v.name == name {
			return LineTermination(t), nil
		}
	}
	return None, fmt.Errorf("unknown line termination %q", s)
}

// UnmarshalText lets a LineTermination be used as a flag or config value.
func (t *LineTermination) UnmarshalText(text []byte) error {
	v, err := ParseLineTermination(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t LineTermination) valid() bool {
	return t >= None && int(t) < len(terminations)
}

func (t LineTermination) String() string {
	if !t.valid() {
		return fmt.Sprintf("LineTermination(%d)", int(t))
	}
	return terminations[t].name
}

// Bytes returns the terminator appended by FromString.
func (t LineTermination) Bytes() []byte {
	if !t.valid() {
		return nil
	}
	return []byte(terminations[t].bytes)
}

// ReplyDelimiter is the byte a device is expected to end its answers with
// when it is spoken to using this termination.
func (t LineTermination) ReplyDelimiter() byte {
	if !t.valid() {
		return '\n'
	}
	return terminations[t].reply
}

// Buffer is an owned, fixed-length sequence of raw bytes.
type Buffer []byte

// NewBuffer returns a Buffer of size bytes, each set to '.'.
func NewBuffer(size int) Buffer {
	b := make(Buffer, size)
	for i := range b {
		b[i] = '.'
	}
	return b
}

// FromString builds an outgoing message from value followed by the terminator.
func FromString(value string, term LineTermination) Buffer {
	tail := term.Bytes()
	b := make(Buffer, len(value)+len(tail))
	n := copy(b, value)
	copy(b[n:], tail)
	return b
}

// String renders the buffer with Dump.
func (b Buffer) String() string {
	return b.Dump()
}

// Dump renders a hex and ASCII dump, 16 bytes per row:
//
//	buffer 4 bytes:
//	0000 | 2e2e2e2e          .                   | ....
func (b Buffer) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "buffer %d bytes:\n", len(b))
	for off := 0; off < len(b); off += 16 {
		row := b[off:min(off+16, len(b))]
		fmt.Fprintf(&sb, "%04d | ", off)
		writeHexGroup(&sb, row, 0)
		sb.WriteByte(' ')
		writeHexGroup(&sb, row, 4)
		sb.WriteString(" . ")
		writeHexGroup(&sb, row, 8)
		sb.WriteByte(' ')
		writeHexGroup(&sb, row, 12)
		sb.WriteString(" | ")

		var ascii strings.Builder
		for _, c := range row {
			ascii.WriteString(dumpByte(c))
		}
		fmt.Fprintf(&sb, "%-16s\n", ascii.String())
	}
	return sb.String()
}

func writeHexGroup(sb *strings.Builder, row []byte, start int) {
	for i := start; i < start+4; i++ {
		if i < len(row) {
			fmt.Fprintf(sb, "%02x", row[i])
		} else {
			sb.WriteString("  ")
		}
	}
}

func dumpByte(c byte) string {
	if s, ok := escapeSpecial(c); ok {
		return s
	}
	if isPrint(c) {
		return string(rune(c))
	}
	return fmt.Sprintf(`\x%x`, c)
}
