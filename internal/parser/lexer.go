package parser

import "bytes"

// rawField is a header line as found in the source, with folding removed.
type rawField struct {
	name  []byte
	value []byte
	// continuation lines, trimmed, joined into value once the field is complete
	cont [][]byte
}

// splitHeader splits buf into its header fields and returns the offset of the first
// body byte. When no blank line separates header and body, the fields read so far
// are returned together with ErrMalformedMessage and an empty body.
func splitHeader(buf []byte) ([]rawField, int, error) {
	fields, off, err := scanHeader(buf)
	for i := range fields {
		fields[i].unfold()
	}
	return fields, off, err
}

func scanHeader(buf []byte) ([]rawField, int, error) {
	var fields []rawField
	pos := 0
	first := true

	for pos < len(buf) {
		line, next := nextLine(buf, pos)

		if len(line) == 0 {
			return fields, next, nil
		}

		if first && isEnvelopeLine(line) {
			first = false
			pos = next
			continue
		}
		first = false

		if line[0] == ' ' || line[0] == '\t' {
			if len(fields) == 0 {
				// Continuation with nothing to continue.
				return fields, len(buf), ErrMalformedMessage
			}
			if cont := bytes.TrimSpace(line); len(cont) > 0 {
				last := &fields[len(fields)-1]
				last.cont = append(last.cont, cont)
			}
			pos = next
			continue
		}

		colon := bytes.IndexByte(line, ':')
		if colon <= 0 || !isFieldName(line[:colon]) {
			return fields, len(buf), ErrMalformedMessage
		}

		fields = append(fields, rawField{
			name:  bytes.TrimRight(line[:colon], " \t"),
			value: bytes.TrimSpace(line[colon+1:]),
		})
		pos = next
	}

	return fields, len(buf), ErrMalformedMessage
}

// nextLine returns the line starting at pos without its terminator, and the
// position of the following line. Both CRLF and bare LF terminate a line.
func nextLine(buf []byte, pos int) ([]byte, int) {
	end := bytes.IndexByte(buf[pos:], '\n')
	var line []byte
	next := len(buf)
	if end < 0 {
		line = buf[pos:]
	} else {
		line = buf[pos : pos+end]
		next = pos + end + 1
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, next
}

// unfold joins the continuation lines into value, each fold collapsed into one
// space. The joined value is a copy; fields without folds still alias the source.
func (f *rawField) unfold() {
	if len(f.cont) == 0 {
		return
	}
	n := len(f.value)
	for _, c := range f.cont {
		n += 1 + len(c)
	}
	out := make([]byte, 0, n)
	out = append(out, f.value...)
	for _, c := range f.cont {
		if len(out) > 0 {
			out = append(out, ' ')
		}
		out = append(out, c...)
	}
	f.value = out
	f.cont = nil
}

// isFieldName reports whether b is a valid RFC 5322 field name (printable US-ASCII
// except colon). Trailing whitespace before the colon is tolerated.
func isFieldName(b []byte) bool {
	b = bytes.TrimRight(b, " \t")
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < 33 || c > 126 || c == ':' {
			return false
		}
	}
	return true
}

// isEnvelopeLine matches the mbox "From sender date" line some .eml exports keep.
func isEnvelopeLine(line []byte) bool {
	if !bytes.HasPrefix(line, []byte("From ")) {
		return false
	}
	rest := bytes.TrimLeft(line[len("From "):], " ")
	return len(rest) > 0 && rest[0] != ':'
}
