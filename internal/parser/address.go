package parser

import (
	"mime"
	"strings"
)

// Address is either a mailbox (Name is optional) or, when Group is set, a named
// group whose members are mailboxes.
type Address struct {
	Name    string
	Address string
	Group   bool
	Members []Address
}

// AddressList is an ordered address header value. It may be empty.
type AddressList []Address

// IsGroup reports whether a is an RFC 5322 group.
func (a Address) IsGroup() bool {
	return a.Group
}

// String renders a as header text that parses back to the same name and address.
func (a Address) String() string {
	if a.Group {
		members := make([]string, len(a.Members))
		for i, m := range a.Members {
			members[i] = m.String()
		}
		return formatPhrase(a.Name) + ": " + strings.Join(members, ", ") + ";"
	}
	if a.Name == "" {
		return a.Address
	}
	return formatPhrase(a.Name) + " <" + a.Address + ">"
}

// Mailboxes flattens groups into their members.
func (l AddressList) Mailboxes() []Address {
	var out []Address
	for _, a := range l {
		if a.Group {
			out = append(out, a.Members...)
			continue
		}
		out = append(out, a)
	}
	return out
}

// First returns the first mailbox in l, looking inside groups.
func (l AddressList) First() (Address, bool) {
	boxes := l.Mailboxes()
	if len(boxes) == 0 {
		return Address{}, false
	}
	return boxes[0], true
}

// FormatAddressList renders l as the value of an address header.
func FormatAddressList(l AddressList) string {
	parts := make([]string, len(l))
	for i, a := range l {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

// ParseAddressList parses an address header value. Entries that cannot be
// understood are dropped; the rest are returned in order.
func ParseAddressList(raw string) AddressList {
	return parseAddressList(raw, nil)
}

func parseAddressList(raw string, d *diagnostics) AddressList {
	var out AddressList
	s := raw
	for strings.TrimSpace(s) != "" {
		idx, sep := indexTopLevel(s, ",:")
		if sep == ':' {
			name := decodePhrase(s[:idx], d)
			rest := s[idx+1:]
			var body string
			if end, _ := indexTopLevel(rest, ";"); end >= 0 {
				body, s = rest[:end], strings.TrimLeft(rest[end+1:], " \t,")
			} else {
				body, s = rest, ""
			}
			members := parseMailboxes(body, d)
			if name == "" {
				out = append(out, members...)
				continue
			}
			out = append(out, Address{Name: name, Group: true, Members: members})
			continue
		}

		var entry string
		if idx < 0 {
			entry, s = s, ""
		} else {
			entry, s = s[:idx], s[idx+1:]
		}
		if a, ok := parseMailbox(entry, d); ok {
			out = append(out, a)
		}
	}
	return out
}

func parseMailboxes(body string, d *diagnostics) []Address {
	var out []Address
	for _, entry := range splitTopLevel(body, ',') {
		if a, ok := parseMailbox(entry, d); ok {
			out = append(out, a)
		}
	}
	return out
}

// parseMailbox parses "Name <addr>", "<addr>", "addr" and "addr (Name)".
func parseMailbox(entry string, d *diagnostics) (Address, bool) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return Address{}, false
	}
	comment := firstComment(entry)
	clean := strings.TrimSpace(stripComments(entry))

	if lt := indexUnquoted(clean, '<'); lt >= 0 {
		rest := clean[lt+1:]
		if gt := strings.IndexByte(rest, '>'); gt >= 0 {
			rest = rest[:gt]
		}
		addr := stripRoute(strings.Join(strings.Fields(rest), ""))
		if addr == "" || strings.ContainsAny(addr, "<>") {
			return Address{}, false
		}
		name := decodePhrase(clean[:lt], d)
		if name == "" && comment != "" {
			name = decodePhrase(comment, d)
		}
		return Address{Name: name, Address: addr}, true
	}

	if clean == "" || strings.ContainsAny(clean, " \t<>,;") || strings.HasPrefix(clean, "=?") {
		return Address{}, false
	}
	if strings.Count(clean, "\"")%2 != 0 {
		return Address{}, false
	}
	a := Address{Address: clean}
	if comment != "" {
		a.Name = decodePhrase(comment, d)
	}
	return a, true
}

// stripRoute drops an obsolete source route ("@a,@b:user@host").
func stripRoute(addr string) string {
	if strings.HasPrefix(addr, "@") {
		if colon := strings.IndexByte(addr, ':'); colon >= 0 {
			return addr[colon+1:]
		}
	}
	return addr
}

// decodePhrase unquotes a display name, collapses whitespace and decodes encoded words.
func decodePhrase(s string, d *diagnostics) string {
	var b strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && inQuote && i+1 < len(s):
			i++
			b.WriteByte(s[i])
		case c == '"':
			inQuote = !inQuote
		default:
			b.WriteByte(c)
		}
	}
	name := strings.Join(strings.Fields(b.String()), " ")
	return strings.TrimSpace(decodeWords(name, d))
}

// formatPhrase renders a display name as an atom phrase, a quoted string or, for
// non-ASCII names, RFC 2047 encoded words. The B encoding is used because the Q
// encoder leaves specials such as ',' ':' and '<' unescaped, which would break the
// surrounding address syntax.
func formatPhrase(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] >= 0x80 {
			return mime.BEncoding.Encode("utf-8", name)
		}
	}
	if isAtomPhrase(name) {
		return name
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(name) + `"`
}

func isAtomPhrase(s string) bool {
	if s == "" || strings.Contains(s, "=?") {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == ' ':
		case strings.IndexByte("!#$%&'*+-/=?^_`{|}~", c) >= 0:
		default:
			return false
		}
	}
	return true
}

// indexTopLevel returns the index of the first byte of s contained in seps that is
// outside quoted strings, comments and angle brackets, or -1.
func indexTopLevel(s, seps string) (int, byte) {
	comment := 0
	inQuote, inAngle := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && (inQuote || comment > 0):
			i++
		case inQuote:
			if c == '"' {
				inQuote = false
			}
		case comment > 0:
			if c == '(' {
				comment++
			} else if c == ')' {
				comment--
			}
		case c == '"':
			inQuote = true
		case c == '(':
			comment = 1
		case inAngle:
			if c == '>' {
				inAngle = false
			}
		case c == '<':
			inAngle = true
		case strings.IndexByte(seps, c) >= 0:
			return i, c
		}
	}
	return -1, 0
}

// splitTopLevel splits s on sep occurrences found by indexTopLevel.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	for {
		idx, _ := indexTopLevel(s, string(sep))
		if idx < 0 {
			return append(parts, s)
		}
		parts = append(parts, s[:idx])
		s = s[idx+1:]
	}
}

// indexUnquoted finds c outside quoted strings and comments.
func indexUnquoted(s string, c byte) int {
	comment := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '\\' && (inQuote || comment > 0):
			i++
		case inQuote:
			if ch == '"' {
				inQuote = false
			}
		case comment > 0:
			if ch == '(' {
				comment++
			} else if ch == ')' {
				comment--
			}
		case ch == '"':
			inQuote = true
		case ch == '(':
			comment = 1
		case ch == c:
			return i
		}
	}
	return -1
}

// stripComments replaces every top-level (comment) with a single space.
func stripComments(s string) string {
	if !strings.Contains(s, "(") {
		return s
	}
	var b strings.Builder
	comment := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case comment > 0:
			switch c {
			case '\\':
				i++
			case '(':
				comment++
			case ')':
				comment--
				if comment == 0 {
					b.WriteByte(' ')
				}
			}
		case inQuote:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == '"' {
				inQuote = false
			}
		case c == '"':
			inQuote = true
			b.WriteByte(c)
		case c == '(':
			comment = 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// firstComment returns the text of the first top-level comment in s.
func firstComment(s string) string {
	start := indexUnquoted(s, '(')
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start+1 : i])
			}
		}
	}
	return strings.TrimSpace(s[start+1:])
}

// unquote strips surrounding double quotes and backslash escapes.
func unquote(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	s = s[1 : len(s)-1]
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
