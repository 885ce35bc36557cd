package parser

import (
	"slices"
	"strings"
	"time"
)

// Options tunes a parse.
type Options struct {
	// MaxDepth caps MIME nesting; parts deeper than this become opaque attachments.
	// Zero means DefaultMaxDepth.
	MaxDepth int
}

func (o Options) maxDepth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}

// Message is a parsed RFC 5322 / MIME message. It is built once by Parse and never
// modified afterwards, so it can be shared between goroutines.
type Message struct {
	raw      []byte
	headers  []HeaderField
	index    map[string][]int
	root     *BodyPart
	warnings []error
}

// Parse parses raw with default options.
func Parse(raw []byte) (*Message, error) {
	return ParseWithOptions(raw, Options{})
}

// ParseWithOptions parses raw in a single pass. Malformed input is repaired where
// possible and the repairs are reported by Warnings; the only error returned is
// ErrEmptyMessage. raw must not be modified while the Message is in use.
func ParseWithOptions(raw []byte, opts Options) (*Message, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyMessage
	}

	d := &diagnostics{}
	fields, bodyOffset, err := splitHeader(raw)
	d.add(err)

	m := &Message{
		raw:     raw,
		headers: make([]HeaderField, 0, len(fields)),
		index:   make(map[string][]int, len(fields)),
	}
	for _, rf := range fields {
		hf := parseField(rf, d)
		key := strings.ToLower(hf.Name)
		m.index[key] = append(m.index[key], len(m.headers))
		m.headers = append(m.headers, hf)
	}

	w := &walker{raw: raw, maxDepth: opts.maxDepth(), diag: d}
	textPlain := ContentType{Type: "text", Subtype: "plain", Params: map[string]string{}}
	m.root = w.build(m.headers, bodyOffset, len(raw), 1, textPlain)
	m.warnings = d.errs

	return m, nil
}

// Raw returns the buffer the message was parsed from.
func (m *Message) Raw() []byte {
	return m.raw
}

// Headers returns all header fields in declaration order.
func (m *Message) Headers() []HeaderField {
	return slices.Clone(m.headers)
}

// Header returns the first header field named name (case-insensitive).
func (m *Message) Header(name string) (HeaderField, bool) {
	idx := m.index[strings.ToLower(name)]
	if len(idx) == 0 {
		return HeaderField{}, false
	}
	return m.headers[idx[0]], true
}

// HeadersNamed returns every header field named name, in order.
func (m *Message) HeadersNamed(name string) []HeaderField {
	idx := m.index[strings.ToLower(name)]
	out := make([]HeaderField, len(idx))
	for i, j := range idx {
		out[i] = m.headers[j]
	}
	return out
}

// Value returns the merged value of all name headers. List kinds (addresses,
// message ids, tokens) are concatenated across occurrences; other kinds take the
// first non-empty occurrence.
func (m *Message) Value(name string) HeaderValue {
	var merged HeaderValue
	for _, h := range m.HeadersNamed(name) {
		v := h.Value
		if v.IsEmpty() {
			continue
		}
		switch {
		case merged.Kind == KindEmpty:
			merged = v
			merged.Addresses = slices.Clone(v.Addresses)
			merged.IDs = slices.Clone(v.IDs)
			merged.Tokens = slices.Clone(v.Tokens)
		case merged.Kind != v.Kind:
		case v.Kind == KindAddressList:
			merged.Addresses = append(merged.Addresses, v.Addresses...)
		case v.Kind == KindMessageIDList:
			merged.IDs = append(merged.IDs, v.IDs...)
		case v.Kind == KindTokenList:
			merged.Tokens = append(merged.Tokens, v.Tokens...)
		}
	}
	return merged
}

// Addresses returns the addresses of every name header, in order.
func (m *Message) Addresses(name string) AddressList {
	return m.Value(name).Addresses
}

func (m *Message) From() AddressList { return m.Addresses("From") }
func (m *Message) To() AddressList { return m.Addresses("To") }
func (m *Message) Cc() AddressList { return m.Addresses("Cc") }
func (m *Message) Bcc() AddressList { return m.Addresses("Bcc") }
func (m *Message) Sender() AddressList { return m.Addresses("Sender") }
func (m *Message) ReplyTo() AddressList { return m.Addresses("Reply-To") }

// Date returns the parsed Date header. An absent or unparseable date is reported
// as missing rather than as an error.
func (m *Message) Date() (time.Time, bool) {
	v := m.Value("Date")
	if v.Kind != KindDateTime {
		return time.Time{}, false
	}
	return v.Date, true
}

// MessageID returns the first Message-ID without angle brackets.
func (m *Message) MessageID() (string, bool) {
	ids := m.Value("Message-ID").IDs
	if len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

// Subject returns the decoded Subject.
func (m *Message) Subject() (string, bool) {
	v := m.Value("Subject")
	if v.Kind != KindText {
		return "", false
	}
	return v.Text, true
}

// ThreadName returns the subject without reply and forward prefixes.
func (m *Message) ThreadName() (string, bool) {
	subject, ok := m.Subject()
	if !ok {
		return "", false
	}
	return ThreadName(subject), true
}

// ReturnAddress is where replies go: the first address of Reply-To, falling back to
// From and then Sender.
func (m *Message) ReturnAddress() (string, bool) {
	for _, name := range []string{"Reply-To", "From", "Sender"} {
		if a, ok := m.Addresses(name).First(); ok {
			return a.Address, true
		}
	}
	return "", false
}

// Root returns the top of the body tree.
func (m *Message) Root() *BodyPart {
	return m.root
}

// Walk visits every body part in pre-order.
func (m *Message) Walk(fn func(*BodyPart) bool) {
	m.root.Walk(fn)
}

// Warnings returns the problems repaired while parsing.
func (m *Message) Warnings() []error {
	return slices.Clone(m.warnings)
}

func (m *Message) leaves(kind PartKind) []*BodyPart {
	var out []*BodyPart
	m.Walk(func(p *BodyPart) bool {
		if p.Kind == kind {
			out = append(out, p)
		}
		return true
	})
	return out
}

func (m *Message) nth(kind PartKind, n int) (*BodyPart, bool) {
	if n < 0 {
		return nil, false
	}
	var found *BodyPart
	i := 0
	m.Walk(func(p *BodyPart) bool {
		if p.Kind != kind {
			return true
		}
		if i == n {
			found = p
			return false
		}
		i++
		return true
	})
	return found, found != nil
}

func (m *Message) TextBodyCount() int { return len(m.leaves(PartText)) }
func (m *Message) HTMLBodyCount() int { return len(m.leaves(PartHTML)) }
func (m *Message) AttachmentCount() int { return len(m.leaves(PartAttachment)) }

// BodyText returns the n-th text/plain leaf in pre-order.
func (m *Message) BodyText(n int) (string, bool) {
	p, ok := m.nth(PartText, n)
	if !ok {
		return "", false
	}
	return p.Content, true
}

// BodyHTML returns the n-th text/html leaf in pre-order.
func (m *Message) BodyHTML(n int) (string, bool) {
	p, ok := m.nth(PartHTML, n)
	if !ok {
		return "", false
	}
	return p.Content, true
}

// Attachments returns the attachment leaves in pre-order.
func (m *Message) Attachments() []*BodyPart {
	return m.leaves(PartAttachment)
}
