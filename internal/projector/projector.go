// Package projector selects fields of a parsed message into an ordered document for
// serialization, and recovers its text and HTML bodies.
package projector

import (
	"errors"
	"fmt"
	"time"

	"github.com/felo/eml-extract/internal/parser"
)

// ErrMissingRequiredField is returned by Project when a field named by the policy is
// absent from the message.
var ErrMissingRequiredField = errors.New("missing required field")

// Policy controls which projected keys must be present.
type Policy struct {
	Required []string
}

// DefaultPolicy requires a date, as every stored message is ordered by it.
func DefaultPolicy() Policy {
	return Policy{Required: []string{"date"}}
}

// Mailbox is the JSON shape of a single address.
type Mailbox struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// Group is the JSON shape of an RFC 5322 group.
type Group struct {
	Name      string    `json:"name"`
	Addresses []Mailbox `json:"addresses"`
}

// headerKeys lists the header-backed keys in output order.
var headerKeys = []struct {
	key    string
	header string
}{
	{"sender", "Sender"},
	{"to", "To"},
	{"cc", "Cc"},
	{"bcc", "Bcc"},
	{"from", "From"},
	{"reply_to", "Reply-To"},
	{"resent_bcc", "Resent-Bcc"},
	{"resent_cc", "Resent-Cc"},
	{"resent_from", "Resent-From"},
	{"resent_sender", "Resent-Sender"},
	{"resent_to", "Resent-To"},
	{"comments", "Comments"},
	{"in_reply_to", "In-Reply-To"},
	{"keywords", "Keywords"},
	{"list_archive", "List-Archive"},
	{"list_help", "List-Help"},
	{"list_id", "List-Id"},
	{"list_owner", "List-Owner"},
	{"list_post", "List-Post"},
	{"list_subscribe", "List-Subscribe"},
	{"list_unsubscribe", "List-Unsubscribe"},
	{"mime_version", "MIME-Version"},
	{"references", "References"},
	{"return_path", "Return-Path"},
}

// Project builds the field document for msg. Absent and empty fields are left out;
// the three body counts are always present. When a key required by p is missing the
// document built so far is returned together with an error wrapping
// ErrMissingRequiredField.
func Project(msg *parser.Message, p Policy) (*Document, error) {
	doc := NewDocument()

	for _, hk := range headerKeys {
		if v, ok := jsonValue(msg.Value(hk.header)); ok {
			doc.Set(hk.key, v)
		}
	}

	if id, ok := msg.MessageID(); ok {
		doc.Set("message_id", id)
	}
	if subject, ok := msg.Subject(); ok {
		doc.Set("subject", subject)
	}
	if addr, ok := msg.ReturnAddress(); ok {
		doc.Set("return_address", addr)
	}
	if thread, ok := msg.ThreadName(); ok && thread != "" {
		doc.Set("thread_name", thread)
	}

	doc.Set("attachment_count", msg.AttachmentCount())
	doc.Set("text_body_count", msg.TextBodyCount())
	doc.Set("html_body_count", msg.HTMLBodyCount())

	if date, ok := msg.Date(); ok {
		doc.Set("date", date.Format(time.RFC3339))
	}

	for _, key := range p.Required {
		if !doc.Has(key) {
			return doc, fmt.Errorf("%w: %s", ErrMissingRequiredField, key)
		}
	}
	return doc, nil
}

// jsonValue converts a header value to its JSON form. Empty values report false.
func jsonValue(v parser.HeaderValue) (any, bool) {
	if v.IsEmpty() {
		return nil, false
	}
	switch v.Kind {
	case parser.KindAddressList:
		return addressList(v.Addresses), true
	case parser.KindMessageIDList:
		return v.IDs, true
	case parser.KindTokenList:
		return v.Tokens, true
	case parser.KindDateTime:
		return v.Date.Format(time.RFC3339), true
	case parser.KindContentType:
		return v.ContentType.MediaType(), true
	default:
		return v.Text, true
	}
}

func addressList(l parser.AddressList) []any {
	out := make([]any, 0, len(l))
	for _, a := range l {
		if a.IsGroup() {
			g := Group{Name: a.Name, Addresses: make([]Mailbox, 0, len(a.Members))}
			for _, m := range a.Members {
				g.Addresses = append(g.Addresses, Mailbox{Name: m.Name, Address: m.Address})
			}
			out = append(out, g)
			continue
		}
		out = append(out, Mailbox{Name: a.Name, Address: a.Address})
	}
	return out
}
