package projector

import (
	"strings"

	"github.com/felo/eml-extract/internal/parser"
	"jaytaylor.com/html2text"
)

// Placeholders written when a message has no body of the given kind.
const (
	NoTextBody = "No text body found"
	NoHTMLBody = "No HTML body found"
)

// BodyOptions tunes ExtractBodies.
type BodyOptions struct {
	// HTMLToText renders the HTML body as text when the message has no text part.
	HTMLToText bool
}

var htmlToTextOpts = html2text.Options{TextOnly: true}

// ExtractBodies concatenates every text leaf and every HTML leaf of msg in pre-order.
// Missing bodies are replaced by NoTextBody and NoHTMLBody.
func ExtractBodies(msg *parser.Message, opts BodyOptions) (string, string) {
	var text, html strings.Builder
	msg.Walk(func(p *parser.BodyPart) bool {
		switch p.Kind {
		case parser.PartText:
			text.WriteString(p.Content)
		case parser.PartHTML:
			html.WriteString(p.Content)
		}
		return true
	})

	textBody, htmlBody := text.String(), html.String()
	if textBody == "" && htmlBody != "" && opts.HTMLToText {
		if converted, err := html2text.FromString(htmlBody, htmlToTextOpts); err == nil {
			textBody = converted
		}
	}
	if textBody == "" {
		textBody = NoTextBody
	}
	if htmlBody == "" {
		htmlBody = NoHTMLBody
	}
	return textBody, htmlBody
}
