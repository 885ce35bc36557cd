package indexer

import (
	"encoding/json"
	"fmt"

	"github.com/felo/eml-extract/internal/config"
	"github.com/felo/eml-extract/internal/db"
	"github.com/felo/eml-extract/internal/parser"
	"github.com/felo/eml-extract/internal/projector"
)

// Options controls how each message is parsed and projected.
type Options struct {
	Parse  parser.Options
	Policy projector.Policy
	Bodies projector.BodyOptions
}

// DefaultOptions returns the parser defaults and the default required-field policy.
func DefaultOptions() Options {
	return Options{Policy: projector.DefaultPolicy()}
}

// OptionsFrom maps the configuration onto parse and projection options.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Parse:  parser.Options{MaxDepth: cfg.MaxDepth},
		Policy: projector.Policy{Required: cfg.RequiredFields},
		Bodies: projector.BodyOptions{HTMLToText: cfg.HTMLToText},
	}
}

// NewRecord turns a parsed message into the rows the store keeps for it. A
// projection that misses a required field is stored anyway with ProjectionError
// set; only a document that cannot be encoded is an error.
func NewRecord(msg *parser.Message, opts Options) (*db.Message, []*db.Attachment, error) {
	doc, projErr := projector.Project(msg, opts.Policy)
	fields, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("encode fields: %w", err)
	}

	text, html := projector.ExtractBodies(msg, opts.Bodies)
	if text == projector.NoTextBody {
		text = ""
	}
	if html == projector.NoHTMLBody {
		html = ""
	}

	rec := &db.Message{
		TextBodyCount:   msg.TextBodyCount(),
		HTMLBodyCount:   msg.HTMLBodyCount(),
		AttachmentCount: msg.AttachmentCount(),
		FieldsJSON:      string(fields),
		BodyText:        text,
		BodyHTML:        html,
		Size:            int64(len(msg.Raw())),
	}
	if projErr != nil {
		rec.ProjectionError = projErr.Error()
	}
	rec.MessageID, _ = msg.MessageID()
	if ids := msg.Value("In-Reply-To").IDs; len(ids) > 0 {
		rec.InReplyTo = ids[0]
	}
	rec.Subject, _ = msg.Subject()
	rec.ThreadName, _ = msg.ThreadName()
	rec.ReturnAddress, _ = msg.ReturnAddress()
	if date, ok := msg.Date(); ok {
		rec.Date = db.NewNullTime(date)
	}

	parts := msg.Attachments()
	attachments := make([]*db.Attachment, len(parts))
	for i, p := range parts {
		attachments[i] = &db.Attachment{
			Position:    i,
			Filename:    p.Filename,
			ContentType: p.ContentType.MediaType(),
			Disposition: p.Disposition,
			Size:        int64(p.Size),
		}
	}

	return rec, attachments, nil
}
