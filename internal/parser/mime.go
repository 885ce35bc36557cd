package parser

import (
	"bytes"
	"fmt"
	"strings"
)

// DefaultMaxDepth bounds MIME nesting. The root part is at depth 1.
const DefaultMaxDepth = 100

// walker builds the BodyPart tree over an immutable buffer.
type walker struct {
	raw      []byte
	maxDepth int
	diag     *diagnostics
}

// build classifies the part whose body is raw[start:end] and recurses into
// multipart children. defaultType applies when the part has no Content-Type.
func (w *walker) build(headers []HeaderField, start, end, depth int, defaultType ContentType) *BodyPart {
	p := &BodyPart{Headers: headers, ContentType: defaultType}

	if v, ok := firstValue(headers, "content-type"); ok && v.Kind == KindContentType && v.ContentType.Type != "" {
		p.ContentType = v.ContentType
	}
	if v, ok := firstValue(headers, "content-disposition"); ok && v.Kind == KindContentType {
		p.Disposition = v.ContentType.Type
		p.Filename = v.ContentType.Param("filename")
	}
	if p.Filename == "" {
		p.Filename = p.ContentType.Param("name")
	}
	cte := ""
	if v, ok := firstValue(headers, "content-transfer-encoding"); ok {
		cte = v.Text
	}
	body := w.raw[start:end]

	if depth > w.maxDepth {
		w.diag.add(fmt.Errorf("%w: part at depth %d", ErrMimeDepthExceeded, depth))
		return w.attachment(p, cte, body)
	}

	ct := p.ContentType
	switch {
	case ct.Type == "multipart":
		boundary := ct.Param("boundary")
		if boundary == "" {
			w.diag.add(fmt.Errorf("%w: %s", ErrMissingBoundary, ct.MediaType()))
			return w.text(p, PartText, cte, body)
		}
		return w.multipart(p, boundary, start, end, depth)
	case p.Disposition == "attachment":
		return w.attachment(p, cte, body)
	case ct.Type == "text" && ct.Subtype == "plain":
		return w.text(p, PartText, cte, body)
	case ct.Type == "text" && ct.Subtype == "html":
		return w.text(p, PartHTML, cte, body)
	case ct.Type == "text" && p.Filename == "":
		return w.text(p, PartText, cte, body)
	default:
		return w.attachment(p, cte, body)
	}
}

func (w *walker) text(p *BodyPart, kind PartKind, cte string, body []byte) *BodyPart {
	decoded, err := decodeTransfer(cte, body)
	w.diag.add(err)
	p.Kind = kind
	p.Content = decodeText(p.ContentType.Param("charset"), decoded, w.diag)
	p.Size = len(decoded)
	return p
}

func (w *walker) attachment(p *BodyPart, cte string, body []byte) *BodyPart {
	p.Kind = PartAttachment
	p.Size = decodedSize(cte, body)
	return p
}

func (w *walker) multipart(p *BodyPart, boundary string, start, end, depth int) *BodyPart {
	p.Kind = PartMultipart
	p.Subtype = p.ContentType.Subtype

	childDefault := ContentType{Type: "text", Subtype: "plain", Params: map[string]string{}}
	if p.Subtype == "digest" {
		childDefault = ContentType{Type: "message", Subtype: "rfc822", Params: map[string]string{}}
	}

	segments := splitMultipart(w.raw[start:end], boundary)
	if len(segments) == 0 {
		w.diag.add(fmt.Errorf("%w: boundary %q not found in body", ErrMissingBoundary, boundary))
	}
	for _, seg := range segments {
		segStart, segEnd := start+seg[0], start+seg[1]
		fields, off, err := splitHeader(w.raw[segStart:segEnd])
		if err != nil {
			// No blank line ends a header block, so the segment has none: lines
			// such as "Note: ..." are content, not fields.
			fields, off = nil, 0
		}
		headers := make([]HeaderField, 0, len(fields))
		for _, rf := range fields {
			headers = append(headers, parseField(rf, w.diag))
		}
		p.Children = append(p.Children, w.build(headers, segStart+off, segEnd, depth+1, childDefault))
	}
	return p
}

// splitMultipart returns the [start,end) offsets of each part between delimiter
// lines. The line break before a delimiter belongs to the delimiter. A missing close
// delimiter ends the last part at the end of body.
func splitMultipart(body []byte, boundary string) [][2]int {
	delim := []byte("--" + boundary)
	var segments [][2]int
	start := -1
	pos := 0
	for pos < len(body) {
		line, next := nextLine(body, pos)
		if isDelimiter, closing := matchDelimiter(line, delim); isDelimiter {
			if start >= 0 {
				segments = append(segments, [2]int{start, trimLineBreak(body, start, pos)})
			}
			if closing {
				return segments
			}
			start = next
		}
		pos = next
	}
	if start >= 0 && start < len(body) {
		segments = append(segments, [2]int{start, len(body)})
	}
	return segments
}

func matchDelimiter(line, delim []byte) (bool, bool) {
	if !bytes.HasPrefix(line, delim) {
		return false, false
	}
	rest := line[len(delim):]
	closing := false
	if bytes.HasPrefix(rest, []byte("--")) {
		closing = true
		rest = rest[2:]
	}
	if len(bytes.TrimRight(rest, " \t")) != 0 {
		return false, false
	}
	return true, closing
}

func trimLineBreak(body []byte, start, end int) int {
	if end > start && body[end-1] == '\n' {
		end--
		if end > start && body[end-1] == '\r' {
			end--
		}
	}
	return end
}

// firstValue returns the parsed value of the first header named name.
func firstValue(headers []HeaderField, name string) (HeaderValue, bool) {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return HeaderValue{}, false
}
