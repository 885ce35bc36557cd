package parser

import (
	"mime"
	"strings"
	"time"
)

// Kind identifies which variant a HeaderValue holds.
type Kind int

const (
	KindEmpty Kind = iota
	KindText
	KindAddressList
	KindDateTime
	KindMessageIDList
	KindTokenList
	KindContentType
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindText:
		return "text"
	case KindAddressList:
		return "address-list"
	case KindDateTime:
		return "date-time"
	case KindMessageIDList:
		return "message-id-list"
	case KindTokenList:
		return "token-list"
	case KindContentType:
		return "content-type"
	default:
		return "unknown"
	}
}

// ContentType is a parsed Content-Type or Content-Disposition value. Type and
// parameter names are lowercase.
type ContentType struct {
	Type    string
	Subtype string
	Params  map[string]string
}

// MediaType returns "type/subtype", or just the type when there is no subtype.
func (c ContentType) MediaType() string {
	if c.Subtype == "" {
		return c.Type
	}
	return c.Type + "/" + c.Subtype
}

// Param returns the named parameter, or "".
func (c ContentType) Param(name string) string {
	return c.Params[strings.ToLower(name)]
}

// HeaderValue is the typed interpretation of a header's raw value. Only the field
// matching Kind is set.
type HeaderValue struct {
	Kind        Kind
	Text        string
	Addresses   AddressList
	Date        time.Time
	IDs         []string
	Tokens      []string
	ContentType ContentType
}

// IsEmpty reports whether the value carries nothing worth projecting.
func (v HeaderValue) IsEmpty() bool {
	switch v.Kind {
	case KindEmpty:
		return true
	case KindText:
		return v.Text == ""
	case KindAddressList:
		return len(v.Addresses) == 0
	case KindDateTime:
		return v.Date.IsZero()
	case KindMessageIDList:
		return len(v.IDs) == 0
	case KindTokenList:
		return len(v.Tokens) == 0
	case KindContentType:
		return v.ContentType.Type == ""
	}
	return true
}

// HeaderField is one header line of a message or body part.
type HeaderField struct {
	Name  string
	Raw   []byte
	Value HeaderValue
}

// fieldClass maps lowercase header names to the variant they parse into. Names not
// listed are unstructured text.
var fieldClass = map[string]Kind{
	"from":                KindAddressList,
	"to":                  KindAddressList,
	"cc":                  KindAddressList,
	"bcc":                 KindAddressList,
	"sender":              KindAddressList,
	"reply-to":            KindAddressList,
	"resent-from":         KindAddressList,
	"resent-to":           KindAddressList,
	"resent-cc":           KindAddressList,
	"resent-bcc":          KindAddressList,
	"resent-sender":       KindAddressList,
	"list-id":             KindAddressList,
	"date":                KindDateTime,
	"resent-date":         KindDateTime,
	"message-id":          KindMessageIDList,
	"in-reply-to":         KindMessageIDList,
	"references":          KindMessageIDList,
	"resent-message-id":   KindMessageIDList,
	"content-id":          KindMessageIDList,
	"keywords":            KindTokenList,
	"list-archive":        KindTokenList,
	"list-help":           KindTokenList,
	"list-owner":          KindTokenList,
	"list-post":           KindTokenList,
	"list-subscribe":      KindTokenList,
	"list-unsubscribe":    KindTokenList,
	"content-language":    KindTokenList,
	"content-type":        KindContentType,
	"content-disposition": KindContentType,
}

// parseField interprets a raw field according to its name class.
func parseField(rf rawField, d *diagnostics) HeaderField {
	name := string(rf.name)
	return HeaderField{
		Name:  name,
		Raw:   rf.value,
		Value: parseValue(strings.ToLower(name), string(rf.value), d),
	}
}

func parseValue(lname, raw string, d *diagnostics) HeaderValue {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return HeaderValue{Kind: KindEmpty}
	}

	switch fieldClass[lname] {
	case KindAddressList:
		return HeaderValue{Kind: KindAddressList, Addresses: parseAddressList(raw, d)}
	case KindDateTime:
		t, ok := ParseDate(raw)
		if !ok {
			// Unparseable dates keep their text so nothing is lost.
			return HeaderValue{Kind: KindText, Text: raw}
		}
		return HeaderValue{Kind: KindDateTime, Date: t}
	case KindMessageIDList:
		return HeaderValue{Kind: KindMessageIDList, IDs: parseMessageIDs(raw)}
	case KindTokenList:
		if lname == "keywords" || lname == "content-language" {
			return HeaderValue{Kind: KindTokenList, Tokens: parseKeywords(raw, d)}
		}
		return HeaderValue{Kind: KindTokenList, Tokens: parseListURLs(raw)}
	case KindContentType:
		return HeaderValue{Kind: KindContentType, ContentType: parseContentType(raw, d)}
	}

	if lname == "return-path" {
		return HeaderValue{Kind: KindText, Text: strings.TrimSpace(strings.Trim(raw, "<> \t"))}
	}
	return HeaderValue{Kind: KindText, Text: decodeWords(raw, d)}
}

// parseMessageIDs extracts <...> identifiers with brackets stripped. Values without
// any brackets are split on whitespace.
func parseMessageIDs(raw string) []string {
	var ids []string
	if !strings.Contains(raw, "<") {
		for _, f := range strings.Fields(raw) {
			f = strings.Trim(f, ",;")
			if f != "" {
				ids = append(ids, f)
			}
		}
		return ids
	}

	for {
		start := strings.IndexByte(raw, '<')
		if start < 0 {
			break
		}
		end := strings.IndexByte(raw[start:], '>')
		if end < 0 {
			if id := strings.TrimSpace(raw[start+1:]); id != "" {
				ids = append(ids, id)
			}
			break
		}
		if id := strings.TrimSpace(raw[start+1 : start+end]); id != "" {
			ids = append(ids, id)
		}
		raw = raw[start+end+1:]
	}
	return ids
}

// parseKeywords splits a comma separated phrase list, decoding encoded words.
// Commas inside quoted strings do not separate keywords.
func parseKeywords(raw string, d *diagnostics) []string {
	var tokens []string
	for _, part := range splitTopLevel(raw, ',') {
		part = strings.TrimSpace(unquote(decodeWords(strings.TrimSpace(part), d)))
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

// parseListURLs handles RFC 2369 List-* values: comma separated <url> entries,
// possibly followed by comments.
func parseListURLs(raw string) []string {
	var tokens []string
	for _, part := range splitTopLevel(raw, ',') {
		part = strings.TrimSpace(stripComments(part))
		if start := strings.IndexByte(part, '<'); start >= 0 {
			if end := strings.IndexByte(part[start:], '>'); end > 0 {
				part = part[start+1 : start+end]
			} else {
				part = part[start+1:]
			}
		}
		part = strings.TrimSpace(part)
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

// parseContentType parses a media type with parameters, falling back to a lenient
// splitter for values mime.ParseMediaType rejects.
func parseContentType(raw string, d *diagnostics) ContentType {
	mt, params, err := mime.ParseMediaType(raw)
	if err != nil || mt == "" {
		mt, params = parseMediaTypeLenient(raw)
	}

	ct := ContentType{Params: params}
	if ct.Params == nil {
		ct.Params = map[string]string{}
	}
	mt = strings.ToLower(strings.TrimSpace(mt))
	if slash := strings.IndexByte(mt, '/'); slash >= 0 {
		ct.Type, ct.Subtype = strings.TrimSpace(mt[:slash]), strings.TrimSpace(mt[slash+1:])
	} else {
		ct.Type = mt
	}

	for _, key := range []string{"name", "filename"} {
		if v, ok := ct.Params[key]; ok {
			ct.Params[key] = decodeWords(v, d)
		}
	}
	return ct
}

func parseMediaTypeLenient(raw string) (string, map[string]string) {
	parts := splitTopLevel(raw, ';')
	params := make(map[string]string)
	if len(parts) == 0 {
		return "", params
	}
	for _, p := range parts[1:] {
		eq := strings.IndexByte(p, '=')
		if eq <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(p[:eq]))
		key = strings.TrimSuffix(key, "*")
		val := unquote(strings.TrimSpace(p[eq+1:]))
		if _, dup := params[key]; !dup && key != "" {
			params[key] = val
		}
	}
	return strings.TrimSpace(parts[0]), params
}
