package parser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/quotedprintable"
	"strings"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
)

func init() {
	// Register additional charsets that are commonly used in emails
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("cp1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
	charset.RegisterEncoding("koi8-r", charmap.KOI8R)
}

// textDecoder turns bytes in some charset into valid UTF-8.
type textDecoder func([]byte) (string, error)

func decodeUTF8(b []byte) (string, error) {
	return strings.ToValidUTF8(string(b), "\uFFFD"), nil
}

// selectDecoder picks the decoding strategy for a declared charset. Unknown
// charsets fall back to UTF-8 with replacement characters and an
// ErrUnsupportedCharset error that callers treat as a warning.
func selectDecoder(name string) (textDecoder, error) {
	norm := strings.ToLower(strings.Trim(strings.TrimSpace(name), `"'`))
	switch norm {
	case "", "utf-8", "utf8", "us-ascii", "ascii", "unicode-1-1-utf-8", "x-unknown", "unknown-8bit":
		return decodeUTF8, nil
	}

	if _, err := charset.Reader(norm, bytes.NewReader(nil)); err != nil {
		return decodeUTF8, fmt.Errorf("%w %q", ErrUnsupportedCharset, name)
	}

	return func(b []byte) (string, error) {
		r, err := charset.Reader(norm, bytes.NewReader(b))
		if err != nil {
			return decodeUTF8(b)
		}
		out, err := io.ReadAll(r)
		s, _ := decodeUTF8(out)
		if err != nil {
			return s, fmt.Errorf("%w: charset %s: %v", ErrDecodeFallback, norm, err)
		}
		return s, nil
	}, nil
}

// decodeText applies the charset strategy for name to b, recording fallbacks in d.
func decodeText(name string, b []byte, d *diagnostics) string {
	dec, err := selectDecoder(name)
	d.add(err)
	s, err := dec(b)
	d.add(err)
	return s
}

// wordDecoder returns an RFC 2047 decoder whose charset lookups never fail; unknown
// charsets are replaced and recorded in d.
func (d *diagnostics) wordDecoder() *mime.WordDecoder {
	return &mime.WordDecoder{
		CharsetReader: func(cs string, input io.Reader) (io.Reader, error) {
			b, err := io.ReadAll(input)
			if err != nil {
				return nil, err
			}
			return strings.NewReader(decodeText(cs, b, d)), nil
		},
	}
}

// decodeWords decodes RFC 2047 encoded words in s. On malformed input the original
// text is kept.
func decodeWords(s string, d *diagnostics) string {
	if !strings.Contains(s, "=?") {
		return strings.ToValidUTF8(s, "\uFFFD")
	}
	decoded, err := d.wordDecoder().DecodeHeader(s)
	if err != nil {
		return strings.ToValidUTF8(s, "\uFFFD")
	}
	return strings.ToValidUTF8(decoded, "\uFFFD")
}

// normalizeEncoding lowercases a Content-Transfer-Encoding value.
func normalizeEncoding(cte string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(cte), `"`))
}

// decodeTransfer reverses the Content-Transfer-Encoding of body. Identity encodings
// return body unchanged. On failure the partially decoded bytes are returned
// alongside an ErrDecodeFallback error.
func decodeTransfer(cte string, body []byte) ([]byte, error) {
	switch normalizeEncoding(cte) {
	case "quoted-printable":
		out, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(body)))
		if err != nil {
			return out, fmt.Errorf("%w: quoted-printable: %v", ErrDecodeFallback, err)
		}
		return out, nil
	case "base64":
		return decodeBase64(body)
	default:
		return body, nil
	}
}

// decodeBase64 decodes body ignoring whitespace, stray characters and padding.
func decodeBase64(body []byte) ([]byte, error) {
	clean := make([]byte, 0, len(body))
	for _, c := range body {
		if isBase64Char(c) {
			clean = append(clean, c)
		}
	}

	var err error
	if len(clean)%4 == 1 {
		clean = clean[:len(clean)-1]
		err = fmt.Errorf("%w: base64: truncated input", ErrDecodeFallback)
	}

	out := make([]byte, base64.RawStdEncoding.DecodedLen(len(clean)))
	n, derr := base64.RawStdEncoding.Decode(out, clean)
	if derr != nil {
		return out[:n], fmt.Errorf("%w: base64: %v", ErrDecodeFallback, derr)
	}
	return out[:n], err
}

// decodedSize reports the decoded length of body without keeping the decoded bytes.
func decodedSize(cte string, body []byte) int {
	switch normalizeEncoding(cte) {
	case "quoted-printable":
		n, _ := io.Copy(io.Discard, quotedprintable.NewReader(bytes.NewReader(body)))
		return int(n)
	case "base64":
		chars := 0
		for _, c := range body {
			if isBase64Char(c) {
				chars++
			}
		}
		return chars * 6 / 8
	default:
		return len(body)
	}
}

func isBase64Char(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '+' || c == '/'
}
