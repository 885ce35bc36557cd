package parser

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nestedMultipart builds a message whose body is levels multipart/mixed parts,
// each wrapping the next, around a single text/plain leaf.
func nestedMultipart(levels int) []byte {
	var b strings.Builder
	b.WriteString("From: deep@example.com\r\nSubject: deep\r\n")
	for i := 0; i < levels; i++ {
		fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=\"level-%d\"\r\n\r\n", i)
		fmt.Fprintf(&b, "--level-%d\r\n", i)
	}
	b.WriteString("Content-Type: text/plain\r\n\r\nbottom\r\n")
	for i := levels - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "--level-%d--\r\n", i)
	}
	return []byte(b.String())
}

func TestParse_FoldedHeaderEquivalence(t *testing.T) {
	folded, err := Parse([]byte("Subject: Hello\r\n world\r\nTo: a@example.com,\r\n\tb@example.com\r\n\r\nbody"))
	require.NoError(t, err)
	unfolded, err := Parse([]byte("Subject: Hello world\r\nTo: a@example.com, b@example.com\r\n\r\nbody"))
	require.NoError(t, err)

	s1, _ := folded.Subject()
	s2, _ := unfolded.Subject()
	assert.Equal(t, s2, s1)
	assert.Equal(t, "Hello world", s1)
	assert.Equal(t, unfolded.To(), folded.To())
}

func TestParse_EncodedSubject(t *testing.T) {
	m, err := Parse([]byte("Subject: =?UTF-8?B?SGVsbG8=?=\r\n\r\n"))
	require.NoError(t, err)

	subject, ok := m.Subject()
	require.True(t, ok)
	assert.Equal(t, "Hello", subject)

	h, ok := m.Header("subject")
	require.True(t, ok)
	assert.Equal(t, "=?UTF-8?B?SGVsbG8=?=", string(h.Raw), "raw value is kept undecoded")
}

func TestParse_MissingSeparator(t *testing.T) {
	m, err := Parse([]byte("From: a@example.com\r\nSubject: no body"))
	require.NoError(t, err)

	assert.Len(t, m.Headers(), 2)
	subject, _ := m.Subject()
	assert.Equal(t, "no body", subject)

	text, ok := m.BodyText(0)
	require.True(t, ok)
	assert.Empty(t, text)

	require.Len(t, m.Warnings(), 1)
	assert.ErrorIs(t, m.Warnings()[0], ErrMalformedMessage)
}

func TestParse_BareLineEndings(t *testing.T) {
	m, err := Parse([]byte("Subject: lf only\nTo: x@example.com\n\nline one\nline two\n"))
	require.NoError(t, err)

	subject, _ := m.Subject()
	assert.Equal(t, "lf only", subject)
	text, _ := m.BodyText(0)
	assert.Equal(t, "line one\nline two\n", text)
	assert.Empty(t, m.Warnings())
}

func TestParse_EnvelopeLine(t *testing.T) {
	m, err := Parse([]byte("From alice@example.com Mon Jan  1 10:00:00 2024\r\nFrom: alice@example.com\r\n\r\nhi"))
	require.NoError(t, err)

	require.Len(t, m.Headers(), 1)
	assert.Equal(t, "From", m.Headers()[0].Name)
	assert.Empty(t, m.Warnings())
}

func TestParse_DepthExceeded(t *testing.T) {
	m, err := Parse(nestedMultipart(101))
	require.NoError(t, err)

	assert.Equal(t, 1, m.AttachmentCount())
	assert.Equal(t, 0, m.TextBodyCount())

	var depthErr bool
	for _, w := range m.Warnings() {
		if errors.Is(w, ErrMimeDepthExceeded) {
			depthErr = true
		}
	}
	assert.True(t, depthErr, "expected ErrMimeDepthExceeded among %v", m.Warnings())
}

func TestParse_DepthWithinLimit(t *testing.T) {
	m, err := Parse(nestedMultipart(99))
	require.NoError(t, err)

	assert.Equal(t, 0, m.AttachmentCount())
	text, ok := m.BodyText(0)
	require.True(t, ok)
	assert.Equal(t, "bottom", text)
	assert.Empty(t, m.Warnings())
}

func TestParse_MaxDepthOption(t *testing.T) {
	m, err := ParseWithOptions(nestedMultipart(3), Options{MaxDepth: 2})
	require.NoError(t, err)

	assert.Equal(t, 1, m.AttachmentCount())
	require.NotEmpty(t, m.Warnings())
	assert.ErrorIs(t, m.Warnings()[0], ErrMimeDepthExceeded)
}

func TestParse_MissingBoundary(t *testing.T) {
	m, err := Parse([]byte("Content-Type: multipart/mixed\r\n\r\n--x\r\nhello\r\n--x--\r\n"))
	require.NoError(t, err)

	assert.Equal(t, PartText, m.Root().Kind)
	require.Len(t, m.Warnings(), 1)
	assert.ErrorIs(t, m.Warnings()[0], ErrMissingBoundary)
}

func TestParse_UnclosedMultipart(t *testing.T) {
	raw := "Content-Type: multipart/mixed; boundary=b\r\n\r\n" +
		"--b\r\nContent-Type: text/plain\r\n\r\none\r\n" +
		"--b\r\nContent-Type: text/html\r\n\r\n<p>two</p>\r\n"
	m, err := Parse([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, 1, m.TextBodyCount())
	html, ok := m.BodyHTML(0)
	require.True(t, ok)
	assert.Equal(t, "<p>two</p>\r\n", html)
}

func TestParse_DigestDefaultsToMessage(t *testing.T) {
	raw := "Content-Type: multipart/digest; boundary=d\r\n\r\n" +
		"--d\r\n\r\nSubject: inner\r\n\r\ninner body\r\n" +
		"--d--\r\n"
	m, err := Parse([]byte(raw))
	require.NoError(t, err)

	require.Len(t, m.Root().Children, 1)
	child := m.Root().Children[0]
	assert.Equal(t, "message/rfc822", child.ContentType.MediaType())
	assert.Equal(t, PartAttachment, child.Kind)
}

func TestParse_TwoTextOneHTML(t *testing.T) {
	raw := "Content-Type: multipart/mixed; boundary=b\r\n\r\n" +
		"--b\r\nContent-Type: text/plain\r\n\r\nfirst\r\n" +
		"--b\r\nContent-Type: text/html\r\n\r\n<b>html</b>\r\n" +
		"--b\r\nContent-Type: text/plain\r\n\r\nsecond\r\n" +
		"--b--\r\n"
	m, err := Parse([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, 2, m.TextBodyCount())
	assert.Equal(t, 1, m.HTMLBodyCount())

	for n := 0; n < m.TextBodyCount(); n++ {
		_, ok := m.BodyText(n)
		assert.True(t, ok, "BodyText(%d)", n)
	}
	_, ok := m.BodyText(m.TextBodyCount())
	assert.False(t, ok)

	second, _ := m.BodyText(1)
	assert.Equal(t, "second", second)
}

func TestParse_TextClassification(t *testing.T) {
	tests := []struct {
		name    string
		headers string
		kind    PartKind
	}{
		{"no content type", "", PartText},
		{"text plain", "Content-Type: text/plain\r\n", PartText},
		{"text html", "Content-Type: text/html\r\n", PartHTML},
		{"other text", "Content-Type: text/calendar\r\n", PartText},
		{"named text", "Content-Type: text/csv; name=data.csv\r\n", PartAttachment},
		{"attached plain text", "Content-Type: text/plain\r\nContent-Disposition: attachment; filename=a.txt\r\n", PartAttachment},
		{"binary", "Content-Type: application/octet-stream\r\n", PartAttachment},
		{"inline image", "Content-Type: image/gif\r\nContent-Disposition: inline\r\n", PartAttachment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse([]byte("Subject: x\r\n" + tt.headers + "\r\ncontent"))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, m.Root().Kind)
		})
	}
}

func TestParse_UnknownCharset(t *testing.T) {
	m, err := Parse([]byte("Content-Type: text/plain; charset=x-no-such-charset\r\n\r\nplain ascii"))
	require.NoError(t, err)

	text, _ := m.BodyText(0)
	assert.Equal(t, "plain ascii", text)
	require.Len(t, m.Warnings(), 1)
	assert.ErrorIs(t, m.Warnings()[0], ErrUnsupportedCharset)
}

func TestParse_InvalidUTF8IsReplaced(t *testing.T) {
	m, err := Parse([]byte("Subject: caf\xe9\r\nContent-Type: text/plain; charset=utf-8\r\n\r\nna\xefve"))
	require.NoError(t, err)

	subject, _ := m.Subject()
	assert.Equal(t, "caf�", subject)
	text, _ := m.BodyText(0)
	assert.Equal(t, "na�ve", text)
}

func TestParse_Base64TextBody(t *testing.T) {
	m, err := Parse([]byte("Content-Type: text/plain; charset=utf-8\r\nContent-Transfer-Encoding: base64\r\n\r\nSGVs\r\nbG8g\r\nd29y\r\nbGQ=\r\n"))
	require.NoError(t, err)

	text, _ := m.BodyText(0)
	assert.Equal(t, "Hello world", text)
	assert.Empty(t, m.Warnings())
}

func TestParse_ValueKinds(t *testing.T) {
	raw := "Date: Mon, 1 Jan 2024 10:00:00 +0000\r\n" +
		"Message-ID: <id@example.com>\r\n" +
		"Keywords: one, \"two\"\r\n" +
		"Content-Type: text/plain; charset=\"utf-8\"\r\n" +
		"Return-Path: <bounce@example.com>\r\n" +
		"X-Custom: anything\r\n" +
		"X-Empty:\r\n" +
		"\r\n"
	m, err := Parse([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, KindDateTime, m.Value("date").Kind)
	assert.Equal(t, KindMessageIDList, m.Value("message-id").Kind)
	assert.Equal(t, []string{"one", "two"}, m.Value("keywords").Tokens)
	assert.Equal(t, KindContentType, m.Value("content-type").Kind)
	assert.Equal(t, "utf-8", m.Value("content-type").ContentType.Param("charset"))
	assert.Equal(t, "bounce@example.com", m.Value("return-path").Text)
	assert.Equal(t, "anything", m.Value("x-custom").Text)
	assert.True(t, m.Value("x-empty").IsEmpty())
	assert.Equal(t, KindEmpty, m.Value("x-missing").Kind)
}

func TestParse_HeadersAreCopied(t *testing.T) {
	m, err := Parse([]byte("Subject: original\r\n\r\n"))
	require.NoError(t, err)

	hs := m.Headers()
	hs[0].Name = "Changed"

	h, ok := m.Header("Subject")
	require.True(t, ok)
	assert.Equal(t, "Subject", h.Name)
}

func TestParse_ReturnAddressFallback(t *testing.T) {
	m, err := Parse([]byte("Sender: list@example.com\r\n\r\n"))
	require.NoError(t, err)

	addr, ok := m.ReturnAddress()
	require.True(t, ok)
	assert.Equal(t, "list@example.com", addr)

	m, err = Parse([]byte("Subject: nobody\r\n\r\n"))
	require.NoError(t, err)
	_, ok = m.ReturnAddress()
	assert.False(t, ok)
}

func TestParse_LongFoldedHeader(t *testing.T) {
	const folds = 100000
	var b strings.Builder
	b.WriteString("Subject: x\r\n")
	for i := 0; i < folds; i++ {
		b.WriteString(" abcdefghij\r\n")
	}
	b.WriteString("\r\nbody")

	m, err := Parse([]byte(b.String()))
	require.NoError(t, err)

	subject, ok := m.Subject()
	require.True(t, ok)
	assert.Len(t, subject, 1+folds*len(" abcdefghij"))
	text, _ := m.BodyText(0)
	assert.Equal(t, "body", text)
}

func TestParse_HeaderlessParts(t *testing.T) {
	raw := "Content-Type: multipart/mixed; boundary=b\r\n\r\n" +
		"--b\r\nNote: keep me\r\nsecond line\r\n" +
		"--b\r\nAgenda: one line\r\n" +
		"--b\r\nContent-Type: text/html\r\n\r\n<p>html</p>\r\n" +
		"--b--\r\n"
	m, err := Parse([]byte(raw))
	require.NoError(t, err)

	require.Equal(t, 2, m.TextBodyCount())
	first, _ := m.BodyText(0)
	assert.Equal(t, "Note: keep me\r\nsecond line", first)
	second, _ := m.BodyText(1)
	assert.Equal(t, "Agenda: one line", second)
	html, _ := m.BodyHTML(0)
	assert.Equal(t, "<p>html</p>", html)
	assert.Empty(t, m.Warnings())
}

func TestParse_QuotedKeywords(t *testing.T) {
	m, err := Parse([]byte("Keywords: \"a, b\", c, =?utf-8?q?caf=C3=A9?=\r\n\r\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a, b", "c", "café"}, m.Value("keywords").Tokens)
}
