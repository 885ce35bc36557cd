package projector

import (
	"encoding/json"
	"testing"

	"github.com/felo/eml-extract/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *parser.Message {
	t.Helper()
	msg, err := parser.Parse([]byte(raw))
	require.NoError(t, err)
	return msg
}

func TestProject_OrderedJSON(t *testing.T) {
	msg := mustParse(t, "From: Ann <ann@example.com>\r\n"+
		"To: bob@example.com\r\n"+
		"Subject: Re: Lunch\r\n"+
		"Date: Mon, 1 Jan 2024 10:00:00 +0100\r\n"+
		"Message-ID: <m1@example.com>\r\n"+
		"MIME-Version: 1.0\r\n"+
		"X-Ignored: yes\r\n"+
		"\r\n"+
		"hi")

	doc, err := Project(msg, DefaultPolicy())
	require.NoError(t, err)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"to":[{"address":"bob@example.com"}],`+
		`"from":[{"name":"Ann","address":"ann@example.com"}],`+
		`"mime_version":"1.0",`+
		`"message_id":"m1@example.com",`+
		`"subject":"Re: Lunch",`+
		`"return_address":"ann@example.com",`+
		`"thread_name":"Lunch",`+
		`"attachment_count":0,"text_body_count":1,"html_body_count":0,`+
		`"date":"2024-01-01T10:00:00+01:00"}`, string(out))
}

func TestProject_AllKeysInOrder(t *testing.T) {
	msg := mustParse(t, "Sender: s@example.com\r\n"+
		"To: t@example.com\r\n"+
		"Cc: c@example.com\r\n"+
		"Bcc: b@example.com\r\n"+
		"From: f@example.com\r\n"+
		"Reply-To: r@example.com\r\n"+
		"Resent-Bcc: rb@example.com\r\n"+
		"Resent-Cc: rc@example.com\r\n"+
		"Resent-From: rf@example.com\r\n"+
		"Resent-Sender: rs@example.com\r\n"+
		"Resent-To: rt@example.com\r\n"+
		"Comments: a comment\r\n"+
		"In-Reply-To: <p@example.com>\r\n"+
		"Keywords: a, b\r\n"+
		"List-Archive: <https://example.com/archive>\r\n"+
		"List-Help: <mailto:help@example.com>\r\n"+
		"List-Id: Example list <list.example.com>\r\n"+
		"List-Owner: <mailto:owner@example.com>\r\n"+
		"List-Post: <mailto:list@example.com>\r\n"+
		"List-Subscribe: <mailto:join@example.com>\r\n"+
		"List-Unsubscribe: <mailto:leave@example.com>\r\n"+
		"MIME-Version: 1.0\r\n"+
		"References: <r@example.com> <p@example.com>\r\n"+
		"Return-Path: <bounce@example.com>\r\n"+
		"Message-ID: <id@example.com>\r\n"+
		"Subject: Fwd: all of it\r\n"+
		"Date: Mon, 1 Jan 2024 10:00:00 +0000\r\n"+
		"\r\n"+
		"body")

	doc, err := Project(msg, DefaultPolicy())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"sender", "to", "cc", "bcc", "from", "reply_to",
		"resent_bcc", "resent_cc", "resent_from", "resent_sender", "resent_to",
		"comments", "in_reply_to", "keywords",
		"list_archive", "list_help", "list_id", "list_owner", "list_post", "list_subscribe", "list_unsubscribe",
		"mime_version", "references", "return_path",
		"message_id", "subject", "return_address", "thread_name",
		"attachment_count", "text_body_count", "html_body_count", "date",
	}, doc.Keys())

	v, _ := doc.Get("return_address")
	assert.Equal(t, "r@example.com", v)
	v, _ = doc.Get("references")
	assert.Equal(t, []string{"r@example.com", "p@example.com"}, v)
	v, _ = doc.Get("return_path")
	assert.Equal(t, "bounce@example.com", v)
	v, _ = doc.Get("list_id")
	assert.Equal(t, []any{Mailbox{Name: "Example list", Address: "list.example.com"}}, v)
}

func TestProject_OmitsEmptyFields(t *testing.T) {
	msg := mustParse(t, "To:\r\nSubject:\r\nCc: not an address\r\nDate: Mon, 1 Jan 2024 10:00:00 +0000\r\n\r\n")

	doc, err := Project(msg, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, []string{"attachment_count", "text_body_count", "html_body_count", "date"}, doc.Keys())
}

func TestProject_Groups(t *testing.T) {
	msg := mustParse(t, "To: Team: a@example.com, B <b@example.com>;\r\nDate: Mon, 1 Jan 2024 10:00:00 +0000\r\n\r\n")

	doc, err := Project(msg, DefaultPolicy())
	require.NoError(t, err)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(out),
		`"to":[{"name":"Team","addresses":[{"address":"a@example.com"},{"name":"B","address":"b@example.com"}]}]`)
}

func TestProject_MissingDate(t *testing.T) {
	msg := mustParse(t, "From: a@example.com\r\nSubject: undated\r\n\r\nstill has a body")

	doc, err := Project(msg, DefaultPolicy())
	require.ErrorIs(t, err, ErrMissingRequiredField)
	assert.Contains(t, err.Error(), "date")
	require.NotNil(t, doc)
	assert.True(t, doc.Has("subject"))
	assert.False(t, doc.Has("date"))

	text, _ := ExtractBodies(msg, BodyOptions{})
	assert.Equal(t, "still has a body", text)
}

func TestProject_Policy(t *testing.T) {
	msg := mustParse(t, "From: a@example.com\r\n\r\n")

	_, err := Project(msg, Policy{})
	assert.NoError(t, err)

	_, err = Project(msg, Policy{Required: []string{"from", "subject"}})
	assert.ErrorIs(t, err, ErrMissingRequiredField)
	assert.Contains(t, err.Error(), "subject")
}

func TestProject_Counts(t *testing.T) {
	msg := mustParse(t, "Date: Mon, 1 Jan 2024 10:00:00 +0000\r\n"+
		"Content-Type: multipart/mixed; boundary=b\r\n\r\n"+
		"--b\r\nContent-Type: text/plain\r\n\r\none\r\n"+
		"--b\r\nContent-Type: text/html\r\n\r\n<p>two</p>\r\n"+
		"--b\r\nContent-Type: text/plain\r\n\r\nthree\r\n"+
		"--b\r\nContent-Type: application/zip\r\n\r\nPK\r\n"+
		"--b--\r\n")

	doc, err := Project(msg, DefaultPolicy())
	require.NoError(t, err)

	for key, want := range map[string]int{"attachment_count": 1, "text_body_count": 2, "html_body_count": 1} {
		v, ok := doc.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, want, v, key)
	}
}
