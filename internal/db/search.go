package db

import (
	"fmt"
	"strings"
)

// SearchResult represents a search result with snippet
type SearchResult struct {
	Message
	Snippet string `db:"snippet" json:"snippet"`
}

// ftsQuery turns free text into an FTS5 query where every term is a quoted prefix
// match: `john doe` -> `"john"* "doe"*`. Quoting keeps punctuation such as @ and -
// from being read as FTS5 syntax.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"*`
	}
	return strings.Join(quoted, " ")
}

// SearchMessages performs a full-text search over subject, return address, thread
// name and text body. An empty query lists the most recent messages.
func (db *DB) SearchMessages(query string, limit int) ([]*SearchResult, error) {
	match := ftsQuery(query)
	if match == "" {
		msgs, err := db.ListMessages(limit, 0)
		if err != nil {
			return nil, err
		}

		results := make([]*SearchResult, len(msgs))
		for i, msg := range msgs {
			results[i] = &SearchResult{
				Message: *msg,
				Snippet: truncateText(msg.BodyText, 200),
			}
		}
		return results, nil
	}

	var results []*SearchResult
	err := db.Select(&results, `
		SELECT
			m.id, m.source_path, m.source_index, m.message_id, m.in_reply_to,
			m.subject, m.thread_name, m.return_address, m.date,
			m.text_body_count, m.html_body_count, m.attachment_count,
			m.fields_json, m.projection_error, m.body_text, m.body_html, m.size, m.indexed_at,
			snippet(messages_fts, 3, '<mark>', '</mark>', '...', 32) AS snippet
		FROM messages m
		JOIN messages_fts ON m.id = messages_fts.rowid
		WHERE messages_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}

	return results, nil
}

// truncateText truncates text to maxLen bytes without splitting a UTF-8 sequence
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	cut := maxLen
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
