package db

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// dateLayout keeps stored dates fixed-width so they sort as text.
const dateLayout = "2006-01-02T15:04:05Z07:00"

// NullTime is a nullable timestamp stored as text
type NullTime struct {
	Time  time.Time
	Valid bool
}

// NewNullTime wraps t as a valid NullTime
func NewNullTime(t time.Time) NullTime {
	return NullTime{Time: t, Valid: true}
}

// Scan implements sql.Scanner for NullTime
func (nt *NullTime) Scan(value interface{}) error {
	if value == nil {
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		nt.Time, nt.Valid = v, true
		return nil
	case []byte:
		return nt.parse(string(v))
	case string:
		return nt.parse(v)
	default:
		return fmt.Errorf("unsupported Scan type for NullTime: %T", value)
	}
}

func (nt *NullTime) parse(v string) error {
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999 -0700",
		"2006-01-02 15:04:05",
	}

	var err error
	for _, format := range formats {
		var t time.Time
		if t, err = time.Parse(format, v); err == nil {
			nt.Time, nt.Valid = t, true
			return nil
		}
	}
	return fmt.Errorf("failed to parse time string %q: %w", v, err)
}

// Value implements driver.Valuer for NullTime
func (nt NullTime) Value() (driver.Value, error) {
	if !nt.Valid {
		return nil, nil
	}
	return nt.Time.UTC().Format(dateLayout), nil
}

// MarshalJSON renders the time as RFC 3339, or null.
func (nt NullTime) MarshalJSON() ([]byte, error) {
	if !nt.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(nt.Time.Format(time.RFC3339))
}

// Message is one indexed message: its projected fields, decoded bodies and enough
// of the source location to parse it again.
type Message struct {
	ID              int64    `db:"id" json:"id"`
	SourcePath      string   `db:"source_path" json:"source_path"`
	SourceIndex     int      `db:"source_index" json:"source_index"`
	MessageID       string   `db:"message_id" json:"message_id,omitempty"`
	InReplyTo       string   `db:"in_reply_to" json:"in_reply_to,omitempty"`
	Subject         string   `db:"subject" json:"subject"`
	ThreadName      string   `db:"thread_name" json:"thread_name,omitempty"`
	ReturnAddress   string   `db:"return_address" json:"return_address,omitempty"`
	Date            NullTime `db:"date" json:"date"`
	TextBodyCount   int      `db:"text_body_count" json:"text_body_count"`
	HTMLBodyCount   int      `db:"html_body_count" json:"html_body_count"`
	AttachmentCount int      `db:"attachment_count" json:"attachment_count"`
	FieldsJSON      string   `db:"fields_json" json:"-"`
	ProjectionError string   `db:"projection_error" json:"projection_error,omitempty"`
	BodyText        string   `db:"body_text" json:"-"`
	BodyHTML        string   `db:"body_html" json:"-"`
	Size            int64    `db:"size" json:"size"`
	IndexedAt       NullTime `db:"indexed_at" json:"indexed_at"`
}

// Attachment is attachment metadata; the bytes stay in the source file.
type Attachment struct {
	ID          int64  `db:"id" json:"id"`
	MessageID   int64  `db:"message_id" json:"-"`
	Position    int    `db:"position" json:"position"`
	Filename    string `db:"filename" json:"filename"`
	ContentType string `db:"content_type" json:"content_type"`
	Disposition string `db:"disposition" json:"disposition,omitempty"`
	Size        int64  `db:"size" json:"size"`
}

const messageColumns = `
	id, source_path, source_index, message_id, in_reply_to,
	subject, thread_name, return_address, date,
	text_body_count, html_body_count, attachment_count,
	fields_json, projection_error, body_text, body_html, size, indexed_at`

const insertMessage = `
	INSERT INTO messages (
		source_path, source_index, message_id, in_reply_to,
		subject, thread_name, return_address, date,
		text_body_count, html_body_count, attachment_count,
		fields_json, projection_error, body_text, body_html, size
	) VALUES (
		:source_path, :source_index, :message_id, :in_reply_to,
		:subject, :thread_name, :return_address, :date,
		:text_body_count, :html_body_count, :attachment_count,
		:fields_json, :projection_error, :body_text, :body_html, :size
	)`

const insertAttachment = `
	INSERT INTO attachments (message_id, position, filename, content_type, disposition, size)
	VALUES (:message_id, :position, :filename, :content_type, :disposition, :size)`

// InsertMessage stores msg and its attachments in one transaction and returns the
// new message ID. msg.ID and the attachments' IDs are filled in.
func (db *DB) InsertMessage(msg *Message, attachments []*Attachment) (int64, error) {
	tx, err := db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.NamedExec(insertMessage, msg)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message %s#%d: %w", msg.SourcePath, msg.SourceIndex, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err := insertAttachments(tx, id, attachments); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	msg.ID = id
	return id, nil
}

func insertAttachments(tx *sqlx.Tx, messageID int64, attachments []*Attachment) error {
	for _, att := range attachments {
		att.MessageID = messageID
		result, err := tx.NamedExec(insertAttachment, att)
		if err != nil {
			return fmt.Errorf("failed to insert attachment %q: %w", att.Filename, err)
		}
		if att.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
	}
	return nil
}

// MessageExists checks if the message at sourceIndex of sourcePath is already stored
func (db *DB) MessageExists(sourcePath string, sourceIndex int) (bool, error) {
	var exists bool
	err := db.Get(&exists,
		"SELECT EXISTS(SELECT 1 FROM messages WHERE source_path = ? AND source_index = ?)",
		sourcePath, sourceIndex)
	if err != nil {
		return false, fmt.Errorf("failed to check message existence: %w", err)
	}
	return exists, nil
}

// SourcesIndexed reports, for each path, whether any message from it is stored.
func (db *DB) SourcesIndexed(paths []string) (map[string]bool, error) {
	result := make(map[string]bool, len(paths))
	if len(paths) == 0 {
		return result, nil
	}

	// SQLite limits the number of bound variables per statement
	const chunkSize = 500
	for i := 0; i < len(paths); i += chunkSize {
		end := min(i+chunkSize, len(paths))
		chunk := paths[i:end]

		query, args, err := sqlx.In("SELECT DISTINCT source_path FROM messages WHERE source_path IN (?)", chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to build existence query: %w", err)
		}

		var found []string
		if err := db.Select(&found, db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("failed to check source existence: %w", err)
		}

		for _, p := range chunk {
			result[p] = false
		}
		for _, p := range found {
			result[p] = true
		}
	}

	return result, nil
}

// GetMessage retrieves a message by its ID, or nil if there is none
func (db *DB) GetMessage(id int64) (*Message, error) {
	msg := &Message{}
	err := db.Get(msg, "SELECT "+messageColumns+" FROM messages WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// GetMessageByMessageID retrieves the first message with the given Message-ID
func (db *DB) GetMessageByMessageID(messageID string) (*Message, error) {
	if messageID == "" {
		return nil, nil
	}

	msg := &Message{}
	err := db.Get(msg, "SELECT "+messageColumns+" FROM messages WHERE message_id = ? ORDER BY id LIMIT 1", messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message by message_id: %w", err)
	}
	return msg, nil
}

// ListMessages retrieves the most recent messages with pagination
func (db *DB) ListMessages(limit, offset int) ([]*Message, error) {
	var msgs []*Message
	err := db.Select(&msgs, `
		SELECT `+messageColumns+`
		FROM messages
		ORDER BY date DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

// CountMessages returns the total number of messages
func (db *DB) CountMessages() (int, error) {
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM messages"); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// GetAttachments retrieves all attachments of a message in body order
func (db *DB) GetAttachments(messageID int64) ([]*Attachment, error) {
	var atts []*Attachment
	err := db.Select(&atts, `
		SELECT id, message_id, position, filename, content_type, disposition, size
		FROM attachments WHERE message_id = ?
		ORDER BY position
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	return atts, nil
}

// DeleteMessage deletes a message and its attachments. The source file is kept.
func (db *DB) DeleteMessage(id int64) error {
	result, err := db.Exec("DELETE FROM messages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("message %d not found", id)
	}
	return nil
}

// Stats holds database statistics
type Stats struct {
	TotalMessages    int      `db:"total" json:"total_messages"`
	WithAttachments  int      `db:"with_attachments" json:"with_attachments"`
	ProjectionErrors int      `db:"projection_errors" json:"projection_errors"`
	LastIndexed      NullTime `db:"last_indexed" json:"last_indexed"`
}

// GetStats returns current database statistics
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}
	err := db.Get(stats, `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(attachment_count > 0), 0) AS with_attachments,
			COALESCE(SUM(projection_error != ''), 0) AS projection_errors,
			MAX(indexed_at) AS last_indexed
		FROM messages
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}
