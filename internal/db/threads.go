package db

import (
	"errors"
	"fmt"
)

// ErrCircularReference is returned when In-Reply-To links form a loop.
var ErrCircularReference = errors.New("circular reference in reply chain")

// maxHops bounds how far findThreadRoot follows In-Reply-To links.
const maxHops = 100

// GetReplies retrieves all messages that directly reply to messageID
func (db *DB) GetReplies(messageID string) ([]*Message, error) {
	if messageID == "" {
		return []*Message{}, nil
	}

	var msgs []*Message
	err := db.Select(&msgs, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE in_reply_to = ?
		ORDER BY date ASC, id ASC
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get replies: %w", err)
	}
	return msgs, nil
}

// findThreadRoot follows In-Reply-To links up to the oldest stored ancestor.
func (db *DB) findThreadRoot(msg *Message) (*Message, error) {
	current := msg
	visited := map[string]bool{}
	if current.MessageID != "" {
		visited[current.MessageID] = true
	}

	for hops := 0; current.InReplyTo != "" && hops < maxHops; hops++ {
		if visited[current.InReplyTo] {
			return nil, fmt.Errorf("%w at %s", ErrCircularReference, current.InReplyTo)
		}
		parent, err := db.GetMessageByMessageID(current.InReplyTo)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}
		visited[parent.MessageID] = true
		current = parent
	}

	return current, nil
}

// GetThread returns every stored message of the conversation containing message
// id, oldest first. Loops in the reply chain end the walk upwards at the message
// itself.
func (db *DB) GetThread(id int64) ([]*Message, error) {
	msg, err := db.GetMessage(id)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("message %d not found", id)
	}

	root, err := db.findThreadRoot(msg)
	if errors.Is(err, ErrCircularReference) {
		root = msg
	} else if err != nil {
		return nil, err
	}

	if root.MessageID == "" {
		return []*Message{root}, nil
	}

	var msgs []*Message
	err = db.Select(&msgs, `
		WITH RECURSIVE thread(id, message_id) AS (
			SELECT id, message_id FROM messages WHERE id = ?

			UNION

			SELECT m.id, m.message_id
			FROM messages m
			INNER JOIN thread t ON m.in_reply_to = t.message_id
			WHERE t.message_id != ''
		)
		SELECT `+messageColumns+`
		FROM messages
		WHERE id IN (SELECT id FROM thread)
		ORDER BY date ASC, id ASC
	`, root.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return msgs, nil
}

// CountReplies counts the direct and indirect replies to messageID
func (db *DB) CountReplies(messageID string) (int, error) {
	if messageID == "" {
		return 0, nil
	}

	var count int
	err := db.Get(&count, `
		WITH RECURSIVE replies(id, message_id) AS (
			SELECT id, message_id
			FROM messages
			WHERE in_reply_to = ?

			UNION

			SELECT m.id, m.message_id
			FROM messages m
			INNER JOIN replies r ON m.in_reply_to = r.message_id
			WHERE r.message_id != ''
		)
		SELECT COUNT(*) FROM replies
	`, messageID)
	if err != nil {
		return 0, fmt.Errorf("failed to count replies: %w", err)
	}
	return count, nil
}
