package db

import (
	"fmt"
	"testing"
	"time"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database
func CleanupTestDB(t *testing.T, db *DB) {
	t.Helper()

	if err := db.Close(); err != nil {
		t.Errorf("Failed to close test database: %v", err)
	}
}

// CreateTestMessage creates a test message with default values
func CreateTestMessage(subject, returnAddress, body string) *Message {
	return &Message{
		SourcePath:    fmt.Sprintf("test/%s.eml", subject),
		MessageID:     fmt.Sprintf("%s@test.com", subject),
		Subject:       subject,
		ThreadName:    subject,
		ReturnAddress: returnAddress,
		Date:          NewNullTime(time.Now()),
		TextBodyCount: 1,
		FieldsJSON:    fmt.Sprintf(`{"subject":%q}`, subject),
		BodyText:      body,
		Size:          int64(len(body)),
	}
}

// CreateTestMessageWithDate creates a test message with a specific date
func CreateTestMessageWithDate(subject, returnAddress, body string, date time.Time) *Message {
	msg := CreateTestMessage(subject, returnAddress, body)
	msg.Date = NewNullTime(date)
	return msg
}

// InsertTestMessages inserts multiple test messages and returns them
func InsertTestMessages(t *testing.T, db *DB, msgs []*Message) []*Message {
	t.Helper()

	for i, msg := range msgs {
		if _, err := db.InsertMessage(msg, nil); err != nil {
			t.Fatalf("Failed to insert test message %d: %v", i, err)
		}
	}

	return msgs
}
