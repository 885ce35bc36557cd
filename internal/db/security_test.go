package db

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPathTraversal tests the path traversal protection
func TestPathTraversal(t *testing.T) {
	root := t.TempDir()
	db := &DB{sourcePath: root}

	tests := []struct {
		name        string
		path        string
		shouldError bool
	}{
		{name: "Valid relative path", path: "inbox/test.eml"},
		{name: "Path traversal with ../", path: "../../../etc/passwd", shouldError: true},
		{name: "Path traversal hidden in path", path: "inbox/../../etc/shadow", shouldError: true},
		{name: "Absolute path", path: "/etc/passwd", shouldError: true},
		{name: "Empty path", path: "", shouldError: true},
		{name: "Valid file starting with dots", path: "inbox/..hidden.eml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := db.ResolveSourcePath(tt.path)
			if tt.shouldError {
				assert.ErrorIs(t, err, ErrPathTraversal)
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(resolved, root), "%q is not within %q", resolved, root)
			assert.Equal(t, filepath.Join(root, filepath.FromSlash(tt.path)), resolved)
		})
	}
}

// TestCircularReferenceDetection tests the thread walk protection
func TestCircularReferenceDetection(t *testing.T) {
	testDB := SetupTestDB(t)
	defer CleanupTestDB(t, testDB)

	msg1 := &Message{SourcePath: "msg1.eml", MessageID: "msg1@example.com", InReplyTo: "msg2@example.com", Subject: "Message 1"}
	msg2 := &Message{SourcePath: "msg2.eml", MessageID: "msg2@example.com", InReplyTo: "msg1@example.com", Subject: "Message 2"}
	InsertTestMessages(t, testDB, []*Message{msg1, msg2})

	_, err := testDB.findThreadRoot(msg1)
	assert.ErrorIs(t, err, ErrCircularReference)

	thread, err := testDB.GetThread(msg1.ID)
	require.NoError(t, err, "loops do not break thread lookups")
	assert.Len(t, thread, 2)

	count, err := testDB.CountReplies("msg1@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// TestMaxHopsProtection tests that long reply chains terminate
func TestMaxHopsProtection(t *testing.T) {
	testDB := SetupTestDB(t)
	defer CleanupTestDB(t, testDB)

	prevMessageID := ""
	var last *Message
	for i := 0; i < 150; i++ {
		last = &Message{
			SourcePath: fmt.Sprintf("msg%d.eml", i),
			MessageID:  fmt.Sprintf("msg%d@example.com", i),
			InReplyTo:  prevMessageID,
			Subject:    "Message in chain",
		}
		InsertTestMessages(t, testDB, []*Message{last})
		prevMessageID = last.MessageID
	}

	root, err := testDB.findThreadRoot(last)
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, "msg49@example.com", root.MessageID, "walk stops after maxHops")
}

// TestGetThread tests collecting a conversation from any of its messages
func TestGetThread(t *testing.T) {
	testDB := SetupTestDB(t)
	defer CleanupTestDB(t, testDB)

	root := CreateTestMessage("root", "a@example.com", "start")
	reply := CreateTestMessage("reply", "b@example.com", "answer")
	reply.InReplyTo = root.MessageID
	nested := CreateTestMessage("nested", "a@example.com", "follow up")
	nested.InReplyTo = reply.MessageID
	other := CreateTestMessage("other", "c@example.com", "unrelated")
	InsertTestMessages(t, testDB, []*Message{root, reply, nested, other})

	thread, err := testDB.GetThread(nested.ID)
	require.NoError(t, err)
	require.Len(t, thread, 3)
	ids := []int64{thread[0].ID, thread[1].ID, thread[2].ID}
	assert.ElementsMatch(t, []int64{root.ID, reply.ID, nested.ID}, ids)

	replies, err := testDB.GetReplies(root.MessageID)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, reply.ID, replies[0].ID)

	count, err := testDB.CountReplies(root.MessageID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	alone, err := testDB.GetThread(other.ID)
	require.NoError(t, err)
	assert.Len(t, alone, 1)

	_, err = testDB.GetThread(9999)
	assert.Error(t, err)
}
