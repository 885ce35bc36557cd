package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/felo/eml-extract/internal/db"
	"github.com/felo/eml-extract/internal/mbox"
	"github.com/felo/eml-extract/internal/scanner"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// messagePage is the response of ListMessages
type messagePage struct {
	Total    int           `json:"total"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
	Messages []*db.Message `json:"messages"`
}

// ListMessages returns the most recent messages, paginated with limit and offset
func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", defaultPageSize, maxPageSize)
	offset := intParam(r, "offset", 0, int(^uint(0)>>1))

	msgs, err := h.db.ListMessages(limit, offset)
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to list messages", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "Failed to load messages")
		return
	}
	total, err := h.db.CountMessages()
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to count messages", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "Failed to count messages")
		return
	}
	if msgs == nil {
		msgs = []*db.Message{}
	}

	h.writeJSON(w, r, http.StatusOK, messagePage{Total: total, Limit: limit, Offset: offset, Messages: msgs})
}

// messageDetail is the response of GetMessage: the stored row plus its field
// document exactly as it was projected.
type messageDetail struct {
	*db.Message
	Fields json.RawMessage `json:"fields"`
}

// loadMessage resolves {id} and writes the error response itself when it fails
func (h *Handlers) loadMessage(w http.ResponseWriter, r *http.Request) (*db.Message, bool) {
	id, ok := messageID(r)
	if !ok {
		h.writeError(w, r, http.StatusBadRequest, "Invalid message ID")
		return nil, false
	}

	msg, err := h.db.GetMessage(id)
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to load message", "id", id, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "Failed to load message")
		return nil, false
	}
	if msg == nil {
		h.writeError(w, r, http.StatusNotFound, "Message not found")
		return nil, false
	}
	return msg, true
}

// GetMessage returns one message with its projected fields
func (h *Handlers) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.loadMessage(w, r)
	if !ok {
		return
	}

	fields := json.RawMessage(msg.FieldsJSON)
	if !json.Valid(fields) {
		fields = json.RawMessage("{}")
	}
	h.writeJSON(w, r, http.StatusOK, messageDetail{Message: msg, Fields: fields})
}

// MessageText returns the decoded text body as text/plain
func (h *Handlers) MessageText(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.loadMessage(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Write([]byte(msg.BodyText))
}

// MessageHTML returns the HTML body after sanitizing it
func (h *Handlers) MessageHTML(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.loadMessage(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src data:; style-src 'unsafe-inline'")
	w.Write([]byte(h.policy.Sanitize(msg.BodyHTML)))
}

// MessageAttachments lists attachment metadata in body order
func (h *Handlers) MessageAttachments(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.loadMessage(w, r)
	if !ok {
		return
	}

	atts, err := h.db.GetAttachments(msg.ID)
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to load attachments", "id", msg.ID, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "Failed to load attachments")
		return
	}
	if atts == nil {
		atts = []*db.Attachment{}
	}
	for _, att := range atts {
		att.Filename = sanitizeFilename(att.Filename)
	}

	h.writeJSON(w, r, http.StatusOK, atts)
}

// threadResponse is the response of MessageThread
type threadResponse struct {
	Messages []*db.Message `json:"messages"`
	Replies  int           `json:"replies"`
}

// MessageThread returns every stored message of the conversation, oldest first
func (h *Handlers) MessageThread(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.loadMessage(w, r)
	if !ok {
		return
	}

	thread, err := h.db.GetThread(msg.ID)
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to build thread", "id", msg.ID, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "Failed to build thread")
		return
	}
	replies, err := h.db.CountReplies(msg.MessageID)
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to count replies", "id", msg.ID, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "Failed to count replies")
		return
	}

	h.writeJSON(w, r, http.StatusOK, threadResponse{Messages: thread, Replies: replies})
}

// MessageRaw returns the original message read back from its source file
func (h *Handlers) MessageRaw(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.loadMessage(w, r)
	if !ok {
		return
	}

	sourcePath, err := h.db.ResolveSourcePath(msg.SourcePath)
	if err != nil {
		h.log.WarnContext(r.Context(), "rejected source path", "id", msg.ID, "source", msg.SourcePath, "error", err)
		h.writeError(w, r, http.StatusForbidden, "Invalid source path")
		return
	}

	var raw []byte
	if scanner.KindOf(sourcePath) == scanner.KindMbox {
		raw, err = mbox.MessageAt(r.Context(), sourcePath, msg.SourceIndex)
	} else {
		raw, err = os.ReadFile(sourcePath)
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, mbox.ErrNoMessage) {
		h.writeError(w, r, http.StatusNotFound, "Source file no longer available")
		return
	}
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to read source", "id", msg.ID, "source", msg.SourcePath, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "Failed to read message")
		return
	}

	name := strings.TrimSuffix(path.Base(msg.SourcePath), path.Ext(msg.SourcePath))
	if scanner.KindOf(sourcePath) == scanner.KindMbox {
		name = fmt.Sprintf("%s-%d", name, msg.SourceIndex)
	}
	w.Header().Set("Content-Type", "message/rfc822")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.eml"`, sanitizeFilename(name)))
	w.Write(raw)
}

// DeleteMessage removes a message and its attachments from the index. The source
// file is left in place, so the next scan indexes it again unless it is removed too.
func (h *Handlers) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.loadMessage(w, r)
	if !ok {
		return
	}

	if err := h.db.DeleteMessage(msg.ID); err != nil {
		h.log.ErrorContext(r.Context(), "failed to delete message", "id", msg.ID, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "Failed to delete message")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats returns database statistics
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats()
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to get stats", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "Failed to get stats")
		return
	}
	h.writeJSON(w, r, http.StatusOK, stats)
}

// sanitizeFilename removes dangerous characters from attachment filenames
func sanitizeFilename(filename string) string {
	// Remove path separators
	filename = filepath.Base(strings.ReplaceAll(filename, `\`, "/"))

	// Remove any control characters and quotes
	cleaned := strings.Map(func(r rune) rune {
		if r < 32 || r == 127 || r == '"' || r == '\'' {
			return -1
		}
		return r
	}, filename)

	// Limit length
	if len(cleaned) > 255 {
		cleaned = cleaned[:255]
	}

	if cleaned == "." || cleaned == "/" {
		return ""
	}
	return cleaned
}
