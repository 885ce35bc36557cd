package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/felo/eml-extract/internal/indexer"
)

// ScanProgress holds the current scan progress state
type ScanProgress struct {
	mu              sync.RWMutex
	isScanning      bool
	current         int
	total           int
	currentFile     string
	result          *indexer.IndexResult
	err             error
	lastUpdate      time.Time
	progressClients []chan ProgressEvent
	done            chan struct{}
}

// ProgressEvent represents a progress update event
type ProgressEvent struct {
	Type string `json:"type"` // "progress", "complete", "error"
	Data any    `json:"data"`
}

// scanStatus is the JSON view of ScanProgress
type scanStatus struct {
	Scanning   bool                 `json:"scanning"`
	Current    int                  `json:"current"`
	Total      int                  `json:"total"`
	File       string               `json:"file,omitempty"`
	Result     *indexer.IndexResult `json:"result,omitempty"`
	Error      string               `json:"error,omitempty"`
	LastUpdate time.Time            `json:"last_update"`
}

func newScanProgress() *ScanProgress {
	return &ScanProgress{
		progressClients: make([]chan ProgressEvent, 0),
	}
}

// status returns a snapshot; the caller must hold sp.mu.
func (sp *ScanProgress) status() scanStatus {
	st := scanStatus{
		Scanning:   sp.isScanning,
		Current:    sp.current,
		Total:      sp.total,
		File:       sp.currentFile,
		Result:     sp.result,
		LastUpdate: sp.lastUpdate,
	}
	if sp.err != nil {
		st.Error = sp.err.Error()
	}
	return st
}

// Scan starts indexing the configured source directory in the background
func (h *Handlers) Scan(w http.ResponseWriter, r *http.Request) {
	sp := h.progress

	sp.mu.Lock()
	if sp.isScanning {
		sp.mu.Unlock()
		h.writeError(w, r, http.StatusConflict, "Scan already in progress")
		return
	}

	// Reset progress state
	sp.isScanning = true
	sp.current = 0
	sp.total = 0
	sp.currentFile = ""
	sp.result = nil
	sp.err = nil
	sp.lastUpdate = time.Now()
	sp.done = make(chan struct{})
	done := sp.done
	sp.mu.Unlock()

	// The scan outlives the request; keep its log attributes but not its cancellation.
	ctx := context.WithoutCancel(r.Context())

	go func() {
		defer close(done)

		idx := indexer.NewIndexer(h.db, h.cfg.EmailsPath, h.log).
			WithConcurrency(h.cfg.Workers).
			WithOptions(indexer.OptionsFrom(h.cfg))

		result, err := idx.IndexWithProgress(ctx, func(current, total int, filePath string) {
			sp.mu.Lock()
			sp.current = current
			sp.total = total
			sp.currentFile = filePath
			sp.lastUpdate = time.Now()
			sp.mu.Unlock()

			sp.broadcast("progress")
		})

		sp.mu.Lock()
		sp.isScanning = false
		sp.result = result
		sp.err = err
		sp.lastUpdate = time.Now()
		sp.mu.Unlock()

		if err != nil {
			h.log.ErrorContext(ctx, "scan failed", "error", err)
			sp.broadcast("error")
			return
		}
		sp.broadcast("complete")
	}()

	h.writeJSON(w, r, http.StatusAccepted, map[string]string{"status": "Scan started"})
}

// ScanStatus reports the state of the current or last scan
func (h *Handlers) ScanStatus(w http.ResponseWriter, r *http.Request) {
	h.progress.mu.RLock()
	st := h.progress.status()
	h.progress.mu.RUnlock()

	h.writeJSON(w, r, http.StatusOK, st)
}

// waitScan blocks until the running scan, if any, has finished.
func (h *Handlers) waitScan() {
	h.progress.mu.RLock()
	done := h.progress.done
	h.progress.mu.RUnlock()
	if done != nil {
		<-done
	}
}

// ScanProgressSSE handles Server-Sent Events for scan progress
func (h *Handlers) ScanProgressSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, r, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sp := h.progress
	clientChan := make(chan ProgressEvent, 10)

	// Register client and send the current state
	sp.mu.Lock()
	sp.progressClients = append(sp.progressClients, clientChan)
	initial := sp.status()
	sp.mu.Unlock()

	defer sp.unregister(clientChan)

	h.sendSSE(w, flusher, "progress", initial)
	if !initial.Scanning {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case event := <-clientChan:
			h.sendSSE(w, flusher, event.Type, event.Data)

			// Close connection after complete or error
			if event.Type == "complete" || event.Type == "error" {
				return
			}
		}
	}
}

func (sp *ScanProgress) unregister(clientChan chan ProgressEvent) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	for i, ch := range sp.progressClients {
		if ch == clientChan {
			sp.progressClients = append(sp.progressClients[:i], sp.progressClients[i+1:]...)
			return
		}
	}
}

// broadcast sends the current state to all connected clients
func (sp *ScanProgress) broadcast(eventType string) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	event := ProgressEvent{Type: eventType, Data: sp.status()}
	for _, client := range sp.progressClients {
		select {
		case client <- event:
		default:
			// Client channel full, skip
		}
	}
}

// sendSSE sends an SSE message to the client
func (h *Handlers) sendSSE(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		h.log.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}
