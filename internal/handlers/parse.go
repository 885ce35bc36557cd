package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/felo/eml-extract/internal/indexer"
	"github.com/felo/eml-extract/internal/parser"
	"github.com/felo/eml-extract/internal/projector"
)

// parseResponse is the response of Parse
type parseResponse struct {
	Fields          *projector.Document `json:"fields"`
	ProjectionError string              `json:"projection_error,omitempty"`
	Text            string              `json:"text"`
	HTML            string              `json:"html"`
	Warnings        []string            `json:"warnings"`
}

// Parse parses the raw message in the request body without storing it. A missing
// required field is reported in projection_error next to the partial document.
func (h *Handlers) Parse(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, h.cfg.MaxMessageBytes)
	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, http.StatusRequestEntityTooLarge, "Message too large")
			return
		}
		h.writeError(w, r, http.StatusBadRequest, "Failed to read message")
		return
	}

	opts := indexer.OptionsFrom(h.cfg)
	msg, err := parser.ParseWithOptions(raw, opts.Parse)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	doc, projErr := projector.Project(msg, opts.Policy)
	text, html := projector.ExtractBodies(msg, opts.Bodies)

	resp := parseResponse{
		Fields:   doc,
		Text:     text,
		HTML:     html,
		Warnings: make([]string, 0, len(msg.Warnings())),
	}
	if projErr != nil {
		resp.ProjectionError = projErr.Error()
	}
	for _, warn := range msg.Warnings() {
		resp.Warnings = append(resp.Warnings, warn.Error())
	}

	h.writeJSON(w, r, http.StatusOK, resp)
}
