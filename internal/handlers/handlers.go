package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/felo/eml-extract/internal/config"
	"github.com/felo/eml-extract/internal/db"
	"github.com/felo/eml-extract/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"
)

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	db       *db.DB
	cfg      *config.Config
	log      *slog.Logger
	policy   *bluemonday.Policy
	progress *ScanProgress
}

// New creates a new Handlers instance
func New(database *db.DB, cfg *config.Config, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	// Raw messages are read back from the files they were indexed from
	database.SetSourcePath(cfg.EmailsPath)

	return &Handlers{
		db:       database,
		cfg:      cfg,
		log:      log,
		policy:   bluemonday.UGCPolicy(),
		progress: newScanProgress(),
	}
}

// Routes returns the API router
func (h *Handlers) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/messages", h.ListMessages)
	r.Get("/messages/{id}", h.GetMessage)
	r.Get("/messages/{id}/text", h.MessageText)
	r.Get("/messages/{id}/html", h.MessageHTML)
	r.Get("/messages/{id}/attachments", h.MessageAttachments)
	r.Get("/messages/{id}/thread", h.MessageThread)
	r.Get("/messages/{id}/raw", h.MessageRaw)
	r.Delete("/messages/{id}", h.DeleteMessage)
	r.Get("/search", h.Search)
	r.Get("/stats", h.Stats)
	r.Post("/parse", h.Parse)
	r.Post("/scan", h.Scan)
	r.Get("/scan", h.ScanStatus)
	r.Get("/scan/progress", h.ScanProgressSSE)

	return r
}

// requestLogger stores the request id in the context for slog and logs each request.
func (h *Handlers) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithAttrs(r.Context(), slog.String("request_id", middleware.GetReqID(r.Context())))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		h.log.DebugContext(ctx, "request",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(), "bytes", ww.BytesWritten())
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeJSON(w, r, status, map[string]string{"error": msg})
}

// messageID parses the {id} URL parameter
func messageID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// intParam reads a positive integer query parameter, falling back to def.
func intParam(r *http.Request, name string, def, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
