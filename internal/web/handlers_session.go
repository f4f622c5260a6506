package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/danchege/Alchemist/internal/audit"
	"github.com/danchege/Alchemist/internal/common"
	"github.com/danchege/Alchemist/internal/logging"
)

// multipartOverhead is allowed on top of the file size for the form
// envelope.
const multipartOverhead = 1 << 20

// handleHealth reports liveness with a few counters.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":   "ok",
		"sessions": s.service.SessionCount(),
		"uploads":  s.service.UploadStatus(),
	})
}

// handleUploadStatus reports upload slot usage.
func (s *Server) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.UploadStatus())
}

// handleUpload streams the multipart "file" field into a new session.
// The file is never held in memory as a whole.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.service.MaxFileSize()+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %v", errNoFile, err))
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			s.respondError(w, r, errNoFile)
			return
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				err = fmt.Errorf("%w: limit %d bytes", common.ErrFileTooLarge, s.service.MaxFileSize())
			} else {
				err = fmt.Errorf("%w: %v", errNoFile, err)
			}
			s.respondError(w, r, err)
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		summary, err := s.service.Upload(r.Context(), part.FileName(), part)
		part.Close()
		if err != nil {
			s.respondError(w, r, err)
			return
		}

		logging.WithFields(r.Context(), "session_id", summary.SessionID).Info("upload complete",
			"filename", summary.FileName,
			"mode", summary.Mode,
			"rows", summary.Shape.Rows,
			"columns", summary.Shape.Columns,
		)
		writeJSONStatus(w, http.StatusCreated, summary)
		return
	}
}

// handleGetSession returns the session summary and its first page.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Session(r.Context(), sessionID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, summary)
}

// handleCloseSession ends a session so the client can start a new one.
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if err := s.service.CloseSession(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "closed", "session_id": id})
}

// handleAuditLog lists audit entries, newest first.
//
// Query parameters: session_id, action, since (RFC 3339), limit, offset.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		SessionID: q.Get("session_id"),
		Action:    audit.Action(q.Get("action")),
		Limit:     parseIntParam(r, "limit", audit.DefaultListLimit),
		Offset:    max(parseIntParam(r, "offset", 0), 0),
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			s.respondError(w, r, common.InvalidOperation("since must be an RFC 3339 time: %q", since))
			return
		}
		filter.Since = t
	}

	entries, err := s.service.AuditLog(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"entries": entries, "count": len(entries)})
}
