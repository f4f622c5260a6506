package web

import (
	"context"
	"net/http"

	"github.com/danchege/Alchemist/internal/common"
	"github.com/danchege/Alchemist/internal/core"
	"github.com/danchege/Alchemist/internal/logging"
	"github.com/danchege/Alchemist/internal/ops"
)

// cleanRequest is the body of /clean and /preview.
type cleanRequest struct {
	Operations []ops.Operation `json:"operations"`
	SampleSize int             `json:"sample_size,omitempty"`
}

// mergeRequest is the body of /clusters/merge.
type mergeRequest struct {
	Column    string   `json:"column"`
	Canonical string   `json:"canonical"`
	Values    []string `json:"values"`
}

func (s *Server) decodeOperations(w http.ResponseWriter, r *http.Request) (cleanRequest, error) {
	var req cleanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return req, err
	}
	if len(req.Operations) == 0 {
		return req, common.InvalidOperation("no operations provided")
	}
	return req, nil
}

// handleClean applies a batch of operations as one history entry.
func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeOperations(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	id := sessionID(r)
	result, err := s.service.Apply(r.Context(), id, req.Operations)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	logging.WithFields(r.Context(), "session_id", id).Info("operations applied",
		"operations", len(req.Operations),
		"rows", result.Shape.Rows,
	)
	writeJSON(w, result)
}

// handlePreview runs a batch on a sample without committing it.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeOperations(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	sample := req.SampleSize
	if sample <= 0 {
		sample = s.cfg.Session.PreviewRows
	}
	result, err := s.service.Preview(r.Context(), sessionID(r), req.Operations, sample)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.respondMutation(w, r, s.service.Undo)
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.respondMutation(w, r, s.service.Redo)
}

// handleReset restores the uploaded table and clears history.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.respondMutation(w, r, s.service.Reset)
}

func (s *Server) respondMutation(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, string) (*core.MutationResult, error)) {
	result, err := fn(r.Context(), sessionID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.service.History(r.Context(), sessionID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, history)
}

// handleMerge replaces a cluster's values with its canonical value.
func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Column == "" || len(req.Values) == 0 {
		s.respondError(w, r, common.InvalidOperation("merge needs a column and at least one value"))
		return
	}

	result, err := s.service.Merge(r.Context(), sessionID(r), req.Column, req.Canonical, req.Values)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}
