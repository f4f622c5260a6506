package web

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/danchege/Alchemist/internal/cluster"
	"github.com/danchege/Alchemist/internal/core"
	"github.com/danchege/Alchemist/internal/logging"
	"github.com/danchege/Alchemist/internal/store"
	"github.com/danchege/Alchemist/internal/view"
)

// viewParams are the query parameters that describe an explicit view.
var viewParams = []string{"filter_column", "filter_operator", "filter_value", "sort_column", "sort_direction", "search"}

// handlePage returns one page of rows.
//
// Without filter, sort or search parameters the saved view is paged.
// Otherwise the parameters describe a one-off view that is not saved.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	page := parseIntParam(r, "page", 1)

	var (
		result *core.PageResult
		err    error
	)
	if q, explicit := parseQuery(r); explicit {
		q.Page = page
		result, err = s.service.Page(r.Context(), sessionID(r), q)
	} else {
		result, err = s.service.ViewPage(r.Context(), sessionID(r), page)
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// parseQuery builds a query from URL parameters. explicit reports whether
// any view parameter was given.
func parseQuery(r *http.Request) (q store.Query, explicit bool) {
	values := r.URL.Query()
	for _, name := range viewParams {
		if values.Has(name) {
			explicit = true
			break
		}
	}
	if values.Has("page_size") {
		explicit = true
	}

	if col := values.Get("filter_column"); col != "" {
		op := values.Get("filter_operator")
		if op == "" {
			op = store.OpEquals
		}
		q.Filter = &store.Filter{Column: col, Operator: op, Value: values.Get("filter_value")}
	}
	if col := values.Get("sort_column"); col != "" {
		q.Sort = &store.Sort{Column: col, Direction: values.Get("sort_direction")}
	}
	q.Search = values.Get("search")
	q.PageSize = parseIntParam(r, "page_size", store.DefaultPageSize)
	return q, explicit
}

// handleSetView saves a new view and returns its first page.
func (s *Server) handleSetView(w http.ResponseWriter, r *http.Request) {
	var next view.State
	if err := decodeJSON(w, r, &next); err != nil {
		s.respondError(w, r, err)
		return
	}
	result, err := s.service.SetView(r.Context(), sessionID(r), next)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleUndoView(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.UndoView(r.Context(), sessionID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleRedoView(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.RedoView(r.Context(), sessionID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// handleProfile returns the value profile of one column.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	column := r.URL.Query().Get("column")
	profile, err := s.service.Profile(r.Context(), sessionID(r), column, parseIntParam(r, "top_n", store.DefaultTopN))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, profile)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.Info(r.Context(), sessionID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, info)
}

// handleClusters suggests groups of near-duplicate values in a column.
func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	column := r.URL.Query().Get("column")
	maxUnique := parseIntParam(r, "max_unique", cluster.DefaultMaxUnique)
	result, err := s.service.Clusters(r.Context(), sessionID(r), column, maxUnique)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// handleExport streams the table as a download.
//
// Query parameters: format (csv, tsv, json, sql, xlsx), filename and
// filtered, which exports only the rows of the saved view.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := store.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	name := exportName(r.URL.Query().Get("filename"), format)

	// The status is only committed on the first write, so errors before
	// any output still get a proper error response.
	dw := &downloadWriter{w: w, name: name, format: format}
	if err := s.service.Export(r.Context(), sessionID(r), dw, format, parseBoolParam(r, "filtered"), name); err != nil {
		if !dw.started {
			s.respondError(w, r, err)
			return
		}
		logging.FromContext(r.Context()).Error("export interrupted", "session_id", sessionID(r), "error", err)
	}
}

// exportName returns a safe download name with the format's extension.
func exportName(name string, format store.Format) string {
	name = strings.TrimSpace(filepath.Base(name))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if name == "" || name == "/" {
		name = "export"
	}
	name = strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, name)
	return name + "." + format.Extension()
}

// downloadWriter sets the attachment headers on the first write.
type downloadWriter struct {
	w       http.ResponseWriter
	name    string
	format  store.Format
	started bool
}

func (d *downloadWriter) Write(p []byte) (int, error) {
	if !d.started {
		d.started = true
		h := d.w.Header()
		h.Set("Content-Type", d.format.ContentType())
		h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, d.name))
		d.w.WriteHeader(http.StatusOK)
	}
	return d.w.Write(p)
}
