// Package server exposes the gateway and the job dispatcher over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MingChen0919/elastic-search/internal/backend"
	"github.com/MingChen0919/elastic-search/internal/dispatch"
	"github.com/MingChen0919/elastic-search/internal/domain"
	"github.com/MingChen0919/elastic-search/internal/gateway"
	"github.com/MingChen0919/elastic-search/internal/indexer"
	"github.com/MingChen0919/elastic-search/internal/metrics"
	"github.com/MingChen0919/elastic-search/internal/query"
)

// reserved query parameters of the table search; every other parameter is
// a field criterion.
var reserved = map[string]bool{
	"order":     true,
	"sort":      true,
	"highlight": true,
	"page":      true,
	"per_page":  true,
	"type":      true,
}

// Server is the HTTP API.
type Server struct {
	gw             *gateway.Gateway
	categories     gateway.CategoryLister
	jobs           dispatch.Dispatcher
	defaultPerPage int
	router         chi.Router
}

// New builds the router. categories and jobs may be nil, in which case the
// endpoints depending on them answer with a configuration error.
func New(gw *gateway.Gateway, categories gateway.CategoryLister, jobs dispatch.Dispatcher, defaultPerPage int) *Server {
	if defaultPerPage <= 0 {
		defaultPerPage = 10
	}
	s := &Server{
		gw:             gw,
		categories:     categories,
		jobs:           jobs,
		defaultPerPage: defaultPerPage,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/search", s.searchWeb)
	r.Get("/search/summary", s.searchSummary)
	r.Get("/categories", s.listCategories)
	r.Get("/indices", s.listIndices)
	r.Route("/indices/{index}", func(r chi.Router) {
		r.Get("/fields", s.indexFields)
		r.Get("/settings", s.indexSettings)
		r.Get("/mappings", s.indexMappings)
		r.Get("/search", s.searchTable)
		r.Get("/count", s.countTable)
		r.Get("/documents/{id}", s.getDocument)
	})
	r.Post("/jobs", s.submitJob)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "esgate"})
}

// searchWeb handles GET /search?terms=&category=&page=&per_page=.
func (s *Server) searchWeb(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, perPage, err := s.pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	caps, err := s.gw.Capabilities(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	indices := caps.Indices()
	if len(indices) == 0 {
		writeError(w, domain.ConfigurationError("neither the %s nor the %s index exists", query.WebsiteIndex, query.EntitiesIndex))
		return
	}
	q := r.URL.Query()
	req := query.WebsiteSearch(q.Get("terms"), q.Get("category"), caps, indices)
	res, err := s.gw.Paginate(ctx, req, perPage, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// searchSummary handles GET /search/summary?terms=&category=&size=.
func (s *Server) searchSummary(w http.ResponseWriter, r *http.Request) {
	size, err := intParam(r, "size", s.defaultPerPage)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	res, err := s.gw.SearchWebIndices(r.Context(), q.Get("terms"), size, q.Get("category"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	if s.categories == nil {
		writeError(w, domain.ConfigurationError("no source database configured"))
		return
	}
	version, err := intParam(r, "version", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	cats, err := s.gw.Categories(r.Context(), s.categories, version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"categories": nonNil(cats)})
}

func (s *Server) listIndices(w http.ResponseWriter, r *http.Request) {
	names, err := s.gw.ListIndices(r.Context(), r.URL.Query().Get("pattern"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"indices": nonNil(names)})
}

func (s *Server) indexFields(w http.ResponseWriter, r *http.Request) {
	fields, err := s.gw.GetIndexFields(r.Context(), chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"fields": fields})
}

func (s *Server) indexSettings(w http.ResponseWriter, r *http.Request) {
	raw, err := s.gw.GetIndexSettings(r.Context(), chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeRaw(w, raw)
}

func (s *Server) indexMappings(w http.ResponseWriter, r *http.Request) {
	raw, err := s.gw.GetIndexMappings(r.Context(), chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeRaw(w, raw)
}

// searchTable handles GET /indices/{index}/search. Parameters other than the
// reserved ones are field criteria.
func (s *Server) searchTable(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := s.pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.gw.Paginate(r.Context(), tableRequest(r), perPage, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) countTable(w http.ResponseWriter, r *http.Request) {
	n, err := s.gw.Count(r.Context(), tableRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.gw.GetDocument(r.Context(), chi.URLParam(r, "index"), r.URL.Query().Get("type"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if !doc.Found {
		status = http.StatusNotFound
	}
	writeJSON(w, status, doc)
}

// submitJob handles POST /jobs with a JSON job spec.
func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, domain.ConfigurationError("job dispatch is not enabled"))
		return
	}
	var spec indexer.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, domain.InputRejected("invalid job body: %v", err))
		return
	}
	if err := spec.Validate(); err != nil {
		writeError(w, err)
		return
	}
	id, err := s.jobs.Submit(r.Context(), spec)
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("job submitted", "id", id, "partition", spec.Partition, "entity_id", spec.EntityID)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func tableRequest(r *http.Request) *query.Request {
	q := r.URL.Query()
	criteria := make(map[string]string)
	for key, values := range q {
		if reserved[key] || len(values) == 0 {
			continue
		}
		criteria[key] = values[0]
	}
	var highlight []string
	for _, f := range strings.Split(q.Get("highlight"), ",") {
		if f = strings.TrimSpace(f); f != "" {
			highlight = append(highlight, f)
		}
	}
	return query.TableSearch(chi.URLParam(r, "index"), criteria, query.TableOptions{
		Type:            q.Get("type"),
		SortField:       q.Get("order"),
		SortDirection:   q.Get("sort"),
		HighlightFields: highlight,
	})
}

// pageParams reads the 1-based page and the page size.
func (s *Server) pageParams(r *http.Request) (gateway.RequestedPage, int, error) {
	page, err := intParam(r, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	perPage, err := intParam(r, "per_page", s.defaultPerPage)
	if err != nil {
		return 0, 0, err
	}
	return gateway.RequestedPage(max(page-1, 0)), perPage, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.InputRejected("%s must be an integer, got %q", name, v)
	}
	return n, nil
}

// statusFor maps an error to the HTTP status returned to the caller.
func statusFor(err error) int {
	var se *backend.HTTPStatusError
	switch {
	case errors.Is(err, domain.ErrState):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrInputRejected), errors.Is(err, domain.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEngineUnavailable):
		return http.StatusBadGateway
	case errors.As(err, &se) && se.StatusCode == http.StatusBadRequest:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "status", status, "error", err)
	} else {
		slog.Debug("request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
