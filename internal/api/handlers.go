package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ginjaninja78/asycuda-export/internal/config"
	"github.com/ginjaninja78/asycuda-export/internal/declaration"
	"github.com/ginjaninja78/asycuda-export/internal/emitter"
	"github.com/ginjaninja78/asycuda-export/internal/logging"
	"github.com/ginjaninja78/asycuda-export/internal/matcher"
	"github.com/ginjaninja78/asycuda-export/internal/pipeline"
	"github.com/ginjaninja78/asycuda-export/internal/salesreport"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}

// ProcessRequest is the body of POST /api/process. Each row maps canonical
// field names (description, quantity, unit_price, currency, hs_code,
// origin, ...) to raw values.
type ProcessRequest struct {
	// Mapping selects a mapping configuration by name or code.
	Mapping string              `json:"mapping"`
	Rows    []map[string]string `json:"rows" validate:"required,min=1,max=5000"`
}

// MatchResponse is the body of GET /api/match.
type MatchResponse struct {
	Query     string                `json:"query"`
	Threshold int                   `json:"threshold"`
	Matches   []matcher.MatchResult `json:"matches"`
	Keyword   *matcher.MatchResult  `json:"keyword,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, code string, err error, details ...string) {
	logging.FromContext(r.Context()).Warn("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", code,
		"error", err.Error(),
	)
	respondJSON(w, status, ErrorResponse{Error: err.Error(), Code: code, Details: details})
}

// handleHealth reports catalog and ledger state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":          "ok",
		"catalog_version": s.pipeline.Catalog().Version(),
	}
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			body["status"] = "degraded"
			body["ledger"] = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	respondJSON(w, http.StatusOK, body)
}

// handleProcess builds and validates a declaration from JSON rows.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid_json", err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid_request", err, describeValidation(err)...)
		return
	}

	mapping, err := s.findMapping(req.Mapping)
	if err != nil {
		s.respondError(w, r, http.StatusNotFound, "unknown_mapping", err)
		return
	}

	rows := make([]salesreport.Row, len(req.Rows))
	for i, fields := range req.Rows {
		rows[i] = salesreport.Row{Number: i + 1, Fields: fields}
	}

	res, err := s.pipeline.Process(r.Context(), rows, mapping)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "process_failed", err)
		return
	}

	status := http.StatusOK
	if res.Declaration == nil {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, res)
}

// handleExport renders a declaration in the format given by ?format=.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "xml"
	}
	em, err := emitter.New(format)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "unknown_format", err)
		return
	}

	var d declaration.Declaration
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&d); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid_json", err)
		return
	}

	res, err := s.pipeline.Export(r.Context(), &d, []string{em.Format()})
	var invalid *pipeline.InvalidDeclarationError
	if errors.As(err, &invalid) {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      err.Error(),
			"code":       "invalid_declaration",
			"validation": invalid.Validation,
		})
		return
	}
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "export_failed", err)
		return
	}
	if ferr := res.Errors[em.Format()]; ferr != nil {
		s.respondError(w, r, http.StatusInternalServerError, "emission_failed", ferr)
		return
	}

	a := res.Artifacts[em.Format()]
	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.RegistrationNumber+a.Extension))
	w.WriteHeader(http.StatusOK)
	w.Write(a.Data)
}

// handleMatch probes the catalog with ?q= at ?threshold= (default 80).
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.respondError(w, r, http.StatusBadRequest, "missing_query", errors.New("query parameter q is required"))
		return
	}

	threshold := 80
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 100 {
			s.respondError(w, r, http.StatusBadRequest, "invalid_threshold", fmt.Errorf("threshold must be an integer in 0..100, got %q", raw))
			return
		}
		threshold = n
	}

	cat := s.pipeline.Catalog()
	resp := MatchResponse{Query: q, Threshold: threshold, Matches: matcher.Match(q, cat, threshold)}
	if resp.Matches == nil {
		resp.Matches = []matcher.MatchResult{}
	}
	if kw, ok := matcher.MatchKeyword(q, cat); ok {
		resp.Keyword = &kw
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleCatalog returns catalog statistics.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.pipeline.Catalog().Stats())
}

func (s *Server) findMapping(name string) (*config.MappingConfig, error) {
	if len(s.mappings) == 0 {
		return nil, errors.New("no mapping configurations loaded")
	}
	if name == "" {
		return s.mappings[0], nil
	}
	for _, m := range s.mappings {
		if strings.EqualFold(m.Name, name) || (m.Code != "" && strings.EqualFold(m.Code, name)) {
			return m, nil
		}
	}
	return nil, fmt.Errorf("mapping %q not found", name)
}

func describeValidation(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return out
}
