package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/asycuda-export/internal/catalog"
	"github.com/ginjaninja78/asycuda-export/internal/config"
	"github.com/ginjaninja78/asycuda-export/internal/declaration"
	"github.com/ginjaninja78/asycuda-export/internal/emitter"
	"github.com/ginjaninja78/asycuda-export/internal/pipeline"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, health Pinger) *Server {
	t.Helper()
	data := catalog.Builtin()
	data.Products = []catalog.Entry{
		{Key: "Silver Bracelet", HSCode: "71179000"},
		{Key: "Straw Hat", HSCode: "65040000"},
	}
	p := pipeline.New(catalog.NewStaticStore(catalog.New(data)), pipeline.Options{
		Now: func() time.Time { return time.Date(2026, 10, 17, 11, 0, 0, 0, time.UTC) },
	})

	m := config.DefaultMapping()
	m.Name = "Duty Free Shop"
	m.Code = "DFS"
	m.RegistrationPrefix = "LC"
	m.Exporter = declaration.Entity{TaxID: "100200300", Name: "Duty Free Caribbean Ltd", AddressLine1: "Pointe Seraphine", Country: "LC"}
	m.Declarant = declaration.Entity{TaxID: "900800", Name: "Island Brokers", AddressLine1: "Jeremie Street"}

	return NewServer(p, []*config.MappingConfig{&m}, health)
}

func do(t *testing.T, s *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func processBody() ProcessRequest {
	return ProcessRequest{
		Mapping: "dfs",
		Rows: []map[string]string{
			{"description": "Silver Braclet", "quantity": "2", "unit_price": "45"},
			{"description": "Ceramic Teapot", "quantity": "1", "unit_price": "30"},
			{"description": "Straw Hat", "quantity": "1", "unit_price": "12.50"},
		},
	}
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t, stubPinger{}), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = do(t, newTestServer(t, stubPinger{err: errors.New("connection refused")}), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestProcess(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/process", processBody())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res pipeline.ProcessResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Declaration)
	assert.Equal(t, "LC20261017000001", res.Declaration.RegistrationNumber)
	assert.Len(t, res.Declaration.Items, 2)
	require.Len(t, res.RowDiagnostics, 1)
	assert.Equal(t, 2, res.RowDiagnostics[0].Row, "rows are numbered from 1")
	require.NotNil(t, res.Validation)
	assert.True(t, res.Validation.Valid)
}

func TestProcess_BadRequests(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"no rows", ProcessRequest{}, http.StatusBadRequest, "invalid_request"},
		{"unknown mapping", ProcessRequest{Mapping: "nope", Rows: processBody().Rows}, http.StatusNotFound, "unknown_mapping"},
		{"nothing mappable", ProcessRequest{Rows: []map[string]string{{"description": "Ceramic Teapot", "quantity": "1", "unit_price": "30"}}}, http.StatusUnprocessableEntity, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/process", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.code != "" {
				var er ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
				assert.Equal(t, tt.code, er.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/process", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func processed(t *testing.T, s *Server) *declaration.Declaration {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/process", processBody())
	require.Equal(t, http.StatusOK, rec.Code)
	var res pipeline.ProcessResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Declaration)
	return res.Declaration
}

func TestExport(t *testing.T) {
	s := newTestServer(t, nil)
	d := processed(t, s)

	rec := do(t, s, http.MethodPost, "/api/export?format=xml", d)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "xml")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), d.RegistrationNumber+".xml")

	parsed, err := emitter.ParseMarkup(rec.Body.Bytes())
	require.NoError(t, err)
	assert.True(t, declaration.Equal(d, parsed), declaration.Diff(d, parsed))

	rec = do(t, s, http.MethodPost, "/api/export?format=txt", d)
	require.Equal(t, http.StatusOK, rec.Code)
	parsed, err = emitter.ParseDelimited(rec.Body.Bytes())
	require.NoError(t, err)
	assert.True(t, declaration.Equal(d, parsed), declaration.Diff(d, parsed))
}

func TestExport_Errors(t *testing.T) {
	s := newTestServer(t, nil)
	d := processed(t, s)

	rec := do(t, s, http.MethodPost, "/api/export?format=pdf", d)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	d.Items = nil
	rec = do(t, s, http.MethodPost, "/api/export?format=xml", d)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"invalid_declaration"`)
	assert.Contains(t, rec.Body.String(), `"validation"`)
}

func TestMatch(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/match?q=Silver+Braclet", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp MatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 80, resp.Threshold)
	require.NotEmpty(t, resp.Matches)
	assert.Equal(t, "71179000", resp.Matches[0].HSCode)

	rec = do(t, s, http.MethodGet, "/api/match?q=zzzz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"matches":[]`)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/match", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/match?q=hat&threshold=101", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/match?q=hat&threshold=x", nil).Code)
}

func TestCatalog(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodGet, "/api/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st catalog.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 2, st.Products)
	assert.NotEmpty(t, st.Version)
}
