package pipeline

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/ginjaninja78/asycuda-export/internal/builder"
	"github.com/ginjaninja78/asycuda-export/internal/emitter"
	"github.com/ginjaninja78/asycuda-export/internal/validation"
)

// Report file names, written per input under reports/<input name>/.
const (
	ValidationReportName = "validation_results.json"
	ErrorDetailsName     = "error_details.json"
)

// ValidationReport is the content of validation_results.json.
type ValidationReport struct {
	RunID          string                  `json:"run_id"`
	SourceFile     string                  `json:"source_file"`
	Mapping        string                  `json:"mapping"`
	Registration   string                  `json:"registration_number,omitempty"`
	GeneratedAt    time.Time               `json:"generated_at"`
	CatalogVersion string                  `json:"catalog_version,omitempty"`
	Valid          bool                    `json:"valid"`
	ErrorCount     int                     `json:"error_count"`
	WarningCount   int                     `json:"warning_count"`
	Diagnostics    []validation.Diagnostic `json:"diagnostics"`
	Matches        []builder.ItemMatch     `json:"matches"`
}

// ErrorDetail is one entry of error_details.json.
type ErrorDetail struct {
	Timestamp  time.Time `json:"timestamp"`
	SourceFile string    `json:"source_file"`

	// Kind is "mapping", "unmatched_description", "validation", "format"
	// or "file".
	Kind    string `json:"kind"`
	Row     int    `json:"row,omitempty"`
	Field   string `json:"field,omitempty"`
	Format  string `json:"format,omitempty"`
	Message string `json:"message"`
}

func newValidationReport(runID, source, mapping string, pr *ProcessResult, at time.Time) ValidationReport {
	rep := ValidationReport{
		RunID:       runID,
		SourceFile:  source,
		Mapping:     mapping,
		GeneratedAt: at,
		Diagnostics: []validation.Diagnostic{},
		Matches:     []builder.ItemMatch{},
	}
	if pr == nil {
		return rep
	}
	rep.CatalogVersion = pr.CatalogVersion
	if pr.Matches != nil {
		rep.Matches = pr.Matches
	}
	if pr.Declaration != nil {
		rep.Registration = pr.Declaration.RegistrationNumber
	}
	if v := pr.Validation; v != nil {
		rep.Valid = v.Valid
		rep.ErrorCount = v.ErrorCount
		rep.WarningCount = v.WarningCount
		rep.Diagnostics = v.Diagnostics
	}
	return rep
}

// errorDetails lists every recorded failure of one input: skipped rows,
// validation errors, format failures and the file-level error.
func errorDetails(source string, pr *ProcessResult, er *ExportResult, fileErr error, at time.Time) []ErrorDetail {
	out := []ErrorDetail{}
	if pr != nil {
		for _, rd := range pr.RowDiagnostics {
			out = append(out, ErrorDetail{
				Timestamp: at, SourceFile: source, Kind: rd.Kind,
				Row: rd.Row, Field: rd.Field, Message: rd.Message,
			})
		}
		if pr.Validation != nil {
			for _, d := range pr.Validation.Errors() {
				out = append(out, ErrorDetail{
					Timestamp: at, SourceFile: source, Kind: "validation",
					Field: d.Path, Message: d.Message + " (" + d.Rule + ")",
				})
			}
		}
	}
	if er != nil {
		for _, format := range sortedKeys(er.Errors) {
			err := er.Errors[format]
			detail := ErrorDetail{Timestamp: at, SourceFile: source, Kind: "format", Format: format, Message: err.Error()}
			var fe *emitter.FormatEmissionError
			if errors.As(err, &fe) {
				detail.Field = fe.Field
			}
			out = append(out, detail)
		}
	}
	if fileErr != nil && !errors.Is(fileErr, ErrInvalidDeclaration) {
		out = append(out, ErrorDetail{Timestamp: at, SourceFile: source, Kind: "file", Message: fileErr.Error()})
	}
	return out
}

func marshalReport(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
