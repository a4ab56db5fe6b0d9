package builder

import (
	"errors"
	"fmt"
)

// MappingError reports a row whose raw values could not be mapped onto an
// item: a missing description, an unparseable quantity, and so on.
type MappingError struct {
	Row   int
	Field string
	Err   error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("row %d: %s: %v", e.Row, e.Field, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

// UnmatchedDescriptionError reports a row whose description matched no
// catalog entry and no keyword rule, with no default HS code configured.
type UnmatchedDescriptionError struct {
	Row         int
	Description string

	// BestScore is the score of the closest catalog entry, or -1 if the
	// catalog is empty.
	BestScore int
	BestKey   string
}

func (e *UnmatchedDescriptionError) Error() string {
	if e.BestScore < 0 {
		return fmt.Sprintf("row %d: no HS code for %q", e.Row, e.Description)
	}
	return fmt.Sprintf("row %d: no HS code for %q (closest %q scored %d)", e.Row, e.Description, e.BestKey, e.BestScore)
}

// RowDiagnostic is the serialisable form of a row error.
type RowDiagnostic struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Diagnose converts a row error into a RowDiagnostic.
func Diagnose(err error) RowDiagnostic {
	var me *MappingError
	if errors.As(err, &me) {
		return RowDiagnostic{Row: me.Row, Field: me.Field, Kind: "mapping", Message: me.Err.Error()}
	}
	var ue *UnmatchedDescriptionError
	if errors.As(err, &ue) {
		return RowDiagnostic{Row: ue.Row, Field: "description", Kind: "unmatched_description", Message: ue.Error()}
	}
	return RowDiagnostic{Kind: "unknown", Message: err.Error()}
}
