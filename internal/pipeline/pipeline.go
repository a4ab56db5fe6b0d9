// =============================================================================
// ASYCUDA Export - Pipeline Module
// =============================================================================
//
// This module exposes the two operations every adapter (CLI, HTTP API,
// directory runner) is built on:
//
//   Process: raw rows -> Builder -> candidate Declaration -> Validator
//   Export:  valid Declaration -> Emitters -> one artifact per format
//
// A declaration that fails validation never reaches an emitter. Emitter
// failures are reported per format so one broken format does not block the
// others.
//
// =============================================================================

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ginjaninja78/asycuda-export/internal/builder"
	"github.com/ginjaninja78/asycuda-export/internal/catalog"
	"github.com/ginjaninja78/asycuda-export/internal/config"
	"github.com/ginjaninja78/asycuda-export/internal/declaration"
	"github.com/ginjaninja78/asycuda-export/internal/emitter"
	"github.com/ginjaninja78/asycuda-export/internal/logging"
	"github.com/ginjaninja78/asycuda-export/internal/reference"
	"github.com/ginjaninja78/asycuda-export/internal/salesreport"
	"github.com/ginjaninja78/asycuda-export/internal/validation"
)

// ErrInvalidDeclaration is returned by Export when the declaration has
// validation errors.
var ErrInvalidDeclaration = errors.New("declaration is invalid")

// InvalidDeclarationError carries the validation result that blocked export.
type InvalidDeclarationError struct {
	Validation *validation.Result
}

func (e *InvalidDeclarationError) Error() string {
	return fmt.Sprintf("%v: %d error(s)", ErrInvalidDeclaration, e.Validation.ErrorCount)
}

func (e *InvalidDeclarationError) Is(target error) bool {
	return target == ErrInvalidDeclaration
}

// CatalogSource supplies the current catalog. *catalog.Store implements it.
type CatalogSource interface {
	Current() *catalog.Catalog
}

// =============================================================================
// RESULT STRUCTURES
// =============================================================================

// ProcessResult is the outcome of Process.
type ProcessResult struct {
	// Declaration is nil when no row could be mapped.
	Declaration *declaration.Declaration `json:"declaration"`

	// RowErrors explains every skipped row.
	RowErrors []error `json:"-"`

	// RowDiagnostics is RowErrors in serialisable form.
	RowDiagnostics []builder.RowDiagnostic `json:"row_errors"`

	// Matches records how each item's HS code was found.
	Matches []builder.ItemMatch `json:"matches"`

	// Validation is nil when Declaration is nil.
	Validation *validation.Result `json:"validation"`

	CatalogVersion string `json:"catalog_version"`
}

// Artifact is one emitted file.
type Artifact struct {
	Format      string `json:"format"`
	ContentType string `json:"content_type"`
	Extension   string `json:"extension"`
	Data        []byte `json:"-"`
}

// ExportResult is the outcome of Export.
type ExportResult struct {
	Artifacts  map[string]Artifact `json:"artifacts"`
	Errors     map[string]error    `json:"-"`
	Validation *validation.Result  `json:"validation"`
}

// Formats returns the formats that produced an artifact, sorted.
func (r *ExportResult) Formats() []string {
	out := make([]string, 0, len(r.Artifacts))
	for f := range r.Artifacts {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Err joins the per-format failures in format order, or returns nil.
func (r *ExportResult) Err() error {
	formats := make([]string, 0, len(r.Errors))
	for f := range r.Errors {
		formats = append(formats, f)
	}
	sort.Strings(formats)

	errs := make([]error, 0, len(formats))
	for _, f := range formats {
		errs = append(errs, r.Errors[f])
	}
	return errors.Join(errs...)
}

// =============================================================================
// PIPELINE
// =============================================================================

// Options configures a Pipeline.
type Options struct {
	// Sequencer issues registration sequences. Default: an in-memory
	// reference.Counter.
	Sequencer reference.Sequencer

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Now returns the run date. Default: time.Now.
	Now func() time.Time

	// StrictWarnings makes validation warnings block export.
	StrictWarnings bool
}

// Pipeline runs Process and Export against a catalog source. It is safe for
// concurrent use.
type Pipeline struct {
	catalogs  CatalogSource
	sequencer reference.Sequencer
	logger    *slog.Logger
	now       func() time.Time
	strict    bool
}

// New creates a Pipeline.
func New(catalogs CatalogSource, opts Options) *Pipeline {
	if opts.Sequencer == nil {
		opts.Sequencer = reference.NewCounter()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		catalogs:  catalogs,
		sequencer: opts.Sequencer,
		logger:    opts.Logger,
		now:       opts.Now,
		strict:    opts.StrictWarnings,
	}
}

// Catalog returns the catalog currently in use.
func (p *Pipeline) Catalog() *catalog.Catalog {
	return p.catalogs.Current()
}

func (p *Pipeline) validator(cat *catalog.Catalog) *validation.Validator {
	return validation.NewValidatorWithOptions(cat, validation.Options{TreatWarningsAsErrors: p.strict})
}

// Process maps rows into a declaration and validates it.
//
// PARAMETERS:
//   - rows: The sales report rows.
//   - cfg: The mapping configuration of the shop the rows came from.
//
// RETURNS:
//   - The declaration (possibly with fewer items than rows), every row error
//     and the validation result.
//   - An error only for failures of the whole batch: no sequence, bad
//     mapping configuration, cancellation.
func (p *Pipeline) Process(ctx context.Context, rows []salesreport.Row, cfg *config.MappingConfig) (*ProcessResult, error) {
	logger := logging.Enrich(ctx, p.logger).With("mapping", cfg.Name)
	cat := p.catalogs.Current()
	runDate := p.now()

	b, err := builder.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare builder: %w", err)
	}

	seq, err := p.sequencer.Next(ctx, cfg.RegistrationPrefix, runDate)
	if err != nil {
		return nil, fmt.Errorf("failed to draw registration sequence: %w", err)
	}

	built, err := b.Build(ctx, rows, cat, builder.Params{
		Exporter:  cfg.Exporter,
		Declarant: cfg.Declarant,
		RunDate:   runDate,
		Sequence:  seq,
	})
	if err != nil {
		return nil, err
	}

	res := &ProcessResult{
		Declaration:    built.Declaration,
		RowErrors:      built.RowErrors,
		RowDiagnostics: built.Diagnostics(),
		Matches:        built.Matches,
		CatalogVersion: built.CatalogVersion,
	}
	if res.Declaration == nil {
		logger.Warn("no rows could be mapped", "rows", len(rows), "row_errors", len(res.RowErrors))
		return res, nil
	}

	res.Validation = p.validator(cat).Validate(res.Declaration)
	logger.Info("declaration validated",
		"registration", res.Declaration.RegistrationNumber,
		"valid", res.Validation.Valid,
		"errors", res.Validation.ErrorCount,
		"warnings", res.Validation.WarningCount,
	)
	return res, nil
}

// Export validates d and renders it in every requested format. An empty
// format list means every registered format.
//
// RETURNS:
//   - The artifacts and the per-format errors.
//   - An *InvalidDeclarationError (matching ErrInvalidDeclaration) when d
//     fails validation; no emitter runs in that case.
func (p *Pipeline) Export(ctx context.Context, d *declaration.Declaration, formats []string) (*ExportResult, error) {
	if d == nil {
		return nil, fmt.Errorf("no declaration to export")
	}
	logger := logging.Enrich(ctx, p.logger).With("registration", d.RegistrationNumber)

	res := &ExportResult{
		Artifacts:  make(map[string]Artifact),
		Errors:     make(map[string]error),
		Validation: p.validator(p.catalogs.Current()).Validate(d),
	}
	if !res.Validation.Valid {
		logger.Warn("export refused", "errors", res.Validation.ErrorCount)
		return res, &InvalidDeclarationError{Validation: res.Validation}
	}

	if len(formats) == 0 {
		formats = emitter.Names()
	}
	for _, format := range formats {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("export cancelled: %w", err)
		}

		em, err := emitter.New(format)
		if err != nil {
			res.Errors[format] = &emitter.FormatEmissionError{Format: format, Err: err}
			continue
		}
		data, err := em.Emit(d)
		if err != nil {
			var fe *emitter.FormatEmissionError
			if !errors.As(err, &fe) {
				err = &emitter.FormatEmissionError{Format: em.Format(), Err: err}
			}
			res.Errors[em.Format()] = err
			logger.Error("format emission failed", "format", em.Format(), "error", err)
			continue
		}
		res.Artifacts[em.Format()] = Artifact{
			Format:      em.Format(),
			ContentType: em.ContentType(),
			Extension:   em.Extension(),
			Data:        data,
		}
	}

	logger.Info("declaration exported", "formats", res.Formats(), "failed", len(res.Errors))
	return res, nil
}
