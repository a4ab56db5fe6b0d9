// =============================================================================
// ASYCUDA Export - Directory Runner
// =============================================================================
//
// The runner processes every sales report in the input directory, one
// declaration per file.
//
// PER-FILE PIPELINE:
//   1. Match the file to a mapping configuration
//   2. Read the sales report (CSV or XLSX)
//   3. Process: build and validate the declaration
//   4. Export every configured format
//   5. Store the artifacts and the per-input reports
//   6. Record the declaration in the ledger and publish a notification
//   7. Archive the input file if every artifact was written
//
// CONCURRENCY:
//   Files are processed concurrently, bounded by MaxConcurrency. Results are
//   collected through a channel and summarised once every file is done.
//
// =============================================================================

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ginjaninja78/asycuda-export/internal/config"
	"github.com/ginjaninja78/asycuda-export/internal/ledger"
	"github.com/ginjaninja78/asycuda-export/internal/logging"
	"github.com/ginjaninja78/asycuda-export/internal/notify"
	"github.com/ginjaninja78/asycuda-export/internal/salesreport"
	"github.com/ginjaninja78/asycuda-export/internal/storage"
	"github.com/ginjaninja78/asycuda-export/pkg/utils"
)

// Error types used in file results and the processing summary.
const (
	ErrorTypeMapping    = "mapping"
	ErrorTypeInput      = "input"
	ErrorTypeValidation = "validation"
	ErrorTypeExport     = "export"
	ErrorTypeCancelled  = "cancelled"
)

// Recorder stores declaration records. *ledger.Ledger implements it.
type Recorder interface {
	Record(ctx context.Context, rec *ledger.DeclarationRecord) error
}

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// FileResult represents the outcome of processing a single file.
type FileResult struct {
	// FilePath is the path to the input file that was processed.
	FilePath string

	// Mapping is the name of the mapping configuration used.
	Mapping string

	// Registration is the registration number, if a declaration was built.
	Registration string

	// Artifacts are the storage locations of the written artifacts.
	Artifacts []string

	// ArchivePath is set when the input was archived.
	ArchivePath string

	// Success indicates that every requested artifact was written.
	Success bool

	// Error contains the error if processing failed.
	Error error

	// ErrorType is one of the ErrorType constants.
	ErrorType string

	Stats FileStats
}

// FileStats contains statistics about the processing of one file.
type FileStats struct {
	Rows               int
	Items              int
	SkippedRows        int
	ValidationErrors   int
	ValidationWarnings int
	ProcessingTime     time.Duration
}

// =============================================================================
// RUNNER
// =============================================================================

// Runner processes a directory of sales reports.
type Runner struct {
	Main     *config.MainConfig
	Mappings []*config.MappingConfig
	Pipeline *Pipeline
	Storage  storage.Storage
	Files    *utils.FileManager

	// Ledger is optional.
	Ledger Recorder

	// Notifier defaults to notify.Nop.
	Notifier notify.Notifier

	// DryRun builds and validates but writes nothing.
	DryRun bool

	Logger *slog.Logger
}

func (r *Runner) logger(ctx context.Context) *slog.Logger {
	l := r.Logger
	if l == nil {
		l = slog.Default()
	}
	return logging.Enrich(ctx, l)
}

// Run processes every input file and writes the processing summary.
//
// RETURNS:
//   - The processing summary. Failed files are listed in it and do not
//     make Run fail.
//   - An error if the input directory cannot be scanned or the summary
//     cannot be written.
func (r *Runner) Run(ctx context.Context, files ...string) (*utils.ProcessingSummary, error) {
	runID := uuid.New().String()
	ctx = logging.WithRunID(ctx, runID)
	logger := r.logger(ctx)

	summary := &utils.ProcessingSummary{RunID: runID, StartTime: time.Now()}

	if len(files) == 0 {
		var err error
		files, err = r.Files.DiscoverInputFiles()
		if err != nil {
			return nil, fmt.Errorf("failed to discover input files: %w", err)
		}
	}
	summary.TotalFiles = len(files)
	logger.Info("processing run started", "files", len(files), "dry_run", r.DryRun)

	if len(files) == 0 {
		summary.EndTime = time.Now()
		return summary, nil
	}

	// =========================================================================
	// PROCESS FILES CONCURRENTLY
	// =========================================================================

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	limit := r.Main.MaxConcurrency
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	results := make(chan FileResult, len(files))
	var wg sync.WaitGroup

	for _, file := range files {
		wg.Add(1)
		go func(filePath string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := runCtx.Err(); err != nil {
				results <- FileResult{FilePath: filePath, Error: err, ErrorType: ErrorTypeCancelled}
				return
			}
			results <- r.ProcessFile(runCtx, filePath)
		}(file)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// =========================================================================
	// COLLECT RESULTS
	// =========================================================================

	for res := range results {
		summary.TotalRows += res.Stats.Rows
		summary.TotalItems += res.Stats.Items
		summary.SkippedRows += res.Stats.SkippedRows
		summary.ValidationErrors += res.Stats.ValidationErrors
		summary.ValidationWarnings += res.Stats.ValidationWarnings

		if res.Success {
			summary.SuccessfulFiles++
			summary.ProcessedFiles = append(summary.ProcessedFiles, utils.ProcessedFileInfo{
				InputFile:    res.FilePath,
				Registration: res.Registration,
				Artifacts:    res.Artifacts,
				ArchivePath:  res.ArchivePath,
				Rows:         res.Stats.Rows,
				Items:        res.Stats.Items,
				SkippedRows:  res.Stats.SkippedRows,
				ProcessTime:  res.Stats.ProcessingTime,
			})
			continue
		}

		summary.FailedFiles++
		msg := "incomplete export"
		if res.Error != nil {
			msg = res.Error.Error()
		}
		summary.FailedFilesList = append(summary.FailedFilesList, utils.FailedFileInfo{
			InputFile:    res.FilePath,
			ErrorMessage: msg,
			ErrorType:    res.ErrorType,
		})
		if !r.Main.ContinueOnError {
			cancel()
		}
	}

	sort.Slice(summary.ProcessedFiles, func(i, j int) bool {
		return summary.ProcessedFiles[i].InputFile < summary.ProcessedFiles[j].InputFile
	})
	sort.Slice(summary.FailedFilesList, func(i, j int) bool {
		return summary.FailedFilesList[i].InputFile < summary.FailedFilesList[j].InputFile
	})
	summary.EndTime = time.Now()

	logger.Info("processing run complete",
		"files", summary.TotalFiles,
		"successful", summary.SuccessfulFiles,
		"failed", summary.FailedFiles,
		"duration", summary.EndTime.Sub(summary.StartTime).String(),
	)

	if r.DryRun {
		return summary, nil
	}

	var buf bytes.Buffer
	if err := utils.WriteSummary(&buf, *summary); err != nil {
		return summary, err
	}
	key := utils.SummaryFileName(summary.StartTime)
	if err := r.Storage.Save(ctx, key, &buf, "text/plain; charset=utf-8"); err != nil {
		return summary, fmt.Errorf("failed to write processing summary: %w", err)
	}
	return summary, nil
}

// ProcessFile runs the per-file pipeline.
func (r *Runner) ProcessFile(ctx context.Context, filePath string) FileResult {
	startTime := time.Now()
	result := FileResult{FilePath: filePath}
	logger := r.logger(ctx).With("file", filepath.Base(filePath))

	fail := func(kind string, err error) FileResult {
		result.ErrorType = kind
		result.Error = err
		result.Stats.ProcessingTime = time.Since(startTime)
		logger.Error("file failed", "type", kind, "error", err)
		return result
	}

	// =========================================================================
	// STEP 1: DETERMINE MAPPING
	// =========================================================================

	mapping := config.FindMapping(filePath, r.Mappings)
	if mapping == nil {
		return fail(ErrorTypeMapping, fmt.Errorf("no matching mapping configuration found"))
	}
	result.Mapping = mapping.Name
	logger = logger.With("mapping", mapping.Name)

	// =========================================================================
	// STEP 2: READ SALES REPORT
	// =========================================================================

	report, err := salesreport.Read(filePath, mapping.Columns, mapping.CSVSettings)
	if err != nil {
		return fail(ErrorTypeInput, err)
	}
	result.Stats.Rows = len(report.Rows)
	logger.Debug("read sales report", "rows", len(report.Rows))

	// =========================================================================
	// STEP 3: BUILD AND VALIDATE
	// =========================================================================

	pr, err := r.Pipeline.Process(ctx, report.Rows, mapping)
	if err != nil {
		return fail(ErrorTypeMapping, fmt.Errorf("failed to process rows: %w", err))
	}
	result.Stats.SkippedRows = len(pr.RowErrors)
	if pr.Validation != nil {
		result.Stats.ValidationErrors = pr.Validation.ErrorCount
		result.Stats.ValidationWarnings = pr.Validation.WarningCount
	}

	reportKey := reportDir(filePath)
	if pr.Declaration == nil {
		err := fmt.Errorf("no rows could be mapped (%d row error(s))", len(pr.RowErrors))
		r.writeReports(ctx, reportKey, filePath, mapping, pr, nil, err)
		return fail(ErrorTypeMapping, err)
	}
	d := pr.Declaration
	result.Registration = d.RegistrationNumber
	result.Stats.Items = len(d.Items)
	logger = logger.With("registration", d.RegistrationNumber)

	if r.DryRun {
		result.Success = pr.Validation.Valid
		if !result.Success {
			return fail(ErrorTypeValidation, &InvalidDeclarationError{Validation: pr.Validation})
		}
		result.Stats.ProcessingTime = time.Since(startTime)
		return result
	}

	// =========================================================================
	// STEP 4: EXPORT
	// =========================================================================

	rec := ledger.NewRecord(d, pr.Validation)
	rec.RunID = logging.RunID(ctx)
	rec.MappingCode = mapping.Code
	rec.SourceFile = filePath
	rec.SkippedRows = len(pr.RowErrors)

	er, err := r.Pipeline.Export(ctx, d, r.Main.Formats)
	if err != nil {
		r.writeReports(ctx, reportKey, filePath, mapping, pr, er, err)
		r.record(ctx, logger, &rec)
		kind := ErrorTypeExport
		if errors.Is(err, ErrInvalidDeclaration) {
			kind = ErrorTypeValidation
		}
		return fail(kind, err)
	}

	// =========================================================================
	// STEP 5: STORE ARTIFACTS AND REPORTS
	// =========================================================================

	name := utils.GenerateOutputFileName(r.Main.OutputFileFormat, map[string]string{
		"registration": d.RegistrationNumber,
		"mapping":      mapping.Code,
		"original":     strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath)),
	})
	for _, format := range er.Formats() {
		a := er.Artifacts[format]
		key := name + a.Extension
		if err := r.Storage.Save(ctx, key, bytes.NewReader(a.Data), a.ContentType); err != nil {
			er.Errors[format] = fmt.Errorf("failed to store %s: %w", key, err)
			continue
		}
		result.Artifacts = append(result.Artifacts, r.Storage.Location(key))
		logger.Info("wrote artifact", "format", format, "location", r.Storage.Location(key))
	}
	r.writeReports(ctx, reportKey, filePath, mapping, pr, er, nil)

	// =========================================================================
	// STEP 6: LEDGER AND NOTIFICATION
	// =========================================================================

	rec.Artifacts = result.Artifacts
	rec.Status = ledger.StatusExported
	if len(er.Errors) > 0 {
		rec.Status = ledger.StatusPartial
	}
	r.record(ctx, logger, &rec)

	if len(result.Artifacts) > 0 {
		notifier := r.Notifier
		if notifier == nil {
			notifier = notify.Nop{}
		}
		ev := notify.DeclarationExported{
			RunID:        rec.RunID,
			Registration: d.RegistrationNumber,
			MappingCode:  mapping.Code,
			SourceFile:   filepath.Base(filePath),
			Items:        len(d.Items),
			Packages:     d.TotalPackages(),
			TotalValue:   d.TotalValue(),
			Currency:     d.Currency,
			Artifacts:    result.Artifacts,
			Valid:        true,
			ExportedAt:   time.Now().UTC(),
		}
		if err := notifier.Publish(ctx, ev); err != nil {
			logger.Warn("failed to publish export notification", "error", err)
		}
	}

	if err := er.Err(); err != nil {
		return fail(ErrorTypeExport, err)
	}

	// =========================================================================
	// STEP 7: ARCHIVE INPUT
	// =========================================================================

	if r.Files != nil {
		archived, err := r.Files.ArchiveInputFile(filePath)
		if err != nil {
			logger.Warn("failed to archive input", "error", err)
		} else if archived != filePath {
			result.ArchivePath = archived
		}
	}

	result.Success = true
	result.Stats.ProcessingTime = time.Since(startTime)
	return result
}

func (r *Runner) record(ctx context.Context, logger *slog.Logger, rec *ledger.DeclarationRecord) {
	if r.Ledger == nil {
		return
	}
	if err := r.Ledger.Record(ctx, rec); err != nil {
		logger.Warn("failed to record declaration", "error", err)
	}
}

// writeReports stores validation_results.json and error_details.json for
// one input. Failures are logged; the artifacts already written stand.
func (r *Runner) writeReports(ctx context.Context, dir, filePath string, mapping *config.MappingConfig, pr *ProcessResult, er *ExportResult, fileErr error) {
	if r.DryRun {
		return
	}
	logger := r.logger(ctx).With("file", filepath.Base(filePath))
	now := time.Now().UTC()

	vr := newValidationReport(logging.RunID(ctx), filePath, mapping.Name, pr, now)
	details := errorDetails(filePath, pr, er, fileErr, now)

	for name, v := range map[string]any{ValidationReportName: vr, ErrorDetailsName: details} {
		data, err := marshalReport(v)
		if err != nil {
			logger.Warn("failed to encode report", "report", name, "error", err)
			continue
		}
		key := dir + "/" + name
		if err := r.Storage.Save(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
			logger.Warn("failed to write report", "report", name, "error", err)
		}
	}
}

// reportDir is the storage key prefix of the reports of one input.
func reportDir(filePath string) string {
	base := filepath.Base(filePath)
	return "reports/" + strings.TrimSuffix(base, filepath.Ext(base))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
