// =============================================================================
// ASYCUDA Export - Processing Summary
// =============================================================================
//
// The processing summary is a plain-text report of one directory run. It is
// written next to the artifacts as processing_summary_<timestamp>.txt.
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"io"
	"time"
)

// ProcessingSummary contains summary information about a processing run.
type ProcessingSummary struct {
	RunID              string
	StartTime          time.Time
	EndTime            time.Time
	TotalFiles         int
	SuccessfulFiles    int
	FailedFiles        int
	TotalRows          int
	TotalItems         int
	SkippedRows        int
	ValidationErrors   int
	ValidationWarnings int
	ProcessedFiles     []ProcessedFileInfo
	FailedFilesList    []FailedFileInfo
}

// ProcessedFileInfo contains information about a successfully processed file.
type ProcessedFileInfo struct {
	InputFile    string
	Registration string
	Artifacts    []string
	ArchivePath  string
	Rows         int
	Items        int
	SkippedRows  int
	ProcessTime  time.Duration
}

// FailedFileInfo contains information about a failed file.
type FailedFileInfo struct {
	InputFile    string
	ErrorMessage string
	ErrorType    string
}

// SummaryFileName returns the summary file name for a run started at t.
func SummaryFileName(t time.Time) string {
	return fmt.Sprintf("processing_summary_%s.txt", t.Format("20060102_150405"))
}

// WriteSummary writes a processing summary.
//
// PARAMETERS:
//   - w: The destination.
//   - summary: The processing summary.
//
// RETURNS:
//   - An error if writing fails.
func WriteSummary(w io.Writer, summary ProcessingSummary) error {
	writer := bufio.NewWriter(w)
	rule := "================================================================================\n"
	thin := "--------------------------------------------------------------------------------\n"

	duration := summary.EndTime.Sub(summary.StartTime)
	fmt.Fprintf(writer, "ASYCUDA Export - Processing Summary\n"+rule+"\n"+
		"Run Information:\n"+
		"  Run ID:         %s\n"+
		"  Start Time:     %s\n"+
		"  End Time:       %s\n"+
		"  Duration:       %s\n\n"+
		"Statistics:\n"+
		"  Total Files:         %d\n"+
		"  Successful:          %d\n"+
		"  Failed:              %d\n"+
		"  Total Rows:          %d\n"+
		"  Declared Items:      %d\n"+
		"  Skipped Rows:        %d\n"+
		"  Validation Errors:   %d\n"+
		"  Validation Warnings: %d\n\n",
		summary.RunID,
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		duration.String(),
		summary.TotalFiles,
		summary.SuccessfulFiles,
		summary.FailedFiles,
		summary.TotalRows,
		summary.TotalItems,
		summary.SkippedRows,
		summary.ValidationErrors,
		summary.ValidationWarnings)

	if len(summary.ProcessedFiles) > 0 {
		writer.WriteString("Successful Files:\n" + thin)
		for _, pf := range summary.ProcessedFiles {
			fmt.Fprintf(writer, "  Input:        %s\n", pf.InputFile)
			fmt.Fprintf(writer, "  Registration: %s\n", pf.Registration)
			for _, a := range pf.Artifacts {
				fmt.Fprintf(writer, "  Artifact:     %s\n", a)
			}
			if pf.ArchivePath != "" {
				fmt.Fprintf(writer, "  Archived:     %s\n", pf.ArchivePath)
			}
			fmt.Fprintf(writer, "  Rows:         %d\n", pf.Rows)
			fmt.Fprintf(writer, "  Items:        %d\n", pf.Items)
			fmt.Fprintf(writer, "  Skipped:      %d\n", pf.SkippedRows)
			fmt.Fprintf(writer, "  Process Time: %s\n\n", pf.ProcessTime.String())
		}
	}

	if len(summary.FailedFilesList) > 0 {
		writer.WriteString("Failed Files:\n" + thin)
		for _, ff := range summary.FailedFilesList {
			fmt.Fprintf(writer, "  File:  %s\n", ff.InputFile)
			if ff.ErrorType != "" {
				fmt.Fprintf(writer, "  Type:  %s\n", ff.ErrorType)
			}
			fmt.Fprintf(writer, "  Error: %s\n\n", ff.ErrorMessage)
		}
	}

	writer.WriteString(rule + "End of Summary\n")

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush summary: %w", err)
	}
	return nil
}
