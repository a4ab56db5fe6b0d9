// =============================================================================
// ASYCUDA Export - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the directory runner:
//   - Sales report discovery (.csv, .xlsx, .xlsm)
//   - Input archival after fully successful runs
//   - Artifact naming
//   - Archive retention
//
// ARCHIVAL STRATEGY:
//   - Input files are moved to input_archive only when every artifact of the
//     declaration was written
//   - Failed files remain in their original location
//   - Artifacts themselves go through internal/storage, not this module
//
// =============================================================================

package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultInputPatterns are the sales report patterns scanned by default.
var DefaultInputPatterns = []string{"*.csv", "*.xlsx", "*.xlsm"}

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles sales report files for the directory runner.
type FileManager struct {
	// InputDir is the directory where sales reports are placed.
	InputDir string

	// InputArchiveDir is the directory for archived sales reports.
	InputArchiveDir string

	// UseTimestampSubdirs creates date-based subdirectories in the archive.
	// Example: input_archive/2026/10/17/shop.csv
	UseTimestampSubdirs bool

	// ArchiveOnSuccess determines whether to archive files after successful processing.
	ArchiveOnSuccess bool

	// now is replaced in tests.
	now func() time.Time
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(inputDir, inputArchiveDir string) *FileManager {
	return &FileManager{
		InputDir:         inputDir,
		InputArchiveDir:  inputArchiveDir,
		ArchiveOnSuccess: true,
		now:              time.Now,
	}
}

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDirectories creates the input and archive directories if they don't exist.
func (fm *FileManager) EnsureDirectories() error {
	for _, dir := range []string{fm.InputDir, fm.InputArchiveDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverInputFiles scans the input directory for files matching any of the
// patterns.
//
// PARAMETERS:
//   - patterns: Glob patterns (e.g., "*.csv"). If empty, DefaultInputPatterns.
//
// RETURNS:
//   - The matching file paths, sorted and without duplicates.
//   - An error if a pattern is malformed.
//
// Lock files left by spreadsheet programs ("~$shop.xlsx") are skipped.
func (fm *FileManager) DiscoverInputFiles(patterns ...string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = DefaultInputPatterns
	}

	seen := make(map[string]bool)
	var result []string
	for _, pattern := range patterns {
		files, err := filepath.Glob(filepath.Join(fm.InputDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to scan input directory: %w", err)
		}
		for _, file := range files {
			if seen[file] || strings.HasPrefix(filepath.Base(file), "~$") {
				continue
			}
			info, err := os.Stat(file)
			if err != nil || info.IsDir() {
				continue
			}
			seen[file] = true
			result = append(result, file)
		}
	}

	sort.Strings(result)
	return result, nil
}

// DiscoverInputFilesRecursive scans the input directory recursively.
//
// PARAMETERS:
//   - extensions: The file extensions to match (e.g., ".csv"). If empty, every
//     extension of DefaultInputPatterns.
//
// RETURNS:
//   - A slice of file paths in walk order.
//   - An error if the directory cannot be read.
func (fm *FileManager) DiscoverInputFilesRecursive(extensions ...string) ([]string, error) {
	if len(extensions) == 0 {
		for _, p := range DefaultInputPatterns {
			extensions = append(extensions, strings.TrimPrefix(p, "*"))
		}
	}

	var files []string
	err := filepath.Walk(fm.InputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), "~$") {
			return nil
		}
		lower := strings.ToLower(path)
		for _, ext := range extensions {
			if strings.HasSuffix(lower, strings.ToLower(ext)) {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk input directory: %w", err)
	}

	return files, nil
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// ArchiveInputFile moves an input file to the archive directory.
//
// PARAMETERS:
//   - filePath: The path to the file to archive.
//
// RETURNS:
//   - The path to the archived file.
//   - An error if archival fails.
func (fm *FileManager) ArchiveInputFile(filePath string) (string, error) {
	if !fm.ArchiveOnSuccess {
		return filePath, nil
	}

	archivePath := fm.getArchivePath(fm.InputArchiveDir, filePath)

	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := os.Rename(filePath, archivePath); err != nil {
		// Cross-device moves fall back to copy and delete.
		if err := copyFile(filePath, archivePath); err != nil {
			return "", fmt.Errorf("failed to copy file to archive: %w", err)
		}
		if err := os.Remove(filePath); err != nil {
			return "", fmt.Errorf("failed to remove original file: %w", err)
		}
	}

	return archivePath, nil
}

// getArchivePath constructs the archive path for a file.
func (fm *FileManager) getArchivePath(archiveDir, filePath string) string {
	fileName := filepath.Base(filePath)

	if fm.UseTimestampSubdirs {
		now := fm.clock()
		return filepath.Join(
			archiveDir,
			fmt.Sprintf("%d", now.Year()),
			fmt.Sprintf("%02d", now.Month()),
			fmt.Sprintf("%02d", now.Day()),
			fileName,
		)
	}

	return filepath.Join(archiveDir, fileName)
}

func (fm *FileManager) clock() time.Time {
	if fm.now == nil {
		return time.Now()
	}
	return fm.now()
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// GenerateOutputFileName expands a file name format. The extension is added
// by the caller, one per emitted format.
//
// PARAMETERS:
//   - format: The format string for the file name.
//     Placeholders:
//     {uuid}         - A random UUID
//     {timestamp}    - Current timestamp (YYYYMMDD_HHMMSS)
//     {date}         - Current date (YYYYMMDD)
//     {time}         - Current time (HHMMSS)
//     {registration} - Registration number (from params)
//     {mapping}      - Mapping code (from params)
//     {original}     - Input file name without extension (from params)
//   - params: A map of placeholder values.
//
// RETURNS:
//   - The generated file name. Path separators are replaced with "_".
//
// EXAMPLE:
//
//	format: "{mapping}_{registration}"
//	params: {"mapping": "SHOP1", "registration": "LC20261017000042"}
//	output: "SHOP1_LC20261017000042"
func GenerateOutputFileName(format string, params map[string]string) string {
	now := time.Now()

	replacements := map[string]string{
		"{uuid}":      uuid.New().String(),
		"{timestamp}": now.Format("20060102_150405"),
		"{date}":      now.Format("20060102"),
		"{time}":      now.Format("150405"),
	}
	for key, value := range params {
		replacements["{"+key+"}"] = value
	}

	result := format
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	return strings.NewReplacer("/", "_", `\`, "_").Replace(result)
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return destFile.Sync()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// CleanOldArchives removes archive files older than the specified duration.
//
// PARAMETERS:
//   - archiveDir: The archive directory to clean.
//   - maxAge: The maximum age of files to keep.
//
// RETURNS:
//   - The number of files removed.
//   - An error if cleaning fails.
func CleanOldArchives(archiveDir string, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	err := filepath.Walk(archiveDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to clean archives: %w", err)
	}

	return removed, nil
}
