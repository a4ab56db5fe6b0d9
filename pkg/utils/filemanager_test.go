package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
}

func TestDiscoverInputFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b_shop.xlsx"))
	touch(t, filepath.Join(dir, "a_shop.csv"))
	touch(t, filepath.Join(dir, "~$b_shop.xlsx"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "nested", "c_shop.csv"))

	fm := NewFileManager(dir, filepath.Join(dir, "archive"))

	files, err := fm.DiscoverInputFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a_shop.csv"),
		filepath.Join(dir, "b_shop.xlsx"),
	}, files)

	files, err = fm.DiscoverInputFiles("*.csv", "a_*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a_shop.csv")}, files)

	files, err = fm.DiscoverInputFilesRecursive()
	require.NoError(t, err)
	assert.Len(t, files, 3)
	assert.Contains(t, files, filepath.Join(dir, "nested", "c_shop.csv"))
}

func TestArchiveInputFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in", "shop.csv")
	touch(t, src)

	fm := NewFileManager(filepath.Join(dir, "in"), filepath.Join(dir, "archive"))
	fm.UseTimestampSubdirs = true
	fm.now = func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) }

	archived, err := fm.ArchiveInputFile(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "archive", "2026", "10", "17", "shop.csv"), archived)
	assert.False(t, FileExists(src))
	assert.True(t, FileExists(archived))

	fm.ArchiveOnSuccess = false
	other := filepath.Join(dir, "in", "keep.csv")
	touch(t, other)
	path, err := fm.ArchiveInputFile(other)
	require.NoError(t, err)
	assert.Equal(t, other, path)
	assert.True(t, FileExists(other))
}

func TestGenerateOutputFileName(t *testing.T) {
	name := GenerateOutputFileName("{mapping}_{registration}", map[string]string{
		"mapping":      "SHOP1",
		"registration": "LC20261017000042",
	})
	assert.Equal(t, "SHOP1_LC20261017000042", name)

	name = GenerateOutputFileName("{original}_{uuid}", map[string]string{"original": "a/b"})
	assert.True(t, strings.HasPrefix(name, "a_b_"))
	assert.Len(t, name, len("a_b_")+36)

	assert.NotContains(t, GenerateOutputFileName("{date}", nil), "{")
}

func TestCleanOldArchives(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.csv")
	fresh := filepath.Join(dir, "fresh.csv")
	touch(t, old)
	touch(t, fresh)
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	removed, err := CleanOldArchives(dir, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.False(t, FileExists(old))
	assert.True(t, FileExists(fresh))
}

func TestWriteSummary(t *testing.T) {
	start := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := WriteSummary(&buf, ProcessingSummary{
		RunID:           "run-1",
		StartTime:       start,
		EndTime:         start.Add(2 * time.Second),
		TotalFiles:      2,
		SuccessfulFiles: 1,
		FailedFiles:     1,
		ProcessedFiles: []ProcessedFileInfo{{
			InputFile:    "shop.csv",
			Registration: "LC20261017000001",
			Artifacts:    []string{"out/LC20261017000001.xml"},
			Items:        3,
		}},
		FailedFilesList: []FailedFileInfo{{InputFile: "bad.csv", ErrorMessage: "no items", ErrorType: "validation"}},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Run ID:         run-1")
	assert.Contains(t, out, "Duration:       2s")
	assert.Contains(t, out, "Registration: LC20261017000001")
	assert.Contains(t, out, "Artifact:     out/LC20261017000001.xml")
	assert.Contains(t, out, "Error: no items")
	assert.Equal(t, "processing_summary_20261017_090000.txt", SummaryFileName(start))
}
