package root

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/bu/pkg/failure"
	"github.com/charlie0129/bu/pkg/utils/exitcode"
)

// Test helper functions

func writeFile(t *testing.T, path, content string) {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	require.NoError(t, err)
	err = os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
}

func readFile(t *testing.T, path string) string {
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func runBu(args ...string) (string, error) {
	cmd := NewCommand()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return out.String(), err
}

// Test cases

func TestBackup_Basic(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := filepath.Join(t.TempDir(), "sink")

	writeFile(t, filepath.Join(sourceDir, "a.txt"), "alpha")
	writeFile(t, filepath.Join(sourceDir, "sub", "b.txt"), "bravo")
	writeFile(t, filepath.Join(sourceDir, ".hidden", "c.txt"), "charlie")

	output, err := runBu("--source", sourceDir, "--sink", sinkDir)
	require.NoError(t, err, "bu command failed: %s", output)

	assert.Equal(t, "alpha", readFile(t, filepath.Join(sinkDir, "a.txt")))
	assert.Equal(t, "bravo", readFile(t, filepath.Join(sinkDir, "sub", "b.txt")))
	assert.NoDirExists(t, filepath.Join(sinkDir, ".hidden"))

	assert.Contains(t, output, "3 succeeded (1 dirs, 2 files")
	assert.Contains(t, output, "0 failed")
}

func TestBackup_IncludeHidden(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()

	writeFile(t, filepath.Join(sourceDir, ".config", "settings"), "s")

	output, err := runBu("--source", sourceDir, "--sink", sinkDir, "--include-hidden")
	require.NoError(t, err, "bu command failed: %s", output)

	assert.Equal(t, "s", readFile(t, filepath.Join(sinkDir, ".config", "settings")))
}

func TestBackup_Exclude(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()

	writeFile(t, filepath.Join(sourceDir, "main.go"), "m")
	writeFile(t, filepath.Join(sourceDir, "web", "node_modules", "x.js"), "x")
	writeFile(t, filepath.Join(sourceDir, "scratch.tmp"), "t")

	output, err := runBu("--source", sourceDir, "--sink", sinkDir,
		"--exclude", "**/node_modules", "--exclude", "*.tmp")
	require.NoError(t, err, "bu command failed: %s", output)

	assert.FileExists(t, filepath.Join(sinkDir, "main.go"))
	assert.DirExists(t, filepath.Join(sinkDir, "web"))
	assert.NoDirExists(t, filepath.Join(sinkDir, "web", "node_modules"))
	assert.NoFileExists(t, filepath.Join(sinkDir, "scratch.tmp"))
}

func TestBackup_SourceDefaultsToWorkingDirectory(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()
	writeFile(t, filepath.Join(sourceDir, "here.txt"), "here")

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(sourceDir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	output, err := runBu("--sink", sinkDir)
	require.NoError(t, err, "bu command failed: %s", output)

	assert.Equal(t, "here", readFile(t, filepath.Join(sinkDir, "here.txt")))
}

func TestBackup_OverwritesAndKeepsUnrelated(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()

	writeFile(t, filepath.Join(sourceDir, "level1", "level2", "deep.txt"), "deep source content")
	writeFile(t, filepath.Join(sinkDir, "level1", "level2", "deep.txt"), "old deep content")
	writeFile(t, filepath.Join(sinkDir, "level1", "unrelated.txt"), "unrelated")

	output, err := runBu("--source", sourceDir, "--sink", sinkDir)
	require.NoError(t, err, "bu command failed: %s", output)

	assert.Equal(t, "deep source content", readFile(t, filepath.Join(sinkDir, "level1", "level2", "deep.txt")))
	assert.Equal(t, "unrelated", readFile(t, filepath.Join(sinkDir, "level1", "unrelated.txt")))
}

func TestBackup_RequiresSink(t *testing.T) {
	_, err := runBu("--source", t.TempDir())
	assert.Error(t, err)
}

func TestBackup_MissingSource(t *testing.T) {
	output, err := runBu("--source", filepath.Join(t.TempDir(), "missing"), "--sink", t.TempDir())
	require.Error(t, err, output)

	assert.True(t, failure.IsKind(err, failure.SourceNotFound))
	assert.NotEqual(t, exitcode.Success, exitcode.FromError(err))
}

func TestBackup_PartialFailureIsReported(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}

	sourceDir := t.TempDir()
	sinkDir := t.TempDir()

	writeFile(t, filepath.Join(sourceDir, "ok.txt"), "ok")
	locked := filepath.Join(sourceDir, "locked.txt")
	writeFile(t, locked, "locked")
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { _ = os.Chmod(locked, 0644) })

	output, err := runBu("--source", sourceDir, "--sink", sinkDir)
	require.Error(t, err)

	var runErr *failure.RunError
	require.True(t, errors.As(err, &runErr))
	assert.Len(t, runErr.Failures, 1)

	assert.Contains(t, output, "locked.txt")
	assert.Contains(t, output, "1 succeeded")
	assert.Contains(t, output, "1 failed")
	assert.Equal(t, "ok", readFile(t, filepath.Join(sinkDir, "ok.txt")))
	assert.Equal(t, 13, exitcode.FromError(err)) // EACCES
}

func TestBackup_BlockedDirectoryIsReported(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()

	writeFile(t, filepath.Join(sourceDir, "ok.txt"), "ok")
	require.NoError(t, os.Mkdir(filepath.Join(sourceDir, "blocked"), 0755))
	writeFile(t, filepath.Join(sinkDir, "blocked"), "a file where a directory belongs")

	output, err := runBu("--source", sourceDir, "--sink", sinkDir)
	require.Error(t, err)

	var runErr *failure.RunError
	require.True(t, errors.As(err, &runErr))
	require.Len(t, runErr.Failures, 1)
	assert.Equal(t, failure.DestinationCreateFailed, runErr.Failures[0].Kind)
	assert.Contains(t, output, "blocked")
	assert.Contains(t, output, "1 succeeded")
	assert.Contains(t, output, "1 failed")
	assert.Equal(t, "ok", readFile(t, filepath.Join(sinkDir, "ok.txt")))
	assert.NotEqual(t, exitcode.Success, exitcode.FromError(err))
}

func TestBackup_BlockSizeTooLarge(t *testing.T) {
	_, err := runBu("--source", t.TempDir(), "--sink", t.TempDir(), "--block-size", "8t")
	assert.ErrorContains(t, err, "block size must not exceed")

	blockSize = "256k"
}

func TestBackup_InvalidBlockSize(t *testing.T) {
	_, err := runBu("--source", t.TempDir(), "--sink", t.TempDir(), "--block-size", "lots")
	assert.ErrorContains(t, err, "invalid block size")

	// Reset for the other tests, flags live in package variables.
	blockSize = "256k"
}
