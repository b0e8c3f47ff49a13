package verify

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/bu/pkg/cmd/root"
	"github.com/charlie0129/bu/pkg/hasher"
)

func writeFile(t *testing.T, path, content string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func execute(cmdArgs ...string) error {
	cmd := root.NewCommand()
	cmd.AddCommand(NewCommand())

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(cmdArgs)

	return cmd.Execute()
}

func TestVerify(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()
	writeFile(t, filepath.Join(sourceDir, "a.txt"), "alpha")
	writeFile(t, filepath.Join(sourceDir, "sub", "b.txt"), "bravo")

	require.NoError(t, execute("--source", sourceDir, "--sink", sinkDir))
	assert.NoError(t, execute("verify", "--source", sourceDir, "--sink", sinkDir))

	writeFile(t, filepath.Join(sinkDir, "sub", "b.txt"), "changed")
	assert.ErrorIs(t, execute("verify", "--source", sourceDir, "--sink", sinkDir), hasher.ErrMismatch)
}

func TestVerify_MissingSink(t *testing.T) {
	err := execute("verify", "--source", t.TempDir(), "--sink", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestVerify_ErrorIsLeftToCaller(t *testing.T) {
	cmd := root.NewCommand()
	cmd.AddCommand(NewCommand())

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"verify", "--source", t.TempDir(), "--sink", filepath.Join(t.TempDir(), "missing")})

	require.Error(t, cmd.Execute())
	assert.NotContains(t, out.String(), "Error:")
}
