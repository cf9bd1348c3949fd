package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleProject = map[string]string{
	"a.py": "def foo():\n    return 1\n\nclass Base:\n    def hello(self):\n        pass\n",
	"b.py": "from a import foo, Base\n\nclass Child(Base):\n    def run(self):\n        return foo()\n\ndef main():\n    return Child()\n",
	"c.py": "from b import main\n\ndef entry():\n    return main()\n",
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for path, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := buildRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBuildRootCmdSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	assert.Equal(t, "codetide", cmd.Use)
	assert.Equal(t, version, cmd.Version)

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, expected := range []string{"index", "update", "get", "tree", "suggest", "validate", "ids", "files", "serve", "watch", "completion"} {
		assert.True(t, names[expected], "missing subcommand %s", expected)
	}
}

func TestIndexJSON(t *testing.T) {
	dir := writeProject(t, sampleProject)
	out, err := run(t, "index", dir, "--no-cache", "--json")
	require.NoError(t, err)

	var got struct {
		Load struct {
			TotalFiles int  `json:"total_files"`
			Elements   int  `json:"elements"`
			Snapshot   bool `json:"from_snapshot"`
		} `json:"load"`
		Stats struct {
			Inheritance int `json:"inheritance_edges"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 3, got.Load.TotalFiles)
	assert.Positive(t, got.Load.Elements)
	assert.False(t, got.Load.Snapshot)
	assert.Equal(t, 1, got.Stats.Inheritance)

	_, err = os.Stat(filepath.Join(dir, ".codetide"))
	assert.True(t, os.IsNotExist(err))
}

func TestIndexThenCachedIDs(t *testing.T) {
	dir := writeProject(t, sampleProject)
	out, err := run(t, "index", dir, "--include-cached-ids")
	require.NoError(t, err)
	assert.Contains(t, out, "Files:      3")

	out, err = run(t, "index", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "snapshot")

	out, err = run(t, "ids", dir, "--cached")
	require.NoError(t, err)
	ids := strings.Split(strings.TrimSpace(out), "\n")
	assert.Contains(t, ids, "a.Base.hello")
	assert.Contains(t, ids, "c.entry")
}

func TestGetSuggestTree(t *testing.T) {
	dir := writeProject(t, sampleProject)

	out, err := run(t, "get", "entry", "--root", dir, "--no-cache", "--degree", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "def entry():")
	assert.Contains(t, out, "def main():")

	out, err = run(t, "get", "entry", "--root", dir, "--no-cache", "--degree", "0")
	require.NoError(t, err)
	assert.NotContains(t, out, "def main():")

	_, err = run(t, "get", "nothing_like_this", "--root", dir, "--no-cache")
	assert.Error(t, err)

	out, err = run(t, "suggest", "c.ent", "--root", dir, "--no-cache")
	require.NoError(t, err)
	assert.Equal(t, "c.entry", strings.Split(out, "\n")[0])

	out, err = run(t, "tree", dir, "--no-cache", "--modules")
	require.NoError(t, err)
	assert.Contains(t, out, "a.py")
	assert.Contains(t, out, "Child")

	out, err = run(t, "files", dir, "--no-cache")
	require.NoError(t, err)
	assert.Equal(t, "a.py\nb.py\nc.py\n", out)
}

func TestUpdateReportsChanges(t *testing.T) {
	dir := writeProject(t, sampleProject)
	_, err := run(t, "index", dir)
	require.NoError(t, err)

	out, err := run(t, "update", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Up to date.")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.py"), []byte("X = 1\n"), 0o644))
	out, err = run(t, "update", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Added 1")
	assert.Contains(t, out, "d.X")
}

func TestInvalidRoot(t *testing.T) {
	_, err := run(t, "index", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestCompletion(t *testing.T) {
	out, err := run(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "codetide")
}
