package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupHome isolates config and data under a temp HOME.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	// keep the wordpiece vocabulary lookup off the network
	t.Setenv("RAGD_CHUNKING_TOKENIZER_PATH", filepath.Join(home, "tokenizer.json"))
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".config", "ragd"), 0700))
	return home
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", ""))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "mcp", "ingest", "ask", "docs", "version"} {
		assert.Contains(t, names, want)
	}

	docs, _, err := root.Find([]string{"docs"})
	require.NoError(t, err)
	var sub []string
	for _, c := range docs.Commands() {
		sub = append(sub, c.Name())
	}
	assert.ElementsMatch(t, []string{"list", "toggle", "search"}, sub)
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    dev")
	assert.Contains(t, out, "Commit:")
}

func TestUserFlagRequired(t *testing.T) {
	setupHome(t)
	tests := []struct {
		name string
		args []string
	}{
		{"ingest", []string{"ingest", "notes.txt"}},
		{"ask", []string{"ask", "what?"}},
		{"docs list", []string{"docs", "list"}},
		{"docs toggle", []string{"docs", "toggle", "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), `required flag(s) "user" not set`)
		})
	}
}

func TestDocsList_Empty(t *testing.T) {
	home := setupHome(t)

	out, err := execute(t, "docs", "list", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents.")

	_, err = os.Stat(filepath.Join(home, ".local", "share", "ragd", "ragd.db"))
	assert.NoError(t, err, "content store is created under HOME")
}

func TestDocsToggle_UnknownDocument(t *testing.T) {
	setupHome(t)

	_, err := execute(t, "docs", "toggle", "missing-id", "--user", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Document not found")
}

func TestDocsSearch_BlankQuery(t *testing.T) {
	setupHome(t)

	_, err := execute(t, "docs", "search", "   ", "--user", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Search query must not be empty")
}

func TestIngest_MissingFile(t *testing.T) {
	setupHome(t)

	_, err := execute(t, "ingest", filepath.Join(t.TempDir(), "nope.txt"), "--user", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening")
}

func TestIngest_DirectoryWithoutSupportedFiles(t *testing.T) {
	setupHome(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scan.odt"), []byte("PK"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD.txt"), []byte("ref"), 0o644))

	out, err := execute(t, "ingest", dir, "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "0 stored, 0 skipped")
}

func TestNewApp_InvalidConfig(t *testing.T) {
	setupHome(t)
	t.Setenv("RAGD_CHUNKING_STRATEGY", "semantic")

	_, err := newApp(context.Background(), &globalFlags{}, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestNewApp_ClosesCleanly(t *testing.T) {
	setupHome(t)

	a, err := newApp(context.Background(), &globalFlags{}, true)
	require.NoError(t, err)
	require.NotNil(t, a.registry)

	report := a.registry.Health(context.Background())
	assert.True(t, report.Healthy(), "components: %v", report.Components)
	assert.NoError(t, a.Close(context.Background()))
}
