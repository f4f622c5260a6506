package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/danchege/Alchemist/internal/cluster"
	"github.com/danchege/Alchemist/internal/common"
	"github.com/danchege/Alchemist/internal/ops"
	"github.com/danchege/Alchemist/internal/store"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const citiesCSV = "name,city\nAlice,NY\n bob ,ny\ncarol,N.Y.\nAlice,NY\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// run executes the CLI with args and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append(args, "--no-progress", "--data-dir", t.TempDir()))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestLoadPipeline(t *testing.T) {
	dir := t.TempDir()

	yamlPath := writeFile(t, dir, "steps.yaml", `
operations:
  - type: remove_duplicates
  - type: clean_text
    columns: [name]
    text_operations: [trim_whitespace, normalize_case]
    case_type: title
  - type: fill_missing
    column: city
    method: value
    value: unknown
view:
  filter:
    column: city
    operator: equals
    value: ny
large_file_operations: [remove_duplicates]
`)
	p, err := loadPipeline(yamlPath)
	require.NoError(t, err)
	require.Len(t, p.Operations, 3)
	assert.Equal(t, ops.RemoveDuplicates, p.Operations[0].Type)
	assert.Equal(t, []string{"name"}, p.Operations[1].Columns)
	assert.Equal(t, "title", p.Operations[1].CaseType)
	assert.Equal(t, "unknown", p.Operations[2].Value)
	require.NotNil(t, p.View)
	require.NotNil(t, p.View.Filter)
	assert.Equal(t, "city", p.View.Filter.Column)

	kinds, err := p.LargeFileKinds()
	require.NoError(t, err)
	assert.Equal(t, []ops.Kind{ops.RemoveDuplicates}, kinds)

	jsonPath := writeFile(t, dir, "steps.json", `{"operations":[{"type":"remove_empty","target":"rows"}]}`)
	p, err = loadPipeline(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "rows", p.Operations[0].Target)
	assert.Nil(t, p.View)
}

func TestLoadPipeline_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := loadPipeline(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = loadPipeline(writeFile(t, dir, "empty.yaml", "operations: []\n"))
	assert.ErrorContains(t, err, "no operations")

	_, err = loadPipeline(writeFile(t, dir, "bad.yaml", "operations:\n  - type: pivot\n"))
	assert.ErrorIs(t, err, common.ErrInvalidOperation)
}

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		flag, output string
		want         store.Format
	}{
		{"", "", store.FormatCSV},
		{"", "out.json", store.FormatJSON},
		{"tsv", "out.json", store.FormatTSV},
		{"", "out.XLSX", store.FormatXLSX},
	}
	for _, tt := range tests {
		got, err := outputFormat(tt.flag, tt.output)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "flag=%q output=%q", tt.flag, tt.output)
	}

	_, err := outputFormat("", "out.pdf")
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
}

func TestCleanCommand(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "cities.csv", citiesCSV)
	pipeline := writeFile(t, dir, "steps.yaml", `
operations:
  - type: clean_text
    columns: [name]
    text_operations: [trim_whitespace]
  - type: remove_duplicates
`)
	output := filepath.Join(dir, "clean.csv")

	stdout, stderr, err := run(t, "clean", input, "-p", pipeline, "-o", output)
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "remove_duplicates")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "name,city\nAlice,NY\nbob,ny\ncarol,N.Y.\n", string(data))
}

func TestCleanCommand_ViewToStdout(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "cities.csv", citiesCSV)
	pipeline := writeFile(t, dir, "steps.yaml", `
operations:
  - type: remove_duplicates
view:
  filter: {column: city, operator: equals, value: ny}
`)

	stdout, _, err := run(t, "clean", input, "-p", pipeline, "-f", "json")
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &rows))
	assert.Len(t, rows, 2)
}

func TestCleanCommand_DryRun(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "cities.csv", citiesCSV)
	pipeline := writeFile(t, dir, "steps.yaml", "operations:\n  - type: remove_duplicates\n")

	stdout, _, err := run(t, "clean", input, "-p", pipeline, "--dry-run")
	require.NoError(t, err)

	var preview ops.PreviewResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &preview))
	assert.Equal(t, 4, preview.Before.Rows)
	assert.Equal(t, 3, preview.After.Rows)

	// The input is untouched.
	data, err := os.ReadFile(input)
	require.NoError(t, err)
	assert.Equal(t, citiesCSV, string(data))
}

func TestConvertCommand(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "cities.csv", citiesCSV)

	stdout, _, err := run(t, "convert", input, "-", "--format", "tsv")
	require.NoError(t, err)
	assert.Contains(t, stdout, "name\tcity\n")

	output := filepath.Join(dir, "cities.json")
	_, _, err = run(t, "convert", input, output)
	require.NoError(t, err)
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(data, &rows))
	assert.Len(t, rows, 4)
}

func TestProfileAndClustersCommands(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "cities.csv", citiesCSV)

	stdout, _, err := run(t, "profile", input)
	require.NoError(t, err)
	var info store.Info
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, 4, info.Shape.Rows)

	stdout, _, err = run(t, "profile", input, "--column", "city")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"column": "city"`)

	stdout, _, err = run(t, "clusters", input, "-c", "city")
	require.NoError(t, err)
	var suggestions []cluster.Suggestion
	require.NoError(t, json.Unmarshal([]byte(stdout), &suggestions))
	require.Len(t, suggestions, 1)
	assert.Equal(t, "NY", suggestions[0].Canonical)

	_, _, err = run(t, "clusters", input)
	assert.Error(t, err)

	_, _, err = run(t, "profile", filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}
