package phrasecluster

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPhrasesPlainText(t *testing.T) {
	path := writeTempFile(t, "phrases.txt", "running shoes\n\n  gaming laptop  \n")
	phrases, err := LoadPhrases(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"running shoes", "gaming laptop"}, phrases)
}

func TestLoadPhrasesCSVHeaderDetection(t *testing.T) {
	path := writeTempFile(t, "phrases.csv", "id,keyword,volume\n1,running shoes,100\n2,gaming laptop,50\n")
	phrases, err := LoadPhrases(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"running shoes", "gaming laptop"}, phrases)
}

func TestLoadPhrasesCSVNoHeaderFallsBackToFirstColumn(t *testing.T) {
	path := writeTempFile(t, "phrases.csv", "running shoes,100\ngaming laptop,50\n")
	phrases, err := LoadPhrases(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"running shoes", "gaming laptop"}, phrases)
}

func TestLoadPhrasesExplicitColumnName(t *testing.T) {
	path := writeTempFile(t, "phrases.csv", "id,term\n1,running shoes\n2,gaming laptop\n")
	phrases, err := LoadPhrasesColumn(path, "term")
	require.NoError(t, err)
	assert.Equal(t, []string{"running shoes", "gaming laptop"}, phrases)
}

func TestLoadPhrasesExplicitColumnIndex(t *testing.T) {
	path := writeTempFile(t, "phrases.csv", "1,running shoes\n2,gaming laptop\n")
	phrases, err := LoadPhrasesColumn(path, "#2")
	require.NoError(t, err)
	assert.Equal(t, []string{"running shoes", "gaming laptop"}, phrases)
}

func TestLoadPhrasesMissingColumn(t *testing.T) {
	path := writeTempFile(t, "phrases.csv", "id,term\n1,running shoes\n")
	_, err := LoadPhrasesColumn(path, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreadableInput)
}

func TestLoadPhrasesTSV(t *testing.T) {
	path := writeTempFile(t, "phrases.tsv", "phrase\tvolume\nrunning shoes\t100\n")
	phrases, err := LoadPhrases(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"running shoes"}, phrases)
}

func TestLoadPhrasesUnsupportedExtension(t *testing.T) {
	path := writeTempFile(t, "phrases.xlsx", "whatever")
	_, err := LoadPhrases(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreadableInput)
}

func TestLoadPhrasesMissingFile(t *testing.T) {
	_, err := LoadPhrases(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreadableInput)
}

func TestLoadPhrasesBOMStripped(t *testing.T) {
	path := writeTempFile(t, "phrases.txt", "\ufeffrunning shoes\n")
	phrases, err := LoadPhrases(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"running shoes"}, phrases)
}

func savedResult() *Result {
	return &Result{
		Rows: []Row{
			{Phrase: "running shoes", Normalized: "run shoe", ClusterID: 0, Representative: "running shoes"},
			{Phrase: "gaming laptop", Normalized: "game laptop", ClusterID: 1, Representative: "gaming laptop"},
			{Phrase: "!!!", ClusterID: UnclusteredID},
		},
		Clusters: []ClusterSummary{
			{ID: 0, Size: 1, Label: "run / shoe", Representative: "running shoes"},
			{ID: 1, Size: 1, Label: "game / laptop", Representative: "gaming laptop"},
		},
		Discarded: []Discarded{{Phrase: "!!!", Reason: ReasonEmpty}},
	}
}

func TestSaveResultCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	rows, err := SaveResult(path, savedResult())
	require.NoError(t, err)
	assert.Equal(t, 3, rows)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "phrase,normalized,cluster,representative\n"))
	assert.Contains(t, content, "running shoes,run shoe,0,running shoes")
	assert.Contains(t, content, "!!!,,-1,")
	assert.Contains(t, content, "# clusters")
	assert.Contains(t, content, "0,1,run / shoe,running shoes")
}

func TestSaveResultJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	want := savedResult()
	_, err := SaveResult(path, want)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Result
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, *want, got)
}

func TestSaveResultText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	_, err := SaveResult(path, savedResult())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Cluster 0 [run / shoe] (1 phrases):")
	assert.Contains(t, content, "  - running shoes")
	assert.Contains(t, content, "Unclustered (1 phrases):")
}

func TestSaveResultUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	_, err := SaveResult(path, savedResult())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWriteError)
	assert.NoFileExists(t, path)
}

func TestSaveResultNoTempLeftover(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	_, err := SaveResult(path, savedResult())
	require.NoError(t, err)
	assert.NoFileExists(t, path+".tmp")
}
