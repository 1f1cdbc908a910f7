package phrasecluster

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// phraseColumnCandidates is the header names tried when auto-detecting the
// phrase column in CSV/TSV input.
var phraseColumnCandidates = []string{"phrase", "keyword", "keywords", "query", "text"}

// LoadPhrases reads one phrase per row from a text, CSV or TSV file,
// auto-detecting the phrase column for tabular formats.
func LoadPhrases(path string) ([]string, error) {
	return LoadPhrasesColumn(path, "")
}

// LoadPhrasesColumn reads phrases from the given column, named by header or
// as a 1-based "#N" index. An empty column auto-detects.
func LoadPhrasesColumn(path, column string) ([]string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return loadDelimited(path, ',', column)
	case ".tsv":
		return loadDelimited(path, '\t', column)
	case ".txt", "":
		return loadPlainText(path)
	default:
		return nil, fmt.Errorf("%w: unsupported extension %q", ErrUnreadableInput, ext)
	}
}

func loadPlainText(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableInput, err)
	}
	defer f.Close()
	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := cleanCell(scanner.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableInput, err)
	}
	return out, nil
}

func loadDelimited(path string, comma rune, column string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableInput, err)
	}
	defer f.Close()
	reader := csv.NewReader(f)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableInput, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = cleanCell(cell)
	}
	col, start, err := resolvePhraseColumn(header, column)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows)-start)
	for _, row := range rows[start:] {
		if col >= len(row) {
			continue
		}
		if value := cleanCell(row[col]); value != "" {
			out = append(out, value)
		}
	}
	return out, nil
}

// resolvePhraseColumn returns the column index and the first data row,
// skipping the header row only when the column was matched by header name.
func resolvePhraseColumn(header []string, explicit string) (int, int, error) {
	if trimmed := strings.TrimSpace(explicit); trimmed != "" {
		for i, col := range header {
			if strings.EqualFold(col, trimmed) {
				return i, 1, nil
			}
		}
		if strings.HasPrefix(trimmed, "#") {
			idx, err := parseColumnIndex(trimmed)
			if err != nil {
				return -1, 0, fmt.Errorf("%w: %v", ErrUnreadableInput, err)
			}
			if idx >= len(header) {
				return -1, 0, fmt.Errorf("%w: column index %s is out of range", ErrUnreadableInput, trimmed)
			}
			return idx, 0, nil
		}
		return -1, 0, fmt.Errorf("%w: column %q not found", ErrUnreadableInput, explicit)
	}
	for i, col := range header {
		for _, cand := range phraseColumnCandidates {
			if strings.EqualFold(col, cand) {
				return i, 1, nil
			}
		}
	}
	return 0, 0, nil
}

func parseColumnIndex(token string) (int, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(token, "#"))
	idx, err := strconv.Atoi(trimmed)
	if err != nil {
		return -1, fmt.Errorf("invalid column index %q", token)
	}
	if idx <= 0 {
		return -1, fmt.Errorf("column indices are 1-based: %q", token)
	}
	return idx - 1, nil
}

func cleanCell(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "\ufeff")
	return v
}

// SaveResult writes the clustered rows plus a per-cluster summary, choosing
// the format from the file extension (.csv/.tsv, .json, .txt). It returns
// the number of phrase rows written.
func SaveResult(path string, result *Result) (int, error) {
	if result == nil {
		return 0, fmt.Errorf("%w: nil result", ErrWriteError)
	}
	var encode func(f *os.File) error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		encode = func(f *os.File) error { return writeResultCSV(f, result, ',') }
	case ".tsv":
		encode = func(f *os.File) error { return writeResultCSV(f, result, '\t') }
	case ".json":
		encode = func(f *os.File) error { return writeResultJSON(f, result) }
	case ".txt", "":
		encode = func(f *os.File) error { return writeResultText(f, result) }
	default:
		return 0, fmt.Errorf("%w: unsupported extension %q", ErrWriteError, ext)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteError, err)
	}
	if err := encode(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("%w: %v", ErrWriteError, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("%w: %v", ErrWriteError, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("%w: %v", ErrWriteError, err)
	}
	return len(result.Rows), nil
}

func writeResultCSV(f *os.File, result *Result, comma rune) error {
	writer := csv.NewWriter(f)
	writer.Comma = comma
	if err := writer.Write([]string{"phrase", "normalized", "cluster", "representative"}); err != nil {
		return err
	}
	for _, row := range result.Rows {
		record := []string{row.Phrase, row.Normalized, strconv.Itoa(row.ClusterID), row.Representative}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"# clusters"}); err != nil {
		return err
	}
	if err := writer.Write([]string{"cluster", "size", "label", "representative"}); err != nil {
		return err
	}
	for _, c := range result.Clusters {
		record := []string{strconv.Itoa(c.ID), strconv.Itoa(c.Size), c.Label, c.Representative}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeResultText(f *os.File, result *Result) error {
	w := bufio.NewWriter(f)
	for _, c := range result.Clusters {
		fmt.Fprintf(w, "\nCluster %d [%s] (%d phrases):\n", c.ID, c.Label, c.Size)
		for _, row := range result.Rows {
			if row.ClusterID == c.ID {
				fmt.Fprintf(w, "  - %s\n", row.Phrase)
			}
		}
	}
	if len(result.Discarded) > 0 {
		fmt.Fprintf(w, "\nUnclustered (%d phrases):\n", len(result.Discarded))
		for _, d := range result.Discarded {
			fmt.Fprintf(w, "  - %s (%s)\n", d.Phrase, d.Reason)
		}
	}
	return w.Flush()
}

func writeResultJSON(f *os.File, result *Result) error {
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
