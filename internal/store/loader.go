package store

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/danchege/Alchemist/internal/common"
	"github.com/danchege/Alchemist/internal/table"
)

// SourceKind is the family of an uploaded file.
type SourceKind string

const (
	SourceDelimited   SourceKind = "delimited"
	SourceJSON        SourceKind = "json"
	SourceSpreadsheet SourceKind = "spreadsheet"
	SourceSQLite      SourceKind = "sqlite"
)

// DetectSource maps a file name to its source kind by extension.
func DetectSource(name string) (SourceKind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv", ".txt":
		return SourceDelimited, nil
	case ".json":
		return SourceJSON, nil
	case ".xlsx", ".xls":
		return SourceSpreadsheet, nil
	case ".db", ".sqlite", ".sqlite3":
		return SourceSQLite, nil
	}
	return "", fmt.Errorf("%w: %q", common.ErrUnsupportedFormat, filepath.Ext(name))
}

// Open loads the file at path. name is the user-facing file name and
// selects the parser. Delimited files at or above the large-file
// threshold are streamed into a SQLite store; everything else is parsed
// into memory.
func Open(ctx context.Context, path, name string, opts Options) (Store, error) {
	opts = opts.withDefaults()
	kind, err := DetectSource(name)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat upload: %w", err)
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("%w: empty file", common.ErrCorruptSource)
	}

	var t *table.Table
	switch kind {
	case SourceDelimited:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open upload: %w", err)
		}
		defer f.Close()

		src, counter := wrapSource(f, fi.Size(), opts.Progress)
		br := bufio.NewReaderSize(src, 64<<10)
		comma := sniffDelimiter(br, name)
		if fi.Size() >= opts.LargeFileThreshold {
			return openLarge(ctx, br, comma, counter, opts)
		}
		t, err = readDelimited(br, comma)
		if err != nil {
			return nil, err
		}
	case SourceJSON:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open upload: %w", err)
		}
		defer f.Close()
		src, _ := wrapSource(f, fi.Size(), opts.Progress)
		if t, err = readJSON(src); err != nil {
			return nil, err
		}
	case SourceSpreadsheet:
		if t, err = readSpreadsheet(path); err != nil {
			return nil, err
		}
	case SourceSQLite:
		if t, err = readSQLite(ctx, path); err != nil {
			return nil, err
		}
	}

	opts.Logger.Info("file loaded", "source", kind, "rows", t.NumRows(), "columns", t.NumCols())
	return NewMemory(t, opts.Logger), nil
}

// sniffDelimiter picks the separator for a delimited file. .tsv is always
// tab; otherwise the most frequent of , ; tab | on the first line wins.
func sniffDelimiter(br *bufio.Reader, name string) rune {
	if strings.EqualFold(filepath.Ext(name), ".tsv") {
		return '\t'
	}
	head, _ := br.Peek(br.Size())
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		if n := bytes.Count(head, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func readDelimited(r io.Reader, comma rune) (*table.Table, error) {
	cr := newCSVReader(r, comma)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", common.ErrCorruptSource)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", common.ErrCorruptSource, err)
	}

	var records [][]string
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", common.ErrCorruptSource, line, err)
		}
		if len(rec) > len(header) {
			return nil, fmt.Errorf("%w: line %d has %d fields, expected %d",
				common.ErrCorruptSource, line, len(rec), len(header))
		}
		records = append(records, rec)
	}
	return table.FromRecords(table.SanitizeColumnNames(header), records), nil
}

// ============================================================================
// JSON
// ============================================================================

// jsonObject keeps object keys in document order.
type jsonObject []jsonField

type jsonField struct {
	key   string
	value any
}

// readJSON accepts an array of objects, an object wrapping one such
// array, or a single object. Nested objects are flattened with dotted
// keys; nested arrays are kept as JSON text.
func readJSON(r io.Reader) (*table.Table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	doc, err := decodeJSON(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCorruptSource, err)
	}

	var items []any
	switch v := doc.(type) {
	case []any:
		items = v
	case jsonObject:
		items = []any{v}
		if len(v) == 1 {
			if arr, ok := v[0].value.([]any); ok {
				items = arr
			}
		}
	default:
		return nil, fmt.Errorf("%w: expected an array of records", common.ErrCorruptSource)
	}

	var (
		header []string
		index  = make(map[string]int)
		flat   []map[string]string
	)
	for _, item := range items {
		obj, ok := item.(jsonObject)
		if !ok {
			return nil, fmt.Errorf("%w: array element is not an object", common.ErrCorruptSource)
		}
		rec := make(map[string]string)
		flattenJSON("", obj, rec, func(key string) {
			if _, seen := index[key]; !seen {
				index[key] = len(header)
				header = append(header, key)
			}
		})
		flat = append(flat, rec)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("%w: no columns", common.ErrCorruptSource)
	}

	records := make([][]string, len(flat))
	for i, rec := range flat {
		row := make([]string, len(header))
		for k, v := range rec {
			row[index[k]] = v
		}
		records[i] = row
	}
	return table.FromRecords(table.SanitizeColumnNames(header), records), nil
}

func flattenJSON(prefix string, obj jsonObject, out map[string]string, seen func(string)) {
	for _, f := range obj {
		key := f.key
		if prefix != "" {
			key = prefix + "." + f.key
		}
		if nested, ok := f.value.(jsonObject); ok {
			flattenJSON(key, nested, out, seen)
			continue
		}
		seen(key)
		out[key] = jsonText(f.value)
	}
}

func jsonText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	}
	b, err := json.Marshal(plainJSON(v))
	if err != nil {
		return ""
	}
	return string(b)
}

// plainJSON converts ordered objects back to maps for re-encoding.
func plainJSON(v any) any {
	switch x := v.(type) {
	case jsonObject:
		m := make(map[string]any, len(x))
		for _, f := range x {
			m[f.key] = plainJSON(f.value)
		}
		return m
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plainJSON(e)
		}
		return out
	}
	return v
}

func decodeJSON(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		var obj jsonObject
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := kt.(string)
			val, err := decodeJSON(dec)
			if err != nil {
				return nil, err
			}
			obj = append(obj, jsonField{key: key, value: val})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := []any{}
		for dec.More() {
			val, err := decodeJSON(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unexpected %v", delim)
}

// ============================================================================
// Spreadsheets and SQLite
// ============================================================================

// readSpreadsheet reads the first sheet of a workbook. Legacy .xls files
// are not readable by excelize and fail as corrupt.
func readSpreadsheet(path string) (*table.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", common.ErrCorruptSource, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", common.ErrCorruptSource)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", common.ErrCorruptSource, sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %q is empty", common.ErrCorruptSource, sheets[0])
	}

	header := rows[0]
	width := len(header)
	for _, r := range rows[1:] {
		width = max(width, len(r))
	}
	for len(header) < width {
		header = append(header, "")
	}
	return table.FromRecords(table.SanitizeColumnNames(header), rows[1:]), nil
}

// readSQLite reads the first user table of a SQLite database.
func readSQLite(ctx context.Context, path string) (*table.Table, error) {
	db, err := sql.Open(sqliteDriver, "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", common.ErrCorruptSource, err)
	}
	defer db.Close()

	var name string
	err = db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY rowid LIMIT 1").Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: database has no tables", common.ErrCorruptSource)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read schema: %v", common.ErrCorruptSource, err)
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoteIdentifier(name))
	if err != nil {
		return nil, fmt.Errorf("%w: read table %q: %v", common.ErrCorruptSource, name, err)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(header))
	ptrs := make([]any, len(header))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	var records [][]string
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: scan row: %v", common.ErrCorruptSource, err)
		}
		rec := make([]string, len(vals))
		for i, v := range vals {
			rec[i] = sqliteText(v)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCorruptSource, err)
	}
	return table.FromRecords(table.SanitizeColumnNames(header), records), nil
}

func sqliteText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return table.FormatNumber(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return table.FormatTime(x)
	}
	return fmt.Sprint(v)
}
