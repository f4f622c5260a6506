package store

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/danchege/Alchemist/internal/common"
	"github.com/danchege/Alchemist/internal/table"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatJSON Format = "json"
	FormatSQL  Format = "sql"
	FormatXLSX Format = "xlsx"
)

// ParseFormat resolves a format name. Empty selects CSV.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatTSV, FormatJSON, FormatSQL, FormatXLSX:
		return f, nil
	case "excel", "xls":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: export format %q", common.ErrUnsupportedFormat, s)
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatTSV:
		return "text/tab-separated-values"
	case FormatJSON:
		return "application/json"
	case FormatSQL:
		return "application/sql"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

// Extension returns the file extension without a dot.
func (f Format) Extension() string { return string(f) }

// rowIter yields rows in export order.
type rowIter func(yield func([]table.Value) error) error

func writeExport(w io.Writer, format Format, name string, cols []table.Column, rows rowIter) error {
	switch format {
	case FormatCSV:
		return writeDelimited(w, ',', cols, rows)
	case FormatTSV:
		return writeDelimited(w, '\t', cols, rows)
	case FormatJSON:
		return writeJSON(w, cols, rows)
	case FormatSQL:
		return writeSQL(w, name, cols, rows)
	case FormatXLSX:
		return writeXLSX(w, cols, rows)
	}
	return fmt.Errorf("%w: export format %q", common.ErrUnsupportedFormat, format)
}

func writeDelimited(w io.Writer, comma rune, cols []table.Column, rows rowIter) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Name
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(cols))
	err := rows(func(row []table.Value) error {
		for i, v := range row {
			record[i] = v.Text()
		}
		return cw.Write(record)
	})
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// writeJSON writes an array of records with keys in column order.
func writeJSON(w io.Writer, cols []table.Column, rows rowIter) error {
	bw := bufio.NewWriter(w)
	keys := make([][]byte, len(cols))
	for i, c := range cols {
		k, err := json.Marshal(c.Name)
		if err != nil {
			return err
		}
		keys[i] = k
	}

	bw.WriteByte('[')
	first := true
	err := rows(func(row []table.Value) error {
		if !first {
			bw.WriteByte(',')
		}
		first = false
		bw.WriteByte('{')
		for i, v := range row {
			if i > 0 {
				bw.WriteByte(',')
			}
			bw.Write(keys[i])
			bw.WriteByte(':')
			val, err := json.Marshal(v.Interface())
			if err != nil {
				return err
			}
			bw.Write(val)
		}
		bw.WriteByte('}')
		return nil
	})
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	bw.WriteString("]\n")
	return bw.Flush()
}

// writeSQL writes a CREATE TABLE statement followed by one MySQL-style
// INSERT per row.
func writeSQL(w io.Writer, name string, cols []table.Column, rows rowIter) error {
	bw := bufio.NewWriter(w)
	tbl := sqlTableName(name)

	defs := make([]string, len(cols))
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = backtick(c.Name)
		defs[i] = "  " + names[i] + " " + sqlColumnType(c.Type)
	}
	fmt.Fprintf(bw, "CREATE TABLE %s (\n%s\n);\n\n", backtick(tbl), strings.Join(defs, ",\n"))

	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES (", backtick(tbl), strings.Join(names, ", "))
	vals := make([]string, len(cols))
	err := rows(func(row []table.Value) error {
		for i, v := range row {
			vals[i] = sqlLiteral(v)
		}
		_, err := bw.WriteString(prefix + strings.Join(vals, ", ") + ");\n")
		return err
	})
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return bw.Flush()
}

func sqlTableName(name string) string {
	name = strings.TrimSuffix(name, "."+string(FormatSQL))
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	if n := table.SanitizeColumnNames([]string{name})[0]; n != "unnamed_column" {
		return n
	}
	return "cleaned_data"
}

func sqlColumnType(ct table.ColumnType) string {
	switch ct {
	case table.TypeNumber:
		return "DOUBLE"
	case table.TypeBool:
		return "BOOLEAN"
	case table.TypeDatetime:
		return "DATETIME"
	default:
		return "TEXT"
	}
}

func sqlLiteral(v table.Value) string {
	switch v.Kind() {
	case table.KindNull:
		return "NULL"
	case table.KindNumber:
		f, _ := v.Float()
		return table.FormatNumber(f)
	case table.KindBool:
		if b, _ := v.BoolValue(); b {
			return "TRUE"
		}
		return "FALSE"
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `''`)
	return "'" + r.Replace(v.Text()) + "'"
}

func backtick(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

const xlsxSheet = "Sheet1"

func writeXLSX(w io.Writer, cols []table.Column, rows rowIter) error {
	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter(xlsxSheet)
	if err != nil {
		return fmt.Errorf("xlsx stream: %w", err)
	}

	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c.Name
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	line := 2
	cells := make([]any, len(cols))
	err = rows(func(row []table.Value) error {
		for i, v := range row {
			switch v.Kind() {
			case table.KindTime:
				cells[i] = v.Text()
			default:
				cells[i] = v.Interface()
			}
		}
		axis, err := excelize.CoordinatesToCellName(1, line)
		if err != nil {
			return err
		}
		line++
		return sw.SetRow(axis, cells)
	})
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("xlsx flush: %w", err)
	}
	return f.Write(w)
}
