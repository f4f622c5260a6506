package store

import (
	"database/sql"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/danchege/Alchemist/internal/ops"
	"github.com/danchege/Alchemist/internal/table"
)

// sqliteDriver is go-sqlite3 with the engine's scalar functions
// registered on every connection, so SQL queries fold, parse and clean
// text exactly like the in-memory store.
const sqliteDriver = "sqlite3_alchemist"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			for name, fn := range sqlFunctions {
				if err := conn.RegisterFunc(name, fn, true); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

// Arguments are never NULL: call sites wrap columns in COALESCE.
var sqlFunctions = map[string]any{
	"alc_fold": table.Fold,
	"alc_isnum": func(s string) int64 {
		return boolInt(isNumberText(s))
	},
	"alc_isbool": func(s string) int64 {
		_, ok := table.ParseBoolLiteral(s)
		return boolInt(ok)
	},
	"alc_num": func(s string) float64 {
		f, _ := table.ParseStrictNumber(s)
		return f
	},
	"alc_blank": func(s string) int64 {
		return boolInt(strings.TrimSpace(s) == "")
	},
	"alc_clean": func(s, textOps, caseType string) string {
		return ops.CleanString(s, splitList(textOps), caseType)
	},
}

func isNumberText(s string) bool {
	_, ok := table.ParseStrictNumber(s)
	return ok
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteColumns(cols []string) []string {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdentifier(col)
	}
	return quoted
}

// placeholders returns n comma-separated '?' markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
