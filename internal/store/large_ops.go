package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/danchege/Alchemist/internal/common"
	"github.com/danchege/Alchemist/internal/ops"
	"github.com/danchege/Alchemist/internal/table"
)

// Supports rejects operations that would need the whole table in memory
// or that are not enabled for large files.
func (l *Large) Supports(op ops.Operation) error {
	unsupported := func(detail string) error {
		return common.WrapOp(string(op.Type), fmt.Errorf("%w: %s", common.ErrUnsupportedInLargeFileMode, detail))
	}
	if !l.enabled[op.Type] {
		return unsupported(string(op.Type) + " is not enabled for large files")
	}
	switch op.Type {
	case ops.RemoveDuplicates, ops.CleanText, ops.MergeValues:
		return nil
	case ops.RemoveEmpty:
		if op.Target == ops.TargetColumns {
			return unsupported("removing empty columns changes the schema")
		}
		return nil
	case ops.FillMissing:
		if op.Method == ops.MethodZero || op.Method == ops.MethodValue {
			return nil
		}
		return unsupported("only zero and value fills are available")
	}
	return unsupported(string(op.Type) + " needs the full table in memory")
}

func (l *Large) checkBatch(batch []ops.Operation) error {
	if err := ops.ValidateAll(batch); err != nil {
		return err
	}
	for _, op := range batch {
		if err := l.Supports(op); err != nil {
			return err
		}
	}
	return nil
}

// Apply runs the batch against the data table in one transaction.
func (l *Large) Apply(ctx context.Context, batch []ops.Operation) (Snapshot, []ops.Summary, error) {
	if err := l.checkBatch(batch); err != nil {
		return Snapshot{}, nil, err
	}
	var sums []ops.Summary
	err := l.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		sums, err = l.applyBatch(ctx, tx, tblData, batch)
		return err
	})
	if err != nil {
		return Snapshot{}, nil, err
	}
	return newSnapshot(batch, l.Shape(), nil), sums, nil
}

// Undo rebuilds data from base (or original) by replaying the remaining
// history into a scratch table, then swaps it in.
func (l *Large) Undo(ctx context.Context, entry Snapshot, remaining []Snapshot) (Snapshot, error) {
	redo := newSnapshot(entry.Operations, l.Shape(), nil)
	redo.Time = entry.Time

	src := tblOriginal
	if l.hasBase {
		src = tblBase
	}
	err := l.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+tblScratch); err != nil {
			return err
		}
		if err := createTable(ctx, tx, tblScratch, l.names); err != nil {
			return err
		}
		if err := copyTable(ctx, tx, tblScratch, src, l.names); err != nil {
			return err
		}
		for _, snap := range remaining {
			if _, err := l.applyBatch(ctx, tx, tblScratch, snap.Operations); err != nil {
				return fmt.Errorf("replay %q: %w", snap.Description, err)
			}
		}
		return swapIn(ctx, tx, tblScratch)
	})
	if err != nil {
		return Snapshot{}, err
	}
	l.logger.Debug("large file undo replayed", "entries", len(remaining), "from", src)
	return redo, nil
}

// Redo re-applies the entry's operations.
func (l *Large) Redo(ctx context.Context, entry Snapshot) (Snapshot, error) {
	snap, _, err := l.Apply(ctx, entry.Operations)
	return snap, err
}

// Evict folds the entry into base so later replays start after it.
func (l *Large) Evict(ctx context.Context, entry Snapshot) error {
	err := l.inTx(ctx, func(tx *sql.Tx) error {
		if !l.hasBase {
			if err := createTable(ctx, tx, tblBase, l.names); err != nil {
				return err
			}
			if err := copyTable(ctx, tx, tblBase, tblOriginal, l.names); err != nil {
				return err
			}
		}
		_, err := l.applyBatch(ctx, tx, tblBase, entry.Operations)
		return err
	})
	if err != nil {
		return fmt.Errorf("fold evicted entry: %w", err)
	}
	l.hasBase = true
	return nil
}

// Reset copies original back into data and drops base.
func (l *Large) Reset(ctx context.Context) error {
	err := l.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+tblBase); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+tblScratch); err != nil {
			return err
		}
		if err := createTable(ctx, tx, tblScratch, l.names); err != nil {
			return err
		}
		if err := copyTable(ctx, tx, tblScratch, tblOriginal, l.names); err != nil {
			return err
		}
		return swapIn(ctx, tx, tblScratch)
	})
	if err != nil {
		return err
	}
	l.hasBase = false
	return nil
}

// swapIn replaces data with tbl.
func swapIn(ctx context.Context, tx *sql.Tx, tbl string) error {
	if _, err := tx.ExecContext(ctx, "DROP TABLE "+tblData); err != nil {
		return fmt.Errorf("drop data: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tbl, tblData)); err != nil {
		return fmt.Errorf("swap in %s: %w", tbl, err)
	}
	return nil
}

// inTx runs fn in a transaction and refreshes cached metadata after a
// successful commit.
func (l *Large) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return l.refresh(ctx)
}

// applyBatch runs each operation against tbl. Column types are derived
// again before each step because earlier steps can change them.
func (l *Large) applyBatch(ctx context.Context, q querier, tbl string, batch []ops.Operation) ([]ops.Summary, error) {
	sums := make([]ops.Summary, 0, len(batch))
	for _, op := range batch {
		types, _, err := deriveTypes(ctx, q, tbl, l.names)
		if err != nil {
			return nil, err
		}
		sum, err := l.runOp(ctx, q, tbl, types, op)
		if err != nil {
			return nil, common.WrapOp(string(op.Type), err)
		}
		sum.Operation = string(op.Type)
		sums = append(sums, sum)
	}
	return sums, nil
}

func (l *Large) runOp(ctx context.Context, q querier, tbl string, types []table.ColumnType, op ops.Operation) (ops.Summary, error) {
	exec := func(query string, args ...any) (int, error) {
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		return int(n), err
	}

	switch op.Type {
	case ops.RemoveDuplicates:
		keys := make([]string, 0, len(l.names))
		for i, n := range l.names {
			keys = append(keys, dedupeKey(n, types[i])...)
		}
		n, err := exec(fmt.Sprintf("DELETE FROM %[1]s WHERE rowid NOT IN (SELECT MIN(rowid) FROM %[1]s GROUP BY %[2]s)",
			tbl, strings.Join(keys, ", ")))
		return ops.Summary{Affected: n, Unit: "rows"}, err

	case ops.RemoveEmpty:
		conds := make([]string, len(l.names))
		for i, n := range l.names {
			conds[i] = fmt.Sprintf("alc_blank(COALESCE(%s, '')) = 1", quoteIdentifier(n))
		}
		n, err := exec(fmt.Sprintf("DELETE FROM %s WHERE %s", tbl, strings.Join(conds, " AND ")))
		return ops.Summary{Affected: n, Unit: "rows"}, err

	case ops.CleanText:
		textOps := strings.Join(op.TextOperations, ",")
		caseType := op.CaseType
		if caseType == "" {
			caseType = ops.CaseLower
		}
		total := 0
		for _, name := range op.Columns {
			i, err := l.column(name)
			if err != nil {
				return ops.Summary{}, err
			}
			if types[i] != table.TypeString {
				continue
			}
			c := quoteIdentifier(name)
			clean := fmt.Sprintf("alc_clean(COALESCE(%s, ''), ?, ?)", c)
			n, err := exec(fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IS NOT NULL AND %s <> %s", tbl, c, clean, c, clean, c),
				textOps, caseType, textOps, caseType)
			if err != nil {
				return ops.Summary{}, err
			}
			total += n
		}
		return ops.Summary{Affected: total, Unit: "cells"}, nil

	case ops.MergeValues:
		if _, err := l.column(op.Column); err != nil {
			return ops.Summary{}, err
		}
		c := quoteIdentifier(op.Column)
		args := []any{op.Canonical}
		for _, v := range op.Values {
			args = append(args, v)
		}
		args = append(args, op.Canonical)
		n, err := exec(fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s IN (%s) AND %s <> ?",
			tbl, c, c, placeholders(len(op.Values)), c), args...)
		return ops.Summary{Affected: n, Unit: "cells"}, err

	case ops.FillMissing:
		if _, err := l.column(op.Column); err != nil {
			return ops.Summary{}, err
		}
		value := "0"
		if op.Method == ops.MethodValue {
			value = op.ValueText()
		}
		c := quoteIdentifier(op.Column)
		n, err := exec(fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s IS NULL", tbl, c, c), value)
		return ops.Summary{Affected: n, Unit: "cells"}, err
	}
	return ops.Summary{}, common.InvalidOperation("unknown operation %q", op.Type)
}

// dedupeKey returns GROUP BY terms that compare a column the way
// table.Value.Key does: numbers by value, booleans ignoring case.
func dedupeKey(name string, ct table.ColumnType) []string {
	c := quoteIdentifier(name)
	switch ct {
	case table.TypeNumber:
		return []string{"(" + c + " IS NULL)", fmt.Sprintf("alc_num(COALESCE(%s, ''))", c)}
	case table.TypeBool:
		return []string{"(" + c + " IS NULL)", fmt.Sprintf("alc_fold(COALESCE(%s, ''))", c)}
	}
	return []string{c}
}
