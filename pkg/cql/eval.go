package cql

import (
	"strconv"

	"github.com/cuemby/ringdb/pkg/model"
)

// columnValue looks up a row's value for name, checking the primary key
// map first (columns may be folded only into PrimaryKey, never
// Columns, for pure key fields written by some callers) and falling back
// to the Columns map.
func columnValue(row *model.Row, name string) (string, bool) {
	if lit, ok := row.PrimaryKey[name]; ok {
		return lit.Text, true
	}
	if col, ok := row.Columns[name]; ok {
		return col.Value.Text, true
	}
	return "", false
}

// Eval reports whether row satisfies expr. A comparison against a column
// absent from the row is always false, matching SQL NULL-comparison
// semantics closely enough for this subset.
func Eval(expr Expr, row *model.Row) bool {
	switch e := expr.(type) {
	case *Cmp:
		val, ok := columnValue(row, e.Column)
		if !ok {
			return false
		}
		return compareLiteral(e.Op, val, e.Value)
	case *And:
		return Eval(e.Left, row) && Eval(e.Right, row)
	case *Or:
		return Eval(e.Left, row) || Eval(e.Right, row)
	case *Not:
		return !Eval(e.Inner, row)
	default:
		return false
	}
}

// compareLiteral compares two raw literal texts under op, numerically if
// both parse as numbers and lexicographically otherwise (spec §3: "Literal
// ... Ordering is total within a data type").
func compareLiteral(op CompareOp, a, b string) bool {
	af, aok := strconv.ParseFloat(a, 64)
	bf, bok := strconv.ParseFloat(b, 64)
	var cmp int
	if aok && bok {
		switch {
		case af < bf:
			cmp = -1
		case af > bf:
			cmp = 1
		default:
			cmp = 0
		}
	} else {
		switch {
		case a < b:
			cmp = -1
		case a > b:
			cmp = 1
		default:
			cmp = 0
		}
	}
	switch op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	default:
		return false
	}
}
