// Package repair reconciles divergent replica responses to a read on the
// coordinator's read path (spec §4.6). It never touches storage itself —
// it only computes the merged view and the per-replica deltas needed to
// bring each replica back in line; the delegator applies those deltas.
package repair

import "github.com/cuemby/ringdb/pkg/model"

// OpKind classifies a repair delta the coordinator must push back to a
// diverging replica.
type OpKind int

const (
	OpInsert OpKind = iota
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "INSERT"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Op is one repair write a replica must apply to converge with the
// merged view: the row already carries the winning per-column
// timestamps, so applying it is idempotent with respect to replay order
// (spec §4.6 point 4, mirroring hinted-handoff's idempotence).
type Op struct {
	Kind OpKind
	Row  *model.Row
}

// Merge reconciles per-replica ROWS responses for one partition read.
// responses maps a replica address to the rows it returned (already
// compacted to one row per primary key). It returns the merged view —
// one row per primary key seen by any replica, tombstones excluded — and
// the repair ops each replica needs applied to converge (spec §4.6).
//
// With fewer than two responses no repair is possible; the lone response
// (or nothing) is returned with no deltas.
func Merge(pkOrder []string, responses map[string][]*model.Row) (merged []*model.Row, deltas map[string][]Op) {
	if len(responses) < 2 {
		for _, rows := range responses {
			return rows, nil
		}
		return nil, nil
	}

	type mergedEntry struct {
		row *model.Row
	}
	byKey := make(map[string]*mergedEntry)

	for _, rows := range responses {
		for _, row := range rows {
			key := row.Key(pkOrder)
			e, ok := byKey[key]
			if !ok {
				byKey[key] = &mergedEntry{row: row.Clone()}
			} else {
				mergeInto(e.row, row)
			}
		}
	}

	byAddr := make(map[string]map[string]*model.Row, len(responses))
	for addr, rows := range responses {
		byAddr[addr] = rowsByKey(rows, pkOrder)
	}

	deltas = make(map[string][]Op)
	for _, e := range byKey {
		if !e.row.Deleted {
			merged = append(merged, e.row)
		}
		key := e.row.Key(pkOrder)
		for addr := range responses {
			local, hasLocal := byAddr[addr][key]
			op, needsRepair := diff(e.row, local, hasLocal)
			if needsRepair {
				deltas[addr] = append(deltas[addr], op)
			}
		}
	}
	return merged, deltas
}

// mergeInto folds b's columns into a (the running merge) keeping, per
// column, the value with the greatest timestamp; the row is tombstoned
// iff either side's row-level delete timestamp exceeds any non-tombstone
// column timestamp seen on either side (spec §4.6 point 2).
func mergeInto(a, b *model.Row) {
	if b.Timestamp > a.Timestamp {
		a.Timestamp = b.Timestamp
	}
	for name, bc := range b.Columns {
		ac, ok := a.Columns[name]
		if !ok || bc.Timestamp > ac.Timestamp {
			cp := *bc
			a.Columns[name] = &cp
		}
	}
	maxColumnTS := int64(0)
	for _, c := range a.Columns {
		if c.Timestamp > maxColumnTS {
			maxColumnTS = c.Timestamp
		}
	}
	a.Deleted = (a.Deleted && a.Timestamp > maxColumnTS) || (b.Deleted && b.Timestamp > maxColumnTS)
	if a.Deleted {
		a.Timestamp = maxInt64(a.Timestamp, b.Timestamp)
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func rowsByKey(rows []*model.Row, pkOrder []string) map[string]*model.Row {
	out := make(map[string]*model.Row, len(rows))
	for _, r := range rows {
		out[r.Key(pkOrder)] = r
	}
	return out
}

// diff decides what op (if any) a replica needs to converge its local
// row with the merged row (spec §4.6 point 4).
func diff(merged, local *model.Row, hasLocal bool) (Op, bool) {
	if merged.Deleted {
		if hasLocal && !local.Deleted {
			return Op{Kind: OpDelete, Row: merged}, true
		}
		return Op{}, false
	}
	if !hasLocal {
		return Op{Kind: OpInsert, Row: merged}, true
	}
	if rowsDiffer(merged, local) {
		return Op{Kind: OpUpdate, Row: merged}, true
	}
	return Op{}, false
}

func rowsDiffer(a, b *model.Row) bool {
	if a.Deleted != b.Deleted {
		return true
	}
	if len(a.Columns) != len(b.Columns) {
		return true
	}
	for name, ac := range a.Columns {
		bc, ok := b.Columns[name]
		if !ok || bc.Value != ac.Value || bc.Timestamp != ac.Timestamp {
			return true
		}
	}
	return false
}
