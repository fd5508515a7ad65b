// Package model defines ringdb's data model: keyspaces, tables, rows,
// columns and literals (spec §3), plus the cluster membership types
// (position, peer, state) shared by the ring, gossip and delegation
// layers.
package model

import "fmt"

// DataType is a declared CQL column type, restricted to the §3 subset.
type DataType string

const (
	Boolean  DataType = "boolean"
	Date     DataType = "date"
	Decimal  DataType = "decimal"
	Duration DataType = "duration"
	Int      DataType = "int"
	Text     DataType = "text"
	Time     DataType = "time"
)

// WireCode returns the §6 type code used in a ROWS result's column spec.
func (t DataType) WireCode() (uint16, bool) {
	code, ok := wireCodes[t]
	return code, ok
}

var wireCodes = map[DataType]uint16{
	Boolean:  0x0004,
	Date:     0x000B,
	Decimal:  0x0006,
	Duration: 0x000F,
	Int:      0x0009,
	Text:     0x000A,
	Time:     0x000C,
}

// DataTypeFromWireCode is the inverse of WireCode.
func DataTypeFromWireCode(code uint16) (DataType, bool) {
	for t, c := range wireCodes {
		if c == code {
			return t, true
		}
	}
	return "", false
}

// Literal pairs a textual value with its declared data type. Ordering is
// total within a type; comparing across types is a caller error (spec §3
// invariant: "cross-type comparison is a type error").
type Literal struct {
	Text string
	Type DataType
}

// ColumnDef is a table's declaration of one column: name and type.
type ColumnDef struct {
	Name string
	Type DataType
}

// Table is the declared schema of one table within a keyspace.
type Table struct {
	Name         string
	PartitionKey []string // ordered column names
	ClusteringKey []string // ordered column names
	Columns      []ColumnDef
}

// ColumnNames returns every declared column name in declaration order,
// partition key first, then clustering key, then the rest — used to give
// SELECT * a stable column order (spec §4.4).
func (t *Table) ColumnNames() []string {
	seen := make(map[string]bool, len(t.Columns))
	var names []string
	for _, n := range t.PartitionKey {
		names = append(names, n)
		seen[n] = true
	}
	for _, n := range t.ClusteringKey {
		if !seen[n] {
			names = append(names, n)
			seen[n] = true
		}
	}
	for _, c := range t.Columns {
		if !seen[c.Name] {
			names = append(names, c.Name)
			seen[c.Name] = true
		}
	}
	return names
}

// ColumnType looks up the declared type of a column name.
func (t *Table) ColumnType(name string) (DataType, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c.Type, true
		}
	}
	return "", false
}

// FullPrimaryKey returns partition key columns followed by clustering key
// columns, the full primary key in declared order.
func (t *Table) FullPrimaryKey() []string {
	pk := make([]string, 0, len(t.PartitionKey)+len(t.ClusteringKey))
	pk = append(pk, t.PartitionKey...)
	pk = append(pk, t.ClusteringKey...)
	return pk
}

// Keyspace owns a set of tables under one replication configuration.
type Keyspace struct {
	Name                string
	ReplicationStrategy string
	ReplicationFactor   int
	Tables              map[string]*Table
}

// Column is a single cell: a name, a literal value, and the write
// timestamp that produced it (spec §3).
type Column struct {
	Name      string
	Value     Literal
	Timestamp int64
}

// Row is one logical row: its full primary key values, a tombstone flag,
// a row-level timestamp, and the columns currently known for it (spec
// §3). A Row produced by compaction already reflects per-column
// last-write-wins.
type Row struct {
	PrimaryKey map[string]Literal
	Deleted    bool
	Timestamp  int64
	Columns    map[string]*Column
}

// Key renders the primary key as a stable string for use as a map key,
// joining column values in table-declared primary-key order.
func (r *Row) Key(pkOrder []string) string {
	s := ""
	for _, col := range pkOrder {
		v, ok := r.PrimaryKey[col]
		if !ok {
			continue
		}
		s += fmt.Sprintf("%s=%s;", col, v.Text)
	}
	return s
}

// Clone returns a deep-enough copy of the row (the primary-key and
// columns maps are copied, and so is each Column they point to) suitable for building a reconciled view
// without mutating the source.
func (r *Row) Clone() *Row {
	cp := &Row{
		PrimaryKey: make(map[string]Literal, len(r.PrimaryKey)),
		Deleted:    r.Deleted,
		Timestamp:  r.Timestamp,
		Columns:    make(map[string]*Column, len(r.Columns)),
	}
	for k, v := range r.PrimaryKey {
		cp.PrimaryKey[k] = v
	}
	for k, v := range r.Columns {
		c := *v
		cp.Columns[k] = &c
	}
	return cp
}
