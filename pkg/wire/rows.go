package wire

import (
	"github.com/cuemby/ringdb/pkg/model"
	"github.com/cuemby/ringdb/pkg/wireerr"
)

// RowsFlag bits for a ROWS result (only the defaults are used by this
// subset: no paging, no metadata suppression).
const (
	RowsFlagNone uint32 = 0x0000
)

// ColumnSpec describes one column in a ROWS result header (spec §6).
type ColumnSpec struct {
	Name string
	Type model.DataType
}

// RowsResult is a decoded/encodable ROWS result body (spec §6): a
// keyspace/table header, column specs, and row-count × column-count
// string values in row-major order.
type RowsResult struct {
	Keyspace string
	Table    string
	Columns  []ColumnSpec
	// Values[i][j] is the string value of row i, column j; an empty
	// string distinguishes from NULL only via Present.
	Values  [][]string
	Present [][]bool
}

// EncodeRows serializes a RowsResult into a RESULT body (kind-prefixed).
func EncodeRows(r *RowsResult) []byte {
	w := NewWriter()
	w.U32(uint32(ResultRows))
	w.I32(int32(RowsFlagNone))
	w.I32(int32(len(r.Columns)))
	w.String(r.Keyspace)
	w.String(r.Table)
	for _, c := range r.Columns {
		w.String(c.Name)
		code, _ := c.Type.WireCode()
		w.Short(int16(code))
	}
	w.I32(int32(len(r.Values)))
	for i, row := range r.Values {
		for j, v := range row {
			if r.Present != nil && !r.Present[i][j] {
				w.Bytes(nil)
				continue
			}
			w.Bytes([]byte(v))
		}
	}
	return w.Bytes()
}

// DecodeRows parses a RESULT body of kind ResultRows (the kind
// discriminator itself has already been consumed by the caller).
func DecodeRows(c *Cursor) (*RowsResult, error) {
	flags, err := c.I32()
	if err != nil {
		return nil, err
	}
	_ = flags
	colCount, err := c.I32()
	if err != nil {
		return nil, err
	}
	ks, err := c.String()
	if err != nil {
		return nil, err
	}
	tbl, err := c.String()
	if err != nil {
		return nil, err
	}
	cols := make([]ColumnSpec, colCount)
	for i := range cols {
		name, err := c.String()
		if err != nil {
			return nil, err
		}
		typeCode, err := c.Short()
		if err != nil {
			return nil, err
		}
		dt, ok := model.DataTypeFromWireCode(uint16(typeCode))
		if !ok {
			return nil, wireerr.Newf(wireerr.ProtocolError, "unknown column type code %d", typeCode)
		}
		cols[i] = ColumnSpec{Name: name, Type: dt}
	}
	rowCount, err := c.I32()
	if err != nil {
		return nil, err
	}
	values := make([][]string, rowCount)
	present := make([][]bool, rowCount)
	for i := range values {
		values[i] = make([]string, colCount)
		present[i] = make([]bool, colCount)
		for j := range values[i] {
			b, err := c.Bytes()
			if err != nil {
				return nil, err
			}
			if b == nil {
				present[i][j] = false
				continue
			}
			present[i][j] = true
			values[i][j] = string(b)
		}
	}
	return &RowsResult{Keyspace: ks, Table: tbl, Columns: cols, Values: values, Present: present}, nil
}

// DecodeResultKind peeks the 4-byte kind discriminator from the front of
// a RESULT body.
func DecodeResultKind(body []byte) (ResultKind, *Cursor, error) {
	c := NewCursor(body)
	kind, err := c.U32()
	if err != nil {
		return 0, nil, err
	}
	return ResultKind(kind), c, nil
}
