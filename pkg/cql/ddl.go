package cql

import (
	"strconv"
	"strings"

	"github.com/cuemby/ringdb/pkg/lexer"
	"github.com/cuemby/ringdb/pkg/model"
	"github.com/cuemby/ringdb/pkg/wire"
	"github.com/cuemby/ringdb/pkg/wireerr"
)

// CreateKeyspaceQuery is a parsed `CREATE KEYSPACE <name> WITH REPLICATION
// = { 'class':'…', 'replication_factor':N }` statement (spec §6).
type CreateKeyspaceQuery struct {
	Name                string
	ReplicationStrategy string
	ReplicationFactor   int
	IfNotExists         bool
}

func (q *CreateKeyspaceQuery) Keyspace() string { return q.Name }

func (q *CreateKeyspaceQuery) IsRead() bool { return false }
func (q *CreateKeyspaceQuery) Partition(pkCols []string) (map[string]string, bool) {
	return nil, false
}

func parseCreateKeyspace(nodes []lexer.Node) (*CreateKeyspaceQuery, error) {
	p := &stmtParser{nodes: nodes}
	if err := p.expectWord("create"); err != nil {
		return nil, err
	}
	if err := p.expectWord("keyspace"); err != nil {
		return nil, err
	}
	q := &CreateKeyspaceQuery{}
	if p.peekWord() == "if" {
		p.advance()
		if err := p.expectWord("not"); err != nil {
			return nil, err
		}
		if err := p.expectWord("exists"); err != nil {
			return nil, err
		}
		q.IfNotExists = true
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, wireerr.New(wireerr.SyntaxError, "expected keyspace name")
	}
	q.Name = name

	if err := p.expectWord("with"); err != nil {
		return nil, err
	}
	if err := p.expectWord("replication"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("="); err != nil {
		return nil, err
	}
	braceNodes, err := p.expectBrace()
	if err != nil {
		return nil, wireerr.New(wireerr.SyntaxError, "expected replication map")
	}
	for _, group := range commaSeparated(braceNodes) {
		if len(group) != 3 {
			return nil, wireerr.New(wireerr.SyntaxError, "malformed replication map entry")
		}
		keyLeaf, ok1 := group[0].(lexer.Leaf)
		colon, ok2 := group[1].(lexer.Leaf)
		valLeaf, ok3 := group[2].(lexer.Leaf)
		if !ok1 || !ok2 || !ok3 || colon.Text != ":" {
			return nil, wireerr.New(wireerr.SyntaxError, "malformed replication map entry")
		}
		key := strings.ToLower(StripQuotes(keyLeaf.Text))
		val := StripQuotes(valLeaf.Text)
		switch key {
		case "class":
			q.ReplicationStrategy = val
		case "replication_factor":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				return nil, wireerr.New(wireerr.ConfigError, "replication_factor must be a positive integer")
			}
			q.ReplicationFactor = n
		default:
			return nil, wireerr.Newf(wireerr.ConfigError, "unknown replication option %q", key)
		}
	}
	if q.ReplicationFactor <= 0 {
		return nil, wireerr.New(wireerr.ConfigError, "replication map requires replication_factor")
	}

	if !p.atEnd() {
		return nil, wireerr.New(wireerr.SyntaxError, "unexpected tokens after CREATE KEYSPACE statement")
	}
	return q, nil
}

func (q *CreateKeyspaceQuery) RunLocal(ctx *ExecContext) (*Result, error) {
	ks := &model.Keyspace{
		Name:                q.Name,
		ReplicationStrategy: q.ReplicationStrategy,
		ReplicationFactor:   q.ReplicationFactor,
		Tables:              make(map[string]*model.Table),
	}
	if err := ctx.Metadata.CreateKeyspace(ks, q.IfNotExists); err != nil {
		return nil, err
	}
	return &Result{Kind: wire.ResultSchemaChange, Keyspace: q.Name}, nil
}

// DropKeyspaceQuery is a parsed `DROP KEYSPACE <name> [IF EXISTS]`
// statement.
type DropKeyspaceQuery struct {
	Name     string
	IfExists bool
}

func (q *DropKeyspaceQuery) Keyspace() string { return q.Name }

func (q *DropKeyspaceQuery) IsRead() bool { return false }
func (q *DropKeyspaceQuery) Partition(pkCols []string) (map[string]string, bool) {
	return nil, false
}

func parseDropKeyspace(nodes []lexer.Node) (*DropKeyspaceQuery, error) {
	p := &stmtParser{nodes: nodes}
	if err := p.expectWord("drop"); err != nil {
		return nil, err
	}
	if err := p.expectWord("keyspace"); err != nil {
		return nil, err
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, wireerr.New(wireerr.SyntaxError, "expected keyspace name")
	}
	q := &DropKeyspaceQuery{Name: name}
	if p.peekWord() == "if" {
		p.advance()
		if err := p.expectWord("exists"); err != nil {
			return nil, err
		}
		q.IfExists = true
	}
	if !p.atEnd() {
		return nil, wireerr.New(wireerr.SyntaxError, "unexpected tokens after DROP KEYSPACE statement")
	}
	return q, nil
}

func (q *DropKeyspaceQuery) RunLocal(ctx *ExecContext) (*Result, error) {
	if err := ctx.Metadata.DropKeyspace(q.Name, q.IfExists); err != nil {
		return nil, err
	}
	return &Result{Kind: wire.ResultSchemaChange, Keyspace: q.Name}, nil
}

// CreateTableQuery is a parsed `CREATE TABLE <ks.t> ( col type , … ,
// PRIMARY KEY (pk [, clustering…]) )` statement.
type CreateTableQuery struct {
	KeyspaceName  string
	TableName     string
	Columns       []model.ColumnDef
	PartitionKey  []string
	ClusteringKey []string
	IfNotExists   bool
}

func (q *CreateTableQuery) Keyspace() string { return q.KeyspaceName }

func (q *CreateTableQuery) IsRead() bool { return false }
func (q *CreateTableQuery) Partition(pkCols []string) (map[string]string, bool) {
	return nil, false
}

func parseCreateTable(nodes []lexer.Node, defaultKeyspace string) (*CreateTableQuery, error) {
	p := &stmtParser{nodes: nodes}
	if err := p.expectWord("create"); err != nil {
		return nil, err
	}
	if err := p.expectWord("table"); err != nil {
		return nil, err
	}
	q := &CreateTableQuery{}
	if p.peekWord() == "if" {
		p.advance()
		if err := p.expectWord("not"); err != nil {
			return nil, err
		}
		if err := p.expectWord("exists"); err != nil {
			return nil, err
		}
		q.IfNotExists = true
	}
	tableRef, err := p.expectIdentifier()
	if err != nil {
		return nil, wireerr.New(wireerr.SyntaxError, "expected table reference")
	}
	q.KeyspaceName, q.TableName = splitTableRef(tableRef, defaultKeyspace)
	if q.KeyspaceName == "" {
		return nil, wireerr.New(wireerr.SyntaxError, "no keyspace specified and no current keyspace")
	}

	defNodes, err := p.expectParen()
	if err != nil {
		return nil, wireerr.New(wireerr.SyntaxError, "expected column definition list")
	}
	for _, group := range commaSeparated(defNodes) {
		if len(group) == 0 {
			continue
		}
		first, ok := group[0].(lexer.Leaf)
		if ok && strings.ToLower(first.Text) == "primary" {
			if len(group) < 3 {
				return nil, wireerr.New(wireerr.SyntaxError, "malformed PRIMARY KEY clause")
			}
			second, ok := group[1].(lexer.Leaf)
			if !ok || strings.ToLower(second.Text) != "key" {
				return nil, wireerr.New(wireerr.SyntaxError, "malformed PRIMARY KEY clause")
			}
			pl, ok := group[2].(*lexer.ParenList)
			if !ok {
				return nil, wireerr.New(wireerr.SyntaxError, "expected parenthesised key list")
			}
			for i, kgroup := range commaSeparated(pl.Children) {
				if len(kgroup) != 1 {
					return nil, wireerr.New(wireerr.SyntaxError, "malformed primary key column list")
				}
				kl, ok := kgroup[0].(lexer.Leaf)
				if !ok || kl.Kind != lexer.Identifier {
					return nil, wireerr.New(wireerr.SyntaxError, "expected column name in PRIMARY KEY")
				}
				if i == 0 {
					q.PartitionKey = append(q.PartitionKey, kl.Text)
				} else {
					q.ClusteringKey = append(q.ClusteringKey, kl.Text)
				}
			}
			continue
		}
		if len(group) != 2 {
			return nil, wireerr.New(wireerr.SyntaxError, "malformed column definition")
		}
		nameLeaf, ok1 := group[0].(lexer.Leaf)
		typeLeaf, ok2 := group[1].(lexer.Leaf)
		if !ok1 || nameLeaf.Kind != lexer.Identifier || !ok2 || typeLeaf.Kind != lexer.TypeName {
			return nil, wireerr.New(wireerr.SyntaxError, "malformed column definition")
		}
		q.Columns = append(q.Columns, model.ColumnDef{Name: nameLeaf.Text, Type: model.DataType(strings.ToLower(typeLeaf.Text))})
	}
	if len(q.PartitionKey) == 0 {
		return nil, wireerr.New(wireerr.SyntaxError, "CREATE TABLE requires a PRIMARY KEY clause")
	}

	if !p.atEnd() {
		return nil, wireerr.New(wireerr.SyntaxError, "unexpected tokens after CREATE TABLE statement")
	}
	return q, nil
}

func (q *CreateTableQuery) RunLocal(ctx *ExecContext) (*Result, error) {
	table := &model.Table{
		Name:          q.TableName,
		PartitionKey:  q.PartitionKey,
		ClusteringKey: q.ClusteringKey,
		Columns:       q.Columns,
	}
	if err := ctx.Metadata.CreateTable(q.KeyspaceName, table, q.IfNotExists); err != nil {
		return nil, err
	}
	if err := ctx.Storage.CreateTable(q.KeyspaceName, q.TableName); err != nil {
		return nil, wireerr.Wrap(wireerr.ServerError, "create table storage failed", err)
	}
	return &Result{Kind: wire.ResultSchemaChange, Keyspace: q.KeyspaceName}, nil
}

// DropTableQuery is a parsed `DROP TABLE <ks.t> [IF EXISTS]` statement.
type DropTableQuery struct {
	KeyspaceName string
	TableName    string
	IfExists     bool
}

func (q *DropTableQuery) Keyspace() string { return q.KeyspaceName }

func (q *DropTableQuery) IsRead() bool { return false }
func (q *DropTableQuery) Partition(pkCols []string) (map[string]string, bool) {
	return nil, false
}

func parseDropTable(nodes []lexer.Node, defaultKeyspace string) (*DropTableQuery, error) {
	p := &stmtParser{nodes: nodes}
	if err := p.expectWord("drop"); err != nil {
		return nil, err
	}
	if err := p.expectWord("table"); err != nil {
		return nil, err
	}
	tableRef, err := p.expectIdentifier()
	if err != nil {
		return nil, wireerr.New(wireerr.SyntaxError, "expected table reference")
	}
	q := &DropTableQuery{}
	q.KeyspaceName, q.TableName = splitTableRef(tableRef, defaultKeyspace)
	if p.peekWord() == "if" {
		p.advance()
		if err := p.expectWord("exists"); err != nil {
			return nil, err
		}
		q.IfExists = true
	}
	if !p.atEnd() {
		return nil, wireerr.New(wireerr.SyntaxError, "unexpected tokens after DROP TABLE statement")
	}
	return q, nil
}

func (q *DropTableQuery) RunLocal(ctx *ExecContext) (*Result, error) {
	if err := ctx.Metadata.DropTable(q.KeyspaceName, q.TableName, q.IfExists); err != nil {
		return nil, err
	}
	if err := ctx.Storage.DropTable(q.KeyspaceName, q.TableName); err != nil {
		return nil, wireerr.Wrap(wireerr.ServerError, "drop table storage failed", err)
	}
	return &Result{Kind: wire.ResultSchemaChange, Keyspace: q.KeyspaceName}, nil
}

// AlterKind distinguishes ALTER TABLE's four forms (spec §6).
type AlterKind int

const (
	AlterAdd AlterKind = iota
	AlterType
	AlterRename
	AlterDrop
)

// AlterTableQuery is a parsed `ALTER TABLE <ks.t> (ADD col type | ALTER
// col TYPE type | RENAME a TO b | DROP col)` statement.
type AlterTableQuery struct {
	KeyspaceName string
	TableName    string
	Kind         AlterKind
	Column       string
	NewName      string // RENAME target
	NewType      model.DataType
}

func (q *AlterTableQuery) Keyspace() string { return q.KeyspaceName }

func (q *AlterTableQuery) IsRead() bool { return false }
func (q *AlterTableQuery) Partition(pkCols []string) (map[string]string, bool) {
	return nil, false
}

func parseAlterTable(nodes []lexer.Node, defaultKeyspace string) (*AlterTableQuery, error) {
	p := &stmtParser{nodes: nodes}
	if err := p.expectWord("alter"); err != nil {
		return nil, err
	}
	if err := p.expectWord("table"); err != nil {
		return nil, err
	}
	tableRef, err := p.expectIdentifier()
	if err != nil {
		return nil, wireerr.New(wireerr.SyntaxError, "expected table reference")
	}
	q := &AlterTableQuery{}
	q.KeyspaceName, q.TableName = splitTableRef(tableRef, defaultKeyspace)

	switch p.peekWord() {
	case "add":
		p.advance()
		col, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		typ, err := p.expectTypeName()
		if err != nil {
			return nil, err
		}
		q.Kind = AlterAdd
		q.Column = col
		q.NewType = model.DataType(typ)
	case "alter":
		p.advance()
		col, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		if err := p.expectWord("type"); err != nil {
			return nil, err
		}
		typ, err := p.expectTypeName()
		if err != nil {
			return nil, err
		}
		q.Kind = AlterType
		q.Column = col
		q.NewType = model.DataType(typ)
	case "rename":
		p.advance()
		from, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		if err := p.expectWord("to"); err != nil {
			return nil, err
		}
		to, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		q.Kind = AlterRename
		q.Column = from
		q.NewName = to
	case "drop":
		p.advance()
		col, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		q.Kind = AlterDrop
		q.Column = col
	default:
		return nil, wireerr.New(wireerr.SyntaxError, "expected ADD, ALTER, RENAME or DROP")
	}

	if !p.atEnd() {
		return nil, wireerr.New(wireerr.SyntaxError, "unexpected tokens after ALTER TABLE statement")
	}
	return q, nil
}

func (q *AlterTableQuery) RunLocal(ctx *ExecContext) (*Result, error) {
	err := ctx.Metadata.AlterTable(q.KeyspaceName, q.TableName, func(t *model.Table) error {
		switch q.Kind {
		case AlterAdd:
			for _, c := range t.Columns {
				if c.Name == q.Column {
					return wireerr.Newf(wireerr.Invalid, "column %q already exists", q.Column)
				}
			}
			t.Columns = append(t.Columns, model.ColumnDef{Name: q.Column, Type: q.NewType})
		case AlterType:
			for i, c := range t.Columns {
				if c.Name == q.Column {
					t.Columns[i].Type = q.NewType
					return nil
				}
			}
			return wireerr.Newf(wireerr.Invalid, "column %q does not exist", q.Column)
		case AlterRename:
			renamed := false
			for i, c := range t.Columns {
				if c.Name == q.Column {
					t.Columns[i].Name = q.NewName
					renamed = true
				}
			}
			renameKeyColumn(t.PartitionKey, q.Column, q.NewName)
			renameKeyColumn(t.ClusteringKey, q.Column, q.NewName)
			if !renamed {
				return wireerr.Newf(wireerr.Invalid, "column %q does not exist", q.Column)
			}
		case AlterDrop:
			idx := -1
			for i, c := range t.Columns {
				if c.Name == q.Column {
					idx = i
					break
				}
			}
			if idx < 0 {
				return wireerr.Newf(wireerr.Invalid, "column %q does not exist", q.Column)
			}
			t.Columns = append(t.Columns[:idx], t.Columns[idx+1:]...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{Kind: wire.ResultSchemaChange, Keyspace: q.KeyspaceName}, nil
}

func renameKeyColumn(cols []string, from, to string) {
	for i, c := range cols {
		if c == from {
			cols[i] = to
		}
	}
}
