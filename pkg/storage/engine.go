// Package storage implements ringdb's append-only per-table row engine
// (spec §4.2): inserts are appended, reads stream the log and reconcile
// duplicate primary keys by per-column maximum timestamp, and compaction
// may opportunistically rewrite the log on the read path.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cuemby/ringdb/pkg/model"
	bolt "go.etcd.io/bbolt"
)

// Predicate filters a compacted row; used for clustering/non-key column
// WHERE filters and for the conditional-write IF clause. Partition-key
// equality is folded into the same predicate by the caller (spec §4.2).
type Predicate func(*model.Row) bool

// Engine is the per-node row store: one bbolt bucket per table, entries
// appended by an auto-incrementing sequence (the append-only log), reads
// performed by scanning and reconciling (spec §4.2).
type Engine struct {
	db *bolt.DB

	mu        sync.Mutex // guards tableLocks
	tableLock map[string]*sync.Mutex
}

// Open opens (creating if needed) the bbolt-backed row file at
// <dataDir>/rows.db.
func Open(dataDir string) (*Engine, error) {
	db, err := bolt.Open(filepath.Join(dataDir, "rows.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open row store: %w", err)
	}
	return &Engine{db: db, tableLock: make(map[string]*sync.Mutex)}, nil
}

// Close closes the underlying database file.
func (e *Engine) Close() error {
	return e.db.Close()
}

func bucketName(keyspace, table string) []byte {
	return []byte(keyspace + "." + table)
}

func (e *Engine) lockFor(keyspace, table string) *sync.Mutex {
	key := keyspace + "." + table
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.tableLock[key]
	if !ok {
		l = &sync.Mutex{}
		e.tableLock[key] = l
	}
	return l
}

// CreateTable creates the table's backing bucket.
func (e *Engine) CreateTable(keyspace, table string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName(keyspace, table))
		return err
	})
}

// DropTable deletes the table's backing bucket and all its rows.
func (e *Engine) DropTable(keyspace, table string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketName(keyspace, table)) == nil {
			return nil
		}
		return tx.DeleteBucket(bucketName(keyspace, table))
	})
}

// entry is the on-disk shape of one appended log record.
type entry struct {
	PrimaryKey map[string]model.Literal   `json:"pk"`
	Deleted    bool                       `json:"deleted"`
	Timestamp  int64                      `json:"ts"`
	Columns    map[string]*model.Column   `json:"columns"`
}

func entryFromRow(r *model.Row) *entry {
	return &entry{
		PrimaryKey: r.PrimaryKey,
		Deleted:    r.Deleted,
		Timestamp:  r.Timestamp,
		Columns:    r.Columns,
	}
}

func (e *entry) toRow() *model.Row {
	return &model.Row{
		PrimaryKey: e.PrimaryKey,
		Deleted:    e.Deleted,
		Timestamp:  e.Timestamp,
		Columns:    e.Columns,
	}
}

// Insert appends a row entry to the table's log (spec §4.2: "writes
// always include a write timestamp... no physical ordering on disk is
// assumed").
func (e *Engine) Insert(keyspace, table string, row *model.Row) error {
	lock := e.lockFor(keyspace, table)
	lock.Lock()
	defer lock.Unlock()

	return e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(keyspace, table))
		if b == nil {
			return fmt.Errorf("table not found: %s.%s", keyspace, table)
		}
		return appendEntry(b, entryFromRow(row))
	})
}

func appendEntry(b *bolt.Bucket, e *entry) error {
	seq, err := b.NextSequence()
	if err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.Put(seqKey(seq), data)
}

func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}

// accumulator folds every log entry for one primary key into a single
// reconciled row (spec §4.2, §3 invariant 4).
type accumulator struct {
	pk          map[string]model.Literal
	columns     map[string]*model.Column
	rowTS       int64
	tombstoneTS int64
	everDeleted bool
}

func (a *accumulator) absorb(row *model.Row) {
	if a.pk == nil {
		a.pk = row.PrimaryKey
		a.columns = make(map[string]*model.Column)
	}
	if row.Timestamp > a.rowTS {
		a.rowTS = row.Timestamp
	}
	if row.Deleted {
		a.everDeleted = true
		if row.Timestamp > a.tombstoneTS {
			a.tombstoneTS = row.Timestamp
		}
	}
	for name, col := range row.Columns {
		existing, ok := a.columns[name]
		if !ok || col.Timestamp > existing.Timestamp ||
			(col.Timestamp == existing.Timestamp && col.Value.Text > existing.Value.Text) {
			a.columns[name] = col
		}
	}
}

// row renders the final reconciled view: deleted iff the newest tombstone
// timestamp strictly exceeds every surviving column's timestamp (spec
// §4.6 step 2, applied the same way to local compaction).
func (a *accumulator) row() *model.Row {
	var maxColTS int64
	for _, c := range a.columns {
		if c.Timestamp > maxColTS {
			maxColTS = c.Timestamp
		}
	}
	return &model.Row{
		PrimaryKey: a.pk,
		Columns:    a.columns,
		Timestamp:  a.rowTS,
		Deleted:    a.everDeleted && a.tombstoneTS > maxColTS,
	}
}

// compact streams the table's log, reconciling duplicate primary keys by
// per-column maximum timestamp (spec §4.2 invariant 4 / §3). pkOrder
// gives the column order used to build each row's map key.
func compact(b *bolt.Bucket, pkOrder []string) (map[string]*model.Row, error) {
	acc := make(map[string]*accumulator)
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var e entry
		if err := json.Unmarshal(v, &e); err != nil {
			return nil, err
		}
		row := e.toRow()
		key := row.Key(pkOrder)
		a, ok := acc[key]
		if !ok {
			a = &accumulator{}
			acc[key] = a
		}
		a.absorb(row)
	}
	merged := make(map[string]*model.Row, len(acc))
	for key, a := range acc {
		merged[key] = a.row()
	}
	return merged, nil
}

// Select streams and compacts the table's log, returning every row that
// passes pred. Ordering, if requested, is applied by the caller on the
// returned slice.
func (e *Engine) Select(keyspace, table string, pkOrder []string, pred Predicate) ([]*model.Row, error) {
	var rows []*model.Row
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(keyspace, table))
		if b == nil {
			return fmt.Errorf("table not found: %s.%s", keyspace, table)
		}
		merged, err := compact(b, pkOrder)
		if err != nil {
			return err
		}
		for _, row := range merged {
			if row.Deleted {
				continue
			}
			if pred == nil || pred(row) {
				rows = append(rows, row)
			}
		}
		return nil
	})
	return rows, err
}

// AllRows returns every non-tombstoned row of a table, reconciled, with
// no filter. It is Select with a nil predicate, named separately because
// pkg/rebalance's Store interface only ever wants the full table (a
// rebalance plan moves rows, not query results).
func (e *Engine) AllRows(keyspace, table string, pkOrder []string) ([]*model.Row, error) {
	return e.Select(keyspace, table, pkOrder, nil)
}

// Compact rewrites the table's bucket to hold exactly the merged,
// non-tombstoned view. Select reconciles the log in memory on every read
// but does not call Compact; the rewrite happens only when a caller
// invokes it. It is safe to call concurrently with readers (it takes the
// per-table write lock) but drops tombstones entirely, which is
// acceptable because they have already lost to nothing (no reader can
// observe a state between the two).
func (e *Engine) Compact(keyspace, table string, pkOrder []string) error {
	lock := e.lockFor(keyspace, table)
	lock.Lock()
	defer lock.Unlock()

	return e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(keyspace, table))
		if b == nil {
			return fmt.Errorf("table not found: %s.%s", keyspace, table)
		}
		merged, err := compact(b, pkOrder)
		if err != nil {
			return err
		}
		if err := tx.DeleteBucket(bucketName(keyspace, table)); err != nil {
			return err
		}
		nb, err := tx.CreateBucket(bucketName(keyspace, table))
		if err != nil {
			return err
		}
		for _, row := range merged {
			if row.Deleted {
				continue
			}
			if err := appendEntry(nb, entryFromRow(row)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ConditionalWrite evaluates cond against the row matching pkOrder+match
// in the table's currently compacted view, and if it holds, appends
// mutate's result as a new log entry. It returns whether the write was
// applied and the pre-mutation row the condition was evaluated against
// (for building an Invalid error message on failure). Both the read and
// the write happen under the table's write lock so the evaluation is
// atomic with respect to concurrent local writers (spec §4.2: "evaluate
// the IF against the pre-compacted current state and succeed or fail
// atomically with respect to that snapshot").
func (e *Engine) ConditionalWrite(
	keyspace, table string,
	pkOrder []string,
	match Predicate,
	cond func(existing *model.Row, found bool) bool,
	mutate func(existing *model.Row, found bool) *model.Row,
) (applied bool, existing *model.Row, found bool, err error) {
	lock := e.lockFor(keyspace, table)
	lock.Lock()
	defer lock.Unlock()

	err = e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(keyspace, table))
		if b == nil {
			return fmt.Errorf("table not found: %s.%s", keyspace, table)
		}
		merged, err := compact(b, pkOrder)
		if err != nil {
			return err
		}
		for _, row := range merged {
			if row.Deleted {
				continue
			}
			if match(row) {
				existing = row
				found = true
				break
			}
		}
		if !cond(existing, found) {
			applied = false
			return nil
		}
		result := mutate(existing, found)
		applied = true
		return appendEntry(b, entryFromRow(result))
	})
	return applied, existing, found, err
}

// Write appends a row unconditionally (used by plain UPDATE/INSERT paths
// and by read-repair/hint-replay, which carry their own already-decided
// timestamps).
func (e *Engine) Write(keyspace, table string, row *model.Row) error {
	return e.Insert(keyspace, table, row)
}
