// Package metadata implements ringdb's persisted keyspace/table/cluster/
// client-session state (spec §5, §6): JSON documents on disk, each
// mutated under a single per-file mutex held for the whole
// read-modify-write cycle.
package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/ringdb/pkg/model"
	"github.com/cuemby/ringdb/pkg/wireerr"
)

// Store owns the node's metadata documents: the keyspaces file, the
// nodes file, and one session file per connected client.
type Store struct {
	dir string

	ksMu sync.Mutex

	nodesMu sync.Mutex

	sessionMu sync.Mutex // one coarse mutex; session files are tiny and short-lived
}

// Open points a Store at dataDir, creating it if necessary.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(dataDir, "sessions"), 0755); err != nil {
		return nil, err
	}
	return &Store{dir: dataDir}, nil
}

func (s *Store) keyspacesPath() string { return filepath.Join(s.dir, "keyspaces.json") }
func (s *Store) nodesPath() string     { return filepath.Join(s.dir, "nodes.json") }

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// keyspaceDoc is the on-disk shape of keyspaces.json.
type keyspaceDoc struct {
	Name                string                  `json:"name"`
	ReplicationStrategy string                  `json:"replication_class"`
	ReplicationFactor   int                     `json:"replication_factor"`
	Tables              map[string]*model.Table `json:"tables"`
}

func (s *Store) loadKeyspacesLocked() (map[string]*keyspaceDoc, error) {
	m := make(map[string]*keyspaceDoc)
	if err := readJSON(s.keyspacesPath(), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListKeyspaces returns every known keyspace.
func (s *Store) ListKeyspaces() ([]*model.Keyspace, error) {
	s.ksMu.Lock()
	defer s.ksMu.Unlock()
	docs, err := s.loadKeyspacesLocked()
	if err != nil {
		return nil, err
	}
	out := make([]*model.Keyspace, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDoc(d))
	}
	return out, nil
}

func fromDoc(d *keyspaceDoc) *model.Keyspace {
	return &model.Keyspace{
		Name:                d.Name,
		ReplicationStrategy: d.ReplicationStrategy,
		ReplicationFactor:   d.ReplicationFactor,
		Tables:              d.Tables,
	}
}

func toDoc(k *model.Keyspace) *keyspaceDoc {
	return &keyspaceDoc{
		Name:                k.Name,
		ReplicationStrategy: k.ReplicationStrategy,
		ReplicationFactor:   k.ReplicationFactor,
		Tables:              k.Tables,
	}
}

// GetKeyspace looks up a keyspace by name.
func (s *Store) GetKeyspace(name string) (*model.Keyspace, bool, error) {
	s.ksMu.Lock()
	defer s.ksMu.Unlock()
	docs, err := s.loadKeyspacesLocked()
	if err != nil {
		return nil, false, err
	}
	d, ok := docs[name]
	if !ok {
		return nil, false, nil
	}
	return fromDoc(d), true, nil
}

// CreateKeyspace persists a new keyspace, failing with AlreadyExists if
// one of the same name exists and ifNotExists is false.
func (s *Store) CreateKeyspace(ks *model.Keyspace, ifNotExists bool) error {
	s.ksMu.Lock()
	defer s.ksMu.Unlock()
	docs, err := s.loadKeyspacesLocked()
	if err != nil {
		return err
	}
	if _, exists := docs[ks.Name]; exists {
		if ifNotExists {
			return nil
		}
		return wireerr.Newf(wireerr.AlreadyExists, "keyspace %s already exists", ks.Name)
	}
	if ks.Tables == nil {
		ks.Tables = make(map[string]*model.Table)
	}
	docs[ks.Name] = toDoc(ks)
	return writeJSON(s.keyspacesPath(), docs)
}

// DropKeyspace removes a keyspace, failing with Invalid unless ifExists
// is set and it was already absent.
func (s *Store) DropKeyspace(name string, ifExists bool) error {
	s.ksMu.Lock()
	defer s.ksMu.Unlock()
	docs, err := s.loadKeyspacesLocked()
	if err != nil {
		return err
	}
	if _, exists := docs[name]; !exists {
		if ifExists {
			return nil
		}
		return wireerr.Newf(wireerr.Invalid, "keyspace %s does not exist", name)
	}
	delete(docs, name)
	return writeJSON(s.keyspacesPath(), docs)
}

// CreateTable adds a table to an existing keyspace.
func (s *Store) CreateTable(keyspace string, table *model.Table, ifNotExists bool) error {
	s.ksMu.Lock()
	defer s.ksMu.Unlock()
	docs, err := s.loadKeyspacesLocked()
	if err != nil {
		return err
	}
	d, ok := docs[keyspace]
	if !ok {
		return wireerr.Newf(wireerr.Invalid, "keyspace %s does not exist", keyspace)
	}
	if d.Tables == nil {
		d.Tables = make(map[string]*model.Table)
	}
	if _, exists := d.Tables[table.Name]; exists {
		if ifNotExists {
			return nil
		}
		return wireerr.Newf(wireerr.AlreadyExists, "table %s.%s already exists", keyspace, table.Name)
	}
	d.Tables[table.Name] = table
	return writeJSON(s.keyspacesPath(), docs)
}

// DropTable removes a table from a keyspace.
func (s *Store) DropTable(keyspace, table string, ifExists bool) error {
	s.ksMu.Lock()
	defer s.ksMu.Unlock()
	docs, err := s.loadKeyspacesLocked()
	if err != nil {
		return err
	}
	d, ok := docs[keyspace]
	if !ok {
		if ifExists {
			return nil
		}
		return wireerr.Newf(wireerr.Invalid, "keyspace %s does not exist", keyspace)
	}
	if _, exists := d.Tables[table]; !exists {
		if ifExists {
			return nil
		}
		return wireerr.Newf(wireerr.Invalid, "table %s.%s does not exist", keyspace, table)
	}
	delete(d.Tables, table)
	return writeJSON(s.keyspacesPath(), docs)
}

// AlterTable replaces a table's schema document wholesale with the
// result of applying fn to the current one; fn encapsulates the
// ADD/ALTER/RENAME/DROP column semantics (spec §6 ALTER TABLE).
func (s *Store) AlterTable(keyspace, table string, fn func(*model.Table) error) error {
	s.ksMu.Lock()
	defer s.ksMu.Unlock()
	docs, err := s.loadKeyspacesLocked()
	if err != nil {
		return err
	}
	d, ok := docs[keyspace]
	if !ok {
		return wireerr.Newf(wireerr.Invalid, "keyspace %s does not exist", keyspace)
	}
	t, ok := d.Tables[table]
	if !ok {
		return wireerr.Newf(wireerr.Invalid, "table %s.%s does not exist", keyspace, table)
	}
	if err := fn(t); err != nil {
		return err
	}
	return writeJSON(s.keyspacesPath(), docs)
}

// GetTable is a convenience lookup combining GetKeyspace + table map.
func (s *Store) GetTable(keyspace, table string) (*model.Table, bool, error) {
	ks, ok, err := s.GetKeyspace(keyspace)
	if err != nil || !ok {
		return nil, false, err
	}
	t, ok := ks.Tables[table]
	return t, ok, nil
}
