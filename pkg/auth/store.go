// Package auth implements AUTH_RESPONSE credential verification (spec
// §6): a store of `(user, argon2-hash)` records and a Verify that checks
// a submitted "user:password" long-string against it. Producing the
// hash itself is an operator-facing concern (spec §1 treats the
// password hashing library as an external collaborator); SetPassword
// hashes a password for storage (the `user create` command calls it) and
// Verify only compares. Neither prints or logs a cleartext password.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cuemby/ringdb/pkg/wireerr"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. These match the library's documented
// recommendation for interactive logins; bumping them invalidates every
// stored hash, so they are not configurable.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// Store is the JSON-file-backed credential store: one record per user,
// read-modify-write under a single mutex like pkg/metadata's documents.
type Store struct {
	mu   sync.Mutex
	path string
}

type record struct {
	Salt string `json:"salt"` // base64 std (padded)
	Hash string `json:"hash"` // base64 std (padded)
}

// Open points a Store at <dataDir>/credentials.json, creating the data
// directory if necessary. A missing file is treated as an empty store.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	return &Store{path: filepath.Join(dataDir, "credentials.json")}, nil
}

func (s *Store) load() (map[string]record, error) {
	m := make(map[string]record)
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) save(m map[string]record) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func deriveHash(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// SetPassword creates or replaces a user's stored credential, hashing
// password with a freshly generated salt.
func (s *Store) SetPassword(user, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	hash := deriveHash(password, salt)

	m, err := s.load()
	if err != nil {
		return err
	}
	m[user] = record{
		Salt: base64.StdEncoding.EncodeToString(salt),
		Hash: base64.StdEncoding.EncodeToString(hash),
	}
	return s.save(m)
}

// RemoveUser deletes a user's stored credential, if any.
func (s *Store) RemoveUser(user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return err
	}
	delete(m, user)
	return s.save(m)
}

// Verify checks a plaintext password against the stored hash for user
// in constant time, returning false (never an error) for an unknown
// user so the caller can't distinguish "no such user" from "wrong
// password" by error shape alone.
func (s *Store) Verify(user, password string) (bool, error) {
	s.mu.Lock()
	m, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return false, err
	}

	rec, ok := m[user]
	if !ok {
		return false, nil
	}
	salt, err := base64.StdEncoding.DecodeString(rec.Salt)
	if err != nil {
		return false, fmt.Errorf("decode stored salt: %w", err)
	}
	want, err := base64.StdEncoding.DecodeString(rec.Hash)
	if err != nil {
		return false, fmt.Errorf("decode stored hash: %w", err)
	}
	got := deriveHash(password, salt)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// VerifyResponse checks the AUTH_RESPONSE long-string body, which spec
// §6 defines as a single "user:password" pair, returning a BadCredentials
// wireerr on any rejection (malformed body, unknown user, wrong
// password) so the caller never needs to distinguish the three.
func VerifyResponse(store *Store, body string) (user string, err error) {
	idx := strings.IndexByte(body, ':')
	if idx < 0 {
		return "", wireerr.New(wireerr.BadCredentials, "malformed AUTH_RESPONSE body")
	}
	user, password := body[:idx], body[idx+1:]
	ok, err := store.Verify(user, password)
	if err != nil {
		return "", wireerr.Wrap(wireerr.ServerError, "credential lookup failed", err)
	}
	if !ok {
		return "", wireerr.New(wireerr.BadCredentials, "invalid username or password")
	}
	return user, nil
}
