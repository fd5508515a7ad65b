package metadata

import (
	"os"
	"path/filepath"

	"github.com/cuemby/ringdb/pkg/model"
)

func (s *Store) sessionPath(id string) string {
	return filepath.Join(s.dir, "sessions", id+".json")
}

// SaveSession persists a client session's state to its own file (spec §6:
// "one client session file per connection, thread-id suffixed").
func (s *Store) SaveSession(sess *model.ClientSession) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	return writeJSON(s.sessionPath(sess.ID), sess)
}

// LoadSession reads back a persisted session, if present.
func (s *Store) LoadSession(id string) (*model.ClientSession, bool, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	var sess model.ClientSession
	path := s.sessionPath(id)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, false, nil
	}
	if err := readJSON(path, &sess); err != nil {
		return nil, false, err
	}
	return &sess, true, nil
}

// DeleteSession removes a session's file on TCP close (spec §3: "On TCP
// close the session record is removed").
func (s *Store) DeleteSession(id string) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	err := os.Remove(s.sessionPath(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
