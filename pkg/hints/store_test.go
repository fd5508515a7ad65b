package hints

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndPendingFIFOOrder(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Record("10.0.0.2", "INSERT INTO ks.t (id) VALUES (1)", "ks", 1)
	require.NoError(t, err)
	_, err = s.Record("10.0.0.2", "INSERT INTO ks.t (id) VALUES (2)", "ks", 2)
	require.NoError(t, err)

	pending, err := s.Pending("10.0.0.2")
	require.NoError(t, err)
	require.Len(t, pending, 2)

	q1, ks1, err := Decode(pending[0])
	require.NoError(t, err)
	require.Equal(t, "ks", ks1)
	require.Contains(t, q1, "VALUES (1)")

	q2, _, err := Decode(pending[1])
	require.NoError(t, err)
	require.Contains(t, q2, "VALUES (2)")
}

func TestAckRemovesOnlyThatHint(t *testing.T) {
	s := newTestStore(t)

	sq1, err := s.Record("10.0.0.3", "q1", "ks", 1)
	require.NoError(t, err)
	_, err = s.Record("10.0.0.3", "q2", "ks", 2)
	require.NoError(t, err)

	require.NoError(t, s.Ack("10.0.0.3", sq1.ID))

	pending, err := s.Pending("10.0.0.3")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	q, _, _ := Decode(pending[0])
	require.Equal(t, "q2", q)
}

func TestDestinationsListsPeersWithQueuedHints(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Record("10.0.0.4", "q", "ks", 1)
	require.NoError(t, err)

	dests, err := s.Destinations()
	require.NoError(t, err)
	require.Contains(t, dests, "10.0.0.4")
}

func TestPendingEmptyForUnknownDestination(t *testing.T) {
	s := newTestStore(t)
	pending, err := s.Pending("10.0.0.99")
	require.NoError(t, err)
	require.Empty(t, pending)
}
