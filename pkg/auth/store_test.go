package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestVerifyAcceptsCorrectPassword(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetPassword("alice", "correct horse"))

	ok, err := s.Verify("alice", "correct horse")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetPassword("alice", "correct horse"))

	ok, err := s.Verify("alice", "wrong")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyRejectsUnknownUserWithoutError(t *testing.T) {
	s := newTestStore(t)

	ok, err := s.Verify("nobody", "whatever")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSetPasswordOverwritesExistingRecord(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetPassword("alice", "first"))
	require.NoError(t, s.SetPassword("alice", "second"))

	ok, err := s.Verify("alice", "first")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.Verify("alice", "second")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRemoveUserDeletesCredential(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetPassword("alice", "secret"))
	require.NoError(t, s.RemoveUser("alice"))

	ok, err := s.Verify("alice", "secret")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyResponseParsesUserAndPassword(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetPassword("alice", "s3cret"))

	user, err := VerifyResponse(s, "alice:s3cret")
	require.NoError(t, err)
	require.Equal(t, "alice", user)

	_, err = VerifyResponse(s, "alice:wrong")
	require.Error(t, err)
}

func TestVerifyResponseRejectsMalformedBody(t *testing.T) {
	s := newTestStore(t)
	_, err := VerifyResponse(s, "no-colon-here")
	require.Error(t, err)
}

func TestSaltsDifferBetweenUsersWithSamePassword(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetPassword("alice", "shared"))
	require.NoError(t, s.SetPassword("bob", "shared"))

	m, err := s.load()
	require.NoError(t, err)
	require.NotEqual(t, m["alice"].Salt, m["bob"].Salt)
}
