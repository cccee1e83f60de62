package registry

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medauth/core/storage"
)

func testDEK(t *testing.T) {
	t.Helper()
	dek := make([]byte, 32)
	for i := range dek {
		dek[i] = byte(i)
	}
	t.Setenv("MEDAUTH_DEK", base64.StdEncoding.EncodeToString(dek))
}

func openStore(t *testing.T) *Store {
	t.Helper()
	testDEK(t)
	db, err := storage.NewStorage(t.TempDir() + "/db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestStoreRegisterRevokeRoundTrip(t *testing.T) {
	reg := openStore(t)
	key := []byte("pubkey-der-1")

	status, err := reg.StatusOf("S1", key, time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, status)

	require.NoError(t, reg.Register("S1", key))
	status, err = reg.StatusOf("S1", key, time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusActive, status)

	require.NoError(t, reg.Revoke("S1"))
	require.NoError(t, reg.Revoke("S1"))
	status, err = reg.StatusOf("S1", key, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, status)
}

func TestStoreRowsSurviveReopen(t *testing.T) {
	testDEK(t)
	dir := t.TempDir() + "/db"

	db, err := storage.NewStorage(dir)
	require.NoError(t, err)
	reg := NewStore(db)
	require.NoError(t, reg.Register("S1", []byte("k")))
	require.NoError(t, db.Close())

	db, err = storage.NewStorage(dir)
	require.NoError(t, err)
	defer db.Close()
	reg = NewStore(db)
	status, err := reg.StatusOf("S1", []byte("k"), time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusActive, status)
}
