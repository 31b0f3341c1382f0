package anon

import (
	"testing"

	"github.com/hoststack/covenant/core/access"
	"github.com/hoststack/covenant/core/txn"
	"github.com/stretchr/testify/require"
)

func TestTransaction_Getters(t *testing.T) {
	tx := NewTransaction(5, access.Address("alice"),
		WithArg("key", []byte("value")), WithAmount(100))

	require.NotEmpty(t, tx.GetID())
	require.Equal(t, uint64(5), tx.GetNonce())
	require.True(t, access.Address("alice").Equal(tx.GetIdentity()))
	require.Equal(t, uint64(100), tx.GetAmount())
	require.Equal(t, []byte("value"), tx.GetArg("key"))
	require.Nil(t, tx.GetArg("unknown"))
}

func TestTransaction_UniqueID(t *testing.T) {
	a := NewTransaction(0, access.Address("alice"))
	b := NewTransaction(0, access.Address("alice"))

	require.NotEqual(t, a.GetID(), b.GetID())
}

func TestManager_Make(t *testing.T) {
	mgr := NewManager(access.Address("alice"))

	tx, err := mgr.Make(txn.Arg{Key: "key", Value: []byte("value")})
	require.NoError(t, err)
	require.Equal(t, uint64(0), tx.GetNonce())
	require.Equal(t, []byte("value"), tx.GetArg("key"))

	tx, err = mgr.Make()
	require.NoError(t, err)
	require.Equal(t, uint64(1), tx.GetNonce())
}
