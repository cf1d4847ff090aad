package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subastra/auctiond/lib/auction"
	badger "github.com/textileio/go-ds-badger3"
)

func newLedger(t *testing.T) *Store {
	ds, err := badger.NewDatastore(t.TempDir(), &badger.DefaultOptions)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, ds.Close())
	})
	return NewStore(ds)
}

func requireBalance(t *testing.T, l *Store, account auction.AccountID, want uint64) {
	t.Helper()
	got, err := l.Balance(account)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLedger_Deposit(t *testing.T) {
	t.Parallel()
	l := newLedger(t)

	requireBalance(t, l, "alice", 0)
	require.NoError(t, l.Deposit("alice", 100))
	require.NoError(t, l.Deposit("alice", 50))
	requireBalance(t, l, "alice", 150)

	err := l.Deposit("alice", ^uint64(0))
	require.ErrorIs(t, err, ErrBalanceOverflow)
	requireBalance(t, l, "alice", 150)
}

func TestLedger_Transfer(t *testing.T) {
	t.Parallel()
	l := newLedger(t)
	require.NoError(t, l.Deposit("alice", 100))

	require.NoError(t, l.Transfer("alice", "bob", 60))
	requireBalance(t, l, "alice", 40)
	requireBalance(t, l, "bob", 60)

	err := l.Transfer("alice", "bob", 41)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	requireBalance(t, l, "alice", 40)
	requireBalance(t, l, "bob", 60)

	// Self transfers and zero amounts change nothing.
	require.NoError(t, l.Transfer("alice", "alice", 10))
	require.NoError(t, l.Transfer("alice", "bob", 0))
	requireBalance(t, l, "alice", 40)
	requireBalance(t, l, "bob", 60)
}

func TestLedger_Locks(t *testing.T) {
	t.Parallel()
	l := newLedger(t)
	require.NoError(t, l.Deposit("alice", 100))

	require.NoError(t, l.SetLock(auction.LockID, "alice", 70))
	free, err := l.FreeBalance("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(30), free)

	// A lock holds funds in place without moving custody.
	requireBalance(t, l, "alice", 100)

	err = l.Transfer("alice", "bob", 31)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.NoError(t, l.Transfer("alice", "bob", 30))

	// Replacing a lock does not stack holds.
	require.NoError(t, l.SetLock(auction.LockID, "alice", 10))
	free, err = l.FreeBalance("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(60), free)

	require.NoError(t, l.RemoveLock(auction.LockID, "alice"))
	free, err = l.FreeBalance("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(70), free)

	// Removing an absent lock is a no-op.
	require.NoError(t, l.RemoveLock(auction.LockID, "bob"))
}

func TestLedger_LockLargerThanBalance(t *testing.T) {
	t.Parallel()
	l := newLedger(t)
	require.NoError(t, l.Deposit("alice", 10))
	require.NoError(t, l.SetLock(auction.LockID, "alice", 50))

	free, err := l.FreeBalance("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), free)
}
