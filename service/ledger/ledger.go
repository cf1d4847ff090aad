package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"

	ds "github.com/ipfs/go-datastore"
	"github.com/subastra/auctiond/lib/auction"
	"github.com/subastra/auctiond/lib/dshelper/txndswrap"
	golog "github.com/textileio/go-log/v2"
)

var (
	log = golog.Logger("auctiond/ledger")

	// ErrInsufficientBalance indicates a transfer exceeding the spendable balance.
	ErrInsufficientBalance = errors.New("insufficient spendable balance")

	// ErrBalanceOverflow indicates deposit/transfer arithmetic overflow.
	ErrBalanceOverflow = errors.New("balance overflow")

	// dsBalancePrefix is the prefix for account balances.
	// Structure: /balances/<account> -> uint64.
	dsBalancePrefix = ds.NewKey("/balances")

	// dsLockPrefix is the prefix for exclusive spend holds.
	// Structure: /locks/<account>/<lock_id> -> uint64.
	dsLockPrefix = ds.NewKey("/locks")
)

// Ledger is the fungible-currency collaborator. A lock blocks spend of part
// of an account's own balance without moving custody; setting a lock under an
// id already in use replaces the previous hold.
type Ledger interface {
	// FreeBalance returns the account balance not covered by locks.
	FreeBalance(account auction.AccountID) (uint64, error)

	// Balance returns the full account balance, locked or not.
	Balance(account auction.AccountID) (uint64, error)

	// Transfer moves amount from one account to another. Fails with
	// ErrInsufficientBalance before any state is touched if the sender's
	// spendable balance is too low.
	Transfer(from, to auction.AccountID, amount uint64) error

	// SetLock places (or replaces) the hold id on account for amount.
	SetLock(id [8]byte, account auction.AccountID, amount uint64) error

	// RemoveLock drops the hold id on account. Removing an absent lock is a no-op.
	RemoveLock(id [8]byte, account auction.AccountID) error

	// Deposit credits freshly issued funds to account.
	Deposit(account auction.AccountID, amount uint64) error
}

// Store is a Ledger persisted in a transactional datastore.
type Store struct {
	store txndswrap.TxnDatastore
}

// NewStore returns a datastore-backed Ledger.
func NewStore(store txndswrap.TxnDatastore) *Store {
	return &Store{store: store}
}

func balanceKey(account auction.AccountID) ds.Key {
	return dsBalancePrefix.ChildString(string(account))
}

func lockKey(id [8]byte, account auction.AccountID) ds.Key {
	return dsLockPrefix.ChildString(string(account)).ChildString(string(id[:]))
}

func getUint64(reader ds.Read, key ds.Key) (uint64, error) {
	val, err := reader.Get(key)
	if errors.Is(err, ds.ErrNotFound) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("getting key %s: %v", key, err)
	}
	if len(val) != 8 {
		return 0, fmt.Errorf("malformed amount at %s", key)
	}
	return binary.BigEndian.Uint64(val), nil
}

func putUint64(writer ds.Write, key ds.Key, n uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	if err := writer.Put(key, buf[:]); err != nil {
		return fmt.Errorf("putting key %s: %v", key, err)
	}
	return nil
}

// Balance returns the full balance of account.
func (l *Store) Balance(account auction.AccountID) (uint64, error) {
	return getUint64(l.store, balanceKey(account))
}

// FreeBalance returns the balance of account not covered by locks. Multiple
// locks do not stack; the largest hold wins.
func (l *Store) FreeBalance(account auction.AccountID) (uint64, error) {
	txn, err := l.store.NewTransaction(true)
	if err != nil {
		return 0, fmt.Errorf("creating txn: %v", err)
	}
	defer txn.Discard()
	return freeBalance(txn, account)
}

func freeBalance(txn ds.Txn, account auction.AccountID) (uint64, error) {
	balance, err := getUint64(txn, balanceKey(account))
	if err != nil {
		return 0, err
	}
	locked, err := getUint64(txn, lockKey(auction.LockID, account))
	if err != nil {
		return 0, err
	}
	if locked >= balance {
		return 0, nil
	}
	return balance - locked, nil
}

// Transfer moves amount from one account to another in a single transaction.
func (l *Store) Transfer(from, to auction.AccountID, amount uint64) error {
	if from == to || amount == 0 {
		return nil
	}
	txn, err := l.store.NewTransaction(false)
	if err != nil {
		return fmt.Errorf("creating txn: %v", err)
	}
	defer txn.Discard()

	free, err := freeBalance(txn, from)
	if err != nil {
		return err
	}
	if free < amount {
		return ErrInsufficientBalance
	}
	fromBalance, err := getUint64(txn, balanceKey(from))
	if err != nil {
		return err
	}
	toBalance, err := getUint64(txn, balanceKey(to))
	if err != nil {
		return err
	}
	if toBalance+amount < toBalance {
		return ErrBalanceOverflow
	}
	if err := putUint64(txn, balanceKey(from), fromBalance-amount); err != nil {
		return err
	}
	if err := putUint64(txn, balanceKey(to), toBalance+amount); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("committing txn: %v", err)
	}
	log.Debugf("transferred %d: %s -> %s", amount, from, to)
	return nil
}

// SetLock places (or replaces) the hold id on account for amount.
func (l *Store) SetLock(id [8]byte, account auction.AccountID, amount uint64) error {
	if err := putUint64(l.store, lockKey(id, account), amount); err != nil {
		return err
	}
	log.Debugf("locked %d on %s", amount, account)
	return nil
}

// RemoveLock drops the hold id on account.
func (l *Store) RemoveLock(id [8]byte, account auction.AccountID) error {
	if err := l.store.Delete(lockKey(id, account)); err != nil && !errors.Is(err, ds.ErrNotFound) {
		return fmt.Errorf("deleting lock: %v", err)
	}
	return nil
}

// Deposit credits freshly issued funds to account.
func (l *Store) Deposit(account auction.AccountID, amount uint64) error {
	txn, err := l.store.NewTransaction(false)
	if err != nil {
		return fmt.Errorf("creating txn: %v", err)
	}
	defer txn.Discard()

	balance, err := getUint64(txn, balanceKey(account))
	if err != nil {
		return err
	}
	if balance+amount < balance {
		return ErrBalanceOverflow
	}
	if err := putUint64(txn, balanceKey(account), balance+amount); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("committing txn: %v", err)
	}
	return nil
}
