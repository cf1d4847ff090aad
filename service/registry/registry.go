package registry

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	ds "github.com/ipfs/go-datastore"
	"github.com/subastra/auctiond/lib/auction"
	"github.com/subastra/auctiond/lib/dshelper/txndswrap"
	golog "github.com/textileio/go-log/v2"
)

var (
	log = golog.Logger("auctiond/registry")

	// ErrAssetNotFound indicates the referenced asset does not exist.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrAssetExists indicates a mint over an existing asset.
	ErrAssetExists = errors.New("asset already exists")

	// ErrNotOwner indicates the caller does not own the asset.
	ErrNotOwner = errors.New("not the asset owner")

	// ErrFrozen indicates the asset is frozen from transfers.
	ErrFrozen = errors.New("asset is frozen")

	// dsAssetPrefix is the prefix for asset records.
	// Structure: /assets/<class>/<instance> -> record.
	dsAssetPrefix = ds.NewKey("/assets")
)

// Registry is the asset-ownership collaborator. It owns asset custody and
// transferability; the auction engine only references assets and instructs
// freezes and transfers.
type Registry interface {
	// OwnerOf returns the current owner of the asset.
	OwnerOf(ref auction.AssetRef) (auction.AccountID, error)

	// CanTransfer reports whether the asset is transferable (not frozen).
	CanTransfer(ref auction.AssetRef) (bool, error)

	// Freeze marks the asset non-transferable. Caller must be the owner.
	Freeze(caller auction.AccountID, ref auction.AssetRef) error

	// Thaw lifts a freeze. Caller must be the owner.
	Thaw(caller auction.AccountID, ref auction.AssetRef) error

	// Transfer moves the asset to a new owner. Caller must be the owner and
	// the asset must be transferable.
	Transfer(caller auction.AccountID, ref auction.AssetRef, to auction.AccountID) error
}

type record struct {
	Owner  auction.AccountID
	Frozen bool
}

// Store is a Registry persisted in a transactional datastore.
type Store struct {
	store txndswrap.TxnDatastore
}

// NewStore returns a datastore-backed Registry.
func NewStore(store txndswrap.TxnDatastore) *Store {
	return &Store{store: store}
}

func assetKey(ref auction.AssetRef) ds.Key {
	return dsAssetPrefix.ChildString(fmt.Sprintf("%020d", ref.Class)).ChildString(fmt.Sprintf("%020d", ref.Instance))
}

func getRecord(reader ds.Read, ref auction.AssetRef) (*record, error) {
	val, err := reader.Get(assetKey(ref))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, ErrAssetNotFound
	} else if err != nil {
		return nil, fmt.Errorf("getting asset: %v", err)
	}
	var r record
	if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&r); err != nil {
		return nil, fmt.Errorf("decoding asset: %v", err)
	}
	return &r, nil
}

func putRecord(writer ds.Write, ref auction.AssetRef, r *record) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return fmt.Errorf("encoding asset: %v", err)
	}
	if err := writer.Put(assetKey(ref), buf.Bytes()); err != nil {
		return fmt.Errorf("putting asset: %v", err)
	}
	return nil
}

// Mint creates a new asset owned by owner.
func (s *Store) Mint(owner auction.AccountID, ref auction.AssetRef) error {
	if _, err := getRecord(s.store, ref); err == nil {
		return ErrAssetExists
	} else if !errors.Is(err, ErrAssetNotFound) {
		return err
	}
	if err := putRecord(s.store, ref, &record{Owner: owner}); err != nil {
		return err
	}
	log.Infof("minted asset %s for %s", ref, owner)
	return nil
}

// OwnerOf returns the current owner of the asset.
func (s *Store) OwnerOf(ref auction.AssetRef) (auction.AccountID, error) {
	r, err := getRecord(s.store, ref)
	if err != nil {
		return "", err
	}
	return r.Owner, nil
}

// CanTransfer reports whether the asset is transferable.
func (s *Store) CanTransfer(ref auction.AssetRef) (bool, error) {
	r, err := getRecord(s.store, ref)
	if err != nil {
		return false, err
	}
	return !r.Frozen, nil
}

// Freeze marks the asset non-transferable.
func (s *Store) Freeze(caller auction.AccountID, ref auction.AssetRef) error {
	return s.mutate(ref, func(r *record) error {
		if r.Owner != caller {
			return ErrNotOwner
		}
		r.Frozen = true
		return nil
	})
}

// Thaw lifts a freeze.
func (s *Store) Thaw(caller auction.AccountID, ref auction.AssetRef) error {
	return s.mutate(ref, func(r *record) error {
		if r.Owner != caller {
			return ErrNotOwner
		}
		r.Frozen = false
		return nil
	})
}

// Transfer moves the asset to a new owner.
func (s *Store) Transfer(caller auction.AccountID, ref auction.AssetRef, to auction.AccountID) error {
	err := s.mutate(ref, func(r *record) error {
		if r.Owner != caller {
			return ErrNotOwner
		}
		if r.Frozen {
			return ErrFrozen
		}
		r.Owner = to
		return nil
	})
	if err != nil {
		return err
	}
	log.Infof("transferred asset %s: %s -> %s", ref, caller, to)
	return nil
}

func (s *Store) mutate(ref auction.AssetRef, fn func(r *record) error) error {
	txn, err := s.store.NewTransaction(false)
	if err != nil {
		return fmt.Errorf("creating txn: %v", err)
	}
	defer txn.Discard()

	r, err := getRecord(txn, ref)
	if err != nil {
		return err
	}
	if err := fn(r); err != nil {
		return err
	}
	if err := putRecord(txn, ref, r); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("committing txn: %v", err)
	}
	return nil
}
