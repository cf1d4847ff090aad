package txndswrap

import (
	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dsextensions "github.com/textileio/go-datastore-extensions"
)

// TxnDatastore is a transactional datastore with extended (seekable) queries.
// Satisfied by github.com/textileio/go-ds-badger3.
type TxnDatastore interface {
	ds.Datastore

	// NewTransaction starts a new transaction. Transactions see a consistent
	// snapshot and commit atomically.
	NewTransaction(readOnly bool) (ds.Txn, error)

	// QueryExtended queries with seek support.
	QueryExtended(q dsextensions.QueryExt) (dsq.Results, error)
}
