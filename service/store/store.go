package store

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"path"
	"strconv"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	"github.com/subastra/auctiond/lib/auction"
	"github.com/subastra/auctiond/lib/dshelper/txndswrap"
	dsextensions "github.com/textileio/go-datastore-extensions"
	golog "github.com/textileio/go-log/v2"
)

const (
	// defaultListLimit is the default list page size.
	defaultListLimit = 10
	// maxListLimit is the max list page size.
	maxListLimit = 1000
)

var (
	log = golog.Logger("auctiond/store")

	// dsAuctionPrefix is the prefix for auction records.
	// Structure: /auctions/<auction_id> -> Auction.
	dsAuctionPrefix = ds.NewKey("/auctions")

	// dsOwnerPrefix is the index from auction id to its owner.
	// Structure: /auction_owners/<auction_id> -> AccountID.
	dsOwnerPrefix = ds.NewKey("/auction_owners")

	// dsReservedPrefix is the prefix for cumulative escrow contributions.
	// Structure: /reserved/<account>/<auction_id> -> uint64.
	dsReservedPrefix = ds.NewKey("/reserved")

	// dsWinnerPrefix is the prefix for candle winner slots.
	// Structure: /winners/<auction_id>/<closing_range> -> Bid.
	dsWinnerPrefix = ds.NewKey("/winners")

	// dsNextIDKey holds the next auction id counter.
	dsNextIDKey = ds.NewKey("/next_auction_id")
)

// Record pairs an auction with its id for listing.
type Record struct {
	ID      auction.ID
	Auction auction.Auction
}

// Store is the authoritative auction state: auction records, the reserved
// amount ledger, candle winner slots, and the id counter. All state
// transitions of one operation happen inside a single Txn.
type Store struct {
	store txndswrap.TxnDatastore
}

// NewStore returns a new Store.
func NewStore(store txndswrap.TxnDatastore) *Store {
	return &Store{store: store}
}

// idKey encodes an auction id as a fixed-width key segment so lexicographic
// key order matches numeric id order.
func idKey(id auction.ID) string {
	return fmt.Sprintf("%020d", uint64(id))
}

func parseIDKey(key string) (auction.ID, error) {
	n, err := strconv.ParseUint(path.Base(key), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing auction id from key %s: %v", key, err)
	}
	return auction.ID(n), nil
}

// Txn scopes the reads and writes of one state transition. Either every
// write commits or none do.
type Txn struct {
	t ds.Txn
}

// NewTxn starts a transaction.
func (s *Store) NewTxn(readOnly bool) (*Txn, error) {
	t, err := s.store.NewTransaction(readOnly)
	if err != nil {
		return nil, fmt.Errorf("creating txn: %v", err)
	}
	return &Txn{t: t}, nil
}

// Commit the transaction.
func (t *Txn) Commit() error {
	if err := t.t.Commit(); err != nil {
		return fmt.Errorf("committing txn: %v", err)
	}
	return nil
}

// Discard the transaction. Safe to call after Commit.
func (t *Txn) Discard() {
	t.t.Discard()
}

// NewID issues the next auction id and advances the counter. The counter is
// checked for exhaustion before issuance.
func (t *Txn) NewID() (auction.ID, error) {
	current, err := getUint64(t.t, dsNextIDKey)
	if err != nil {
		return 0, err
	}
	next := current + 1
	if next < current {
		return 0, auction.ErrNoAvailableAuctionID
	}
	if err := putUint64(t.t, dsNextIDKey, next); err != nil {
		return 0, err
	}
	return auction.ID(current), nil
}

// GetAuction returns an auction by id, or auction.ErrAuctionNotFound.
func (t *Txn) GetAuction(id auction.ID) (*auction.Auction, error) {
	return getAuction(t.t, id)
}

// PutAuction writes an auction record.
func (t *Txn) PutAuction(id auction.ID, a *auction.Auction) error {
	val, err := encode(a)
	if err != nil {
		return fmt.Errorf("encoding auction: %v", err)
	}
	if err := t.t.Put(dsAuctionPrefix.ChildString(idKey(id)), val); err != nil {
		return fmt.Errorf("putting auction: %v", err)
	}
	if err := t.t.Put(dsOwnerPrefix.ChildString(idKey(id)), []byte(a.General.Owner)); err != nil {
		return fmt.Errorf("putting owner index: %v", err)
	}
	return nil
}

// DeleteAuction removes an auction record and its owner index entry.
func (t *Txn) DeleteAuction(id auction.ID) error {
	if err := t.t.Delete(dsAuctionPrefix.ChildString(idKey(id))); err != nil {
		return fmt.Errorf("deleting auction: %v", err)
	}
	if err := t.t.Delete(dsOwnerPrefix.ChildString(idKey(id))); err != nil {
		return fmt.Errorf("deleting owner index: %v", err)
	}
	return nil
}

func reservedKey(bidder auction.AccountID, id auction.ID) ds.Key {
	return dsReservedPrefix.ChildString(string(bidder)).ChildString(idKey(id))
}

// ReservedAmount returns the cumulative amount bidder has committed into the
// auction's escrow. Zero if none.
func (t *Txn) ReservedAmount(bidder auction.AccountID, id auction.ID) (uint64, error) {
	return getUint64(t.t, reservedKey(bidder, id))
}

// AddReservedAmount accumulates amount into the bidder's reserved entry.
// Overflow is a hard error.
func (t *Txn) AddReservedAmount(bidder auction.AccountID, id auction.ID, amount uint64) error {
	current, err := t.ReservedAmount(bidder, id)
	if err != nil {
		return err
	}
	next := current + amount
	if next < current {
		return auction.ErrReservedAmountOverflow
	}
	return putUint64(t.t, reservedKey(bidder, id), next)
}

// RemoveReservedAmount drops the bidder's reserved entry.
func (t *Txn) RemoveReservedAmount(bidder auction.AccountID, id auction.ID) error {
	if err := t.t.Delete(reservedKey(bidder, id)); err != nil {
		return fmt.Errorf("deleting reserved amount: %v", err)
	}
	return nil
}

func winnerKey(id auction.ID, closingRange uint64) ds.Key {
	return dsWinnerPrefix.ChildString(idKey(id)).ChildString(fmt.Sprintf("%03d", closingRange))
}

// SetWinner records bid as the leader for the auction's closing range,
// overwriting any prior leader in the same range.
func (t *Txn) SetWinner(id auction.ID, closingRange uint64, bid auction.Bid) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&bid); err != nil {
		return fmt.Errorf("encoding winner: %v", err)
	}
	if err := t.t.Put(winnerKey(id, closingRange), buf.Bytes()); err != nil {
		return fmt.Errorf("putting winner: %v", err)
	}
	return nil
}

// Winner returns the recorded leader for the closing range, or nil.
func (t *Txn) Winner(id auction.ID, closingRange uint64) (*auction.Bid, error) {
	return getWinner(t.t, id, closingRange)
}

// GetAuction returns an auction by id, or auction.ErrAuctionNotFound.
func (s *Store) GetAuction(id auction.ID) (*auction.Auction, error) {
	return getAuction(s.store, id)
}

// ReservedAmount returns the cumulative escrow contribution of bidder.
func (s *Store) ReservedAmount(bidder auction.AccountID, id auction.ID) (uint64, error) {
	return getUint64(s.store, reservedKey(bidder, id))
}

// Winner returns the recorded leader for the closing range, or nil.
func (s *Store) Winner(id auction.ID, closingRange uint64) (*auction.Bid, error) {
	return getWinner(s.store, id, closingRange)
}

// Query is used to list auctions.
type Query struct {
	// Offset is the auction id to seek past, as returned by a previous page.
	Offset string
	Order  Order
	Limit  int
}

func (q Query) setDefaults() Query {
	if q.Limit == -1 {
		q.Limit = maxListLimit
	} else if q.Limit <= 0 {
		q.Limit = defaultListLimit
	} else if q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}
	return q
}

// Order specifies the order of list results.
// Default is descending by auction id.
type Order int

const (
	// OrderDescending orders results descending.
	OrderDescending Order = iota
	// OrderAscending orders results ascending.
	OrderAscending
)

// ListAuctions lists auctions by applying a Query.
func (s *Store) ListAuctions(query Query) ([]Record, error) {
	query = query.setDefaults()

	var (
		order dsq.Order
		seek  string
		limit = query.Limit
	)

	if len(query.Offset) != 0 {
		id, err := strconv.ParseUint(query.Offset, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing offset: %v", err)
		}
		seek = dsAuctionPrefix.ChildString(idKey(auction.ID(id))).String()
		limit++
	}

	switch query.Order {
	case OrderDescending:
		order = dsq.OrderByKeyDescending{}
		if len(seek) == 0 {
			// Seek to the largest possible key and descend from there.
			seek = dsAuctionPrefix.ChildString(idKey(auction.ID(^uint64(0)))).String()
		}
	case OrderAscending:
		order = dsq.OrderByKey{}
	}

	results, err := s.store.QueryExtended(dsextensions.QueryExt{
		Query: dsq.Query{
			Prefix: dsAuctionPrefix.String(),
			Orders: []dsq.Order{order},
			Limit:  limit,
		},
		SeekPrefix: seek,
	})
	if err != nil {
		return nil, fmt.Errorf("querying auctions: %v", err)
	}
	defer func() {
		if err := results.Close(); err != nil {
			log.Errorf("closing results: %v", err)
		}
	}()

	var list []Record
	for res := range results.Next() {
		if res.Error != nil {
			return nil, fmt.Errorf("getting next result: %v", res.Error)
		}
		a, err := decode(res.Value)
		if err != nil {
			return nil, fmt.Errorf("decoding value: %v", err)
		}
		id, err := parseIDKey(res.Key)
		if err != nil {
			return nil, err
		}
		list = append(list, Record{ID: id, Auction: *a})
	}

	// Remove seek from list
	if len(query.Offset) != 0 && len(list) > 0 {
		list = list[1:]
	}

	return list, nil
}

// ListAuctionsByOwner returns every auction owned by owner, ascending by id.
// The owner index keeps this a values-only scan; records are fetched for
// matches only.
func (s *Store) ListAuctionsByOwner(owner auction.AccountID) ([]Record, error) {
	results, err := s.store.Query(dsq.Query{
		Prefix: dsOwnerPrefix.String(),
		Orders: []dsq.Order{dsq.OrderByKey{}},
	})
	if err != nil {
		return nil, fmt.Errorf("querying owner index: %v", err)
	}
	defer func() {
		if err := results.Close(); err != nil {
			log.Errorf("closing results: %v", err)
		}
	}()

	var list []Record
	for res := range results.Next() {
		if res.Error != nil {
			return nil, fmt.Errorf("getting next result: %v", res.Error)
		}
		if string(res.Value) != string(owner) {
			continue
		}
		id, err := parseIDKey(res.Key)
		if err != nil {
			return nil, err
		}
		a, err := getAuction(s.store, id)
		if err != nil {
			return nil, err
		}
		list = append(list, Record{ID: id, Auction: *a})
	}
	return list, nil
}

func getAuction(reader ds.Read, id auction.ID) (*auction.Auction, error) {
	val, err := reader.Get(dsAuctionPrefix.ChildString(idKey(id)))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, auction.ErrAuctionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("getting auction: %v", err)
	}
	a, err := decode(val)
	if err != nil {
		return nil, fmt.Errorf("decoding auction: %v", err)
	}
	return a, nil
}

func getWinner(reader ds.Read, id auction.ID, closingRange uint64) (*auction.Bid, error) {
	val, err := reader.Get(winnerKey(id, closingRange))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("getting winner: %v", err)
	}
	var bid auction.Bid
	if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&bid); err != nil {
		return nil, fmt.Errorf("decoding winner: %v", err)
	}
	return &bid, nil
}

func getUint64(reader ds.Read, key ds.Key) (uint64, error) {
	val, err := reader.Get(key)
	if errors.Is(err, ds.ErrNotFound) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("getting key %s: %v", key, err)
	}
	if len(val) != 8 {
		return 0, fmt.Errorf("malformed value at %s", key)
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

func encode(a *auction.Auction) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(v []byte) (a *auction.Auction, err error) {
	dec := gob.NewDecoder(bytes.NewReader(v))
	if err := dec.Decode(&a); err != nil {
		return a, err
	}
	return a, nil
}
