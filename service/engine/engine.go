package engine

import (
	"fmt"

	"github.com/subastra/auctiond/lib/auction"
	"github.com/subastra/auctiond/lib/chainclock"
	"github.com/subastra/auctiond/service/ledger"
	"github.com/subastra/auctiond/service/randomness"
	"github.com/subastra/auctiond/service/registry"
	"github.com/subastra/auctiond/service/store"
	golog "github.com/textileio/go-log/v2"
)

var log = golog.Logger("auctiond/engine")

// EventReporter receives informational domain events. Events never affect
// engine state.
type EventReporter interface {
	AuctionCreated(id auction.ID, owner auction.AccountID)
	BidPlaced(id auction.ID, bid auction.Bid)
	AuctionClosed(id auction.ID)
	AuctionDestroyed(id auction.ID)
	ReservedClaimed(id auction.ID, bidder auction.AccountID, amount uint64)
}

type nullEventReporter struct{}

func (nullEventReporter) AuctionCreated(id auction.ID, owner auction.AccountID)                  {}
func (nullEventReporter) BidPlaced(id auction.ID, bid auction.Bid)                               {}
func (nullEventReporter) AuctionClosed(id auction.ID)                                            {}
func (nullEventReporter) AuctionDestroyed(id auction.ID)                                         {}
func (nullEventReporter) ReservedClaimed(id auction.ID, bidder auction.AccountID, amount uint64) {}

// policy is the capability contract every auction type implements. The set
// is closed: english, topup, candle.
type policy interface {
	// validate checks the full record against policy rules. Called on
	// create and update.
	validate(a *auction.Auction) error

	// bid applies an already validated bid: fund movements plus record
	// mutation. The caller persists the record and commits the txn.
	bid(txn *store.Txn, id auction.ID, a *auction.Auction, bid auction.Bid) error

	// close settles the auction and sets the closed flag.
	close(txn *store.Txn, id auction.ID, a *auction.Auction) error
}

// Engine executes auction state transitions. Every operation is an atomic
// read-modify-write of one auction record: validation failures surface
// before any external fund or asset movement, and the store write commits
// only after external movements succeed.
type Engine struct {
	store    *store.Store
	ledger   ledger.Ledger
	assets   registry.Registry
	rand     randomness.Source
	clock    chainclock.Clock
	params   auction.Params
	reporter EventReporter

	policies map[auction.Type]policy
}

// New returns a new Engine. A nil reporter disables event reporting.
func New(
	s *store.Store,
	l ledger.Ledger,
	assets registry.Registry,
	rand randomness.Source,
	clock chainclock.Clock,
	params auction.Params,
	reporter EventReporter,
) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %v", err)
	}
	if reporter == nil {
		reporter = nullEventReporter{}
	}
	e := &Engine{
		store:    s,
		ledger:   l,
		assets:   assets,
		rand:     rand,
		clock:    clock,
		params:   params,
		reporter: reporter,
	}
	e.policies = map[auction.Type]policy{
		auction.TypeEnglish: englishPolicy{e},
		auction.TypeTopUp:   topUpPolicy{e},
		auction.TypeCandle:  candlePolicy{e},
	}
	return e, nil
}

func (e *Engine) policyFor(t auction.Type) (policy, error) {
	p, exists := e.policies[t]
	if !exists {
		return nil, fmt.Errorf("unknown auction type %d", t)
	}
	return p, nil
}

// Create validates and stores a new auction, freezing the referenced asset.
// The caller must own both the auction record and the asset.
func (e *Engine) Create(caller auction.AccountID, a *auction.Auction) (auction.ID, error) {
	p, err := e.policyFor(a.Type)
	if err != nil {
		return 0, err
	}
	if a.General.Owner != caller {
		return 0, auction.ErrNotAuctionOwner
	}
	if err := p.validate(a); err != nil {
		return 0, err
	}
	if err := e.validateCreate(&a.General); err != nil {
		return 0, err
	}

	txn, err := e.store.NewTxn(false)
	if err != nil {
		return 0, err
	}
	defer txn.Discard()

	id, err := txn.NewID()
	if err != nil {
		return 0, err
	}
	if err := txn.PutAuction(id, a); err != nil {
		return 0, err
	}
	if err := e.assets.Freeze(caller, a.General.Asset); err != nil {
		return 0, err
	}
	if err := txn.Commit(); err != nil {
		return 0, err
	}

	log.Infof("created %s auction %d for asset %s", a.Type, id, a.General.Asset)
	e.reporter.AuctionCreated(id, caller)
	return id, nil
}

// Update replaces an auction record before its start time. The policy type
// cannot change.
func (e *Engine) Update(caller auction.AccountID, id auction.ID, replacement *auction.Auction) error {
	p, err := e.policyFor(replacement.Type)
	if err != nil {
		return err
	}
	if err := p.validate(replacement); err != nil {
		return err
	}

	txn, err := e.store.NewTxn(false)
	if err != nil {
		return err
	}
	defer txn.Discard()

	existing, err := txn.GetAuction(id)
	if err != nil {
		return err
	}
	if existing.Type != replacement.Type {
		return auction.ErrNoChangeOfType
	}
	if err := e.validateUpdate(caller, &existing.General); err != nil {
		return err
	}
	if err := txn.PutAuction(id, replacement); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}

	log.Infof("updated auction %d", id)
	return nil
}

// Destroy removes an auction before its start time and thaws the asset.
func (e *Engine) Destroy(caller auction.AccountID, id auction.ID) error {
	txn, err := e.store.NewTxn(false)
	if err != nil {
		return err
	}
	defer txn.Discard()

	a, err := txn.GetAuction(id)
	if err != nil {
		return err
	}
	if err := e.validateUpdate(caller, &a.General); err != nil {
		return err
	}
	if err := txn.DeleteAuction(id); err != nil {
		return err
	}
	if err := e.assets.Thaw(a.General.Owner, a.General.Asset); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}

	log.Infof("destroyed auction %d", id)
	e.reporter.AuctionDestroyed(id)
	return nil
}

// Bid places a bid on a running auction at the current block height.
func (e *Engine) Bid(caller auction.AccountID, id auction.ID, amount uint64) error {
	bid := auction.Bid{
		Bidder: caller,
		Amount: amount,
		Block:  e.clock.Height(),
	}

	txn, err := e.store.NewTxn(false)
	if err != nil {
		return err
	}
	defer txn.Discard()

	a, err := txn.GetAuction(id)
	if err != nil {
		return err
	}
	p, err := e.policyFor(a.Type)
	if err != nil {
		return err
	}
	if err := e.validateBid(caller, &a.General, bid); err != nil {
		return err
	}
	if err := p.bid(txn, id, a, bid); err != nil {
		return err
	}
	if err := txn.PutAuction(id, a); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}

	log.Infof("bid %d placed on auction %d by %s at block %d", amount, id, caller, bid.Block)
	e.reporter.BidPlaced(id, bid)
	return nil
}

// Close settles an auction whose end time has passed. Permissionless; the
// record is retained to allow later claims.
func (e *Engine) Close(id auction.ID) error {
	txn, err := e.store.NewTxn(false)
	if err != nil {
		return err
	}
	defer txn.Discard()

	a, err := txn.GetAuction(id)
	if err != nil {
		return err
	}
	p, err := e.policyFor(a.Type)
	if err != nil {
		return err
	}
	if err := e.validateClose(&a.General); err != nil {
		return err
	}
	if err := p.close(txn, id, a); err != nil {
		return err
	}
	if err := txn.PutAuction(id, a); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}

	log.Infof("closed auction %d", id)
	e.reporter.AuctionClosed(id)
	return nil
}

// ClaimReserved refunds a bidder's cumulative escrow contribution for a
// closed top-up auction that was not won. One-shot per bidder.
func (e *Engine) ClaimReserved(bidder auction.AccountID, id auction.ID) error {
	txn, err := e.store.NewTxn(false)
	if err != nil {
		return err
	}
	defer txn.Discard()

	claimable, err := txn.ReservedAmount(bidder, id)
	if err != nil {
		return err
	}
	if claimable == 0 {
		return auction.ErrNoReservedAmount
	}
	a, err := txn.GetAuction(id)
	if err != nil {
		return err
	}
	if a.Type != auction.TypeTopUp {
		return auction.ErrClaimsNotSupported
	}
	now := e.clock.Height()
	if !a.Ended(now) {
		return auction.ErrEndTimeNotReached
	}
	if !a.General.Closed {
		return auction.ErrCloseBeforeClaiming
	}
	if a.Won(now) {
		return auction.ErrCannotClaimWonAuction
	}

	if err := e.ledger.Transfer(auction.EscrowAccountID(id), bidder, claimable); err != nil {
		return err
	}
	if err := txn.RemoveReservedAmount(bidder, id); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}

	log.Infof("claimed %d from auction %d escrow for %s", claimable, id, bidder)
	e.reporter.ReservedClaimed(id, bidder, claimable)
	return nil
}

// GetAuction returns an auction by id.
func (e *Engine) GetAuction(id auction.ID) (*auction.Auction, error) {
	return e.store.GetAuction(id)
}

// ListAuctions lists auctions by applying a store query.
func (e *Engine) ListAuctions(query store.Query) ([]store.Record, error) {
	return e.store.ListAuctions(query)
}

// ListAuctionsByOwner lists every auction owned by owner.
func (e *Engine) ListAuctionsByOwner(owner auction.AccountID) ([]store.Record, error) {
	return e.store.ListAuctionsByOwner(owner)
}

// ReservedAmount returns a bidder's cumulative escrow contribution.
func (e *Engine) ReservedAmount(bidder auction.AccountID, id auction.ID) (uint64, error) {
	return e.store.ReservedAmount(bidder, id)
}

// Height returns the ambient block height.
func (e *Engine) Height() uint64 {
	return e.clock.Height()
}

// validateGeneral checks the policy-independent data block. Called on create
// and update for all policies.
func (e *Engine) validateGeneral(g *auction.GeneralData) error {
	now := e.clock.Height()
	if g.Start < now {
		return auction.ErrStartTimePassed
	}
	if g.End <= g.Start || g.End-g.Start < e.params.MinAuctionDuration {
		return auction.ErrInvalidTimeConfiguration
	}
	if len(g.Name) == 0 {
		return auction.ErrEmptyName
	}
	if len(g.Name) > e.params.NameMaxLength {
		return auction.ErrNameTooLong
	}
	owner, err := e.assets.OwnerOf(g.Asset)
	if err != nil {
		return err
	}
	if owner != g.Owner {
		return auction.ErrNotAssetOwner
	}
	// The starting bid floor always applies.
	if g.NextBidMin < e.params.BidMinAmount {
		return auction.ErrInvalidNextBidMin
	}
	if g.Closed {
		return auction.ErrCannotSetClosed
	}
	return nil
}

func (e *Engine) validateCreate(g *auction.GeneralData) error {
	transferable, err := e.assets.CanTransfer(g.Asset)
	if err != nil {
		return err
	}
	if !transferable {
		return auction.ErrAssetFrozen
	}
	return nil
}

func (e *Engine) validateUpdate(caller auction.AccountID, g *auction.GeneralData) error {
	if g.Owner != caller {
		return auction.ErrNotAuctionOwner
	}
	if e.clock.Height() >= g.Start {
		return auction.ErrAlreadyStarted
	}
	return nil
}

func (e *Engine) validateBid(bidder auction.AccountID, g *auction.GeneralData, bid auction.Bid) error {
	if bidder == g.Owner {
		return auction.ErrCannotBidOnOwnAuction
	}
	if bid.Block <= g.Start {
		return auction.ErrNotStarted
	}
	if bid.Block >= g.End {
		return auction.ErrEndTimeReached
	}
	if bid.Amount < g.NextBidMin {
		return auction.ErrInvalidBidAmount
	}
	if last := g.LastBid; last != nil {
		if bid.Amount <= last.Amount {
			return auction.ErrInvalidBidAmount
		}
	} else if bid.Amount == 0 {
		return auction.ErrInvalidBidAmount
	}
	return nil
}

func (e *Engine) validateClose(g *auction.GeneralData) error {
	if g.Closed {
		return auction.ErrAlreadyClosed
	}
	if e.clock.Height() < g.End {
		return auction.ErrEndTimeNotReached
	}
	return nil
}

// setNextBidMin raises the bid floor by the configured percentage of the
// accepted amount, floor-rounded.
func (e *Engine) setNextBidMin(g *auction.GeneralData, amount uint64) error {
	next, err := e.params.NextBidMin(amount)
	if err != nil {
		return err
	}
	g.NextBidMin = next
	return nil
}

// avoidSniping extends the end time when a bid lands with less than
// BidAddBlocks remaining.
func (e *Engine) avoidSniping(g *auction.GeneralData, now uint64) error {
	if g.End < now {
		return auction.ErrTimeUnderflow
	}
	if g.End-now < e.params.BidAddBlocks {
		g.End = now + e.params.BidAddBlocks
	}
	return nil
}
