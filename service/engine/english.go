package engine

import (
	"github.com/subastra/auctiond/lib/auction"
	"github.com/subastra/auctiond/service/ledger"
	"github.com/subastra/auctiond/service/store"
)

// englishPolicy is the ascending-price auction. Funds never leave the
// bidder's account before settlement; the leading bid is held by a currency
// lock that moves from bidder to bidder.
type englishPolicy struct {
	e *Engine
}

func (p englishPolicy) validate(a *auction.Auction) error {
	if err := p.e.validateGeneral(&a.General); err != nil {
		return err
	}
	// A reserve price acts as the starting bid. With a reserve it must equal
	// the bid floor so the first valid bid clears it exactly; without one the
	// floor must sit at the configured minimum.
	if a.General.ReservePrice > 0 {
		if a.General.ReservePrice != a.General.NextBidMin {
			return auction.ErrInvalidNextBidMin
		}
	} else if a.General.NextBidMin != p.e.params.BidMinAmount {
		return auction.ErrInvalidNextBidMin
	}
	return nil
}

// bid moves the currency lock to the new leading bidder and raises the floor.
// The bidder must hold the bid amount; otherwise settlement could move the
// asset without payment.
func (p englishPolicy) bid(txn *store.Txn, id auction.ID, a *auction.Auction, bid auction.Bid) error {
	balance, err := p.e.ledger.Balance(bid.Bidder)
	if err != nil {
		return err
	}
	if balance < bid.Amount {
		return ledger.ErrInsufficientBalance
	}
	if last := a.General.LastBid; last != nil {
		if err := p.e.ledger.RemoveLock(auction.LockID, last.Bidder); err != nil {
			return err
		}
	}
	if err := p.e.ledger.SetLock(auction.LockID, bid.Bidder, bid.Amount); err != nil {
		return err
	}

	a.General.LastBid = &bid
	if err := p.e.setNextBidMin(&a.General, bid.Amount); err != nil {
		return err
	}
	return p.e.avoidSniping(&a.General, bid.Block)
}

// close thaws the asset and, if a leading bid exists, trades asset for funds:
// the asset moves to the bidder, the lock is released, and the locked amount
// moves to the seller.
func (p englishPolicy) close(txn *store.Txn, id auction.ID, a *auction.Auction) error {
	if err := p.e.assets.Thaw(a.General.Owner, a.General.Asset); err != nil {
		return err
	}
	if winner := a.General.LastBid; winner != nil {
		if err := p.e.assets.Transfer(a.General.Owner, a.General.Asset, winner.Bidder); err != nil {
			return err
		}
		if err := p.e.ledger.RemoveLock(auction.LockID, winner.Bidder); err != nil {
			return err
		}
		if err := p.e.ledger.Transfer(winner.Bidder, a.General.Owner, winner.Amount); err != nil {
			return err
		}
	}
	a.General.Closed = true
	return nil
}
