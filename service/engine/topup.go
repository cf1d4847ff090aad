package engine

import (
	"github.com/subastra/auctiond/lib/auction"
	"github.com/subastra/auctiond/service/store"
)

// topUpPolicy is the escrow-based auction. Every bid is a full custody
// transfer into the auction subaccount and accumulates into the bidder's
// reserved amount for later claims.
type topUpPolicy struct {
	e *Engine
}

func (p topUpPolicy) validate(a *auction.Auction) error {
	return p.e.validateGeneral(&a.General)
}

func (p topUpPolicy) bid(txn *store.Txn, id auction.ID, a *auction.Auction, bid auction.Bid) error {
	if err := p.e.ledger.Transfer(bid.Bidder, auction.EscrowAccountID(id), bid.Amount); err != nil {
		return err
	}

	a.General.LastBid = &bid
	if err := p.e.setNextBidMin(&a.General, bid.Amount); err != nil {
		return err
	}
	if err := txn.AddReservedAmount(bid.Bidder, id, bid.Amount); err != nil {
		return err
	}
	return p.e.avoidSniping(&a.General, bid.Block)
}

// close thaws the asset and, if the auction was won, trades the asset to the
// final leading bidder and sweeps the whole escrow balance to the seller.
// If not won, funds stay in escrow for per-bidder claims.
//
// In the won branch non-winning contributions are swept to the seller along
// with the winning bid; losers have no refund path. Kept as-is from the
// settlement design, see the claim tests.
func (p topUpPolicy) close(txn *store.Txn, id auction.ID, a *auction.Auction) error {
	if err := p.e.assets.Thaw(a.General.Owner, a.General.Asset); err != nil {
		return err
	}
	if a.Won(p.e.clock.Height()) {
		if winner := a.General.LastBid; winner != nil {
			if err := p.e.assets.Transfer(a.General.Owner, a.General.Asset, winner.Bidder); err != nil {
				return err
			}
			escrow := auction.EscrowAccountID(id)
			balance, err := p.e.ledger.Balance(escrow)
			if err != nil {
				return err
			}
			if err := p.e.ledger.Transfer(escrow, a.General.Owner, balance); err != nil {
				return err
			}
		}
	}
	a.General.Closed = true
	return nil
}
