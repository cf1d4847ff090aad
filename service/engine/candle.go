package engine

import (
	"encoding/binary"

	"github.com/subastra/auctiond/lib/auction"
	"github.com/subastra/auctiond/service/randomness"
	"github.com/subastra/auctiond/service/store"
)

// candleDomainTag namespaces randomness draws for candle settlement.
const candleDomainTag = "auctiond/candle"

// candlePolicy is the randomized-end auction. Bidding works like top-up;
// settlement retroactively picks a random instant and awards the asset to
// whoever led at that instant, which defeats both early commitment advantage
// and last-second sniping.
type candlePolicy struct {
	e *Engine
}

func (p candlePolicy) validate(a *auction.Auction) error {
	if err := p.e.validateGeneral(&a.General); err != nil {
		return err
	}
	if a.General.End != a.General.Start+p.e.params.CandleDefaultDuration {
		return auction.ErrCandleDefaultDuration
	}
	if a.General.ReservePrice > 0 {
		return auction.ErrCandleNoReservePrice
	}
	if a.Candle == nil ||
		a.Candle.ClosingStart != a.General.End-p.e.params.CandleClosingPeriodDuration {
		return auction.ErrCandleClosingPeriod
	}
	return nil
}

// bid escrows funds like top-up and additionally records the bidder as the
// leader of the closing range its block falls into, overwriting any prior
// leader recorded for that range.
func (p candlePolicy) bid(txn *store.Txn, id auction.ID, a *auction.Auction, bid auction.Bid) error {
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
	if err := p.e.avoidSniping(&a.General, bid.Block); err != nil {
		return err
	}
	return txn.SetWinner(id, p.closingRange(bid.Block, a), bid)
}

// close thaws the asset, draws a uniformly random block from the auction's
// full window, and settles with the leader recorded for the closing range
// that block maps to. No recorded leader means no winner: the asset simply
// returns to the seller's free use.
//
// The winning amount moves from escrow to the seller; the bidder already
// paid it in at bid time. Non-winning escrow is not refundable for candle
// auctions, mirroring the top-up won-auction sweep.
func (p candlePolicy) close(txn *store.Txn, id auction.ID, a *auction.Auction) error {
	if err := p.e.assets.Thaw(a.General.Owner, a.General.Asset); err != nil {
		return err
	}
	if a.General.LastBid != nil {
		winningBlock, err := randomness.ChooseBlockInRange(
			p.e.rand, candleDomain(id), a.General.Start, a.General.End)
		if err != nil {
			return err
		}
		winningRange := p.closingRange(winningBlock, a)
		winner, err := txn.Winner(id, winningRange)
		if err != nil {
			return err
		}
		if winner != nil {
			if err := p.e.assets.Transfer(a.General.Owner, a.General.Asset, winner.Bidder); err != nil {
				return err
			}
			if err := p.e.ledger.RemoveLock(auction.LockID, winner.Bidder); err != nil {
				return err
			}
			if err := p.e.ledger.Transfer(
				auction.EscrowAccountID(id), a.General.Owner, winner.Amount); err != nil {
				return err
			}
			a.Candle.WinningRange = winningRange
			a.Candle.WinningBid = winner
		}
	}
	a.General.Closed = true
	return nil
}

// closingRange maps a block to a closing-range index in [1, count]. Blocks
// before the closing period map to the first range; blocks at or past the
// end map to the last; inside the period the index is proportional to the
// block's position, floor-rounded.
func (p candlePolicy) closingRange(block uint64, a *auction.Auction) uint64 {
	var (
		closingStart = a.Candle.ClosingStart
		end          = a.General.End
		count        = p.e.params.CandleClosingRangesCount
	)
	switch {
	case block < closingStart:
		return 1
	case block >= end:
		return count
	default:
		r := 1 + (block-closingStart)*count/(end-closingStart)
		if r > count {
			r = count
		}
		return r
	}
}

func candleDomain(id auction.ID) []byte {
	domain := []byte(candleDomainTag)
	var idb [8]byte
	binary.BigEndian.PutUint64(idb[:], uint64(id))
	return append(domain, idb[:]...)
}
