package auction

import (
	"errors"
	"fmt"
	"math/bits"
)

// ID is a unique identifier for an Auction, issued from a monotonically
// increasing counter.
type ID uint64

// AccountID identifies a ledger account. User accounts are multibase-encoded
// public keys (see lib/accounts); escrow subaccounts are derived from a fixed
// namespace plus the auction id.
type AccountID string

// EscrowNamespace prefixes the derived escrow subaccount of every auction.
const EscrowNamespace = "x/auctions/esc"

// EscrowAccountID returns the deterministic escrow subaccount for an auction.
// Stable and collision-free per auction id.
func EscrowAccountID(id ID) AccountID {
	return AccountID(fmt.Sprintf("%s/%d", EscrowNamespace, id))
}

// LockID identifies the currency lock placed on english-auction bidders.
var LockID = [8]byte{'_', 'a', 'u', 'c', 't', 'i', 'o', 'n'}

// Type is the auction policy type.
type Type int

const (
	// TypeUnspecified indicates an invalid policy type.
	TypeUnspecified Type = iota
	// TypeEnglish is an ascending-price auction settled by currency lock.
	TypeEnglish
	// TypeTopUp is an escrow-based auction with cumulative reserved amounts.
	TypeTopUp
	// TypeCandle is an escrow-based auction resolved at a random past instant.
	TypeCandle
)

var typeStrings = map[Type]string{
	TypeUnspecified: "unspecified",
	TypeEnglish:     "english",
	TypeTopUp:       "topup",
	TypeCandle:      "candle",
}

var typeByString map[string]Type

func init() {
	typeByString = make(map[string]Type)
	for t, s := range typeStrings {
		typeByString[s] = t
	}
}

// String returns a string-encoded type.
func (t Type) String() string {
	if s, exists := typeStrings[t]; exists {
		return s
	}
	return "invalid"
}

// TypeByString finds a policy type by its string representation, or errors if
// the type does not exist.
func TypeByString(s string) (Type, error) {
	if t, exists := typeByString[s]; exists {
		return t, nil
	}
	return TypeUnspecified, errors.New("invalid auction type")
}

// AssetRef references an asset instance in the asset registry.
type AssetRef struct {
	Class    uint64
	Instance uint64
}

// String returns class/instance as a path-ish string.
func (r AssetRef) String() string {
	return fmt.Sprintf("%d/%d", r.Class, r.Instance)
}

// Bid is a single bid placed on an auction.
type Bid struct {
	Bidder AccountID
	Amount uint64
	Block  uint64
}

// GeneralData holds the policy-independent state shared by all auction types.
type GeneralData struct {
	Name  string
	Asset AssetRef
	Owner AccountID
	Start uint64
	End   uint64
	// Closed is set exclusively by the close operation.
	Closed bool
	// ReservePrice of zero means no reserve is set.
	ReservePrice uint64
	NextBidMin   uint64
	LastBid      *Bid
}

// CandleData holds state specific to candle auctions. WinningRange and
// WinningBid are derived at settlement.
type CandleData struct {
	ClosingStart uint64
	WinningRange uint64
	WinningBid   *Bid
}

// Auction is a tagged union over the three policy types. Candle is non-nil
// iff Type is TypeCandle.
type Auction struct {
	Type    Type
	General GeneralData
	Candle  *CandleData
}

// Won reports whether the auction is won as of the given block: it has ended,
// a last bid exists, and any reserve price is met.
func (a *Auction) Won(now uint64) bool {
	if now < a.General.End {
		return false
	}
	last := a.General.LastBid
	if last == nil {
		return false
	}
	if a.General.ReservePrice > 0 {
		return last.Amount >= a.General.ReservePrice
	}
	return true
}

// Ended reports whether the auction ending block has been reached.
func (a *Auction) Ended(now uint64) bool {
	return now >= a.General.End
}

// Params are the engine-wide auction parameters.
type Params struct {
	// NameMaxLength bounds auction names.
	NameMaxLength int
	// MinAuctionDuration is the minimum number of blocks between start and end.
	MinAuctionDuration uint64
	// BidAddBlocks extends the end time of late bids to defeat sniping.
	BidAddBlocks uint64
	// BidStepPerc grows the next minimum bid, in percent of the last bid.
	BidStepPerc uint64
	// BidMinAmount is the floor for the next minimum bid.
	BidMinAmount uint64
	// CandleDefaultDuration is the required total duration of candle auctions.
	CandleDefaultDuration uint64
	// CandleClosingPeriodDuration is the required candle closing-period length.
	CandleClosingPeriodDuration uint64
	// CandleClosingRangesCount is the number of closing-period sub-intervals.
	CandleClosingRangesCount uint64
}

// DefaultParams returns the production parameter set.
func DefaultParams() Params {
	return Params{
		NameMaxLength:               128,
		MinAuctionDuration:          10,
		BidAddBlocks:                5,
		BidStepPerc:                 10,
		BidMinAmount:                1,
		CandleDefaultDuration:       99356,
		CandleClosingPeriodDuration: 27818,
		CandleClosingRangesCount:    100,
	}
}

// Validate ensures Params are usable.
func (p Params) Validate() error {
	if p.NameMaxLength <= 0 {
		return errors.New("name max length must be greater than zero")
	}
	if p.MinAuctionDuration == 0 {
		return errors.New("min auction duration must be greater than zero")
	}
	if p.BidAddBlocks == 0 {
		return errors.New("bid add blocks must be greater than zero")
	}
	if p.BidStepPerc > 100 {
		return errors.New("bid step percent must be at most 100")
	}
	if p.BidMinAmount == 0 {
		return errors.New("bid min amount must be greater than zero")
	}
	if p.CandleClosingPeriodDuration >= p.CandleDefaultDuration {
		return errors.New("candle closing period must be shorter than the candle duration")
	}
	if p.CandleClosingRangesCount == 0 {
		return errors.New("candle closing ranges count must be greater than zero")
	}
	return nil
}

// NextBidMin computes amount plus BidStepPerc percent of amount, with floor
// rounding. Overflow is a hard error, never silent.
func (p Params) NextBidMin(amount uint64) (uint64, error) {
	hi, lo := bits.Mul64(amount, p.BidStepPerc)
	if hi >= 100 {
		return 0, ErrBidOverflow
	}
	step, _ := bits.Div64(hi, lo, 100)
	next := amount + step
	if next < amount {
		return 0, ErrBidOverflow
	}
	return next, nil
}
