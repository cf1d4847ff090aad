package auction

import "errors"

// ErrStringBidVolumeLimited is the error message the dispatch front responds
// with when admitting a bid would exceed the running bid volume limit.
const ErrStringBidVolumeLimited = "would exceed running bid volume limit"

// Typed rejections surfaced by the engine. Every failed operation leaves
// all state untouched; callers are expected to correct inputs and resubmit.
var (
	// ErrAuctionNotFound indicates the requested auction was not found.
	ErrAuctionNotFound = errors.New("auction not found")

	// ErrNotStarted indicates the auction start time has not been reached.
	ErrNotStarted = errors.New("auction has not started")

	// ErrAlreadyStarted indicates the auction can no longer be updated or destroyed.
	ErrAlreadyStarted = errors.New("auction has already started")

	// ErrAlreadyClosed indicates close was already called on the auction.
	ErrAlreadyClosed = errors.New("auction is already closed")

	// ErrEndTimeReached indicates bidding is over for the auction.
	ErrEndTimeReached = errors.New("auction end time reached")

	// ErrEndTimeNotReached indicates the auction cannot be closed yet.
	ErrEndTimeNotReached = errors.New("auction end time not reached")

	// ErrCannotSetClosed indicates the closed flag can only be set by close.
	ErrCannotSetClosed = errors.New("closed flag cannot be set directly")

	// ErrInvalidBidAmount indicates the bid is below the required minimum or
	// does not exceed the current leading bid.
	ErrInvalidBidAmount = errors.New("invalid bid amount")

	// ErrNoAvailableAuctionID indicates the auction id counter is exhausted.
	ErrNoAvailableAuctionID = errors.New("no available auction id")

	// ErrStartTimePassed indicates the requested start time is in the past.
	ErrStartTimePassed = errors.New("auction start time already passed")

	// ErrInvalidTimeConfiguration indicates a bad start/end window.
	ErrInvalidTimeConfiguration = errors.New("invalid time configuration")

	// ErrNotAuctionOwner indicates the caller does not own the auction.
	ErrNotAuctionOwner = errors.New("not the auction owner")

	// ErrNotAssetOwner indicates the caller does not own the referenced asset.
	ErrNotAssetOwner = errors.New("not the asset owner")

	// ErrBidOverflow indicates overflow in bid-step arithmetic.
	ErrBidOverflow = errors.New("bid amount overflow")

	// ErrTimeUnderflow indicates underflow in remaining-time arithmetic.
	ErrTimeUnderflow = errors.New("time underflow")

	// ErrCannotBidOnOwnAuction indicates the owner attempted to bid.
	ErrCannotBidOnOwnAuction = errors.New("cannot bid on own auction")

	// ErrAssetFrozen indicates the asset is not transferable.
	ErrAssetFrozen = errors.New("asset is frozen from transfers")

	// ErrEmptyName indicates the auction name is empty.
	ErrEmptyName = errors.New("auction name cannot be empty")

	// ErrNameTooLong indicates the auction name exceeds the length bound.
	ErrNameTooLong = errors.New("auction name too long")

	// ErrNoChangeOfType indicates an update attempted to switch policy type.
	ErrNoChangeOfType = errors.New("auction type cannot be changed")

	// ErrInvalidNextBidMin indicates a bad next-minimum-bid configuration.
	ErrInvalidNextBidMin = errors.New("invalid next bid minimum")

	// ErrReservedAmountOverflow indicates overflow accumulating a reserved amount.
	ErrReservedAmountOverflow = errors.New("reserved amount overflow")

	// ErrNoReservedAmount indicates the bidder has nothing to claim.
	ErrNoReservedAmount = errors.New("no reserved amount available to claim")

	// ErrCannotClaimWonAuction indicates the escrow was already swept to the seller.
	ErrCannotClaimWonAuction = errors.New("cannot claim a won auction")

	// ErrClaimsNotSupported indicates claims are only available on top-up auctions.
	ErrClaimsNotSupported = errors.New("claims not supported for this auction type")

	// ErrCloseBeforeClaiming indicates the auction must be closed before claims.
	ErrCloseBeforeClaiming = errors.New("close auction before claiming reserved amounts")

	// ErrCandleDefaultDuration indicates a candle auction with a non-default duration.
	ErrCandleDefaultDuration = errors.New("candle auction must have the default duration")

	// ErrCandleClosingPeriod indicates a bad candle closing-period start.
	ErrCandleClosingPeriod = errors.New("candle auction must have the default closing period")

	// ErrCandleNoReservePrice indicates a candle auction with a reserve price.
	ErrCandleNoReservePrice = errors.New("candle auction does not support a reserve price")

	// ErrUnsecureSeed indicates the randomness source returned too few bytes.
	ErrUnsecureSeed = errors.New("random seed is too short")
)
