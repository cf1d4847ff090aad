package engine

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subastra/auctiond/lib/auction"
	"github.com/subastra/auctiond/lib/chainclock"
	"github.com/subastra/auctiond/lib/logging"
	"github.com/subastra/auctiond/service/ledger"
	"github.com/subastra/auctiond/service/randomness"
	"github.com/subastra/auctiond/service/registry"
	"github.com/subastra/auctiond/service/store"
	badger "github.com/textileio/go-ds-badger3"
	golog "github.com/textileio/go-log/v2"
)

func init() {
	if err := logging.SetLogLevels(map[string]golog.LogLevel{
		"auctiond/engine": golog.LevelDebug,
	}); err != nil {
		panic(err)
	}
}

const (
	seller  = auction.AccountID("seller")
	alice   = auction.AccountID("alice")
	bob     = auction.AccountID("bob")
	mallory = auction.AccountID("mallory")
)

var asset = auction.AssetRef{Class: 1, Instance: 1}

func testParams() auction.Params {
	return auction.Params{
		NameMaxLength:               32,
		MinAuctionDuration:          10,
		BidAddBlocks:                5,
		BidStepPerc:                 10,
		BidMinAmount:                1,
		CandleDefaultDuration:       100,
		CandleClosingPeriodDuration: 30,
		CandleClosingRangesCount:    10,
	}
}

// stubSource scripts the seeds settlement draws. A nil script falls back to
// the system source.
type stubSource struct {
	draw func(domain []byte) ([]byte, error)
}

func (s *stubSource) Draw(domain []byte) ([]byte, error) {
	if s.draw == nil {
		return randomness.System{}.Draw(domain)
	}
	return s.draw(domain)
}

// seedForNumber builds a 32-byte seed whose leading bytes decode to n.
func seedForNumber(n uint32) []byte {
	seed := make([]byte, 32)
	binary.BigEndian.PutUint32(seed[:4], n)
	return seed
}

type recordingReporter struct {
	events []string
}

func (r *recordingReporter) AuctionCreated(id auction.ID, owner auction.AccountID) {
	r.events = append(r.events, fmt.Sprintf("created %d by %s", id, owner))
}

func (r *recordingReporter) BidPlaced(id auction.ID, bid auction.Bid) {
	r.events = append(r.events, fmt.Sprintf("bid %d on %d by %s", bid.Amount, id, bid.Bidder))
}

func (r *recordingReporter) AuctionClosed(id auction.ID) {
	r.events = append(r.events, fmt.Sprintf("closed %d", id))
}

func (r *recordingReporter) AuctionDestroyed(id auction.ID) {
	r.events = append(r.events, fmt.Sprintf("destroyed %d", id))
}

func (r *recordingReporter) ReservedClaimed(id auction.ID, bidder auction.AccountID, amount uint64) {
	r.events = append(r.events, fmt.Sprintf("claimed %d from %d by %s", amount, id, bidder))
}

type fixture struct {
	engine   *Engine
	clock    *chainclock.Manual
	ledger   *ledger.Store
	assets   *registry.Store
	rand     *stubSource
	reporter *recordingReporter
}

// newFixture wires an engine over a fresh datastore, mints the shared asset
// to the seller, and funds alice and bob with 1000 each.
func newFixture(t *testing.T) *fixture {
	ds, err := badger.NewDatastore(t.TempDir(), &badger.DefaultOptions)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, ds.Close())
	})

	f := &fixture{
		clock:    chainclock.NewManual(0),
		ledger:   ledger.NewStore(ds),
		assets:   registry.NewStore(ds),
		rand:     &stubSource{},
		reporter: &recordingReporter{},
	}
	f.engine, err = New(
		store.NewStore(ds), f.ledger, f.assets, f.rand, f.clock, testParams(), f.reporter)
	require.NoError(t, err)

	require.NoError(t, f.assets.Mint(seller, asset))
	require.NoError(t, f.ledger.Deposit(alice, 1000))
	require.NoError(t, f.ledger.Deposit(bob, 1000))
	return f
}

func englishAuction(start, end uint64) *auction.Auction {
	return &auction.Auction{
		Type: auction.TypeEnglish,
		General: auction.GeneralData{
			Name:       "rare vase",
			Asset:      asset,
			Owner:      seller,
			Start:      start,
			End:        end,
			NextBidMin: 1,
		},
	}
}

func topUpAuction(start, end, reserve uint64) *auction.Auction {
	return &auction.Auction{
		Type: auction.TypeTopUp,
		General: auction.GeneralData{
			Name:         "rare vase",
			Asset:        asset,
			Owner:        seller,
			Start:        start,
			End:          end,
			ReservePrice: reserve,
			NextBidMin:   1,
		},
	}
}

func candleAuction(start uint64) *auction.Auction {
	end := start + 100
	return &auction.Auction{
		Type: auction.TypeCandle,
		General: auction.GeneralData{
			Name:       "rare vase",
			Asset:      asset,
			Owner:      seller,
			Start:      start,
			End:        end,
			NextBidMin: 1,
		},
		Candle: &auction.CandleData{ClosingStart: end - 30},
	}
}

func (f *fixture) balance(t *testing.T, account auction.AccountID) uint64 {
	b, err := f.ledger.Balance(account)
	require.NoError(t, err)
	return b
}

func (f *fixture) freeBalance(t *testing.T, account auction.AccountID) uint64 {
	b, err := f.ledger.FreeBalance(account)
	require.NoError(t, err)
	return b
}

func (f *fixture) assetOwner(t *testing.T) auction.AccountID {
	owner, err := f.assets.OwnerOf(asset)
	require.NoError(t, err)
	return owner
}

func (f *fixture) reserved(t *testing.T, bidder auction.AccountID, id auction.ID) uint64 {
	r, err := f.engine.ReservedAmount(bidder, id)
	require.NoError(t, err)
	return r
}

func TestNewRejectsInvalidParams(t *testing.T) {
	t.Parallel()
	params := testParams()
	params.BidMinAmount = 0
	_, err := New(nil, nil, nil, nil, chainclock.NewManual(0), params, nil)
	require.Error(t, err)
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.clock.Set(5)

	otherAsset := auction.AssetRef{Class: 1, Instance: 2}
	require.NoError(t, f.assets.Mint(alice, otherAsset))
	frozenAsset := auction.AssetRef{Class: 1, Instance: 3}
	require.NoError(t, f.assets.Mint(seller, frozenAsset))
	require.NoError(t, f.assets.Freeze(seller, frozenAsset))

	tests := []struct {
		name   string
		caller auction.AccountID
		mutate func(a *auction.Auction)
		err    error
	}{
		{
			name:   "caller is not the record owner",
			caller: mallory,
			mutate: func(a *auction.Auction) {},
			err:    auction.ErrNotAuctionOwner,
		},
		{
			name:   "empty name",
			caller: seller,
			mutate: func(a *auction.Auction) { a.General.Name = "" },
			err:    auction.ErrEmptyName,
		},
		{
			name:   "name too long",
			caller: seller,
			mutate: func(a *auction.Auction) {
				a.General.Name = "this auction name is way past the configured maximum"
			},
			err: auction.ErrNameTooLong,
		},
		{
			name:   "start time passed",
			caller: seller,
			mutate: func(a *auction.Auction) { a.General.Start = 4 },
			err:    auction.ErrStartTimePassed,
		},
		{
			name:   "end equals start",
			caller: seller,
			mutate: func(a *auction.Auction) { a.General.End = a.General.Start },
			err:    auction.ErrInvalidTimeConfiguration,
		},
		{
			name:   "duration below minimum",
			caller: seller,
			mutate: func(a *auction.Auction) { a.General.End = a.General.Start + 9 },
			err:    auction.ErrInvalidTimeConfiguration,
		},
		{
			name:   "unknown asset",
			caller: seller,
			mutate: func(a *auction.Auction) { a.General.Asset = auction.AssetRef{Class: 9, Instance: 9} },
			err:    registry.ErrAssetNotFound,
		},
		{
			name:   "asset owned by someone else",
			caller: seller,
			mutate: func(a *auction.Auction) { a.General.Asset = otherAsset },
			err:    auction.ErrNotAssetOwner,
		},
		{
			name:   "bid floor below minimum",
			caller: seller,
			mutate: func(a *auction.Auction) { a.General.NextBidMin = 0 },
			err:    auction.ErrInvalidNextBidMin,
		},
		{
			name:   "reserve price without a matching floor",
			caller: seller,
			mutate: func(a *auction.Auction) { a.General.ReservePrice = 50 },
			err:    auction.ErrInvalidNextBidMin,
		},
		{
			name:   "no reserve with a raised floor",
			caller: seller,
			mutate: func(a *auction.Auction) { a.General.NextBidMin = 2 },
			err:    auction.ErrInvalidNextBidMin,
		},
		{
			name:   "closed flag preset",
			caller: seller,
			mutate: func(a *auction.Auction) { a.General.Closed = true },
			err:    auction.ErrCannotSetClosed,
		},
		{
			name:   "frozen asset",
			caller: seller,
			mutate: func(a *auction.Auction) { a.General.Asset = frozenAsset },
			err:    auction.ErrAssetFrozen,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			a := englishAuction(10, 20)
			test.mutate(a)
			_, err := f.engine.Create(test.caller, a)
			require.ErrorIs(t, err, test.err)
		})
	}

	// The reserve price doubles as the starting floor when both match.
	a := englishAuction(10, 20)
	a.General.ReservePrice = 50
	a.General.NextBidMin = 50
	_, err := f.engine.Create(seller, a)
	require.NoError(t, err)
}

func TestCreateCandleValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(a *auction.Auction)
		err    error
	}{
		{
			name:   "duration differs from the candle default",
			mutate: func(a *auction.Auction) { a.General.End++ },
			err:    auction.ErrCandleDefaultDuration,
		},
		{
			name:   "reserve price set",
			mutate: func(a *auction.Auction) { a.General.ReservePrice = 10 },
			err:    auction.ErrCandleNoReservePrice,
		},
		{
			name:   "missing candle data",
			mutate: func(a *auction.Auction) { a.Candle = nil },
			err:    auction.ErrCandleClosingPeriod,
		},
		{
			name:   "closing start off by one",
			mutate: func(a *auction.Auction) { a.Candle.ClosingStart++ },
			err:    auction.ErrCandleClosingPeriod,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			a := candleAuction(10)
			test.mutate(a)
			_, err := f.engine.Create(seller, a)
			require.ErrorIs(t, err, test.err)
		})
	}

	_, err := f.engine.Create(seller, candleAuction(10))
	require.NoError(t, err)
}

func TestEnglishFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	id, err := f.engine.Create(seller, englishAuction(10, 100))
	require.NoError(t, err)

	// The asset is frozen while the auction lives.
	transferable, err := f.assets.CanTransfer(asset)
	require.NoError(t, err)
	assert.False(t, transferable)

	// Bidding opens strictly after the start block.
	require.ErrorIs(t, f.engine.Bid(alice, id, 10), auction.ErrNotStarted)
	f.clock.Set(10)
	require.ErrorIs(t, f.engine.Bid(alice, id, 10), auction.ErrNotStarted)

	f.clock.Set(11)
	require.ErrorIs(t, f.engine.Bid(seller, id, 10), auction.ErrCannotBidOnOwnAuction)
	require.ErrorIs(t, f.engine.Bid(alice, id, 0), auction.ErrInvalidBidAmount)
	require.ErrorIs(t, f.engine.Bid(alice, id, 2000), ledger.ErrInsufficientBalance)

	// A leading bid locks funds in place instead of moving them.
	require.NoError(t, f.engine.Bid(alice, id, 100))
	assert.Equal(t, uint64(1000), f.balance(t, alice))
	assert.Equal(t, uint64(900), f.freeBalance(t, alice))

	a, err := f.engine.GetAuction(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(110), a.General.NextBidMin)
	require.NotNil(t, a.General.LastBid)
	assert.Equal(t, alice, a.General.LastBid.Bidder)

	// Outbidding releases the previous lock.
	require.ErrorIs(t, f.engine.Bid(bob, id, 105), auction.ErrInvalidBidAmount)
	require.NoError(t, f.engine.Bid(bob, id, 110))
	assert.Equal(t, uint64(1000), f.freeBalance(t, alice))
	assert.Equal(t, uint64(890), f.freeBalance(t, bob))

	require.ErrorIs(t, f.engine.Close(id), auction.ErrEndTimeNotReached)

	f.clock.Set(100)
	require.ErrorIs(t, f.engine.Bid(alice, id, 200), auction.ErrEndTimeReached)

	// Settlement trades asset for the locked funds.
	require.NoError(t, f.engine.Close(id))
	assert.Equal(t, bob, f.assetOwner(t))
	assert.Equal(t, uint64(890), f.balance(t, bob))
	assert.Equal(t, uint64(890), f.freeBalance(t, bob))
	assert.Equal(t, uint64(110), f.balance(t, seller))

	transferable, err = f.assets.CanTransfer(asset)
	require.NoError(t, err)
	assert.True(t, transferable)

	require.ErrorIs(t, f.engine.Close(id), auction.ErrAlreadyClosed)
}

func TestEnglishCloseWithoutBids(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	id, err := f.engine.Create(seller, englishAuction(10, 100))
	require.NoError(t, err)

	f.clock.Set(100)
	require.NoError(t, f.engine.Close(id))

	assert.Equal(t, seller, f.assetOwner(t))
	transferable, err := f.assets.CanTransfer(asset)
	require.NoError(t, err)
	assert.True(t, transferable)
	assert.Equal(t, uint64(0), f.balance(t, seller))
}

func TestEnglishSnipingExtension(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	id, err := f.engine.Create(seller, englishAuction(10, 100))
	require.NoError(t, err)

	// A bid with under five blocks remaining pushes the end out.
	f.clock.Set(97)
	require.NoError(t, f.engine.Bid(alice, id, 10))
	a, err := f.engine.GetAuction(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(102), a.General.End)

	f.clock.Set(101)
	require.NoError(t, f.engine.Bid(bob, id, 20))
	a, err = f.engine.GetAuction(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(106), a.General.End)

	require.ErrorIs(t, f.engine.Close(id), auction.ErrEndTimeNotReached)
	f.clock.Set(106)
	require.NoError(t, f.engine.Close(id))
	assert.Equal(t, bob, f.assetOwner(t))
}

func TestUpdate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	id, err := f.engine.Create(seller, englishAuction(10, 100))
	require.NoError(t, err)

	replacement := englishAuction(20, 110)
	replacement.General.Name = "renamed vase"
	require.ErrorIs(t, f.engine.Update(mallory, id, replacement), auction.ErrNotAuctionOwner)

	topup := topUpAuction(20, 110, 0)
	require.ErrorIs(t, f.engine.Update(seller, id, topup), auction.ErrNoChangeOfType)

	require.NoError(t, f.engine.Update(seller, id, replacement))
	a, err := f.engine.GetAuction(id)
	require.NoError(t, err)
	assert.Equal(t, "renamed vase", a.General.Name)
	assert.Equal(t, uint64(20), a.General.Start)

	f.clock.Set(20)
	late := englishAuction(30, 120)
	require.ErrorIs(t, f.engine.Update(seller, id, late), auction.ErrAlreadyStarted)
}

func TestDestroy(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	id, err := f.engine.Create(seller, englishAuction(10, 100))
	require.NoError(t, err)

	require.ErrorIs(t, f.engine.Destroy(mallory, id), auction.ErrNotAuctionOwner)

	require.NoError(t, f.engine.Destroy(seller, id))
	_, err = f.engine.GetAuction(id)
	require.ErrorIs(t, err, auction.ErrAuctionNotFound)
	transferable, err := f.assets.CanTransfer(asset)
	require.NoError(t, err)
	assert.True(t, transferable)

	id, err = f.engine.Create(seller, englishAuction(10, 100))
	require.NoError(t, err)
	f.clock.Set(10)
	require.ErrorIs(t, f.engine.Destroy(seller, id), auction.ErrAlreadyStarted)
}

func TestTopUpWonSweepsEscrow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	id, err := f.engine.Create(seller, topUpAuction(10, 100, 0))
	require.NoError(t, err)
	escrow := auction.EscrowAccountID(id)

	// Every bid is a full transfer into escrow, accumulating per bidder.
	f.clock.Set(11)
	require.NoError(t, f.engine.Bid(alice, id, 10))
	assert.Equal(t, uint64(990), f.balance(t, alice))
	assert.Equal(t, uint64(10), f.balance(t, escrow))
	assert.Equal(t, uint64(10), f.reserved(t, alice, id))

	require.NoError(t, f.engine.Bid(bob, id, 20))
	require.NoError(t, f.engine.Bid(alice, id, 30))
	assert.Equal(t, uint64(960), f.balance(t, alice))
	assert.Equal(t, uint64(60), f.balance(t, escrow))
	assert.Equal(t, uint64(40), f.reserved(t, alice, id))
	assert.Equal(t, uint64(20), f.reserved(t, bob, id))

	// The won close trades the asset and sweeps the whole escrow to the
	// seller. Non-winning contributions go with it; there is no refund path
	// out of a won auction.
	f.clock.Set(100)
	require.NoError(t, f.engine.Close(id))
	assert.Equal(t, alice, f.assetOwner(t))
	assert.Equal(t, uint64(60), f.balance(t, seller))
	assert.Equal(t, uint64(0), f.balance(t, escrow))

	require.ErrorIs(t, f.engine.ClaimReserved(bob, id), auction.ErrCannotClaimWonAuction)
	require.ErrorIs(t, f.engine.ClaimReserved(alice, id), auction.ErrCannotClaimWonAuction)
}

func TestTopUpNotWonClaims(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	id, err := f.engine.Create(seller, topUpAuction(10, 100, 100))
	require.NoError(t, err)
	escrow := auction.EscrowAccountID(id)

	f.clock.Set(11)
	require.NoError(t, f.engine.Bid(alice, id, 10))
	require.NoError(t, f.engine.Bid(bob, id, 20))

	f.clock.Set(50)
	require.ErrorIs(t, f.engine.ClaimReserved(alice, id), auction.ErrEndTimeNotReached)
	f.clock.Set(100)
	require.ErrorIs(t, f.engine.ClaimReserved(alice, id), auction.ErrCloseBeforeClaiming)

	// The reserve was not met: the asset stays put and escrow stays claimable.
	require.NoError(t, f.engine.Close(id))
	assert.Equal(t, seller, f.assetOwner(t))
	transferable, err := f.assets.CanTransfer(asset)
	require.NoError(t, err)
	assert.True(t, transferable)
	assert.Equal(t, uint64(30), f.balance(t, escrow))

	require.NoError(t, f.engine.ClaimReserved(alice, id))
	assert.Equal(t, uint64(1000), f.balance(t, alice))
	assert.Equal(t, uint64(0), f.reserved(t, alice, id))
	require.ErrorIs(t, f.engine.ClaimReserved(alice, id), auction.ErrNoReservedAmount)

	require.NoError(t, f.engine.ClaimReserved(bob, id))
	assert.Equal(t, uint64(1000), f.balance(t, bob))
	assert.Equal(t, uint64(0), f.balance(t, escrow))

	require.ErrorIs(t, f.engine.ClaimReserved(mallory, id), auction.ErrNoReservedAmount)
}

func TestClaimUnsupportedTypes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	// English bids never reserve anything, so there is nothing to claim.
	id, err := f.engine.Create(seller, englishAuction(10, 100))
	require.NoError(t, err)
	f.clock.Set(11)
	require.NoError(t, f.engine.Bid(alice, id, 10))
	f.clock.Set(100)
	require.NoError(t, f.engine.Close(id))
	require.ErrorIs(t, f.engine.ClaimReserved(alice, id), auction.ErrNoReservedAmount)
}

func TestCandleFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	id, err := f.engine.Create(seller, candleAuction(10))
	require.NoError(t, err)
	escrow := auction.EscrowAccountID(id)

	// Block 20 precedes the closing period, so alice leads range 1.
	f.clock.Set(20)
	require.NoError(t, f.engine.Bid(alice, id, 10))
	assert.Equal(t, uint64(10), f.reserved(t, alice, id))

	// Block 90 sits a third into the closing period [80, 110), so bob leads
	// range 4 of 10.
	f.clock.Set(90)
	require.NoError(t, f.engine.Bid(bob, id, 50))
	assert.Equal(t, uint64(60), f.balance(t, escrow))

	// Script the draw to land on block 10+79=89, which maps to range 4.
	f.rand.draw = func(domain []byte) ([]byte, error) {
		return seedForNumber(79), nil
	}
	f.clock.Set(110)
	require.NoError(t, f.engine.Close(id))

	a, err := f.engine.GetAuction(id)
	require.NoError(t, err)
	assert.True(t, a.General.Closed)
	assert.Equal(t, uint64(4), a.Candle.WinningRange)
	require.NotNil(t, a.Candle.WinningBid)
	assert.Equal(t, bob, a.Candle.WinningBid.Bidder)
	assert.Equal(t, uint64(50), a.Candle.WinningBid.Amount)

	// Only the winning amount leaves escrow.
	assert.Equal(t, bob, f.assetOwner(t))
	assert.Equal(t, uint64(50), f.balance(t, seller))
	assert.Equal(t, uint64(10), f.balance(t, escrow))

	// Candle escrow is never refundable, won or not.
	require.ErrorIs(t, f.engine.ClaimReserved(alice, id), auction.ErrClaimsNotSupported)
}

func TestCandleDrawWithoutLeader(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	id, err := f.engine.Create(seller, candleAuction(10))
	require.NoError(t, err)
	escrow := auction.EscrowAccountID(id)

	f.clock.Set(20)
	require.NoError(t, f.engine.Bid(alice, id, 10))

	// The draw lands on block 10+90=100, range 7, where nobody ever led:
	// the auction closes with no winner and the asset returns to free use.
	f.rand.draw = func(domain []byte) ([]byte, error) {
		return seedForNumber(90), nil
	}
	f.clock.Set(110)
	require.NoError(t, f.engine.Close(id))

	a, err := f.engine.GetAuction(id)
	require.NoError(t, err)
	assert.True(t, a.General.Closed)
	assert.Nil(t, a.Candle.WinningBid)
	assert.Equal(t, seller, f.assetOwner(t))
	transferable, err := f.assets.CanTransfer(asset)
	require.NoError(t, err)
	assert.True(t, transferable)
	assert.Equal(t, uint64(10), f.balance(t, escrow))
}

func TestCandleCloseWithoutBids(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	id, err := f.engine.Create(seller, candleAuction(10))
	require.NoError(t, err)

	drawn := false
	f.rand.draw = func(domain []byte) ([]byte, error) {
		drawn = true
		return seedForNumber(0), nil
	}
	f.clock.Set(110)
	require.NoError(t, f.engine.Close(id))

	// No bids means no draw.
	assert.False(t, drawn)
	assert.Equal(t, seller, f.assetOwner(t))
}

func TestBidUnknownAuction(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.ErrorIs(t, f.engine.Bid(alice, 42, 10), auction.ErrAuctionNotFound)
}

func TestReporterEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	id, err := f.engine.Create(seller, englishAuction(10, 100))
	require.NoError(t, err)
	f.clock.Set(11)
	require.NoError(t, f.engine.Bid(alice, id, 10))
	f.clock.Set(100)
	require.NoError(t, f.engine.Close(id))

	require.Equal(t, []string{
		fmt.Sprintf("created %d by seller", id),
		fmt.Sprintf("bid 10 on %d by alice", id),
		fmt.Sprintf("closed %d", id),
	}, f.reporter.events)
}
