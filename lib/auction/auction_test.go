package auction

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeByString(t *testing.T) {
	t.Parallel()

	for _, typ := range []Type{TypeEnglish, TypeTopUp, TypeCandle} {
		got, err := TypeByString(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := TypeByString("dutch")
	require.Error(t, err)
}

func TestEscrowAccountID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, AccountID("x/auctions/esc/7"), EscrowAccountID(7))
	assert.NotEqual(t, EscrowAccountID(1), EscrowAccountID(2))
}

func TestParamsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultParams().Validate())

	for name, mutate := range map[string]func(*Params){
		"zero name max length":       func(p *Params) { p.NameMaxLength = 0 },
		"zero min duration":          func(p *Params) { p.MinAuctionDuration = 0 },
		"zero bid add blocks":        func(p *Params) { p.BidAddBlocks = 0 },
		"bid step above 100":         func(p *Params) { p.BidStepPerc = 101 },
		"zero bid min amount":        func(p *Params) { p.BidMinAmount = 0 },
		"closing period >= duration": func(p *Params) { p.CandleClosingPeriodDuration = p.CandleDefaultDuration },
		"zero closing ranges":        func(p *Params) { p.CandleClosingRangesCount = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			p := DefaultParams()
			mutate(&p)
			require.Error(t, p.Validate())
		})
	}
}

func TestParamsNextBidMin(t *testing.T) {
	t.Parallel()
	p := DefaultParams()

	next, err := p.NextBidMin(100)
	require.NoError(t, err)
	assert.Equal(t, uint64(110), next)

	// The step is floor-rounded.
	next, err = p.NextBidMin(105)
	require.NoError(t, err)
	assert.Equal(t, uint64(115), next)
	next, err = p.NextBidMin(9)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), next)

	_, err = p.NextBidMin(math.MaxUint64)
	require.ErrorIs(t, err, ErrBidOverflow)
}

func TestAuctionWonEnded(t *testing.T) {
	t.Parallel()

	a := &Auction{
		Type:    TypeEnglish,
		General: GeneralData{Start: 10, End: 100},
	}
	assert.False(t, a.Ended(99))
	assert.True(t, a.Ended(100))

	// No bid, never won.
	assert.False(t, a.Won(100))

	a.General.LastBid = &Bid{Bidder: "bob", Amount: 50, Block: 60}
	assert.False(t, a.Won(99))
	assert.True(t, a.Won(100))

	// A reserve price gates the win.
	a.General.ReservePrice = 51
	assert.False(t, a.Won(100))
	a.General.ReservePrice = 50
	assert.True(t, a.Won(100))
}
