package randomness

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subastra/auctiond/lib/auction"
)

// scriptedSource replays canned seeds keyed by the full domain, including the
// attempt counter suffix.
type scriptedSource struct {
	seeds map[string][]byte
}

func (s scriptedSource) Draw(domain []byte) ([]byte, error) {
	seed, exists := s.seeds[string(domain)]
	if !exists {
		return nil, assert.AnError
	}
	return seed, nil
}

func domainWithAttempt(domain string, attempt uint32) string {
	var a [4]byte
	binary.BigEndian.PutUint32(a[:], attempt)
	return domain + string(a[:])
}

func seedFor(n uint32) []byte {
	seed := make([]byte, 32)
	binary.BigEndian.PutUint32(seed[:4], n)
	return seed
}

func TestChooseBlockInRange_Bounds(t *testing.T) {
	t.Parallel()
	src := System{}
	domain := []byte("test")

	for i := 0; i < 100; i++ {
		block, err := ChooseBlockInRange(src, domain, 100, 200)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, block, uint64(100))
		assert.Less(t, block, uint64(200))
	}
}

func TestChooseBlockInRange_InvalidRanges(t *testing.T) {
	t.Parallel()
	src := System{}
	domain := []byte("test")

	_, err := ChooseBlockInRange(src, domain, 200, 100)
	require.ErrorIs(t, err, auction.ErrInvalidTimeConfiguration)
	_, err = ChooseBlockInRange(src, domain, 100, 100)
	require.ErrorIs(t, err, auction.ErrInvalidTimeConfiguration)
	_, err = ChooseBlockInRange(src, domain, 0, 100)
	require.ErrorIs(t, err, auction.ErrInvalidTimeConfiguration)
	_, err = ChooseBlockInRange(src, domain, 1, math.MaxUint32+uint64(2))
	require.ErrorIs(t, err, auction.ErrInvalidTimeConfiguration)
}

func TestChooseBlockInRange_Deterministic(t *testing.T) {
	t.Parallel()
	src := scriptedSource{seeds: map[string][]byte{
		domainWithAttempt("d", 0): seedFor(1234567),
	}}

	// Same seed, same block.
	for i := 0; i < 3; i++ {
		block, err := ChooseBlockInRange(src, []byte("d"), 100, 200)
		require.NoError(t, err)
		assert.Equal(t, uint64(100+1234567%100), block)
	}
}

func TestChooseBlockInRange_Debias(t *testing.T) {
	t.Parallel()
	// The first draw lands in the biased tail of the uint32 space for a
	// range of 100, so it is rejected and the second draw is used.
	src := scriptedSource{seeds: map[string][]byte{
		domainWithAttempt("d", 0): seedFor(math.MaxUint32),
		domainWithAttempt("d", 1): seedFor(42),
	}}

	block, err := ChooseBlockInRange(src, []byte("d"), 100, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(142), block)
}

func TestChooseBlockInRange_ShortSeed(t *testing.T) {
	t.Parallel()
	src := scriptedSource{seeds: map[string][]byte{
		domainWithAttempt("d", 0): {0x01, 0x02},
	}}

	_, err := ChooseBlockInRange(src, []byte("d"), 100, 200)
	require.ErrorIs(t, err, auction.ErrUnsecureSeed)
}

func TestSystemDraw_DomainsDiffer(t *testing.T) {
	t.Parallel()
	src := System{}
	a, err := src.Draw([]byte("a"))
	require.NoError(t, err)
	b, err := src.Draw([]byte("b"))
	require.NoError(t, err)
	require.Len(t, a, 32)
	require.Len(t, b, 32)
	assert.NotEqual(t, a, b)
}
