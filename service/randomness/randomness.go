package randomness

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/subastra/auctiond/lib/auction"
)

// maxDebiasAttempts bounds the rejection-sampling loop. On exhaustion the
// last draw is used; the residual bias is negligible for range sizes far
// below 2^32.
const maxDebiasAttempts = 10

// Source supplies fresh pseudorandom seeds, at least 32 bytes, mixed with
// caller-supplied domain bytes. Injected so settlement is unit-testable with
// a scripted source.
type Source interface {
	Draw(domain []byte) ([]byte, error)
}

// System is a Source backed by crypto/rand. The domain bytes are hashed into
// the output so distinct domains never share a seed stream.
type System struct{}

// Draw returns a fresh 32-byte seed for the domain.
func (System) Draw(domain []byte) ([]byte, error) {
	var entropy [32]byte
	if _, err := rand.Read(entropy[:]); err != nil {
		return nil, fmt.Errorf("reading entropy: %v", err)
	}
	h := sha256.New()
	h.Write(domain)
	h.Write(entropy[:])
	return h.Sum(nil), nil
}

// drawUint32 derives a uint32 from the first seed bytes of a draw.
func drawUint32(src Source, domain []byte, attempt uint32) (uint32, error) {
	var d []byte
	d = append(d, domain...)
	var a [4]byte
	binary.BigEndian.PutUint32(a[:], attempt)
	d = append(d, a[:]...)

	seed, err := src.Draw(d)
	if err != nil {
		return 0, fmt.Errorf("drawing seed: %v", err)
	}
	if len(seed) < 4 {
		return 0, auction.ErrUnsecureSeed
	}
	return binary.BigEndian.Uint32(seed[:4]), nil
}

// ChooseBlockInRange picks a uniformly random block in [from, to) using
// rejection sampling to remove modulo bias.
func ChooseBlockInRange(src Source, domain []byte, from, to uint64) (uint64, error) {
	if from >= to || from == 0 {
		return 0, auction.ErrInvalidTimeConfiguration
	}
	difference := to - from
	if difference > math.MaxUint32 {
		return 0, auction.ErrInvalidTimeConfiguration
	}
	diff := uint32(difference)

	number, err := drawUint32(src, domain, 0)
	if err != nil {
		return 0, err
	}
	for i := uint32(1); i < maxDebiasAttempts; i++ {
		if number < math.MaxUint32-math.MaxUint32%diff {
			break
		}
		number, err = drawUint32(src, domain, i)
		if err != nil {
			return 0, err
		}
	}
	return from + uint64(number%diff), nil
}
