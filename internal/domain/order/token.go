package order

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// Token candidates are one letter A–D followed by a three digit number,
// giving 3600 possible values. Uniqueness among live orders is enforced by
// the ledger; the generator only has to produce candidates and remember
// recently released tokens so a freshly collected order's token is not
// reissued right away.
const tokenLetters = "ABCD"

// bloomCapacity comfortably exceeds the whole token space, so a generation
// never saturates.
const (
	bloomCapacity = 8192
	bloomFPR      = 0.001
)

// TokenGenerator produces candidate pickup tokens and tracks tokens released
// within the retention window using two rotating bloom filter generations.
// A released token stays "probably remembered" for between one and two
// retention periods; a false positive merely costs one extra candidate.
//
// The generator is not safe for concurrent use on its own. The ledger calls
// it only while holding its mutex.
type TokenGenerator struct {
	retention time.Duration
	current   *bloom.BloomFilter
	previous  *bloom.BloomFilter
	rotatedAt time.Time
	now       func() time.Time
}

// NewTokenGenerator creates a generator with the given reuse retention
// window. The reference deployment uses 24 hours.
func NewTokenGenerator(retention time.Duration) *TokenGenerator {
	now := time.Now
	return &TokenGenerator{
		retention: retention,
		current:   bloom.NewWithEstimates(bloomCapacity, bloomFPR),
		previous:  bloom.NewWithEstimates(bloomCapacity, bloomFPR),
		rotatedAt: now(),
		now:       now,
	}
}

// Candidate returns a random token candidate, e.g. "B417".
func (g *TokenGenerator) Candidate() string {
	letter := tokenLetters[rand.IntN(len(tokenLetters))]
	return fmt.Sprintf("%c%03d", letter, 100+rand.IntN(900))
}

// Release records that a token left the live set and should not be reissued
// for roughly the retention window.
func (g *TokenGenerator) Release(token string) {
	g.rotate()
	g.current.AddString(token)
}

// RecentlyReleased reports whether the token was probably released within
// the retention window.
func (g *TokenGenerator) RecentlyReleased(token string) bool {
	g.rotate()
	return g.current.TestString(token) || g.previous.TestString(token)
}

// rotate swaps the generations once the current one is older than the
// retention window, dropping tokens released more than two windows ago.
func (g *TokenGenerator) rotate() {
	if g.now().Sub(g.rotatedAt) < g.retention {
		return
	}
	g.previous = g.current
	g.current = bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	g.rotatedAt = g.now()
}
