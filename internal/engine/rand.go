package engine

import (
	"math"
	"math/rand"
	"time"

	"stock_sim/internal/domain"
)

// SystemClock is the production domain.Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// NewRand returns a seeded production randomness source.
func NewRand() domain.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// normSample draws a standard-normal sample from two uniforms via Box–Muller.
// Going through domain.Rand keeps the noise term stubbable in tests.
func normSample(rng domain.Rand) float64 {
	u1 := rng.Float64()
	for u1 == 0 {
		u1 = rng.Float64()
	}
	u2 := rng.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}
