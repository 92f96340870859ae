package pattern

import (
	"math"

	"stock_sim/internal/domain"
)

// Selection tuning. Category weights start near uniform and are pulled toward
// the deviation-matching category, harder in the final fifth of the cycle.
const (
	deviationDeadband = 0.05 // |deviation| below this leaves weights uniform
	deviationFullBias = 0.3  // |deviation| at which the extra weight saturates
	maxDeviationBias  = 0.45
	endPhaseStart     = 0.8
	maxEndPhaseBias   = 0.2
)

// Selector picks the next active pattern. It has no failure modes: given any
// inputs it returns a valid descriptor.
type Selector struct {
	rng domain.Rand
}

func NewSelector(rng domain.Rand) *Selector {
	return &Selector{rng: rng}
}

// Pick draws a category weighted by price deviation and cycle progress, then
// draws uniformly among that category's patterns.
func (s *Selector) Pick(currentPrice, targetPrice, cycleProgress float64) Descriptor {
	weights := s.weights(currentPrice, targetPrice, cycleProgress)

	r := s.rng.Float64()
	cat := Neutral
	acc := 0.0
	for _, c := range []Category{Bullish, Bearish, Neutral} {
		acc += weights[c]
		if r < acc {
			cat = c
			break
		}
	}

	ids := IDsByCategory(cat)
	d, _ := ByID(ids[s.rng.Intn(len(ids))])
	return d
}

// weights computes the normalized category probabilities.
func (s *Selector) weights(currentPrice, targetPrice, cycleProgress float64) map[Category]float64 {
	w := map[Category]float64{Bullish: 1, Bearish: 1, Neutral: 1}

	if currentPrice <= 0 {
		return normalize(w)
	}
	deviation := (targetPrice - currentPrice) / currentPrice

	toward := Neutral
	if deviation > 0 {
		toward = Bullish
	} else if deviation < 0 {
		toward = Bearish
	}

	if math.Abs(deviation) > deviationDeadband {
		scale := math.Min(math.Abs(deviation)/deviationFullBias, 1)
		w[toward] += 3 * maxDeviationBias * scale
	}

	// End-of-period correction: push toward the target in the final fifth.
	if cycleProgress > endPhaseStart && toward != Neutral {
		ramp := (cycleProgress - endPhaseStart) / (1 - endPhaseStart)
		if ramp > 1 {
			ramp = 1
		}
		w[toward] += 3 * maxEndPhaseBias * ramp
	}

	return normalize(w)
}

func normalize(w map[Category]float64) map[Category]float64 {
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	for c, v := range w {
		w[c] = v / sum
	}
	return w
}
