package pattern

import (
	"math"
	"math/rand"
	"testing"
)

// stubRand replays a fixed script of draws.
type stubRand struct {
	floats []float64
	ints   []int
	fi, ii int
}

func (s *stubRand) Float64() float64 {
	v := s.floats[s.fi%len(s.floats)]
	s.fi++
	return v
}

func (s *stubRand) Intn(n int) int {
	v := s.ints[s.ii%len(s.ints)]
	s.ii++
	return v % n
}

func weightsSum(w map[Category]float64) float64 {
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	return sum
}

func TestWeights_UniformInsideDeadband(t *testing.T) {
	s := NewSelector(&stubRand{floats: []float64{0}, ints: []int{0}})

	// 3% deviation is below the 5% deadband.
	w := s.weights(100, 103, 0.5)
	for c, v := range w {
		if math.Abs(v-1.0/3) > 1e-9 {
			t.Errorf("category %s: weight %v, want uniform 1/3", c, v)
		}
	}
}

func TestWeights_BiasTowardDeviation(t *testing.T) {
	s := NewSelector(&stubRand{floats: []float64{0}, ints: []int{0}})

	// +30% deviation saturates the bias: bullish gets the full 0.45 extra mass.
	w := s.weights(100, 130, 0.5)
	if w[Bullish] <= w[Bearish] || w[Bullish] <= w[Neutral] {
		t.Errorf("bullish should dominate: %v", w)
	}
	want := (1.0 + 3*maxDeviationBias) / (3 + 3*maxDeviationBias)
	if math.Abs(w[Bullish]-want) > 1e-9 {
		t.Errorf("bullish weight %v, want %v", w[Bullish], want)
	}

	// Mirror: -30% deviation favors bearish.
	w = s.weights(100, 70, 0.5)
	if w[Bearish] <= w[Bullish] || w[Bearish] <= w[Neutral] {
		t.Errorf("bearish should dominate: %v", w)
	}
}

func TestWeights_EndPhaseCorrection(t *testing.T) {
	s := NewSelector(&stubRand{floats: []float64{0}, ints: []int{0}})

	early := s.weights(100, 130, 0.5)
	late := s.weights(100, 130, 1.0)
	if late[Bullish] <= early[Bullish] {
		t.Errorf("end-phase correction should raise bullish weight: early %v late %v",
			early[Bullish], late[Bullish])
	}

	if math.Abs(weightsSum(late)-1) > 1e-9 {
		t.Errorf("weights must renormalize to 1, got %v", weightsSum(late))
	}
}

func TestPick_AlwaysValid(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := NewSelector(rng)

	for i := 0; i < 1000; i++ {
		cur := 10 + rng.Float64()*5000
		target := cur * (0.5 + rng.Float64())
		d := s.Pick(cur, target, rng.Float64())
		if _, ok := ByID(d.ID); !ok {
			t.Fatalf("selector returned invalid pattern id %d", d.ID)
		}
	}
}

func TestPick_DrawsInsideChosenCategory(t *testing.T) {
	// Saturated positive deviation plus a low draw lands in the bullish slice.
	s := NewSelector(&stubRand{floats: []float64{0.1}, ints: []int{3}})
	d := s.Pick(100, 150, 0.5)
	if d.Category != Bullish {
		t.Errorf("expected a bullish pattern, got %s (%s)", d.Category, d.Name)
	}
}

func TestPick_ZeroPriceFallsBackToUniform(t *testing.T) {
	s := NewSelector(&stubRand{floats: []float64{0.9}, ints: []int{0}})
	d := s.Pick(0, 100, 0.5)
	if _, ok := ByID(d.ID); !ok {
		t.Fatalf("selector must stay valid on degenerate input")
	}
}
