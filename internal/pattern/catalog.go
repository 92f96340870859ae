// Package pattern holds the fixed catalog of intraday shape functions and the
// deviation-weighted selector that rotates between them.
package pattern

import "math"

// Category groups patterns so selection probability can be biased without
// weighting 25 individual entries.
type Category string

const (
	Bullish Category = "bullish"
	Bearish Category = "bearish"
	Neutral Category = "neutral"
)

// Descriptor is one immutable catalog entry. Shape maps progress in [0,1] to
// a dimensionless directional offset, roughly within [-1,1]; it is continuous
// and f(0), f(1) stay inside [-1.2,1.2].
type Descriptor struct {
	ID       int
	Name     string
	Category Category
	Shape    func(p float64) float64
}

// smoothstep eases t in [0,1] with zero slope at both ends.
func smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// stair builds a continuous n-step staircase over [0,1].
func stair(p float64, n int) float64 {
	scaled := p * float64(n)
	step := math.Floor(scaled)
	if step >= float64(n) {
		step = float64(n) - 1
	}
	return (step + smoothstep(scaled-step)) / float64(n)
}

var catalog = []Descriptor{
	// Bullish (8)
	{1, "steady_climb", Bullish, func(p float64) float64 { return 0.9 * p }},
	{2, "wave_climb", Bullish, func(p float64) float64 { return 0.6*p + 0.3*math.Sin(2*math.Pi*p) }},
	{3, "early_surge", Bullish, func(p float64) float64 { return 0.9 * (1 - (1-p)*(1-p)) }},
	{4, "late_surge", Bullish, func(p float64) float64 { return 0.9 * p * p }},
	{5, "stair_climb", Bullish, func(p float64) float64 { return 0.9 * stair(p, 3) }},
	{6, "shakeout_rally", Bullish, func(p float64) float64 { return p - 0.3*math.Sin(math.Pi*p) }},
	{7, "late_breakout", Bullish, func(p float64) float64 { return 0.45 * (1 + math.Tanh(6*(p-0.65))) }},
	{8, "dip_and_rip", Bullish, func(p float64) float64 { return 0.9*p - math.Sin(math.Pi*p)*(1-p) }},

	// Bearish (8)
	{9, "steady_decline", Bearish, func(p float64) float64 { return -0.9 * p }},
	{10, "wave_decline", Bearish, func(p float64) float64 { return -0.6*p - 0.3*math.Sin(2*math.Pi*p) }},
	{11, "early_plunge", Bearish, func(p float64) float64 { return -0.9 * (1 - (1-p)*(1-p)) }},
	{12, "late_breakdown", Bearish, func(p float64) float64 { return -0.9 * p * p }},
	{13, "stair_decline", Bearish, func(p float64) float64 { return -0.9 * stair(p, 3) }},
	{14, "rebound_fade", Bearish, func(p float64) float64 { return 0.3*math.Sin(math.Pi*p) - p }},
	{15, "capitulation", Bearish, func(p float64) float64 { return -0.45 * (1 + math.Tanh(6*(p-0.65))) }},
	{16, "dead_cat_bounce", Bearish, func(p float64) float64 { return math.Sin(math.Pi*p)*(1-p) - 0.9*p }},

	// Neutral (9)
	{17, "single_wave", Neutral, func(p float64) float64 { return 0.5 * math.Sin(2*math.Pi*p) }},
	{18, "double_wave", Neutral, func(p float64) float64 { return 0.4 * math.Sin(4*math.Pi*p) }},
	{19, "triple_wave", Neutral, func(p float64) float64 { return 0.45 * math.Sin(3*math.Pi*p) }},
	{20, "flat_drift", Neutral, func(p float64) float64 { return 0.1*math.Sin(2*math.Pi*p) + 0.05*math.Sin(6*math.Pi*p) }},
	{21, "squeeze", Neutral, func(p float64) float64 { return 0.6 * math.Sin(4*math.Pi*p) * (1 - p) }},
	{22, "expanding_range", Neutral, func(p float64) float64 { return 0.6 * math.Sin(4*math.Pi*p) * p }},
	{23, "mid_bump", Neutral, func(p float64) float64 { return 0.7 * math.Sin(math.Pi*p) }},
	{24, "mid_dip", Neutral, func(p float64) float64 { return -0.7 * math.Sin(math.Pi*p) }},
	{25, "chop", Neutral, func(p float64) float64 { return 0.3*math.Sin(2*math.Pi*p) + 0.2*math.Sin(5*math.Pi*p) }},
}

var byCategory = func() map[Category][]int {
	m := make(map[Category][]int)
	for _, d := range catalog {
		m[d.Category] = append(m[d.Category], d.ID)
	}
	return m
}()

// Catalog returns all 25 descriptors in id order.
func Catalog() []Descriptor {
	return catalog
}

// ByID looks up a descriptor. The second return is false for an unknown id;
// the engine treats that as a skip-the-tick condition, never a crash.
func ByID(id int) (Descriptor, bool) {
	if id < 1 || id > len(catalog) {
		return Descriptor{}, false
	}
	return catalog[id-1], true
}

// IDsByCategory returns the pattern ids belonging to a category.
func IDsByCategory(c Category) []int {
	return byCategory[c]
}
