package ml

import (
	"math"
	"math/rand/v2"
)

// normalDist is a clipped gaussian.
type normalDist struct{ mean, std, floor float64 }

// intRange draws uniformly from [lo, hi).
type intRange struct{ lo, hi int }

// floatRange draws uniformly from [lo, hi).
type floatRange struct{ lo, hi float64 }

// trafficProfile describes one class of benign host behaviour.
type trafficProfile struct {
	name          string
	packets       float64 // poisson mean
	bytes         normalDist
	ports         intRange
	dstIPs        intRange
	packetsPerSec normalDist
	bytesPerSec   normalDist
	syns          intRange
	duration      floatRange
}

var baselineProfiles = []trafficProfile{
	{
		name:          "web",
		packets:       30,
		bytes:         normalDist{8000, 3000, 500},
		ports:         intRange{1, 5},
		dstIPs:        intRange{1, 8},
		packetsPerSec: normalDist{15, 8, 1},
		bytesPerSec:   normalDist{3000, 1500, 100},
		syns:          intRange{0, 4},
		duration:      floatRange{2, 60},
	},
	{
		name:          "streaming",
		packets:       200,
		bytes:         normalDist{50000, 20000, 1000},
		ports:         intRange{1, 3},
		dstIPs:        intRange{1, 3},
		packetsPerSec: normalDist{80, 30, 5},
		bytesPerSec:   normalDist{20000, 8000, 1000},
		syns:          intRange{0, 2},
		duration:      floatRange{10, 120},
	},
	{
		name:          "background",
		packets:       10,
		bytes:         normalDist{1000, 500, 100},
		ports:         intRange{1, 3},
		dstIPs:        intRange{1, 4},
		packetsPerSec: normalDist{5, 3, 0.1},
		bytesPerSec:   normalDist{500, 200, 10},
		syns:          intRange{0, 2},
		duration:      floatRange{1, 30},
	},
	{
		name:          "p2p",
		packets:       100,
		bytes:         normalDist{20000, 10000, 500},
		ports:         intRange{1, 10},
		dstIPs:        intRange{1, 10},
		packetsPerSec: normalDist{40, 20, 2},
		bytesPerSec:   normalDist{8000, 4000, 100},
		syns:          intRange{0, 8},
		duration:      floatRange{5, 90},
	},
}

// Baseline generates n synthetic benign feature rows, split evenly across
// web, streaming, background and p2p traffic. Rows are in
// model.FeatureNames order. The output is deterministic for a given seed.
func Baseline(n int, seed uint64) [][]float64 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	rows := make([][]float64, 0, n)
	per := n / len(baselineProfiles)
	for i, p := range baselineProfiles {
		count := per
		if i == len(baselineProfiles)-1 {
			count = n - per*(len(baselineProfiles)-1)
		}
		for j := 0; j < count; j++ {
			rows = append(rows, p.sample(rng))
		}
	}
	rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
	return rows
}

func (p trafficProfile) sample(rng *rand.Rand) []float64 {
	return []float64{
		poisson(rng, p.packets),
		p.bytes.draw(rng),
		p.ports.draw(rng),
		p.dstIPs.draw(rng),
		p.packetsPerSec.draw(rng),
		p.bytesPerSec.draw(rng),
		p.syns.draw(rng),
		p.duration.draw(rng),
	}
}

func (d normalDist) draw(rng *rand.Rand) float64 {
	return math.Max(d.floor, d.mean+rng.NormFloat64()*d.std)
}

func (r intRange) draw(rng *rand.Rand) float64 {
	return float64(r.lo + rng.IntN(r.hi-r.lo))
}

func (r floatRange) draw(rng *rand.Rand) float64 {
	return r.lo + rng.Float64()*(r.hi-r.lo)
}

// poisson uses Knuth's method for small means and a rounded normal
// approximation above 30.
func poisson(rng *rand.Rand, lambda float64) float64 {
	if lambda > 30 {
		return math.Max(0, math.Round(lambda+rng.NormFloat64()*math.Sqrt(lambda)))
	}
	limit := math.Exp(-lambda)
	k := 0.0
	p := 1.0
	for {
		p *= rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}
