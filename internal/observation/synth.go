package observation

import "github.com/liqun1981/lee-wave-analysis/internal/gravitywave"

// TrackPoint is a position along a float track.
type TrackPoint struct {
	Time  float64
	Dist  float64
	Depth float64
}

// ProfileTrack returns n points of a float profiling vertically at speed
// dzdt (m/s, negative when descending) while drifting horizontally at
// drift (m/s), sampled every dt seconds from the surface.
func ProfileTrack(n int, dt, dzdt, drift float64) []TrackPoint {
	track := make([]TrackPoint, n)
	for i := range track {
		t := float64(i) * dt
		track[i] = TrackPoint{Time: t, Dist: drift * t, Depth: dzdt * t}
	}
	return track
}

// Synthesize samples w along track without noise. The set records bg,
// which need not match w.F when the wave carries non-rotating polarization.
func Synthesize(w gravitywave.Wave, bg gravitywave.Background, track []TrackPoint) *Set {
	s := &Set{N: bg.N, F: bg.F}
	for _, tp := range track {
		u, v, wv, b := w.Fields(gravitywave.Point{X: tp.Dist, Z: tp.Depth, T: tp.Time})
		s.Append(Sample{
			Time:  tp.Time,
			Dist:  tp.Dist,
			Depth: tp.Depth,
			U:     u,
			V:     v,
			W:     wv,
			B:     b,
		})
	}
	return s
}
