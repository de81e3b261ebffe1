package marketdata

import "time"

// NearestPoint picks the point closest to at by absolute time distance.
// On a tie the earlier point wins.
func NearestPoint(series []Point, at time.Time) (Point, bool) {
	if len(series) == 0 {
		return Point{}, false
	}
	best := series[0]
	bestDist := absDuration(best.At.Sub(at))
	for _, p := range series[1:] {
		d := absDuration(p.At.Sub(at))
		if d < bestDist || (d == bestDist && p.At.Before(best.At)) {
			best = p
			bestDist = d
		}
	}
	return best, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
