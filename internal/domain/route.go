package domain

import "math"

// EarthRadiusM is the mean earth radius used for great-circle distances.
const EarthRadiusM = 6371000.0

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusM * c
}

// RouteDistance sums the haversine length of consecutive route segments.
func RouteDistance(route []RoutePoint) float64 {
	var total float64
	for i := 1; i < len(route); i++ {
		prev, cur := route[i-1], route[i]
		total += Haversine(prev.Latitude, prev.Longitude, cur.Latitude, cur.Longitude)
	}
	return total
}

// ElevationGain sums positive altitude deltas between consecutive points that
// both carry an altitude. ok is false when fewer than two altitudes are known.
func ElevationGain(route []RoutePoint) (gain float64, ok bool) {
	var last *float64
	known := 0
	for _, p := range route {
		if p.Altitude == nil {
			continue
		}
		known++
		if last != nil && *p.Altitude > *last {
			gain += *p.Altitude - *last
		}
		last = p.Altitude
	}
	return gain, known >= 2
}
