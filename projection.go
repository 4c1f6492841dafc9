package sonde

import "math"

const (
	r2d = 180 / math.Pi
	d2r = 1 / r2d
)

/* Local planar frame: flat-earth east/north meters around a reference point. Only
valid over a few tens of kilometers, which is the scale of a landing ellipse. */

// LocalXY returns the east (x) and north (y) offsets in meters of (lat, lon) from
// (lat0, lon0), all in degrees, with an equirectangular approximation.
func LocalXY(lat0, lon0, lat, lon float64) (x, y float64) {
	x = EarthRadius * (lon - lon0) * d2r * math.Cos(lat0*d2r)
	y = EarthRadius * (lat - lat0) * d2r
	return
}

// FromLocalXY is the inverse of LocalXY.
func FromLocalXY(lat0, lon0, x, y float64) (lat, lon float64) {
	lat = lat0 + y/EarthRadius*r2d
	lon = lon0 + x/(EarthRadius*math.Cos(lat0*d2r))*r2d
	return
}
