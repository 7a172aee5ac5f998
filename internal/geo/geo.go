// Package geo provides distance math for map discovery. Listings are
// filtered to a bounding box in SQL first, then ranked by true
// haversine distance.
package geo

import "math"

// earthRadiusKm is the mean Earth radius
const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceKm returns the great-circle distance between two points
func DistanceKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// BoundingBox is a lat/lng rectangle used for coarse SQL filtering
type BoundingBox struct {
	MinLat float64
	MinLng float64
	MaxLat float64
	MaxLng float64
}

// Contains reports whether a point falls inside the box
func (b BoundingBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// BoxAround returns a bounding box that fully contains the circle of
// radiusKm around center. Longitude span widens toward the poles; at
// the poles the box covers all longitudes.
func BoxAround(center Point, radiusKm float64) BoundingBox {
	latDelta := radiusKm / 111.0 // ~111km per degree of latitude

	cosLat := math.Cos(center.Lat * math.Pi / 180)
	lngDelta := 180.0
	if cosLat > 1e-6 {
		lngDelta = radiusKm / (111.0 * cosLat)
	}

	return BoundingBox{
		MinLat: math.Max(center.Lat-latDelta, -90),
		MaxLat: math.Min(center.Lat+latDelta, 90),
		MinLng: math.Max(center.Lng-lngDelta, -180),
		MaxLng: math.Min(center.Lng+lngDelta, 180),
	}
}
