package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	timesSquare    = Point{Lat: 40.7580, Lng: -73.9855}
	centralPark    = Point{Lat: 40.7829, Lng: -73.9654}
	brooklynBridge = Point{Lat: 40.7061, Lng: -73.9969}
	losAngeles     = Point{Lat: 34.0522, Lng: -118.2437}
)

func TestDistanceKm(t *testing.T) {
	// Times Square to Central Park is roughly 3.2km
	d := DistanceKm(timesSquare, centralPark)
	assert.InDelta(t, 3.2, d, 0.3)

	// Coast to coast is roughly 3940km
	d = DistanceKm(timesSquare, losAngeles)
	assert.InDelta(t, 3940, d, 50)

	// Zero distance to itself
	assert.Zero(t, DistanceKm(timesSquare, timesSquare))

	// Symmetric
	assert.InDelta(t,
		DistanceKm(timesSquare, brooklynBridge),
		DistanceKm(brooklynBridge, timesSquare),
		1e-9)
}

func TestBoxAround(t *testing.T) {
	box := BoxAround(timesSquare, 5)

	assert.True(t, box.Contains(timesSquare))
	assert.True(t, box.Contains(centralPark))
	assert.False(t, box.Contains(losAngeles))

	// The box must fully contain the 5km circle: points right at the
	// cardinal edges are inside
	north := Point{Lat: timesSquare.Lat + 5.0/111.0, Lng: timesSquare.Lng}
	assert.True(t, box.Contains(north))
}

func TestBoxAroundClampsAtPoles(t *testing.T) {
	box := BoxAround(Point{Lat: 89.9, Lng: 0}, 100)

	assert.LessOrEqual(t, box.MaxLat, 90.0)
	assert.Equal(t, -180.0, box.MinLng)
	assert.Equal(t, 180.0, box.MaxLng)
}

func TestRankByDistance(t *testing.T) {
	points := []Point{losAngeles, centralPark, brooklynBridge}

	ranked := RankByDistance(timesSquare, points, 0)
	require.Len(t, ranked, 3)

	// Nearest first: Central Park, Brooklyn Bridge, Los Angeles
	assert.Equal(t, 1, ranked[0].Index)
	assert.Equal(t, 2, ranked[1].Index)
	assert.Equal(t, 0, ranked[2].Index)
}

func TestRankByDistanceRadiusCutoff(t *testing.T) {
	points := []Point{losAngeles, centralPark, brooklynBridge}

	ranked := RankByDistance(timesSquare, points, 10)
	require.Len(t, ranked, 2)
	assert.Equal(t, 1, ranked[0].Index)
	assert.Equal(t, 2, ranked[1].Index)
}

func TestRankByDistanceEmpty(t *testing.T) {
	assert.Nil(t, RankByDistance(timesSquare, nil, 0))
}

func TestRankByDistanceManyPoints(t *testing.T) {
	// More points than workers to exercise the pool
	points := make([]Point, 500)
	for i := range points {
		points[i] = Point{Lat: 40.0 + float64(i)*0.001, Lng: -74.0}
	}

	ranked := RankByDistance(Point{Lat: 40.0, Lng: -74.0}, points, 0)
	require.Len(t, ranked, 500)

	for i := 1; i < len(ranked); i++ {
		assert.LessOrEqual(t, ranked[i-1].DistanceKm, ranked[i].DistanceKm)
	}
}
