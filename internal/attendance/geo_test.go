package attendance

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// northOf returns the point dist meters due north of p.
func northOf(p GeoPoint, dist float64) GeoPoint {
	return GeoPoint{Lat: p.Lat + dist/EarthRadiusMeters*180/math.Pi, Lon: p.Lon}
}

func TestDistanceSymmetry(t *testing.T) {
	points := []GeoPoint{
		{0, 0},
		{13.0827, 80.2707},
		{13.0900, 80.2900},
		{-33.8688, 151.2093},
		{51.5074, -0.1278},
		{89.9, 179.9},
		{-89.9, -179.9},
	}
	for _, a := range points {
		for _, b := range points {
			assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9, "%v <-> %v", a, b)
		}
	}
}

func TestDistanceIdentity(t *testing.T) {
	for _, p := range []GeoPoint{{0, 0}, {13.0827, 80.2707}, {-45, 170}, {90, 0}} {
		assert.Equal(t, 0.0, Distance(p, p))
	}
}

func TestDistanceKnownValues(t *testing.T) {
	tests := []struct {
		name string
		a, b GeoPoint
		want float64
		tol  float64
	}{
		{"one degree of latitude", GeoPoint{0, 0}, GeoPoint{1, 0}, 111194.93, 0.1},
		{"one degree of longitude on equator", GeoPoint{0, 0}, GeoPoint{0, 1}, 111194.93, 0.1},
		{"chennai neighbours", GeoPoint{13.0827, 80.2707}, GeoPoint{13.0828, 80.2708}, 15.52, 0.01},
		{"chennai across town", GeoPoint{13.0827, 80.2707}, GeoPoint{13.0900, 80.2900}, 2242.4, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Distance(tt.a, tt.b), tt.tol)
		})
	}
}

func TestGeoPointValidate(t *testing.T) {
	tests := []struct {
		name  string
		point GeoPoint
		ok    bool
	}{
		{"origin", GeoPoint{0, 0}, true},
		{"bounds", GeoPoint{90, 180}, true},
		{"negative bounds", GeoPoint{-90, -180}, true},
		{"latitude too high", GeoPoint{90.0001, 0}, false},
		{"latitude too low", GeoPoint{-91, 0}, false},
		{"longitude too high", GeoPoint{0, 180.5}, false},
		{"longitude too low", GeoPoint{0, -181}, false},
		{"nan", GeoPoint{math.NaN(), 0}, false},
		{"inf", GeoPoint{0, math.Inf(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.point.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidCoordinate), "got %v", err)
		})
	}
}

func TestValidateWithinBoundary(t *testing.T) {
	college := CollegeLocation{CollegeID: 1, Point: GeoPoint{0, 0}}

	onFence := northOf(college.Point, 200.0)
	require.InDelta(t, 200.0, Distance(onFence, college.Point), 1e-7)
	d, err := ValidateWithin(onFence, college, 200)
	assert.NoError(t, err)
	assert.InDelta(t, 200.0, d, 1e-7)

	outside := northOf(college.Point, 200.1)
	_, err = ValidateWithin(outside, college, 200)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutsideGeofence))

	var geoErr *OutsideGeofenceError
	require.True(t, errors.As(err, &geoErr))
	assert.InDelta(t, 200.1, geoErr.Distance, 1e-6)
	assert.Equal(t, 200.0, geoErr.Radius)
}

func TestRadiusPolicy(t *testing.T) {
	policy := RadiusPolicy{Default: 200, Overrides: map[int64]float64{7: 500}}

	assert.Equal(t, 500.0, policy.RadiusFor(CollegeLocation{CollegeID: 7, RadiusMeters: 300}))
	assert.Equal(t, 300.0, policy.RadiusFor(CollegeLocation{CollegeID: 8, RadiusMeters: 300}))
	assert.Equal(t, 200.0, policy.RadiusFor(CollegeLocation{CollegeID: 9}))
	assert.Equal(t, DefaultRadiusMeters, RadiusPolicy{}.RadiusFor(CollegeLocation{CollegeID: 9}))

	fence := NewGeofence(policy)
	college := CollegeLocation{CollegeID: 7, Point: GeoPoint{0, 0}}
	_, err := fence.Validate(northOf(college.Point, 450), college)
	assert.NoError(t, err)
	_, err = fence.Validate(northOf(college.Point, 450), CollegeLocation{CollegeID: 9})
	assert.ErrorIs(t, err, ErrOutsideGeofence)
}
