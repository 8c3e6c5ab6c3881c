package attendance

// DefaultRadiusMeters is the allowed distance from a college when nothing
// more specific is configured.
const DefaultRadiusMeters = 200.0

// boundaryTolerance absorbs float rounding for points placed exactly on the
// fence. It is far below GPS precision.
const boundaryTolerance = 1e-6

// CollegeLocation is the reference point a student's college is fenced
// around. RadiusMeters is the college's own radius, zero when unset.
type CollegeLocation struct {
	CollegeID    int64
	Point        GeoPoint
	RadiusMeters float64
}

// RadiusPolicy decides the allowed radius for a college. Overrides win over
// the college's stored radius, which wins over Default.
type RadiusPolicy struct {
	Default   float64
	Overrides map[int64]float64
}

// RadiusFor returns the radius in meters that applies to the college.
func (p RadiusPolicy) RadiusFor(college CollegeLocation) float64 {
	if r, ok := p.Overrides[college.CollegeID]; ok && r > 0 {
		return r
	}
	if college.RadiusMeters > 0 {
		return college.RadiusMeters
	}
	if p.Default > 0 {
		return p.Default
	}
	return DefaultRadiusMeters
}

// Geofence checks submitted positions against a college's circle.
type Geofence struct {
	policy RadiusPolicy
}

// NewGeofence builds a validator bound to policy.
func NewGeofence(policy RadiusPolicy) *Geofence {
	return &Geofence{policy: policy}
}

// Validate checks point against the radius the policy assigns to college and
// returns the measured distance.
func (g *Geofence) Validate(point GeoPoint, college CollegeLocation) (float64, error) {
	return ValidateWithin(point, college, g.policy.RadiusFor(college))
}

// ValidateWithin fails with *OutsideGeofenceError when point is farther than
// thresholdMeters from the college. A point on the boundary passes.
func ValidateWithin(point GeoPoint, college CollegeLocation, thresholdMeters float64) (float64, error) {
	d := Distance(point, college.Point)
	if d > thresholdMeters+boundaryTolerance {
		return d, &OutsideGeofenceError{Distance: d, Radius: thresholdMeters}
	}
	return d, nil
}
