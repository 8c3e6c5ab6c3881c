package directory

import "geoattend/internal/attendance"

type CollegeType string

const (
	Engineering CollegeType = "Engineering"
	Degree      CollegeType = "Degree"
	Others      CollegeType = "Others"
)

// College is a campus students can be enrolled in.
type College struct {
	ID              int64       `json:"id" yaml:"id"`
	Name            string      `json:"name" yaml:"name"`
	Latitude        float64     `json:"latitude" yaml:"latitude"`
	Longitude       float64     `json:"longitude" yaml:"longitude"`
	District        *string     `json:"district" yaml:"district"`
	CollegeType     CollegeType `json:"college_type" yaml:"college_type"`
	DepartmentCount *int        `json:"department_count,omitempty" yaml:"department_count"`
	Remarks         *string     `json:"remarks" yaml:"remarks"`
	// GeofenceRadiusM overrides the process default radius when set.
	GeofenceRadiusM *float64 `json:"geofence_radius_m,omitempty" yaml:"geofence_radius_m"`
}

// Location projects the college into what the geofence needs.
func (c College) Location() attendance.CollegeLocation {
	loc := attendance.CollegeLocation{
		CollegeID: c.ID,
		Point:     attendance.GeoPoint{Lat: c.Latitude, Lon: c.Longitude},
	}
	if c.GeofenceRadiusM != nil {
		loc.RadiusMeters = *c.GeofenceRadiusM
	}
	return loc
}

type Course struct {
	ID        int64  `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Duration  int    `json:"duration" yaml:"duration"`
	CollegeID int64  `json:"college_id" yaml:"-"`
}

type Student struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	RegisterNumber string  `json:"register_number"`
	CollegeID      int64   `json:"college_id"`
	CourseID       int64   `json:"course_id"`
	IDCardPath     *string `json:"id_card_path"`
	HashedPassword string  `json:"-"`
}

// Profile is the signed-in student with their college and course.
type Profile struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	RegisterNumber string  `json:"register_number"`
	College        College `json:"college"`
	Course         Course  `json:"course"`
}

func newProfile(s Student, college College, course Course) Profile {
	return Profile{
		ID:             s.ID,
		Name:           s.Name,
		RegisterNumber: s.RegisterNumber,
		College:        college,
		Course:         course,
	}
}
