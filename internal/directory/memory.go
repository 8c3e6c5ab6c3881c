package directory

import (
	"context"
	"sync"

	"geoattend/internal/attendance"
)

// MemoryDirectory keeps colleges, courses and students in process memory.
type MemoryDirectory struct {
	mu         sync.RWMutex
	nextID     int64
	colleges   map[int64]College
	courses    map[int64]Course
	students   map[int64]Student
	byRegister map[string]int64
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		colleges:   make(map[int64]College),
		courses:    make(map[int64]Course),
		students:   make(map[int64]Student),
		byRegister: make(map[string]int64),
	}
}

func (m *MemoryDirectory) AddCollege(c College) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.colleges[c.ID] = c
}

func (m *MemoryDirectory) AddCourse(c Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[c.ID] = c
}

func (m *MemoryDirectory) CollegeLocation(_ context.Context, studentID int64) (attendance.CollegeLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[studentID]
	if !ok {
		return attendance.CollegeLocation{}, attendance.ErrCollegeNotFound
	}
	c, ok := m.colleges[s.CollegeID]
	if !ok {
		return attendance.CollegeLocation{}, attendance.ErrCollegeNotFound
	}
	return c.Location(), nil
}

func (m *MemoryDirectory) SubjectExists(_ context.Context, studentID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.students[studentID]
	return ok, nil
}

func (m *MemoryDirectory) GetStudent(_ context.Context, id int64) (Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return Student{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryDirectory) GetStudentByRegisterNumber(_ context.Context, registerNumber string) (Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byRegister[registerNumber]
	if !ok {
		return Student{}, ErrNotFound
	}
	return m.students[id], nil
}

func (m *MemoryDirectory) GetCollege(_ context.Context, id int64) (College, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.colleges[id]
	if !ok {
		return College{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryDirectory) GetCourse(_ context.Context, id int64) (Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return Course{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryDirectory) CreateStudent(_ context.Context, s Student) (Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.byRegister[s.RegisterNumber]; taken {
		return Student{}, ErrRegisterNumberTaken
	}
	m.nextID++
	s.ID = m.nextID
	m.students[s.ID] = s
	m.byRegister[s.RegisterNumber] = s.ID
	return s, nil
}

func (m *MemoryDirectory) StudentProfile(_ context.Context, studentID int64) (Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[studentID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	college, ok := m.colleges[s.CollegeID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	course, ok := m.courses[s.CourseID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return newProfile(s, college, course), nil
}

func (m *MemoryDirectory) SeedColleges(_ context.Context, seed Seed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sc := range seed.Colleges {
		m.colleges[sc.ID] = sc.College
		for _, course := range sc.Courses {
			course.CollegeID = sc.ID
			m.courses[course.ID] = course
		}
	}
	return nil
}
