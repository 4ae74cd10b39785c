package models

import "time"

// EnrollmentStatus represents the lifecycle of a ledger entry.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// Enrollment is one student's claim on one course seat.
type Enrollment struct {
	ID           string           `db:"id" json:"id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	CourseID     string           `db:"course_id" json:"course_id"`
	RegisteredAt time.Time        `db:"registered_at" json:"registered_at"`
	Status       EnrollmentStatus `db:"status" json:"status"`
	CancelledAt  *time.Time       `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// RosterEntry is an active enrollment joined with the student record.
type RosterEntry struct {
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	NIM          string    `db:"nim" json:"nim"`
	FullName     string    `db:"full_name" json:"full_name"`
	Semester     int       `db:"semester" json:"semester"`
	RegisteredAt time.Time `db:"registered_at" json:"registered_at"`
}

// StudyPlan summarises a student's active registrations for the term (KRS).
type StudyPlan struct {
	Student       Student  `json:"student"`
	AcademicYear  string   `json:"academic_year"`
	Term          string   `json:"term"`
	Courses       []Course `json:"courses"`
	TotalCredits  int      `json:"total_credits"`
	MaxCredits    int      `json:"max_credits"`
	MinCredits    int      `json:"min_credits"`
	BelowMinimum  bool     `json:"below_minimum"`
	RemainingCaps int      `json:"remaining_credits"`
}
