package models

import "time"

// Course is a catalog offering with a credit weight and a seat capacity.
type Course struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Title     string    `db:"title" json:"title"`
	Credits   int       `db:"credits" json:"credits"`
	Semester  int       `db:"semester" json:"semester"`
	Schedule  string    `db:"schedule" json:"schedule"`
	Lecturer  string    `db:"lecturer" json:"lecturer"`
	Room      string    `db:"room" json:"room"`
	Capacity  int       `db:"capacity" json:"capacity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter defines filter criteria for listing courses.
type CourseFilter struct {
	Search    string
	Semester  int
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// SeatUsage is a fresh projection of a course's active seat count.
type SeatUsage struct {
	CourseID  string `json:"course_id"`
	Code      string `json:"code"`
	Capacity  int    `json:"capacity"`
	Consumed  int    `json:"consumed"`
	Remaining int    `json:"remaining"`
}
