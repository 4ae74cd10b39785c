package models

import "time"

// Student is a learner who registers courses against a per-term credit cap.
type Student struct {
	ID         string    `db:"id" json:"id"`
	NIM        string    `db:"nim" json:"nim"`
	FullName   string    `db:"full_name" json:"full_name"`
	Major      string    `db:"major" json:"major"`
	Semester   int       `db:"semester" json:"semester"`
	MaxCredits int       `db:"max_credits" json:"max_credits"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Semester  int
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
