package models

import "time"

// LedgerInvariant names a cross-row rule the ledger must satisfy.
type LedgerInvariant string

const (
	InvariantCreditCap    LedgerInvariant = "credit_cap"
	InvariantSeatCapacity LedgerInvariant = "seat_capacity"
	InvariantUniqueActive LedgerInvariant = "unique_active_pair"
)

// CreditViolation is a student whose active credits exceed the cap.
type CreditViolation struct {
	StudentID  string `db:"student_id" json:"student_id"`
	NIM        string `db:"nim" json:"nim"`
	Consumed   int    `db:"consumed" json:"consumed"`
	MaxCredits int    `db:"max_credits" json:"max_credits"`
}

// SeatViolation is a course whose active seats exceed its capacity.
type SeatViolation struct {
	CourseID string `db:"course_id" json:"course_id"`
	Code     string `db:"code" json:"code"`
	Consumed int    `db:"consumed" json:"consumed"`
	Capacity int    `db:"capacity" json:"capacity"`
}

// DuplicateActive is a (student, course) pair holding more than one active row.
type DuplicateActive struct {
	StudentID string `db:"student_id" json:"student_id"`
	CourseID  string `db:"course_id" json:"course_id"`
	Rows      int    `db:"active_rows" json:"active_rows"`
}

// LedgerAuditReport lists every violation found in one audit pass.
type LedgerAuditReport struct {
	CheckedAt        time.Time         `json:"checked_at"`
	CreditViolations []CreditViolation `json:"credit_violations"`
	SeatViolations   []SeatViolation   `json:"seat_violations"`
	Duplicates       []DuplicateActive `json:"duplicates"`
}

// Clean reports whether the audit found nothing.
func (r *LedgerAuditReport) Clean() bool {
	return len(r.CreditViolations) == 0 && len(r.SeatViolations) == 0 && len(r.Duplicates) == 0
}
