package models

import "time"

// StudentRole identifies the responsibility level of a student worker.
type StudentRole string

const (
	RoleStudentLead StudentRole = "STUDENT_LEAD"
	RoleAssistant   StudentRole = "ASSISTANT"
)

// Valid reports whether the role is one of the supported values.
func (r StudentRole) Valid() bool {
	switch r {
	case RoleStudentLead, RoleAssistant:
		return true
	}
	return false
}

// Student models a student worker who clocks in and out of shifts.
type Student struct {
	ID        string      `db:"id" json:"id"`
	BadgeCode string      `db:"badge_code" json:"badge_code"`
	FullName  string      `db:"full_name" json:"full_name"`
	Role      StudentRole `db:"role" json:"role"`
	Active    bool        `db:"active" json:"active"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}
