// Package beneficiary holds the beneficiary entity: a dependent of a
// main member who is the subject of prescriptions.
package beneficiary

import "time"

// Beneficiary belongs to exactly one main member. Soft-deleted via the
// Active flag.
type Beneficiary struct {
	ID           int64     `json:"id"`
	MainMemberID int64     `json:"main_member_id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	DateOfBirth  time.Time `json:"date_of_birth"`
	Relationship string    `json:"relationship"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
