// Package pharmacy holds the pharmacy registry entity.
package pharmacy

import "time"

// Pharmacy is a dispensing pharmacy prescriptions can be assigned to.
// Rows are soft-deleted via the Active flag, never removed.
type Pharmacy struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
