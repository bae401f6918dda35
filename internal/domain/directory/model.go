// Package directory is the staff directory: the users that chat rooms,
// broadcasts, and video calls resolve their participants and audiences from.
package directory

import (
	"time"

	"github.com/google/uuid"
)

// Known staff roles.
const (
	RoleSuperAdmin    = "super_admin"
	RoleHospitalAdmin = "hospital_admin"
	RoleDoctor        = "doctor"
	RoleNurse         = "nurse"
	RoleDispatcher    = "dispatcher"
	RoleReceptionist  = "receptionist"
)

// User represents a staff member.
type User struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	Email      *string    `db:"email" json:"email,omitempty"`
	Phone      *string    `db:"phone" json:"phone,omitempty"`
	Role       string     `db:"role" json:"role"`
	FacilityID *uuid.UUID `db:"facility_id" json:"facility_id,omitempty"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}
