package model

import "time"

// Role enumerates the account roles known to the platform.
// Authentication itself is external; the role arrives inside the JWT.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// User represents a platform account. Password hashes exist only for the
// seeding tool and e2e fixtures; login endpoints are not part of this service.
type User struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// CanReviewAttempts reports whether the role may read attempts it does not own.
func (r Role) CanReviewAttempts() bool {
	return r == RoleTeacher || r == RoleAdmin
}
