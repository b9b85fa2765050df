package models

import "time"

// User is the identity of a signed-in person.
type User struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// Account is a stored user with credentials.
type Account struct {
	User
	PasswordHash string
	CreatedAt    time.Time
}
