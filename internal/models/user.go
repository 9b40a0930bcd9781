package models

import (
	"github.com/google/uuid"
)

// User is the authenticated caller as described by the access token.
// Users are owned by the external auth service and never stored here.
type User struct {
	ID    uuid.UUID
	Email string
	Name  string
}
