package services

import "github.com/google/uuid"

// Identity is the caller resolved by the session layer. A nil *Identity
// means the request carries no valid session.
type Identity struct {
	UserID          uuid.UUID
	UHEmailVerified bool
}
