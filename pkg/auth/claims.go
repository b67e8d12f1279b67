package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
)

// AccessTokenPayload is the caller identity baked into a new token. An empty
// JTI gets a random one.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.UserRole
	JTI    string
}

// AccessTokenClaims is the body of a rentalhub access token. Subject repeats
// UserID and Parse rejects tokens where they differ.
type AccessTokenClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}
