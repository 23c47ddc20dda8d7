package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT. Tokens
// are normally minted by the identity service; the payload type lives here so
// tests and local tooling can issue compatible tokens.
type AccessTokenPayload struct {
	UserID      uuid.UUID
	TenantID    uuid.UUID
	DisplayName string
	Role        string
	JTI         string
}

// AccessTokenClaims represents the typed JWT presented by florist staff
// clients. DisplayName is carried verbatim for assignment attribution.
type AccessTokenClaims struct {
	UserID      uuid.UUID `json:"user_id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        string    `json:"role,omitempty"`
	jwt.RegisteredClaims
}
