package models

import "github.com/golang-jwt/jwt/v5"

// ActorClaims is the JWT payload this service accepts. Tokens are minted by
// the identity provider; only the actor id and display name are consumed
// here, for publish stamping and audit attribution.
type ActorClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}
