package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the identity carried by access tokens.
type JWTClaims struct {
	UserID      string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	ChurchID    string `json:"churchId,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the normalised email used for approver checks.
func (c *JWTClaims) Identity() string {
	return NormalizeIdentity(c.Email)
}

// Church returns the tenant scope, which defaults to the user's own uid.
func (c *JWTClaims) Church() string {
	if c.ChurchID != "" {
		return c.ChurchID
	}
	return c.UserID
}

// Name prefers the display name and falls back to the email.
func (c *JWTClaims) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Email
}
