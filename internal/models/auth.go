package models

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DefaultExpirySlack is subtracted from both token deadlines so that a
// credential is replaced slightly before the server stops accepting it.
const DefaultExpirySlack = 5 * time.Second

// Credential holds the bearer session token, its refresh token and the
// identity claims decoded from the access token. A credential is never
// mutated in place; every refresh produces a new value.
type Credential struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshExpiresIn int64     `json:"refresh_expires_in"`
	IssuedAt         time.Time `json:"issued_at"`

	UserID    string   `json:"user_id,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
}

// IsValid reports whether the access token is still usable at the given
// time, leaving the slack duration before the actual deadline.
func (c *Credential) IsValid(now time.Time, slack time.Duration) bool {
	deadline := c.IssuedAt.Add(time.Duration(c.ExpiresIn) * time.Second).Add(-slack)
	return now.Before(deadline)
}

// CanRefresh reports whether the refresh token is still usable at the given
// time. Once this window closes the user has to authenticate again.
func (c *Credential) CanRefresh(now time.Time, slack time.Duration) bool {
	deadline := c.IssuedAt.Add(time.Duration(c.RefreshExpiresIn) * time.Second).Add(-slack)
	return now.Before(deadline)
}

// DecodeClaims fills the identity fields from the access token payload.
// The token signature is not verified here; the client trusts the token
// endpoint it received the token from.
func (c *Credential) DecodeClaims() error {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(c.AccessToken, jwt.MapClaims{})
	if err != nil {
		return err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("invalid access token claims format")
	}

	if sub, ok := claims["sub"].(string); ok {
		c.UserID = sub
	}
	if given, ok := claims["given_name"].(string); ok {
		c.FirstName = given
	}
	if family, ok := claims["family_name"].(string); ok {
		c.LastName = family
	}

	c.Roles = nil
	if realmAccess, ok := claims["realm_access"].(map[string]interface{}); ok {
		if roles, ok := realmAccess["roles"].([]interface{}); ok {
			for _, role := range roles {
				if name, ok := role.(string); ok {
					c.Roles = append(c.Roles, name)
				}
			}
		}
	}

	return nil
}

// HasRole reports whether the decoded role list contains the given role.
func (c *Credential) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}
