package pasetotoken

import (
	"time"

	"github.com/google/uuid"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is what the billing API reads from a verified token.
type Claims struct {
	Type      TokenType
	UserID    uuid.UUID
	SessionID *uuid.UUID

	TokenID   string // jti
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (c *Claims) GetUserID() uuid.UUID      { return c.UserID }
func (c *Claims) GetSessionID() *uuid.UUID  { return c.SessionID }
func (c *Claims) GetTokenType() string      { return string(c.Type) }
func (c *Claims) IsExpired() bool           { return time.Now().After(c.ExpiresAt) }
