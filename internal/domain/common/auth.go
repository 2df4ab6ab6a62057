package common

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the custom claims carried by API bearer tokens. UserID is the
// same numeric ID the Telegram transport records, so messages captured over
// either path land under one owner.
type Claims struct {
	UserID   int64  `json:"uid"`           // Owner of captured messages.
	Username string `json:"usr,omitempty"` // Display name stored with each message.
	Scope    string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Sender identifies who submitted a message.
type Sender struct {
	UserID   int64
	Username string
	ChatID   int64
}
