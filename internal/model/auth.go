package model

import "github.com/golang-jwt/jwt/v5"

// SessionClaims are JWT claims for a client session. The registered ID
// claim (jti) identifies the client instance: every hub connection opened
// by the same install carries the same token id, and a fresh sign-in
// produces a new one.
type SessionClaims struct {
	UserID int64 `json:"userId"`
	jwt.RegisteredClaims
}

// Account is a stored user account.
type Account struct {
	ID           int64  `bson:"_id" json:"id"`
	Username     string `bson:"username" json:"username"`
	PasswordHash string `bson:"password_hash" json:"-"`
	Restricted   bool   `bson:"restricted" json:"-"`
}

// LoginRequest is the request body for session login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned after successful login
type LoginResponse struct {
	Token  string `json:"token"`
	UserID int64  `json:"userId"`
}
