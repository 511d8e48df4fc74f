package auth

import (
	"crypto/subtle"
	"errors"
	"time"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// RoleAdmin is granted to the bootstrap admin account.
const RoleAdmin = "admin"

// Authenticator checks the bootstrap admin credentials and issues token pairs.
type Authenticator struct {
	tokens   *Manager
	username string
	password string
	clock    func() time.Time
}

func NewAuthenticator(tokens *Manager, username, password string) *Authenticator {
	return &Authenticator{tokens: tokens, username: username, password: password, clock: time.Now}
}

// Login compares both fields in constant time.
func (a *Authenticator) Login(username, password string) (TokenPair, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username))
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password))
	if a.username == "" || userOK&passOK != 1 {
		return TokenPair{}, ErrInvalidCredentials
	}
	return a.tokens.IssuePair(a.clock(), a.username, RoleAdmin)
}

// Refresh exchanges a refresh token for a new pair, re-resolving the role.
func (a *Authenticator) Refresh(refreshToken string) (TokenPair, error) {
	now := a.clock()
	claims, err := a.tokens.Verify(refreshToken, TokenTypeRefresh, now)
	if err != nil {
		return TokenPair{}, err
	}
	if subtle.ConstantTimeCompare([]byte(claims.UserID), []byte(a.username)) != 1 {
		return TokenPair{}, ErrInvalidCredentials
	}
	return a.tokens.IssuePair(now, claims.UserID, RoleAdmin)
}
