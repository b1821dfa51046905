// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

package auth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for any authentication failure.
// The cause is deliberately not distinguished.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Credentials verifies the admin username/password pair against a
// bcrypt hash from configuration.
type Credentials struct {
	username     string
	passwordHash []byte
}

// NewCredentials creates a verifier. Empty username or hash disables
// admin login entirely.
func NewCredentials(username, passwordHash string) *Credentials {
	return &Credentials{
		username:     username,
		passwordHash: []byte(passwordHash),
	}
}

// Enabled reports whether admin login is configured.
func (c *Credentials) Enabled() bool {
	return c.username != "" && len(c.passwordHash) > 0
}

// Verify checks a username/password pair. The username comparison is
// constant time so it leaks nothing about which field was wrong.
func (c *Credentials) Verify(username, password string) error {
	if !c.Enabled() {
		return ErrInvalidCredentials
	}
	usernameOK := subtle.ConstantTimeCompare([]byte(c.username), []byte(username)) == 1
	passwordErr := bcrypt.CompareHashAndPassword(c.passwordHash, []byte(password))
	if !usernameOK || passwordErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword produces a bcrypt hash suitable for configuration.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
