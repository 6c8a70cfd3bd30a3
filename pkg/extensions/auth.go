// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned by AuthProvider implementations when a token
// is missing, malformed, or expired.
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo describes an authenticated caller.
type AuthInfo struct {
	// UserID is the unique identifier for the authenticated user.
	// This is the only required field and must never be empty.
	UserID string

	// Email is the user's email address.
	// May be empty if not provided by the auth provider.
	Email string

	// Roles contains the user's role memberships.
	// Common roles: "guardian", "admin", "viewer".
	Roles []string
}

// HasRole checks if the user has a specific role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates authentication tokens and returns user identity.
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Open Source Behavior
//
// The default NopAuthProvider always returns a valid "local-guardian" user
// with admin privileges. This allows the appliance to function without any
// authentication infrastructure.
//
// # Enterprise Implementation
//
// Enterprise versions validate tokens against identity providers (Okta,
// Auth0, Azure AD) and return real user identity information.
type AuthProvider interface {
	// Validate checks if the token is valid and returns the user's
	// identity, or ErrUnauthorized.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider authenticates every request as the local guardian.
type NopAuthProvider struct{}

// Validate implements AuthProvider.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-guardian",
		Roles:  []string{"guardian", "admin"},
	}, nil
}
