// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines interfaces for enterprise functionality.
//
// This package provides extension points that allow AleutianEnterprise to
// add capabilities without modifying the core AleutianGuardian codebase. The
// open source version uses no-op defaults for all interfaces.
//
// # Design Philosophy
//
// AleutianGuardian is a fully functional local appliance that works without
// any external identity or secret-management infrastructure. Enterprise
// features are implemented by providing concrete implementations of these
// interfaces and injecting them via ServiceOptions.
//
// # Extension Categories
//
//   - auth.go: Authentication (AuthProvider)
//   - audit.go: Compliance audit logging (AuditLogger)
//   - credentials.go: Per-platform secret supply (CredentialProvider)
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use. Multiple
// goroutines may call methods simultaneously.
package extensions

// ServiceOptions groups all extension points for service configuration.
//
// Pass this to service constructors to enable enterprise features. All
// fields are optional; nil values are replaced with no-op defaults when
// DefaultOptions() is called or when services check for nil.
type ServiceOptions struct {
	// AuthProvider validates bearer tokens on the REST surface.
	// Default: NopAuthProvider (every request is the local guardian).
	AuthProvider AuthProvider

	// AuditLogger records enforcement triggers and outcomes.
	// Default: NopAuditLogger (events are discarded).
	AuditLogger AuditLogger

	// CredentialProvider supplies per-platform secrets to managed
	// adapters. Default: nil; the service wires the file-backed local
	// store when no provider is injected.
	CredentialProvider CredentialProvider
}

// DefaultOptions returns ServiceOptions with no-op implementations.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider: &NopAuthProvider{},
		AuditLogger:  &NopAuditLogger{},
	}
}

// WithAuth returns a copy of opts with the auth provider replaced.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the audit logger replaced.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// WithCredentials returns a copy of opts with the credential provider
// replaced.
func (opts ServiceOptions) WithCredentials(provider CredentialProvider) ServiceOptions {
	opts.CredentialProvider = provider
	return opts
}
