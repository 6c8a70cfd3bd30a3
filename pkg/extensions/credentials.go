// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
)

// ErrNoCredentials is returned when a platform has no stored credentials.
var ErrNoCredentials = errors.New("no credentials for platform")

// Credential is an opaque set of named secrets for one platform (API keys,
// profile IDs, session tokens).
//
// The secret material is sealed in a memguard enclave: encrypted at rest in
// process memory and only decrypted inside Use. Credentials are never
// logged and never persisted by the enforcement engine; log presence only.
type Credential struct {
	enclave *memguard.Enclave
}

// NewCredential seals the given fields. The plaintext map should be
// discarded by the caller immediately after.
func NewCredential(fields map[string]string) (Credential, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return Credential{}, fmt.Errorf("seal credential: %w", err)
	}
	// NewEnclave wipes raw.
	return Credential{enclave: memguard.NewEnclave(raw)}, nil
}

// IsZero reports whether the credential holds no secret material.
func (c Credential) IsZero() bool {
	return c.enclave == nil
}

// Use decrypts the secret fields, hands them to fn, and wipes the plaintext
// buffer when fn returns. The map must not escape fn.
func (c Credential) Use(fn func(fields map[string]string) error) error {
	if c.enclave == nil {
		return ErrNoCredentials
	}
	buf, err := c.enclave.Open()
	if err != nil {
		return fmt.Errorf("open credential enclave: %w", err)
	}
	defer buf.Destroy()

	var fields map[string]string
	if err := json.Unmarshal(buf.Bytes(), &fields); err != nil {
		return fmt.Errorf("decode credential: %w", err)
	}
	return fn(fields)
}

// CredentialProvider supplies per-platform secrets to managed adapters.
//
// Implementations must be safe for concurrent use. The engine treats the
// returned Credential as opaque; adapters know which field names they need.
type CredentialProvider interface {
	// Get returns the credential for a platform, or ErrNoCredentials.
	Get(ctx context.Context, platformID string) (Credential, error)
}

// StaticCredentialProvider serves credentials from a fixed in-memory set.
// Intended for tests and single-shot CLI invocations.
type StaticCredentialProvider struct {
	creds map[string]Credential
}

// NewStaticCredentialProvider seals each platform's field map.
func NewStaticCredentialProvider(perPlatform map[string]map[string]string) (*StaticCredentialProvider, error) {
	p := &StaticCredentialProvider{creds: make(map[string]Credential, len(perPlatform))}
	for platform, fields := range perPlatform {
		cred, err := NewCredential(fields)
		if err != nil {
			return nil, err
		}
		p.creds[platform] = cred
	}
	return p, nil
}

// Get implements CredentialProvider.
func (p *StaticCredentialProvider) Get(_ context.Context, platformID string) (Credential, error) {
	cred, ok := p.creds[platformID]
	if !ok {
		return Credential{}, fmt.Errorf("platform %q: %w", platformID, ErrNoCredentials)
	}
	return cred, nil
}
