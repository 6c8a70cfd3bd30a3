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
	"testing"
)

func TestCredential_SealAndUse(t *testing.T) {
	cred, err := NewCredential(map[string]string{"api_key": "secret", "profile_id": "p1"})
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}
	if cred.IsZero() {
		t.Fatal("sealed credential reported IsZero")
	}

	var got map[string]string
	err = cred.Use(func(fields map[string]string) error {
		got = map[string]string{}
		for k, v := range fields {
			got[k] = v
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Use: %v", err)
	}
	if got["api_key"] != "secret" || got["profile_id"] != "p1" {
		t.Errorf("unexpected fields: %v", got)
	}
}

func TestCredential_UseReusable(t *testing.T) {
	cred, err := NewCredential(map[string]string{"token": "t"})
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}

	// The enclave must survive repeated opens.
	for i := 0; i < 3; i++ {
		if err := cred.Use(func(map[string]string) error { return nil }); err != nil {
			t.Fatalf("Use #%d: %v", i+1, err)
		}
	}
}

func TestCredential_UsePropagatesError(t *testing.T) {
	cred, err := NewCredential(map[string]string{"token": "t"})
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}

	want := errors.New("boom")
	if got := cred.Use(func(map[string]string) error { return want }); !errors.Is(got, want) {
		t.Errorf("Use error = %v, want %v", got, want)
	}
}

func TestCredential_ZeroValue(t *testing.T) {
	var cred Credential
	if !cred.IsZero() {
		t.Error("zero credential should report IsZero")
	}
	if err := cred.Use(func(map[string]string) error { return nil }); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Use on zero credential = %v, want ErrNoCredentials", err)
	}
}

func TestStaticCredentialProvider(t *testing.T) {
	p, err := NewStaticCredentialProvider(map[string]map[string]string{
		"nextdns": {"api_key": "k"},
	})
	if err != nil {
		t.Fatalf("NewStaticCredentialProvider: %v", err)
	}

	if _, err := p.Get(context.Background(), "nextdns"); err != nil {
		t.Errorf("Get(nextdns): %v", err)
	}
	if _, err := p.Get(context.Background(), "ghost"); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Get(ghost) = %v, want ErrNoCredentials", err)
	}
}
