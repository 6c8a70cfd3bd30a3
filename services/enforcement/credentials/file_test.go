// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGuardian/pkg/extensions"
)

const testCredentialYAML = `nextdns:
  api_key: "key-one"
  profile_id: "abc123"
netflix:
  token: "tok"
  profile_id: "kids"
`

func writeCredentialFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileStore_LoadAndGet(t *testing.T) {
	path := writeCredentialFile(t, testCredentialYAML)

	s, err := NewFileStore(path, nil)
	require.NoError(t, err)
	defer s.Close()

	cred, err := s.Get(context.Background(), "nextdns")
	require.NoError(t, err)

	var gotKey, gotProfile string
	require.NoError(t, cred.Use(func(fields map[string]string) error {
		gotKey = fields["api_key"]
		gotProfile = fields["profile_id"]
		return nil
	}))
	assert.Equal(t, "key-one", gotKey)
	assert.Equal(t, "abc123", gotProfile)
}

func TestFileStore_UnknownPlatform(t *testing.T) {
	path := writeCredentialFile(t, testCredentialYAML)

	s, err := NewFileStore(path, nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, extensions.ErrNoCredentials)
}

func TestFileStore_MissingFile(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestFileStore_MalformedYAML(t *testing.T) {
	path := writeCredentialFile(t, "nextdns: [not a map")
	_, err := NewFileStore(path, nil)
	assert.Error(t, err)
}

func TestFileStore_ReloadPicksUpRotation(t *testing.T) {
	path := writeCredentialFile(t, testCredentialYAML)

	s, err := NewFileStore(path, nil)
	require.NoError(t, err)
	defer s.Close()

	rotated := `nextdns:
  api_key: "key-two"
  profile_id: "abc123"
`
	require.NoError(t, os.WriteFile(path, []byte(rotated), 0o600))

	require.Eventually(t, func() bool {
		cred, err := s.Get(context.Background(), "nextdns")
		if err != nil {
			return false
		}
		var key string
		if err := cred.Use(func(fields map[string]string) error {
			key = fields["api_key"]
			return nil
		}); err != nil {
			return false
		}
		return key == "key-two"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestFileStore_BadReloadKeepsPreviousSet(t *testing.T) {
	path := writeCredentialFile(t, testCredentialYAML)

	s, err := NewFileStore(path, nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, os.WriteFile(path, []byte("nextdns: [broken"), 0o600))

	// The watcher logs the parse failure and keeps serving the old set.
	time.Sleep(200 * time.Millisecond)
	cred, err := s.Get(context.Background(), "nextdns")
	require.NoError(t, err)

	var key string
	require.NoError(t, cred.Use(func(fields map[string]string) error {
		key = fields["api_key"]
		return nil
	}))
	assert.Equal(t, "key-one", key)
}
