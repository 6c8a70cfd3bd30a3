// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package credentials provides the appliance's local credential store.
//
// Secrets live in a YAML file owned by the guardian (one map of fields per
// platform slug). The file is parsed once at startup and re-read whenever
// it changes on disk, so rotating an API key never requires a restart.
// Parsed secrets are sealed in memguard enclaves immediately; the plaintext
// never sits in ordinary heap memory and is never logged.
package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianGuardian/pkg/extensions"
)

// FileStore is a CredentialProvider backed by a YAML file.
//
// # File Format
//
//	nextdns:
//	  api_key: "..."
//	  profile_id: "abc123"
//	netflix:
//	  token: "..."
//	  profile_id: "kids"
//
// # Thread Safety
//
// Safe for concurrent use. Reloads swap the credential map atomically under
// a write lock; Get holds the read lock only long enough to copy the
// enclave handle.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	creds map[string]extensions.Credential

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileStore loads the file and starts watching it for changes.
//
// The initial load must succeed; later reload failures are logged and the
// previous credentials stay in effect.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileStore{
		path:   path,
		logger: logger,
		done:   make(chan struct{}),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create credential watcher: %w", err)
	}
	// Watch the directory, not the file: editors and secret managers
	// typically replace the file via rename, which drops a file watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch credential directory: %w", err)
	}
	s.watcher = watcher
	go s.watch()
	return s, nil
}

// Get implements extensions.CredentialProvider.
func (s *FileStore) Get(_ context.Context, platformID string) (extensions.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[platformID]
	if !ok {
		return extensions.Credential{}, fmt.Errorf("platform %q: %w", platformID, extensions.ErrNoCredentials)
	}
	return cred, nil
}

// Close stops the file watcher.
func (s *FileStore) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *FileStore) reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read credential file: %w", err)
	}

	var parsed map[string]map[string]string
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("parse credential file: %w", err)
	}

	creds := make(map[string]extensions.Credential, len(parsed))
	for platform, fields := range parsed {
		cred, err := extensions.NewCredential(fields)
		if err != nil {
			return fmt.Errorf("seal credentials for %q: %w", platform, err)
		}
		creds[platform] = cred
	}

	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
	s.logger.Info("credential store loaded", "platforms", len(creds))
	return nil
}

func (s *FileStore) watch() {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := s.reload(); err != nil {
				s.logger.Error("credential reload failed, keeping previous set", "error", err)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("credential watcher error", "error", err)
		}
	}
}
