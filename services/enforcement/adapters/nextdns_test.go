// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package adapters

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGuardian/pkg/extensions"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
)

func nextdnsCred(t *testing.T) extensions.Credential {
	t.Helper()
	cred, err := extensions.NewCredential(map[string]string{
		"api_key": "test-key", "profile_id": "abc123",
	})
	require.NoError(t, err)
	return cred
}

func safesearchRule() datatypes.Rule {
	return datatypes.Rule{
		ID: "r-1", Category: datatypes.CategoryWebSafesearch,
		Config: datatypes.RuleConfig{WebSafesearch: &datatypes.WebSafesearchConfig{
			Enforce: true, LockSetting: true,
		}},
	}
}

func TestNextDNS_PushSafesearch(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		require.Equal(t, http.MethodPatch, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a := NewNextDNS(srv.URL, nil)
	err := a.Push(context.Background(), safesearchRule(), nextdnsCred(t))
	require.NoError(t, err)

	assert.Equal(t, "/profiles/abc123/parentalcontrol", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, true, gotBody["safeSearch"])
	assert.Equal(t, true, gotBody["youtubeRestricted"])
}

func TestNextDNS_PushCategoryBlock(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rule := datatypes.Rule{
		ID: "r-2", Category: datatypes.CategoryWebCategoryBlock,
		Config: datatypes.RuleConfig{WebCategoryBlock: &datatypes.WebCategoryBlockConfig{
			Categories: []string{"gambling", "dating"},
		}},
	}

	a := NewNextDNS(srv.URL, nil)
	require.NoError(t, a.Push(context.Background(), rule, nextdnsCred(t)))
	assert.Equal(t, "/profiles/abc123/parentalcontrol/categories", gotPath)
	assert.Len(t, gotBody["categories"], 2)
}

func TestNextDNS_AuthFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewNextDNS(srv.URL, nil)
	err := a.Push(context.Background(), safesearchRule(), nextdnsCred(t))
	assert.ErrorIs(t, err, ErrAuthFailure)
	// Auth failures are permanent: no retries.
	assert.Equal(t, int32(1), calls.Load())
}

func TestNextDNS_RetriesThrottling(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a := NewNextDNS(srv.URL, nil)
	err := a.Push(context.Background(), safesearchRule(), nextdnsCred(t))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNextDNS_RateLimitExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewNextDNS(srv.URL, nil)
	err := a.Push(context.Background(), safesearchRule(), nextdnsCred(t))
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestNextDNS_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server notices the client hang up;
		// otherwise Close blocks on the open connection.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	a := NewNextDNS(srv.URL, nil)
	err := a.Push(ctx, safesearchRule(), nextdnsCred(t))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestNextDNS_MissingCredentialFields(t *testing.T) {
	cred, err := extensions.NewCredential(map[string]string{"api_key": "only-key"})
	require.NoError(t, err)

	a := NewNextDNS("http://unused.invalid", nil)
	err = a.Push(context.Background(), safesearchRule(), cred)
	assert.ErrorIs(t, err, ErrAuthFailure)
}

func TestNextDNS_UnsupportedCategory(t *testing.T) {
	rule := datatypes.Rule{
		ID: "r-3", Category: datatypes.CategoryTimeBedtime,
		Config: datatypes.RuleConfig{TimeBedtime: &datatypes.TimeBedtimeConfig{
			Start: "21:00", End: "07:00",
		}},
	}

	a := NewNextDNS("http://unused.invalid", nil)
	err := a.Push(context.Background(), rule, nextdnsCred(t))
	assert.ErrorIs(t, err, ErrUnsupportedCategory)
}

func TestRestrictiveRating(t *testing.T) {
	tests := []struct {
		system, max string
		want        bool
	}{
		{"mpaa", "PG-13", true},
		{"mpaa", "NC-17", false},
		{"tv", "TV-PG", true},
		{"tv", "TV-MA", false},
		{"esrb", "T", true},
		{"pegi", "18", false},
		{"unknown", "X", true},
	}
	for _, tt := range tests {
		got := restrictiveRating(&datatypes.ContentRatingConfig{System: tt.system, MaxRating: tt.max})
		if got != tt.want {
			t.Errorf("restrictiveRating(%s %s) = %v, want %v", tt.system, tt.max, got, tt.want)
		}
	}
}
