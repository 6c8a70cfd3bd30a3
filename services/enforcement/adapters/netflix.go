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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/cenkalti/backoff/v4"

	"github.com/AleutianAI/AleutianGuardian/pkg/extensions"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
)

const netflixDefaultBaseURL = "https://api.netflix.internal"

// netflixMaturityLevels maps MPAA-style ceilings onto Netflix maturity
// levels. Netflix exposes a small ladder; anything between two levels snaps
// down to the stricter one.
var netflixMaturityLevels = map[string]map[string]int{
	"mpaa": {
		"G":     0,
		"PG":    40,
		"PG-13": 70,
		"R":     100,
		"NC-17": 110,
	},
	"tv": {
		"TV-Y":  0,
		"TV-Y7": 20,
		"TV-G":  40,
		"TV-PG": 60,
		"TV-14": 80,
		"TV-MA": 110,
	},
}

// Netflix applies rules to a Netflix child profile.
//
// The profile maturity setting is written as an absolute value, so repeated
// pushes of the same rule are no-ops on the platform side.
//
// Credentials: "token" (household OAuth token) and "profile_id".
type Netflix struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewNetflix builds the adapter. baseURL overrides the endpoint for tests.
func NewNetflix(baseURL string, logger *slog.Logger) *Netflix {
	if baseURL == "" {
		baseURL = netflixDefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Netflix{baseURL: baseURL, client: &http.Client{}, logger: logger}
}

// PlatformID implements ManagedAdapter.
func (a *Netflix) PlatformID() string { return "netflix" }

// Push implements ManagedAdapter.
func (a *Netflix) Push(ctx context.Context, rule datatypes.Rule, cred extensions.Credential) error {
	var payload map[string]any
	switch rule.Category {
	case datatypes.CategoryContentRating:
		cfg := rule.Config.ContentRating
		if cfg == nil {
			return fmt.Errorf("%w: missing content_rating config", ErrValidation)
		}
		ladder, ok := netflixMaturityLevels[cfg.System]
		if !ok {
			return fmt.Errorf("%w: netflix cannot map rating system %q", ErrValidation, cfg.System)
		}
		level, ok := ladder[cfg.MaxRating]
		if !ok {
			return fmt.Errorf("%w: unknown %s rating %q", ErrValidation, cfg.System, cfg.MaxRating)
		}
		payload = map[string]any{"maturityLevel": level}

	case datatypes.CategoryTimeDailyLimit:
		cfg := rule.Config.TimeDailyLimit
		if cfg == nil {
			return fmt.Errorf("%w: missing time_daily_limit config", ErrValidation)
		}
		// Netflix has no native daily cap (partial support in the
		// catalog): approximate with the profile lock schedule.
		payload = map[string]any{
			"profileLock": map[string]any{
				"scheduleMinutes": cfg.MinutesPerDay,
			},
		}

	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedCategory, rule.Category)
	}

	return cred.Use(func(fields map[string]string) error {
		token, profileID := fields["token"], fields["profile_id"]
		if token == "" || profileID == "" {
			return fmt.Errorf("%w: credential missing token or profile_id", ErrAuthFailure)
		}
		url := fmt.Sprintf("%s/v1/profiles/%s/restrictions", a.baseURL, profileID)
		return a.put(ctx, url, token, payload)
	})
}

func (a *Netflix) put(ctx context.Context, url, token string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			return backoff.Permanent(mapCtxErr(err))
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%w: netflix returned %d", ErrAuthFailure, resp.StatusCode))
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: http 429", ErrRateLimited)
		case resp.StatusCode >= 500:
			return fmt.Errorf("netflix server error: http %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("%w: netflix returned %d", ErrValidation, resp.StatusCode))
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(newAdapterBackoff(), adapterMaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return mapCtxErr(err)
	}
	return nil
}
