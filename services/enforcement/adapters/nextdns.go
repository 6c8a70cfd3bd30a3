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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianGuardian/pkg/extensions"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
)

const (
	nextdnsDefaultBaseURL = "https://api.nextdns.io"

	// NextDNS throttles aggressively; stay well under their documented
	// limit so concurrent dispatches don't trip it.
	nextdnsRequestsPerSecond = 5
	nextdnsBurst             = 5
)

// NextDNS applies rules to a NextDNS profile through its REST API.
//
// All writes are PATCHes of absolute setting values, so pushing the same
// rule twice converges on the same profile state (upsert semantics).
//
// Credentials: "api_key" and "profile_id".
type NextDNS struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewNextDNS builds the adapter. baseURL overrides the production endpoint
// for tests; pass "" for the default.
func NewNextDNS(baseURL string, logger *slog.Logger) *NextDNS {
	if baseURL == "" {
		baseURL = nextdnsDefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NextDNS{
		baseURL: baseURL,
		client:  &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(nextdnsRequestsPerSecond), nextdnsBurst),
		logger:  logger,
	}
}

// PlatformID implements ManagedAdapter.
func (a *NextDNS) PlatformID() string { return "nextdns" }

// nextdnsWrite is one PATCH against the profile's parental-control config.
type nextdnsWrite struct {
	path    string
	payload map[string]any
}

// translate maps a rule's config onto NextDNS profile settings.
func (a *NextDNS) translate(rule datatypes.Rule) (nextdnsWrite, error) {
	switch rule.Category {
	case datatypes.CategoryWebSafesearch:
		cfg := rule.Config.WebSafesearch
		if cfg == nil {
			return nextdnsWrite{}, fmt.Errorf("%w: missing web_safesearch config", ErrValidation)
		}
		return nextdnsWrite{
			path: "/parentalcontrol",
			payload: map[string]any{
				"safeSearch":        cfg.Enforce,
				"youtubeRestricted": cfg.Enforce && cfg.LockSetting,
			},
		}, nil

	case datatypes.CategoryWebCategoryBlock:
		cfg := rule.Config.WebCategoryBlock
		if cfg == nil {
			return nextdnsWrite{}, fmt.Errorf("%w: missing web_category_block config", ErrValidation)
		}
		cats := make([]map[string]any, 0, len(cfg.Categories))
		for _, c := range cfg.Categories {
			cats = append(cats, map[string]any{"id": c, "active": true})
		}
		return nextdnsWrite{
			path:    "/parentalcontrol/categories",
			payload: map[string]any{"categories": cats},
		}, nil

	case datatypes.CategoryTimeDailyLimit:
		cfg := rule.Config.TimeDailyLimit
		if cfg == nil {
			return nextdnsWrite{}, fmt.Errorf("%w: missing time_daily_limit config", ErrValidation)
		}
		return nextdnsWrite{
			path: "/parentalcontrol/recreation",
			payload: map[string]any{
				"minutesPerDay": cfg.MinutesPerDay,
			},
		}, nil

	case datatypes.CategoryContentRating:
		cfg := rule.Config.ContentRating
		if cfg == nil {
			return nextdnsWrite{}, fmt.Errorf("%w: missing content_rating config", ErrValidation)
		}
		// DNS cannot express a rating ceiling directly; block the adult
		// tier when the ceiling (or the explicit flag) calls for it.
		return nextdnsWrite{
			path: "/parentalcontrol",
			payload: map[string]any{
				"blockAdult": cfg.BlockAdult || restrictiveRating(cfg),
			},
		}, nil
	}
	return nextdnsWrite{}, fmt.Errorf("%w: %s", ErrUnsupportedCategory, rule.Category)
}

// restrictiveRating reports whether the ceiling sits below the adult tier of
// its rating system.
func restrictiveRating(cfg *datatypes.ContentRatingConfig) bool {
	switch cfg.System {
	case "mpaa":
		return cfg.MaxRating != "NC-17"
	case "tv":
		return cfg.MaxRating != "TV-MA"
	case "esrb":
		return cfg.MaxRating != "AO"
	case "pegi":
		return cfg.MaxRating != "18"
	}
	return true
}

// Push implements ManagedAdapter.
func (a *NextDNS) Push(ctx context.Context, rule datatypes.Rule, cred extensions.Credential) error {
	write, err := a.translate(rule)
	if err != nil {
		return err
	}

	return cred.Use(func(fields map[string]string) error {
		apiKey, profileID := fields["api_key"], fields["profile_id"]
		if apiKey == "" || profileID == "" {
			return fmt.Errorf("%w: credential missing api_key or profile_id", ErrAuthFailure)
		}
		url := fmt.Sprintf("%s/profiles/%s%s", a.baseURL, profileID, write.path)
		return a.patchWithBackoff(ctx, url, apiKey, write.payload, rule.Category)
	})
}

// patchWithBackoff performs the PATCH, retrying 429 and transient 5xx
// responses with exponential backoff before surfacing RateLimited.
func (a *NextDNS) patchWithBackoff(ctx context.Context, url, apiKey string, payload map[string]any, category datatypes.RuleCategory) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	attempt := 0
	op := func() error {
		attempt++
		if err := a.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(mapCtxErr(err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("X-Api-Key", apiKey)
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
			return backoff.Permanent(fmt.Errorf("%w: nextdns returned %d", ErrAuthFailure, resp.StatusCode))
		case resp.StatusCode == http.StatusTooManyRequests:
			a.logger.Warn("nextdns throttled push, backing off",
				"category", category, "attempt", attempt)
			return fmt.Errorf("%w: http 429", ErrRateLimited)
		case resp.StatusCode >= 500:
			return fmt.Errorf("nextdns server error: http %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("%w: nextdns returned %d", ErrValidation, resp.StatusCode))
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newAdapterBackoff(), adapterMaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return mapCtxErr(err)
	}
	return nil
}

// adapterMaxRetries caps retryable (429/5xx) attempts per adapter call.
const adapterMaxRetries = 3

// newAdapterBackoff returns the shared retry curve for adapter HTTP calls.
func newAdapterBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// mapCtxErr converts context deadline errors into the adapter timeout fault
// so they read as "timed out" rather than a bare context error.
func mapCtxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
