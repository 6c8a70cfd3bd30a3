// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model for the enforcement engine.
//
// This package contains the wire- and storage-facing types for policies,
// rules, platforms, capabilities, enforcement jobs, and rule results. The
// shapes of EnforcementJob, RuleResult, and the status enumerations are
// compatibility-sensitive: API consumers depend on them and they must remain
// stable across releases.
package datatypes

import (
	"fmt"
	"regexp"
	"sort"
	"time"
)

// =============================================================================
// Rule Categories
// =============================================================================

// RuleCategory identifies one enforceable control from the closed catalog.
//
// Category values are fixed at compile time. Unknown categories are rejected
// at rule-authoring time (see RuleConfig.Validate); the dispatch path treats
// anything outside the catalog as unsupported rather than failing the job.
type RuleCategory string

const (
	// CategoryTimeDailyLimit caps total daily screen time in minutes.
	CategoryTimeDailyLimit RuleCategory = "time_daily_limit"

	// CategoryTimeBedtime blocks access during a nightly window.
	CategoryTimeBedtime RuleCategory = "time_bedtime"

	// CategoryContentRating caps the maturity rating of playable content.
	CategoryContentRating RuleCategory = "content_rating"

	// CategoryWebSafesearch forces safe-search on supported search engines.
	CategoryWebSafesearch RuleCategory = "web_safesearch"

	// CategoryWebCategoryBlock blocks whole website categories at the DNS layer.
	CategoryWebCategoryBlock RuleCategory = "web_category_block"

	// CategoryAppInstallBlock gates new app installs behind guardian approval.
	CategoryAppInstallBlock RuleCategory = "app_install_block"
)

// AllCategories lists every category in the closed catalog, in the canonical
// enforcement order. Dispatch sorts rules by this order for determinism.
func AllCategories() []RuleCategory {
	return []RuleCategory{
		CategoryAppInstallBlock,
		CategoryContentRating,
		CategoryTimeBedtime,
		CategoryTimeDailyLimit,
		CategoryWebCategoryBlock,
		CategoryWebSafesearch,
	}
}

// IsValid reports whether c is part of the closed catalog.
func (c RuleCategory) IsValid() bool {
	switch c {
	case CategoryTimeDailyLimit, CategoryTimeBedtime, CategoryContentRating,
		CategoryWebSafesearch, CategoryWebCategoryBlock, CategoryAppInstallBlock:
		return true
	}
	return false
}

// =============================================================================
// Policy
// =============================================================================

// PolicyStatus is the lifecycle state of a policy.
type PolicyStatus string

const (
	PolicyDraft  PolicyStatus = "draft"
	PolicyActive PolicyStatus = "active"
	PolicyPaused PolicyStatus = "paused"
)

// Policy is the named rule set for one child.
//
// Policies are authored by guardians through the management service; the
// enforcement engine only ever reads them. At most one policy per child is
// active at a time (the policy resolver relies on this).
type Policy struct {
	ID        string       `json:"id"`
	ChildID   string       `json:"child_id"`
	Name      string       `json:"name"`
	Priority  int          `json:"priority"`
	Status    PolicyStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Rule is one enforceable directive within a policy.
//
// UpdatedAt drives incremental sync: a source that last synced before a
// rule's UpdatedAt receives that rule again on an incremental push.
type Rule struct {
	ID        string       `json:"id"`
	PolicyID  string       `json:"policy_id"`
	Category  RuleCategory `json:"category"`
	Enabled   bool         `json:"enabled"`
	Config    RuleConfig   `json:"config"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// SortRulesByCategory orders rules canonically so that repeated dispatches of
// the same policy produce the same rule ordering.
func SortRulesByCategory(rules []Rule) {
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Category < rules[j].Category
	})
}

// =============================================================================
// Rule Config (tagged union)
// =============================================================================

// RuleConfig carries the category-specific configuration for a rule.
//
// Exactly one variant field must be set, and it must match the rule's
// category. The union is validated at authoring time via Validate; the
// dispatch path assumes configs are already well formed.
type RuleConfig struct {
	TimeDailyLimit   *TimeDailyLimitConfig   `json:"time_daily_limit,omitempty"`
	TimeBedtime      *TimeBedtimeConfig      `json:"time_bedtime,omitempty"`
	ContentRating    *ContentRatingConfig    `json:"content_rating,omitempty"`
	WebSafesearch    *WebSafesearchConfig    `json:"web_safesearch,omitempty"`
	WebCategoryBlock *WebCategoryBlockConfig `json:"web_category_block,omitempty"`
	AppInstallBlock  *AppInstallBlockConfig  `json:"app_install_block,omitempty"`
}

// TimeDailyLimitConfig caps total daily usage.
type TimeDailyLimitConfig struct {
	// MinutesPerDay is the daily allowance. Weekday/weekend overrides, when
	// present, win over the base allowance on their respective days.
	MinutesPerDay  int  `json:"minutes_per_day" validate:"required,min=15,max=1440"`
	WeekendMinutes *int `json:"weekend_minutes,omitempty" validate:"omitempty,min=15,max=1440"`
}

// TimeBedtimeConfig blocks usage inside a nightly window. Times are local
// 24-hour "HH:MM" strings; a window may wrap midnight (e.g. 21:00 to 07:00).
type TimeBedtimeConfig struct {
	Start string `json:"start" validate:"required,clocktime"`
	End   string `json:"end" validate:"required,clocktime"`
}

// ContentRatingConfig caps content maturity. System names the rating scheme
// the ceiling is expressed in (mpaa, tv, esrb, pegi).
type ContentRatingConfig struct {
	System     string `json:"system" validate:"required,oneof=mpaa tv esrb pegi"`
	MaxRating  string `json:"max_rating" validate:"required"`
	BlockAdult bool   `json:"block_adult"`
}

// WebSafesearchConfig forces safe-search across search engines.
type WebSafesearchConfig struct {
	Enforce bool `json:"enforce"`
	// LockSetting asks platforms that support it to prevent the child from
	// toggling safe-search back off.
	LockSetting bool `json:"lock_setting"`
}

// WebCategoryBlockConfig blocks website categories at the DNS layer.
type WebCategoryBlockConfig struct {
	Categories []string `json:"categories" validate:"required,min=1,dive,slug"`
}

// AppInstallBlockConfig gates app installs.
type AppInstallBlockConfig struct {
	RequireApproval bool     `json:"require_approval"`
	BlockedApps     []string `json:"blocked_apps,omitempty" validate:"omitempty,dive,required"`
}

var clockTimePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Validate checks that the config union carries exactly the variant matching
// category and that the variant passes its field validation.
//
// This runs at authoring time. Enforcement never re-validates: a malformed
// config reaching dispatch is recorded per-rule, never thrown.
func (rc RuleConfig) Validate(category RuleCategory) error {
	set := 0
	var matched bool
	var variant any
	check := func(present bool, cat RuleCategory, v any) {
		if !present {
			return
		}
		set++
		if cat == category {
			matched = true
			variant = v
		}
	}
	check(rc.TimeDailyLimit != nil, CategoryTimeDailyLimit, rc.TimeDailyLimit)
	check(rc.TimeBedtime != nil, CategoryTimeBedtime, rc.TimeBedtime)
	check(rc.ContentRating != nil, CategoryContentRating, rc.ContentRating)
	check(rc.WebSafesearch != nil, CategoryWebSafesearch, rc.WebSafesearch)
	check(rc.WebCategoryBlock != nil, CategoryWebCategoryBlock, rc.WebCategoryBlock)
	check(rc.AppInstallBlock != nil, CategoryAppInstallBlock, rc.AppInstallBlock)

	if !category.IsValid() {
		return fmt.Errorf("unknown rule category %q", category)
	}
	if set == 0 {
		return fmt.Errorf("rule config for %q is empty", category)
	}
	if set > 1 {
		return fmt.Errorf("rule config for %q sets %d variants, want exactly 1", category, set)
	}
	if !matched {
		return fmt.Errorf("rule config variant does not match category %q", category)
	}
	return ruleValidate.Struct(variant)
}
