// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// ruleValidate is the validator instance for enforcement datatypes.
// Initialized in init() with custom validators.
var ruleValidate *validator.Validate

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

func init() {
	ruleValidate = validator.New()

	_ = ruleValidate.RegisterValidation("clocktime", validateClockTime)
	_ = ruleValidate.RegisterValidation("slug", validateSlug)
}

// validateClockTime validates a local 24-hour "HH:MM" string.
func validateClockTime(fl validator.FieldLevel) bool {
	return clockTimePattern.MatchString(fl.Field().String())
}

// validateSlug validates lowercase identifier slugs (platform IDs, DNS
// category names). Slugs travel in URLs and storage keys, so the charset is
// deliberately narrow.
func validateSlug(fl validator.FieldLevel) bool {
	return slugPattern.MatchString(fl.Field().String())
}

// Validator exposes the shared instance for request types in other packages
// that validate against the same custom rules.
func Validator() *validator.Validate {
	return ruleValidate
}
