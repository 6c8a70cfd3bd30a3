// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
This file serves as the bridge between the build system and the runtime logic. It utilizes the Go
embed package to bake the platform_capabilities.yaml file directly into the compiled binary.
This ensures the capability catalog is immutable at runtime and travels with the executable.
*/

package catalog

import (
	_ "embed"
)

// PlatformCapabilities holds the raw byte content of 'platform_capabilities.yaml'.
//
// This variable is populated at compile-time using the Go 'embed' directive.
// The catalog describes, per platform, which rule categories it supports, at
// what fidelity, and in which direction. Baking it into the binary keeps the
// catalog read-only: changing what a platform can do requires a release, not
// a config edit.
//
// Usage:
//
//	// Pass these bytes directly to yaml.Unmarshal
//	err := yaml.Unmarshal(catalog.PlatformCapabilities, &targetStruct)
//
//go:embed platform_capabilities.yaml
var PlatformCapabilities []byte
