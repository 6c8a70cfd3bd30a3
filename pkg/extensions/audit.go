// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"time"
)

// AuditEvent is one compliance-relevant action.
type AuditEvent struct {
	// EventType categorizes the event for filtering and alerting.
	// Format: "category.action" (e.g., "enforce.trigger", "enforce.retry").
	EventType string

	// Timestamp is when the event occurred (always UTC).
	// If zero, implementations should set it to time.Now().UTC().
	Timestamp time.Time

	// UserID identifies who performed the action.
	// Use "system" for automated triggers.
	UserID string

	// Action describes what operation was attempted:
	// "enforce", "retry", "sync".
	Action string

	// ResourceType is the category of resource involved ("job", "platform").
	ResourceType string

	// ResourceID is the specific resource instance (job ID, platform slug).
	ResourceID string

	// Outcome indicates the result: "success", "failure", "blocked".
	Outcome string

	// Metadata holds additional event-specific data. Never put credentials
	// or child-identifying free text here.
	Metadata map[string]any
}

// AuditLogger records audit events.
//
// Implementations must be safe for concurrent use and should buffer
// internally; Log is called on the request path.
type AuditLogger interface {
	// Log records a single event.
	Log(ctx context.Context, event AuditEvent) error

	// Flush forces buffered events out. Called on shutdown.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards all events.
type NopAuditLogger struct{}

// Log implements AuditLogger.
func (l *NopAuditLogger) Log(_ context.Context, _ AuditEvent) error { return nil }

// Flush implements AuditLogger.
func (l *NopAuditLogger) Flush(_ context.Context) error { return nil }
