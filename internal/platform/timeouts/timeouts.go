// Package timeouts defines shared timeout constants used across adapters.
// Centralizing these values prevents drift between provider boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// HTTPRequest caps one round trip to an external provider. Bulk endpoints
// (user enumeration, team invites) share the same ceiling; the adapters page
// their requests instead of holding one long call.
const HTTPRequest = 30 * time.Second

// OTelShutdown limits how long the trace exporter may flush on shutdown.
const OTelShutdown = 5 * time.Second
