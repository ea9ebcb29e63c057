// Package timeouts defines shared timeout constants used across moodring
// processes so shutdown and request budgets stay consistent.
package timeouts

import "time"

// Request caps a single admin API request.
const Request = 10 * time.Second

// Shutdown limits how long servers wait for in-flight work during graceful
// shutdown.
const Shutdown = 5 * time.Second

// GatewayOpen caps the total time spent retrying the community gateway
// connection at startup.
const GatewayOpen = 2 * time.Minute
