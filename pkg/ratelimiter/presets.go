package ratelimiter

import "time"

// Preset configurations for common endpoint classes. Values are tuning,
// not algorithm: every preset uses the same fixed-window counter.
var (
	// AuthPreset throttles authentication endpoints hard to slow down
	// credential brute-forcing: few attempts over a long window.
	AuthPreset = Config{Window: 15 * time.Minute, Max: 10}

	// OrderPreset bounds order creation while leaving room for
	// legitimate checkout retries.
	OrderPreset = Config{Window: time.Minute, Max: 20}

	// APIPreset is the general-purpose limit for read-heavy API traffic.
	APIPreset = Config{Window: time.Minute, Max: 100}

	// UploadPreset covers image and attachment uploads, which are
	// expensive to process but bursty in normal use.
	UploadPreset = Config{Window: 5 * time.Minute, Max: 30}
)
