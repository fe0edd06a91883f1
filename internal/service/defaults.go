package service

import "time"

// Tunables shared by the services. Each has a flag in cmd/server; these are
// the single source of truth for the defaults.
const (
	// RefreshSafetyBuffer is how close to expiry a token may get before the
	// lifecycle manager refreshes it.
	RefreshSafetyBuffer = 5 * time.Minute

	// DefaultProviderTimeout bounds outbound refresh and revoke calls.
	DefaultProviderTimeout = 10 * time.Second

	// PostStalenessWindow is the oldest publish timestamp the settlement
	// gate accepts; older publishes are treated as out-of-band retries.
	PostStalenessWindow = 24 * time.Hour

	// BulkItemDelay spaces out items within a bulk settlement.
	BulkItemDelay = 150 * time.Millisecond

	// RetentionWindow extends past a cycle's natural end before its row
	// becomes eligible for purge.
	RetentionWindow = 90 * 24 * time.Hour
)
