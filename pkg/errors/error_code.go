package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidOrderRequest  ErrorCode = 102
	ErrCodeInvalidTimeframe     ErrorCode = 103
	ErrCodeInvalidDateRange     ErrorCode = 104
	ErrCodeMissingParameter     ErrorCode = 105

	// Cache errors (200-299)
	ErrCodeDayNotCached        ErrorCode = 200
	ErrCodeMetadataMissing     ErrorCode = 201
	ErrCodeCacheExpired        ErrorCode = 202
	ErrCodeStartGap            ErrorCode = 203
	ErrCodeCoverageInvalid     ErrorCode = 204
	ErrCodeManifestReadFailed  ErrorCode = 205
	ErrCodeManifestWriteFailed ErrorCode = 206
	ErrCodeSchemaMismatch      ErrorCode = 207

	// Venue errors (500-599)
	ErrCodeOrderRejected      ErrorCode = 500
	ErrCodePositionNotFound   ErrorCode = 501
	ErrCodeInstrumentNotFound ErrorCode = 502
	ErrCodeNoPriceAvailable   ErrorCode = 503
	ErrCodeReplayFinished     ErrorCode = 504
	ErrCodeTradeLogFailed     ErrorCode = 505

	// Concurrency errors (600-699)
	ErrCodeLockTimeout    ErrorCode = 600
	ErrCodeBarrierBroken  ErrorCode = 601
	ErrCodeReplayAborted  ErrorCode = 602
	ErrCodeWorkerPanicked ErrorCode = 603

	// Corruption errors (700-799)
	ErrCodeDayFileCorrupt   ErrorCode = 700
	ErrCodeManifestCorrupt  ErrorCode = 701
	ErrCodeMetadataCorrupt  ErrorCode = 702
	ErrCodeTimelineUnsorted ErrorCode = 703

	// Provider errors (800-899)
	ErrCodeProviderFetchFailed ErrorCode = 800
	ErrCodeProviderParseFailed ErrorCode = 801
	ErrCodeInvalidProvider     ErrorCode = 802
)
