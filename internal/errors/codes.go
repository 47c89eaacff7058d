// Package errors provides structured error handling for codecontext.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Filesystem errors
//   - 3XX: Embedding provider errors
//   - 4XX: Validation and index-state errors
//   - 5XX: Storage and internal errors
//
// Every code maps to exactly one Kind, the machine-readable class callers
// switch on.
package errors

// Kind classifies an error for propagation decisions.
type Kind string

const (
	// KindConfiguration covers bad paths and missing credentials. Fatal, never retried.
	KindConfiguration Kind = "configuration"
	// KindFileSystem covers unreadable files. The file is skipped, the run continues.
	KindFileSystem Kind = "file_system"
	// KindProviderTransient covers timeouts and rate limits. Retried with backoff.
	KindProviderTransient Kind = "provider_transient"
	// KindProviderPermanent covers auth failures and malformed requests. Aborts the run.
	KindProviderPermanent Kind = "provider_permanent"
	// KindPartialIndexing marks embedding batches that exhausted their retries.
	KindPartialIndexing Kind = "partial_indexing"
	// KindValidation covers bad caller input.
	KindValidation Kind = "validation"
	// KindNotIndexed is returned when a project has no collection.
	KindNotIndexed Kind = "not_indexed"
	// KindIndexBusy is returned when another run holds the project lock.
	KindIndexBusy Kind = "index_busy"
	// KindVectorStore covers connection and write failures of the vector store.
	KindVectorStore Kind = "vector_store"
	// KindInternal covers everything unexpected.
	KindInternal Kind = "internal"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Configuration errors (100-199)
	ErrCodeConfigInvalid    = "ERR_101_CONFIG_INVALID"
	ErrCodePathNotFound     = "ERR_102_PATH_NOT_FOUND"
	ErrCodePathNotDirectory = "ERR_103_PATH_NOT_DIRECTORY"
	ErrCodePathUnreadable   = "ERR_104_PATH_UNREADABLE"
	ErrCodeMissingAPIKey    = "ERR_105_MISSING_API_KEY"

	// Filesystem errors (200-299)
	ErrCodeFileUnreadable  = "ERR_201_FILE_UNREADABLE"
	ErrCodeSnapshotCorrupt = "ERR_202_SNAPSHOT_CORRUPT"
	ErrCodeSnapshotWrite   = "ERR_203_SNAPSHOT_WRITE"

	// Provider errors (300-399)
	ErrCodeProviderTimeout     = "ERR_301_PROVIDER_TIMEOUT"
	ErrCodeProviderRateLimited = "ERR_302_PROVIDER_RATE_LIMITED"
	ErrCodeProviderUnavailable = "ERR_303_PROVIDER_UNAVAILABLE"
	ErrCodeProviderAuth        = "ERR_304_PROVIDER_AUTH"
	ErrCodeProviderBadRequest  = "ERR_305_PROVIDER_BAD_REQUEST"
	ErrCodeProviderBadResponse = "ERR_306_PROVIDER_BAD_RESPONSE"
	ErrCodeEmbeddingPartial    = "ERR_307_EMBEDDING_PARTIAL"
	ErrCodeProviderUnreachable = "ERR_308_PROVIDER_UNREACHABLE"
	ErrCodeProviderCircuitOpen = "ERR_309_PROVIDER_CIRCUIT_OPEN"

	// Validation and index-state errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty        = "ERR_402_QUERY_EMPTY"
	ErrCodeInvalidTopK       = "ERR_403_INVALID_TOP_K"
	ErrCodeInvalidThreshold  = "ERR_404_INVALID_THRESHOLD"
	ErrCodeNotIndexed        = "ERR_405_NOT_INDEXED"
	ErrCodeIndexBusy         = "ERR_406_INDEX_BUSY"
	ErrCodeDimensionMismatch = "ERR_407_DIMENSION_MISMATCH"

	// Storage and internal errors (500-599)
	ErrCodeVectorStoreWrite = "ERR_501_VECTOR_STORE_WRITE"
	ErrCodeVectorStoreOpen  = "ERR_502_VECTOR_STORE_OPEN"
	ErrCodeVectorStoreQuery = "ERR_503_VECTOR_STORE_QUERY"
	ErrCodeChunkingFailed   = "ERR_504_CHUNKING_FAILED"
	ErrCodeInternal         = "ERR_505_INTERNAL"
)

// kindFromCode maps a code to its Kind.
func kindFromCode(code string) Kind {
	switch code {
	case ErrCodeProviderTimeout, ErrCodeProviderRateLimited, ErrCodeProviderUnavailable:
		return KindProviderTransient
	case ErrCodeProviderAuth, ErrCodeProviderBadRequest, ErrCodeProviderBadResponse,
		ErrCodeProviderUnreachable, ErrCodeProviderCircuitOpen:
		return KindProviderPermanent
	case ErrCodeEmbeddingPartial:
		return KindPartialIndexing
	case ErrCodeNotIndexed:
		return KindNotIndexed
	case ErrCodeIndexBusy:
		return KindIndexBusy
	case ErrCodeDimensionMismatch:
		return KindVectorStore
	case ErrCodeChunkingFailed, ErrCodeInternal:
		return KindInternal
	}

	if len(code) < 7 {
		return KindInternal
	}

	// Extract the hundreds digit (e.g., "1" from "ERR_101_CONFIG_INVALID")
	switch code[4] {
	case '1':
		return KindConfiguration
	case '2':
		return KindFileSystem
	case '4':
		return KindValidation
	case '5':
		return KindVectorStore
	default:
		return KindInternal
	}
}

// severityFromKind determines severity for a kind.
func severityFromKind(kind Kind) Severity {
	switch kind {
	case KindConfiguration, KindProviderPermanent, KindVectorStore:
		return SeverityFatal
	case KindProviderTransient, KindFileSystem, KindPartialIndexing:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	return kindFromCode(code) == KindProviderTransient
}
