// Package errors provides structured error handling for the catalog engine.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Engine errors
	CodeVersionConflict       Code = "VERSION_CONFLICT"
	CodeDuplicateVersionWrite Code = "DUPLICATE_VERSION_WRITE"
	CodeBackpressureRejected  Code = "BACKPRESSURE_REJECTED"
	CodeTransactionFailed     Code = "TRANSACTION_FAILED"
	CodeProjectionFailed      Code = "PROJECTION_FAILED"
	CodeEngineStopped         Code = "ENGINE_STOPPED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"

	// Product errors
	CodeProductNameEmpty          Code = "PRODUCT_NAME_EMPTY"
	CodeProductSlugEmpty          Code = "PRODUCT_SLUG_EMPTY"
	CodeProductSkuEmpty           Code = "PRODUCT_SKU_EMPTY"
	CodeProductInvalidPrice       Code = "PRODUCT_INVALID_PRICE"
	CodeProductSlugTaken          Code = "PRODUCT_SLUG_TAKEN"
	CodeProductSkuTaken           Code = "PRODUCT_SKU_TAKEN"
	CodeProductStatusDisallowsOp  Code = "PRODUCT_STATUS_DISALLOWS_OPERATION"
	CodeProductCollectionRequired Code = "PRODUCT_COLLECTION_REQUIRED"

	// Collection errors
	CodeCollectionNameEmpty         Code = "COLLECTION_NAME_EMPTY"
	CodeCollectionSlugEmpty         Code = "COLLECTION_SLUG_EMPTY"
	CodeCollectionSlugTaken         Code = "COLLECTION_SLUG_TAKEN"
	CodeCollectionStatusDisallowsOp Code = "COLLECTION_STATUS_DISALLOWS_OPERATION"

	// Outbox errors
	CodeOutboxInvalidStatus Code = "OUTBOX_INVALID_STATUS"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeProductNameEmpty,
		CodeProductSlugEmpty,
		CodeProductSkuEmpty,
		CodeProductInvalidPrice,
		CodeProductCollectionRequired,
		CodeCollectionNameEmpty,
		CodeCollectionSlugEmpty,
		CodeOutboxInvalidStatus:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeProductStatusDisallowsOp,
		CodeCollectionStatusDisallowsOp:
		return codes.FailedPrecondition

	// Aborted - optimistic concurrency losers retry with a fresh read
	case CodeVersionConflict,
		CodeDuplicateVersionWrite,
		CodeTransactionFailed:
		return codes.Aborted

	// ResourceExhausted - backpressure, retry after backoff
	case CodeBackpressureRejected:
		return codes.ResourceExhausted

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	// AlreadyExists - unique resource constraint
	case CodeProductSlugTaken,
		CodeProductSkuTaken,
		CodeCollectionSlugTaken:
		return codes.AlreadyExists

	// Unavailable - engine shut down
	case CodeEngineStopped:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
