package relay

import "errors"

var (
	// ErrStorageUnavailable is returned when the watermark backend cannot be read or written
	ErrStorageUnavailable = errors.New("relay: watermark storage unavailable")

	// ErrExtractionFailed is returned when the source database cannot be queried
	ErrExtractionFailed = errors.New("relay: order extraction failed")

	// ErrMalformedDate is returned when an order date cannot be parsed as a timestamp
	ErrMalformedDate = errors.New("relay: malformed order date")

	// ErrInvalidAmount is returned when a quantity or unit price is not numeric
	ErrInvalidAmount = errors.New("relay: invalid amount")

	// ErrValidationFailed is returned when a payload misses required structure
	ErrValidationFailed = errors.New("relay: payload validation failed")

	// ErrSubmissionRejected marks a non-200 answer from the ERP.
	// The loader never returns it; the cycle service records it on the cycle result.
	ErrSubmissionRejected = errors.New("relay: submission rejected by ERP")
)
