package validation

import (
	"fmt"

	dErrors "growthsheet/pkg/domain-errors"
)

const (
	// MaxBodySize is the maximum allowed request body size (256 KB), enough
	// for a full batch of rows.
	MaxBodySize = 256 * 1024

	// MaxBatchRows is the maximum number of rows in one batch request.
	MaxBatchRows = 100

	// MaxAPIKeyLength bounds the subscription key forwarded upstream.
	MaxAPIKeyLength = 256

	// MaxTextFieldLength bounds free-text arguments such as sex or mode.
	MaxTextFieldLength = 32
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.Invalid(fieldName, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.Invalid(fieldName, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}
