// Package validation bounds request sizes at the HTTP trust boundary.
package validation

import (
	dErrors "gatekeeper/pkg/domain-errors"
)

// MaxBodySize is the maximum accepted request body (64 KB).
const MaxBodySize = 64 * 1024

// Slice element count limits.
const (
	MaxTopics          = 64
	MaxJurisdictions   = 250
	MaxClaimAttributes = 32
	MaxVestingPeriods  = 120
	MaxHolderBatch     = 500
)

// String length limits.
const (
	MaxAttributeLength  = 256
	MaxClaimPayload     = 16 * 1024
	MaxReasonLength     = 256
	MaxExpressionLength = 4096
	MaxTopicNameLength  = 100
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.Newf(dErrors.CodeValidation, "too many %s: max %d allowed", fieldName, max)
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.Newf(dErrors.CodeValidation, "%s exceeds max length of %d", fieldName, max)
	}
	return nil
}

// CheckAttributes bounds a claim attribute map by entry count and value length.
func CheckAttributes(attrs map[string]string) error {
	if err := CheckSliceCount("attributes", len(attrs), MaxClaimAttributes); err != nil {
		return err
	}
	for k, v := range attrs {
		if err := CheckStringLength("attribute "+k, k+v, MaxAttributeLength); err != nil {
			return err
		}
	}
	return nil
}
