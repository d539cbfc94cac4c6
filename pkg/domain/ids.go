// Package domain provides type-safe identifiers to prevent mixing up addresses,
// assets and topics at compile time.
package domain

import (
	"strings"

	dErrors "gatekeeper/pkg/domain-errors"
)

// Distinct identifier types - compiler prevents passing an AssetID where an
// Address is expected.
type (
	// Address is an opaque account principal (holder, issuer, admin).
	Address string
	// AssetID identifies a regulated asset bound to the engine.
	AssetID string
	// ModuleID names a rule module implementation ("lockup", "max_holders", ...).
	ModuleID string
	// TopicID is the numeric claim category.
	TopicID uint32
)

// maxIdentifierLength bounds every string identifier accepted at a trust boundary.
const maxIdentifierLength = 128

// Parse functions - use at trust boundaries (handlers, API inputs, policy files).

func ParseAddress(s string) (Address, error) {
	v, err := parseIdentifier(s, "address")
	return Address(v), err
}

func ParseAssetID(s string) (AssetID, error) {
	v, err := parseIdentifier(s, "asset ID")
	return AssetID(v), err
}

func ParseModuleID(s string) (ModuleID, error) {
	v, err := parseIdentifier(strings.ToLower(s), "module ID")
	return ModuleID(v), err
}

// String methods - for logging and key encoding.

func (a Address) String() string  { return string(a) }
func (a AssetID) String() string  { return string(a) }
func (m ModuleID) String() string { return string(m) }

// IsNil checks - used for service-layer validation.

func (a Address) IsNil() bool  { return a == "" }
func (a AssetID) IsNil() bool  { return a == "" }
func (m ModuleID) IsNil() bool { return m == "" }

func parseIdentifier(s, label string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	if len(s) > maxIdentifierLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, label+" is too long")
	}
	if strings.ContainsAny(s, "/ \t\n") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	return s, nil
}
