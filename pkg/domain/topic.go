package domain

import (
	"strconv"
	"strings"

	dErrors "gatekeeper/pkg/domain-errors"
)

// Well-known claim topics.
const (
	TopicKYC            TopicID = 1
	TopicAML            TopicID = 2
	TopicAccredited     TopicID = 3
	TopicResidency      TopicID = 4
	TopicSanctionsClear TopicID = 5
	TopicPEP            TopicID = 6
	TopicKYB            TopicID = 7
)

var topicNames = map[TopicID]string{
	TopicKYC:            "KYC",
	TopicAML:            "AML",
	TopicAccredited:     "Accredited Investor",
	TopicResidency:      "Residency",
	TopicSanctionsClear: "Sanctions Clear",
	TopicPEP:            "PEP",
	TopicKYB:            "KYB",
}

// ParseTopicID parses a decimal topic identifier. Zero is reserved.
func ParseTopicID(s string) (TopicID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid topic")
	}
	if v == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "topic cannot be zero")
	}
	return TopicID(v), nil
}

func (t TopicID) String() string { return strconv.FormatUint(uint64(t), 10) }

// Name returns the well-known display name, or "Topic N" for custom topics.
func (t TopicID) Name() string {
	if n, ok := topicNames[t]; ok {
		return n
	}
	return "Topic " + t.String()
}

// Jurisdiction is an upper-case region code (ISO 3166 alpha-2 or alpha-3).
type Jurisdiction string

// ParseJurisdiction normalizes and validates a jurisdiction code.
func ParseJurisdiction(s string) (Jurisdiction, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	if len(code) < 2 || len(code) > 3 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "jurisdiction code must be 2 or 3 letters")
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "jurisdiction code must be alphabetic")
		}
	}
	return Jurisdiction(code), nil
}

func (j Jurisdiction) String() string { return string(j) }
