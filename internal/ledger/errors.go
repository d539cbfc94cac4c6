package ledger

import (
	"gatekeeper/internal/compliance"
	dErrors "gatekeeper/pkg/domain-errors"
)

// DeniedError reports a balance change refused by a compliance module.
type DeniedError struct {
	Verdict compliance.Verdict
}

func (e *DeniedError) Error() string {
	return "operation denied by " + e.Verdict.Module.String() + ": " + e.Verdict.Reason
}

// Unwrap exposes the domain error so HTTP and callers see CodeForbidden.
func (e *DeniedError) Unwrap() error {
	return dErrors.New(dErrors.CodeForbidden, e.Verdict.Reason)
}
