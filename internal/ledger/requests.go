package ledger

import (
	"strings"

	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
)

// OperationRequest is the body of mint, burn and transfer. Mint reads To, burn
// reads From, and a transfer without From moves the caller's own balance.
type OperationRequest struct {
	From   string        `json:"from,omitempty"`
	To     string        `json:"to,omitempty"`
	Amount domain.Amount `json:"amount"`
}

func (r *OperationRequest) Normalize() {
	r.From = strings.TrimSpace(r.From)
	r.To = strings.TrimSpace(r.To)
}

func (r *OperationRequest) Validate() error {
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	if r.From != "" {
		if _, err := domain.ParseAddress(r.From); err != nil {
			return err
		}
	}
	if r.To != "" {
		if _, err := domain.ParseAddress(r.To); err != nil {
			return err
		}
	}
	return nil
}

type BalanceResponse struct {
	Asset   string        `json:"asset"`
	Holder  string        `json:"holder,omitempty"`
	Balance domain.Amount `json:"balance"`
}
