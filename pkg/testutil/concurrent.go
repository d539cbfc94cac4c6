package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/sentinel"
)

// ConcurrentResult tracks outcomes of concurrent test operations.
type ConcurrentResult struct {
	Successes int32
	Denied    int32
	Conflicts int32
	Errors    int32
}

// Total returns the total number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Denied + r.Conflicts + r.Errors
}

// RunConcurrent executes fn in parallel goroutines and buckets the outcomes.
// Compliance denials and insufficient balances count as Denied.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var wg sync.WaitGroup
	var successes, denied, conflicts, errs atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			err := fn(idx)
			switch {
			case err == nil:
				successes.Add(1)
			case dErrors.HasCode(err, dErrors.CodeForbidden),
				dErrors.HasCode(err, dErrors.CodePolicyViolation),
				dErrors.HasCode(err, dErrors.CodeInvalidInput):
				denied.Add(1)
			case errors.Is(err, sentinel.ErrConflict), dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts.Add(1)
			default:
				errs.Add(1)
			}
		}(i)
	}

	wg.Wait()

	return &ConcurrentResult{
		Successes: successes.Load(),
		Denied:    denied.Load(),
		Conflicts: conflicts.Load(),
		Errors:    errs.Load(),
	}
}
