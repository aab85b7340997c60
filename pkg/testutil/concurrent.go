package testutil

import (
	"sync"
	"sync/atomic"

	dErrors "growthsheet/pkg/domain-errors"
)

// ConcurrentResult tracks outcomes of concurrent test operations.
type ConcurrentResult struct {
	Successes   int32
	Validation  int32
	EmptyResult int32
	Transport   int32
	Other       int32
}

// Total returns the total number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Validation + r.EmptyResult + r.Transport + r.Other
}

// RunConcurrent executes fn in parallel goroutines and counts outcomes by
// domain error code. Timeouts count as transport failures.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var wg sync.WaitGroup
	var successes, validation, empty, transport, other atomic.Int32

	for i := range goroutines {
		wg.Go(func() {
			err := fn(i)
			switch {
			case err == nil:
				successes.Add(1)
			case dErrors.HasCode(err, dErrors.CodeValidation):
				validation.Add(1)
			case dErrors.HasCode(err, dErrors.CodeEmptyResult):
				empty.Add(1)
			case dErrors.HasCode(err, dErrors.CodeTransport), dErrors.HasCode(err, dErrors.CodeTimeout):
				transport.Add(1)
			default:
				other.Add(1)
			}
		})
	}

	wg.Wait()

	return &ConcurrentResult{
		Successes:   successes.Load(),
		Validation:  validation.Load(),
		EmptyResult: empty.Load(),
		Transport:   transport.Load(),
		Other:       other.Load(),
	}
}
