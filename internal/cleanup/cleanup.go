// Package cleanup runs best-effort resource releases.
//
// Every step runs regardless of whether an earlier one failed; failures are
// collected so the caller can log them, never to abort the sequence.
package cleanup

import (
	"errors"
	"fmt"
	"sync"
)

// Step is one named release action.
type Step struct {
	Name string
	Fn   func() error
}

// Run executes steps in order. A failing or panicking step does not prevent
// the following ones. The returned error joins every failure and is nil when
// all steps succeeded.
func Run(steps ...Step) error {
	var errs []error
	for _, s := range steps {
		if s.Fn == nil {
			continue
		}
		if err := runStep(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func runStep(s Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", s.Name, r)
		}
	}()
	if e := s.Fn(); e != nil {
		return fmt.Errorf("%s: %w", s.Name, e)
	}
	return nil
}

// Stack collects cleanup functions and runs them once, in reverse order of
// registration. Safe for concurrent use.
type Stack struct {
	mu  sync.Mutex
	fns []func()
}

// Push registers fn to run on Unwind.
func (s *Stack) Push(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.fns = append(s.fns, fn)
	s.mu.Unlock()
}

// Unwind runs the registered functions outside the lock, last in first out,
// and forgets them. Redundant calls are no-ops.
func (s *Stack) Unwind() {
	s.mu.Lock()
	fns := s.fns
	s.fns = nil
	s.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
