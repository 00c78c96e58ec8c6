// Package txn composes multi-step mutations that run inside one database transaction.
//
// A Multi is an ordered list of named steps. Each step receives the results of the steps
// before it. Exec stops at the first failing step and the surrounding transaction is rolled
// back, so no step's writes survive a later failure.
package txn

import (
	"context"
	"fmt"

	"analyticsadmin/internal/domain"
)

// Results maps step names to the values they returned.
type Results map[string]any

// StepFunc runs one step. It may read earlier results and returns the value stored under the
// step's name.
type StepFunc func(ctx context.Context, results Results) (any, error)

type step struct {
	name string
	fn   StepFunc
}

// Multi is an ordered list of named transactional steps.
type Multi struct {
	steps []step
	names map[string]struct{}
	err   error
}

// New returns an empty Multi.
func New() *Multi {
	return &Multi{names: make(map[string]struct{})}
}

// Run appends a step. Reusing a name makes Exec fail before any step runs.
func (m *Multi) Run(name string, fn StepFunc) *Multi {
	if _, dup := m.names[name]; dup {
		if m.err == nil {
			m.err = fmt.Errorf("txn: duplicate step %q", name)
		}
		return m
	}
	m.names[name] = struct{}{}
	m.steps = append(m.steps, step{name: name, fn: fn})
	return m
}

// Append adds every step of other after the steps of m.
func (m *Multi) Append(other *Multi) *Multi {
	if other.err != nil && m.err == nil {
		m.err = other.err
	}
	for _, s := range other.steps {
		m.Run(s.name, s.fn)
	}
	return m
}

// Names returns the step names in execution order.
func (m *Multi) Names() []string {
	out := make([]string, len(m.steps))
	for i, s := range m.steps {
		out[i] = s.name
	}
	return out
}

// Exec runs all steps in order inside one transaction of tm. On success it returns the
// accumulated results. On failure it returns a *StepError naming the failed step and the
// transaction is rolled back.
func (m *Multi) Exec(ctx context.Context, tm domain.TxManager) (Results, error) {
	if m.err != nil {
		return nil, m.err
	}
	results := make(Results, len(m.steps))
	err := tm.RunInTx(ctx, func(ctx context.Context) error {
		for _, s := range m.steps {
			v, err := s.fn(ctx, results)
			if err != nil {
				return &StepError{Step: s.name, Err: err}
			}
			results[s.name] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// StepError reports the step that aborted a Multi. It unwraps to the step's own error.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Get returns the result stored under name converted to T, or the zero value when the step
// did not run or returned a different type.
func Get[T any](r Results, name string) T {
	v, _ := r[name].(T)
	return v
}
