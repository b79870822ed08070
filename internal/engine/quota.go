package engine

import "github.com/roach88/procflow/internal/ir"

// QuotaEnforcer counts the nodes one advance cycle enters and enforces a
// maximum.
//
// Validated definitions cannot loop without passing a USER_TASK, which ends
// the cycle, so the quota only trips on definitions that bypassed
// validation. Each cycle gets its own enforcer.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates an enforcer allowing maxSteps steps.
// A non-positive maxSteps disables the limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check counts one step and returns a QuotaExceeded error once the count
// passes the limit.
func (q *QuotaEnforcer) Check(instanceID string) error {
	q.current++
	if q.maxSteps > 0 && q.current > q.maxSteps {
		return ir.QuotaExceeded(instanceID, q.maxSteps)
	}
	return nil
}

// Current returns the number of steps counted.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}
