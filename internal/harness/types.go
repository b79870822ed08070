package harness

import "github.com/roach88/procflow/internal/ir"

// TraceEvent is one history event of a scenario run. Instance is the
// scenario alias, not the generated id.
type TraceEvent struct {
	Seq      int64  `json:"seq"`
	Instance string `json:"instance"`
	Type     string `json:"type"`
	Node     string `json:"node,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Canonical converts the event for canonical JSON encoding.
func (e TraceEvent) Canonical() ir.Object {
	obj := ir.Object{
		"seq":      ir.Int(e.Seq),
		"instance": ir.String(e.Instance),
		"type":     ir.String(e.Type),
	}
	if e.Node != "" {
		obj["node"] = ir.String(e.Node)
	}
	if e.Detail != "" {
		obj["detail"] = ir.String(e.Detail)
	}
	return obj
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds the history events of every started instance, in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists each failed expectation or assertion.
	Errors []string `json:"errors,omitempty"`

	// Instances maps scenario aliases to instance ids.
	Instances map[string]string `json:"instances,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		Instances: map[string]string{},
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
