package harness

// TraceEvent records the outcome of one scenario step.
type TraceEvent struct {
	// Step is the 1-based position of the step in the scenario.
	Step   int    `json:"step"`
	Client string `json:"client"`

	// Op is one of set, delete, save, merge, restore, import, expect.
	Op string `json:"op"`

	// Detail holds op-specific results: versions, part ids, merged and
	// skipped clients. Values are JSON-safe scalars and string lists.
	Detail map[string]any `json:"detail,omitempty"`

	Error string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every step succeeded or failed as expected and
	// every assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
