package harness

// TraceEvent records one operation on one partition. Events carry only
// deterministic quantities, never timings or addresses, so the merged
// trace compares byte for byte across runs.
type TraceEvent struct {
	// Step indexes into the scenario's step list.
	Step int `json:"step"`

	// Op is the operation name.
	Op string `json:"op"`

	// Rank is the partition that produced the event.
	Rank int `json:"rank"`

	// Note summarizes the outcome, such as counts moved or broken.
	Note string `json:"note"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per step per rank, ordered by step then
	// rank.
	Trace []TraceEvent `json:"trace"`

	// Errors lists the assertions that failed. Empty when Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result to accumulate into.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records an assertion failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
