package harness

// TraceEvent records the outcome of one scenario step.
type TraceEvent struct {
	Step     int    `json:"step"`
	Op       string `json:"op"`
	Session  string `json:"session,omitempty"`
	Position *int64 `json:"position,omitempty"`
	Value    *int64 `json:"value,omitempty"`
	Consumed *int   `json:"consumed,omitempty"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Result is what Run reports for one scenario. Pass holds only while
// Errors is empty; Stats is the control-plane listing after the last step.
type Result struct {
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
	Stats  string       `json:"stats"`
}

// NewResult returns an empty, passing result.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}, Errors: []string{}}
}

// AddError records a failed check.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends ev to the trace.
func (r *Result) AddEvent(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
