package harness

// Trace event types.
const (
	EventUpsert = "upsert"
	EventSweep  = "sweep"
)

// TraceEvent records one upsert or sweep. Exactly one of the result
// fields or Error is set.
type TraceEvent struct {
	Seq       int    `json:"seq"`
	Type      string `json:"type"`
	Entity    string `json:"entity"`
	LogicalID string `json:"logical_id,omitempty"`

	// Upsert results.
	Node        string `json:"node,omitempty"`
	VersionID   string `json:"version_id,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
	Inserted    bool   `json:"inserted,omitempty"`

	// Sweep results.
	Observed   int         `json:"observed,omitempty"`
	Tombstones []Tombstone `json:"tombstones,omitempty"`

	// Error is the error kind; Message the full error text.
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Tombstone identifies a row appended by a sweep.
type Tombstone struct {
	Node      string `json:"node"`
	VersionID string `json:"version_id"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held and no unexpected error
	// occurred.
	Pass bool `json:"pass"`

	// Trace contains every operation in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
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

func (r *Result) addEvent(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}
