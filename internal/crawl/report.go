package crawl

import "time"

// Failure describes one observation that could not be upserted.
type Failure struct {
	LogicalID string `json:"logical_id"`
	Error     string `json:"error"`
	Transient bool   `json:"transient,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// TypeReport summarizes one entity type within a cycle.
type TypeReport struct {
	Entity         string        `json:"entity"`
	Observed       int           `json:"observed"`
	Inserted       int           `json:"inserted"`
	Unchanged      int           `json:"unchanged"`
	Failed         int           `json:"failed"`
	Tombstoned     int           `json:"tombstoned"`
	LiveBefore     int           `json:"live_before"`
	SweepSkipped   string        `json:"sweep_skipped,omitempty"`
	ConnectorError string        `json:"connector_error,omitempty"`
	SweepError     string        `json:"sweep_error,omitempty"`
	Failures       []Failure     `json:"failures,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// OK reports whether the type was fully crawled and swept.
func (r TypeReport) OK() bool {
	return r.ConnectorError == "" && r.SweepError == "" && r.Failed == 0 && r.SweepSkipped == ""
}

// Report summarizes a crawl cycle. Types are ordered by level, then name.
type Report struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Types      []TypeReport `json:"types"`
}

// Failed reports whether any entity type had a problem.
func (r Report) Failed() bool {
	for _, t := range r.Types {
		if !t.OK() {
			return true
		}
	}
	return false
}

// Totals sums inserted, tombstoned and failed counts over all types.
func (r Report) Totals() (inserted, tombstoned, failed int) {
	for _, t := range r.Types {
		inserted += t.Inserted
		tombstoned += t.Tombstoned
		failed += t.Failed
	}
	return inserted, tombstoned, failed
}
