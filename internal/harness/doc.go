// Package harness runs change-tracking scenarios against a fresh in-memory
// store and checks the resulting log.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	entities:
//	  - name: widget
//	    columns: [{name: name, type: text}]
//	steps:
//	  - upsert:
//	      entity: widget
//	      observations:
//	        - logical_id: w1
//	          definition: {color: red}
//	  - sweep:
//	      entity: widget
//	      observed: []
//	assertions:
//	  - type: log_count
//	    entity: widget
//	    count: 2
//	  - type: current_count
//	    entity: widget
//	    count: 0
//
// # Assertion Types
//
//   - log_count: number of log rows of an entity type, tombstones included
//   - current_count: number of rows in the current view
//   - current_contains: a logical id is live, optionally with a definition
//     and columns (subset match)
//   - current_absent: a logical id is not live
//   - error: an upsert or sweep of a logical id failed with an error kind
//
// Every failed operation must be matched by an error assertion; any other
// error fails the scenario.
//
// # Determinism
//
// Version ids come from testutil.SequentialIDs and observed_at from
// testutil.StepClock, so a scenario produces the same trace on every run.
// Traces are compared against golden files with goldie; observed_at is not
// part of the trace.
package harness
