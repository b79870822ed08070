// Package harness runs YAML scenarios against a real procflow runtime and
// checks the recorded history.
//
// # Scenario Format
//
//	name: one_task_process
//	description: "Complete the only user task and finish the instance"
//	definitions:
//	  - ../processes/one_task_process.yaml
//	steps:
//	  - start: { key: oneTaskProcess, as: inst }
//	    expect: { activity: theTask }
//	  - complete: { instance: inst, task: my task, variables: { form_outcome: retry } }
//	    expect: { completed: true }
//	assertions:
//	  - type: historic_variable
//	    instance: inst
//	    name: form_outcome
//	    value: retry
//	  - type: finished
//	    instance: inst
//
// Definition paths are resolved relative to the scenario file. Instances
// are referred to by the alias given in "as".
//
// # Assertion Types
//
//   - active_at: the instance waits at activity
//   - finished: the instance has ended
//   - task_count: number of open tasks, optionally filtered by name
//   - variable: current value of a variable
//   - historic_variable: latest recorded value of a variable
//   - event_order: event types appear in this order
//   - event_count: an event type appears exactly count times
//
// # Deterministic Testing
//
// Each run uses a fresh SQLite database, sequential ids ("id-0001", ...)
// and a clock that starts at testutil.Epoch, so the same scenario always
// yields the same trace. Traces can be compared with golden files.
package harness
