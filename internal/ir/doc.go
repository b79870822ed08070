// Package ir defines the data model shared by every procflow component.
//
// It holds three groups of types:
//   - Process model: ProcessDefinition, FlowNode, SequenceFlow
//   - Runtime records: ProcessInstance, Task
//   - History records: HistoricVariableInstance, HistoricProcessInstance, HistoryEvent
//
// Process variables are represented by the sealed Value interface. Values are
// persisted as canonical JSON (sorted keys, no HTML escaping, NFC-normalized
// strings) so that identical variables always produce identical bytes, which
// keeps history rows and definition hashes stable across runs.
//
// The package also defines the coded Error type used across the module for the
// NotFound, InvalidDefinition, AmbiguousResult, AlreadyCompleted and
// QuotaExceeded failures.
package ir
