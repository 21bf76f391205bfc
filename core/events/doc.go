// Package events defines the typed lifecycle events of an orchestration
// session, delivered to observers registered on the coordinator.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - session.*
//   - call.*
//
// session events
//
//   - SessionStarted (session.started): a query was accepted and the session
//     registered.
//   - PhaseStarted (session.phase_started): the primary, secondary or
//     synthesis phase began.
//   - SessionEnded (session.ended): terminal outcome of the session, emitted
//     exactly once after the terminator was relayed.
//
// call events
//
//   - CallStarted (call.started): an upstream call was issued.
//   - CallFinished (call.finished): an upstream call produced its single
//     result.
package events
