/*
Package domain contains the core value types of the attest decision engine.

It models the audit trail (Session, StepRecord, SessionSummary), the tool
catalog (ToolDefinition, ToolCall, ToolResult), the conversation exchanged with
the reasoning oracle, and the tagged unions that keep the decision loop free of
untyped payloads (OracleResponse, Outcome). It is free of I/O and persistence.

# Key Entities

  - StepRecord: one immutable, sanitized entry of a session's audit log.
  - ToolDefinition: a callable tool, its parameter schema and whether it ends the loop.
  - OracleResponse: NoAction or ProposedToolCall, decoded once at the oracle boundary.
  - Outcome: Decision, Escalation, ClarificationNeeded or Exhausted.
  - Result: the caller-facing verdict built from an Outcome.
*/
package domain
