/*
Package ports defines the driven ports (interfaces) of the attest engine.

These interfaces decouple the decision loop and the audit trail from concrete
storage backends and model providers.

# Key Interfaces

  - AuditStore: append-only, crash-safe storage of step records and session summaries.
  - ReasoningOracle: proposes the next tool call for a conversation.
  - ReplyAnalyzer: reads an institution's reply into a structured verdict.
  - Completer: single-shot JSON completion used by model-backed analyzers.
  - DistributedLocker: serializes writes to one session across processes.
*/
package ports
