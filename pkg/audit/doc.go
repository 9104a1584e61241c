// Package audit implements the append-only, session-scoped audit trail.
//
// A Trail owns at most one open session. Every Append sanitizes its payloads,
// assigns the next gapless sequence number and writes the record through to an
// AuditStore before returning. Writes to one session id are serialized by
// Locks, optionally backed by a DistributedLocker; different sessions never
// contend.
//
//	trail := audit.NewTrail(store, audit.WithLogger(logger))
//	id, err := trail.StartSession(ctx, "")
//	_, err = trail.Append(ctx, audit.Entry{Step: "tool_analyze_reply", Action: "..."})
//	records, err := trail.EndSession(ctx, true, result.Summary())
package audit
