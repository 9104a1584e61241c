/*
Package attest decides whether an academic credential is compliant by driving a
reasoning oracle (an LLM) through a bounded, fully audited sequence of tool calls.

# Concept

A case is a certificate, the issuing institution's reply and whether the
institution could be contacted at all. The Verifier opens an audit session,
runs the decision loop and seals the session. The loop asks the oracle for the
next action, dispatches the single tool it proposes and stops on a terminal
tool (decide_compliance, escalate_to_human), an abstention, an oracle failure
or the iteration cap. Cases without a contact or a reply never reach the
oracle: they are decided INCONCLUSIVE with a dedicated audit marker.

Every step is written through to durable storage before the loop moves on,
so a session can be replayed after a crash.

# Usage

	v, err := attest.New(
		attest.WithStore(file.New("./data/audit_logs")),
		attest.WithOracle(client),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer v.Close()

	res, err := v.RunDecision(ctx, attest.Request{
		Certificate:  cert,
		Reply:        &reply,
		ContactFound: true,
	})
	if err != nil {
		// A DurabilityError means the audit trail is incomplete.
		log.Fatal(err)
	}
	fmt.Println(res.Compliance, res.Explanation)

# Architecture

  - pkg/domain: value types, outcomes and the error taxonomy.
  - pkg/ports: AuditStore, ReasoningOracle, ReplyAnalyzer and DistributedLocker.
  - pkg/audit: the session-scoped, append-only audit trail.
  - pkg/registry and pkg/dispatch: the tool catalog and its handlers.
  - internal/runtime: the decision loop and result builder.
  - pkg/adapters: audit stores (memory, file, redis, sqlite, postgres) and hosting surfaces (http, mcp).
*/
package attest
