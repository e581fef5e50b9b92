// Package core defines the shared domain types of sapiens-mvp: the journey
// phases, the per-user state record, transition and conversation audit
// records, the durable artifacts produced along the journey, the error
// taxonomy, and the storage interfaces consumed by the orchestrator.
//
// core contains no behavior beyond record construction and field predicates;
// the decision logic lives in the journey and orchestrator packages.
package core
