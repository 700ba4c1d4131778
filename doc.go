/*
Package stepflow is a graph-driven interactive step form runtime for
qualifying leads.

A form is authored as a directed graph of steps (flow config). The
runtime renders one step at a time, routes the visitor along the graph,
estimates progress over the reachable portion of the graph, and — when
the visitor completes the flow — runs a submission pipeline that
deduplicates, persists the lead, fires a confirmation email, and queues
an outbound webhook with an urgency-derived delay.

The Engine in this package is the high-level entry point wiring the
navigation state machine, the submission pipeline, and the dispatch
queue onto pluggable stores. See pkg/ports for the port interfaces and
pkg/adapters for the provided implementations.
*/
package stepflow
