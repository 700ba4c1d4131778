/*
Package domain holds the pure data model of a step form: the authored
graph (steps and edges), the per-visitor navigation state, and the
records produced by a completed submission (lead, conversion event,
queued dispatch).

Types here carry no behavior beyond structural lookups and invariant
checks. Everything with side effects lives behind the ports defined in
pkg/ports and the runtime packages.
*/
package domain
